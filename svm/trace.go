package svm

import (
	"fmt"

	"shroudvm.org/shroud/spec"
)

// TraceEntry records one dispatch of the interpreter.
type TraceEntry struct {
	PC int
	Op spec.Op
	// SP is the stack depth before the instruction ran.
	SP int
}

func (te TraceEntry) String() string {
	return fmt.Sprintf("%4d %-16v sp=%d", te.PC, te.Op, te.SP)
}

// Trace returns the most recent dispatches, oldest first.
// It returns nil if tracing is disabled.
func (m *Machine) Trace() []TraceEntry {
	if m.trace == nil {
		return nil
	}
	return m.trace.AppendTo(nil)
}

func (m *Machine) ClearTrace() {
	if m.trace != nil {
		m.trace.Clear()
	}
}
