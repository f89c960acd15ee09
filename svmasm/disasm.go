package svmasm

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"

	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/spec"
	"shroudvm.org/shroud/svmimage"
)

// Disassemble writes img in the form read by Assemble.
// prog is the plain program, as returned by img.Plain.
func Disassemble(w io.Writer, img *svmimage.Image, prog []scramble.Decoded) error {
	bw := bufio.NewWriter(w)
	labels := labelTargets(img, prog)
	label := func(target int) string {
		if name, ok := labels[target]; ok {
			return name
		}
		return strconv.Itoa(target)
	}

	fmt.Fprintf(bw, ".seed %d\n", img.Seed)
	if img.Locals > 0 {
		fmt.Fprintf(bw, ".locals %d\n", img.Locals)
	}
	tabs := &img.Tables
	for _, c := range tabs.Constants {
		fmt.Fprintf(bw, ".const %s\n", c)
	}
	for _, m := range tabs.Methods {
		fmt.Fprintf(bw, ".method %s %s %s\n", m.Class, m.Name, m.Desc)
	}
	for _, f := range tabs.Fields {
		fmt.Fprintf(bw, ".field %s %s %s\n", f.Class, f.Name, f.Desc)
	}
	for _, ma := range tabs.MultiArrays {
		fmt.Fprintf(bw, ".multi %s %d\n", ma.Class, ma.Dims)
	}
	for _, ts := range tabs.TableSwitches {
		parts := []string{".tableswitch", strconv.Itoa(int(ts.Low)), strconv.Itoa(int(ts.High)), label(ts.Default)}
		for _, t := range ts.Targets {
			parts = append(parts, label(t))
		}
		fmt.Fprintln(bw, strings.Join(parts, " "))
	}
	for _, ls := range tabs.LookupSwitches {
		parts := []string{".lookupswitch", label(ls.Default)}
		for i, k := range ls.Keys {
			parts = append(parts, fmt.Sprintf("%d:%s", k, label(ls.Targets[i])))
		}
		fmt.Fprintln(bw, strings.Join(parts, " "))
	}

	for pc, in := range prog {
		if name, ok := labels[pc]; ok {
			fmt.Fprintf(bw, "%s:\n", name)
		}
		fmt.Fprintf(bw, "\t%s\n", formatInstruction(in, label))
	}
	if name, ok := labels[len(prog)]; ok {
		fmt.Fprintf(bw, "%s:\n", name)
	}
	return bw.Flush()
}

func formatInstruction(in scramble.Decoded, label func(int) string) string {
	if !in.Op.IsValid() {
		return fmt.Sprintf("; invalid op %d operand %d", uint8(in.Op), in.Operand)
	}
	switch in.Op.Operand() {
	case spec.OperandNone:
		if in.Operand == 0 {
			return in.Op.String()
		}
	case spec.OperandIinc:
		idx, inc := UnpackIinc(in.Operand)
		return fmt.Sprintf("%v %d %d", in.Op, idx, inc)
	case spec.OperandTarget:
		if isTarget(in.Operand) {
			return fmt.Sprintf("%v %s", in.Op, label(int(in.Operand)))
		}
	}
	return fmt.Sprintf("%v %d", in.Op, in.Operand)
}

// labelTargets names every position which a branch or switch can jump to, in program order.
func labelTargets(img *svmimage.Image, prog []scramble.Decoded) map[int]string {
	targets := map[int]struct{}{}
	add := func(t int) {
		if t >= 0 && t <= len(prog) {
			targets[t] = struct{}{}
		}
	}
	for _, in := range prog {
		if in.Op.IsValid() && in.Op.Operand() == spec.OperandTarget && isTarget(in.Operand) {
			add(int(in.Operand))
		}
	}
	for _, ts := range img.Tables.TableSwitches {
		add(ts.Default)
		for _, t := range ts.Targets {
			add(t)
		}
	}
	for _, ls := range img.Tables.LookupSwitches {
		add(ls.Default)
		for _, t := range ls.Targets {
			add(t)
		}
	}
	pcs := maps.Keys(targets)
	slices.Sort(pcs)
	labels := make(map[int]string, len(pcs))
	for i, pc := range pcs {
		labels[pc] = fmt.Sprintf("L%d", i)
	}
	return labels
}

func isTarget(x int64) bool {
	return x >= 0 && x <= 1<<31
}
