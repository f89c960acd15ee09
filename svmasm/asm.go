// package svmasm converts between plain programs and a line oriented text form.
//
// Each line holds a label, a directive, or an instruction:
//
//	; comment
//	.seed 7
//	.locals 2
//	.const java/lang/Object
//	.method java/lang/Math max (II)I
//	.field demo/Counter n I
//	.multi [[I 2
//	.tableswitch 0 2 done a b c
//	.lookupswitch done 10:a 20:b
//	loop:
//		LOAD 0
//		IINC 1 -1
//		IFNE loop
//		HALT
//
// Branch operands and switch targets may be labels.
// PUSH accepts f:<float> and d:<double> for float and double words.
package svmasm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/spec"
	"shroudvm.org/shroud/svm"
	"shroudvm.org/shroud/svmimage"
)

// ErrSyntax is returned for source which cannot be assembled.
type ErrSyntax struct {
	Line int
	Msg  string
}

func (e ErrSyntax) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// fixup is an operand which names a label.
type fixup struct {
	line  int
	label string
	set   func(target int)
}

type assembler struct {
	img    *svmimage.Image
	labels map[string]int
	fixups []fixup
	line   int
}

// Assemble parses src into an unencoded image.
func Assemble(src io.Reader) (*svmimage.Image, error) {
	a := &assembler{
		img:    svmimage.New(nil, 0, nil),
		labels: make(map[string]int),
	}
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		a.line++
		if err := a.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for _, fx := range a.fixups {
		target, ok := a.labels[fx.label]
		if !ok {
			return nil, ErrSyntax{Line: fx.line, Msg: fmt.Sprintf("undefined label %q", fx.label)}
		}
		fx.set(target)
	}
	if err := a.img.Validate(); err != nil {
		return nil, err
	}
	return a.img, nil
}

// AssembleString is Assemble for a string.
func AssembleString(src string) (*svmimage.Image, error) {
	return Assemble(strings.NewReader(src))
}

func (a *assembler) errorf(format string, args ...any) error {
	return ErrSyntax{Line: a.line, Msg: fmt.Sprintf(format, args...)}
}

func (a *assembler) parseLine(line string) error {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	if label, ok := strings.CutSuffix(fields[0], ":"); ok {
		if label == "" {
			return a.errorf("empty label")
		}
		if _, exists := a.labels[label]; exists {
			return a.errorf("label %q defined twice", label)
		}
		a.labels[label] = len(a.img.Program)
		fields = fields[1:]
		if len(fields) == 0 {
			return nil
		}
	}
	if strings.HasPrefix(fields[0], ".") {
		return a.directive(fields[0], fields[1:])
	}
	return a.instruction(fields[0], fields[1:])
}

func (a *assembler) directive(name string, args []string) error {
	tabs := &a.img.Tables
	switch name {
	case ".seed":
		if len(args) != 1 {
			return a.errorf(".seed takes 1 argument")
		}
		x, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return a.errorf("bad seed: %v", err)
		}
		a.img.Seed = x
	case ".locals":
		if len(args) != 1 {
			return a.errorf(".locals takes 1 argument")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return a.errorf("bad locals count %q", args[0])
		}
		a.img.Locals = n
	case ".const":
		if len(args) != 1 {
			return a.errorf(".const takes 1 argument")
		}
		tabs.Constants = append(tabs.Constants, args[0])
	case ".method", ".field":
		if len(args) != 3 {
			return a.errorf("%s takes 3 arguments", name)
		}
		if name == ".method" {
			tabs.Methods = append(tabs.Methods, svm.MethodRef{Class: args[0], Name: args[1], Desc: args[2]})
		} else {
			tabs.Fields = append(tabs.Fields, svm.FieldRef{Class: args[0], Name: args[1], Desc: args[2]})
		}
	case ".multi":
		if len(args) != 2 {
			return a.errorf(".multi takes 2 arguments")
		}
		dims, err := strconv.Atoi(args[1])
		if err != nil || dims < 1 {
			return a.errorf("bad dimension count %q", args[1])
		}
		tabs.MultiArrays = append(tabs.MultiArrays, svm.MultiArrayRef{Class: args[0], Dims: dims})
	case ".tableswitch":
		return a.tableSwitch(args)
	case ".lookupswitch":
		return a.lookupSwitch(args)
	default:
		return a.errorf("unknown directive %s", name)
	}
	return nil
}

func (a *assembler) tableSwitch(args []string) error {
	if len(args) < 3 {
		return a.errorf(".tableswitch takes low, high, default and targets")
	}
	low, err1 := strconv.ParseInt(args[0], 0, 32)
	high, err2 := strconv.ParseInt(args[1], 0, 32)
	if err1 != nil || err2 != nil || high < low {
		return a.errorf("bad switch range %s..%s", args[0], args[1])
	}
	targets := args[3:]
	if int64(len(targets)) != high-low+1 {
		return a.errorf("switch range %d..%d needs %d targets, have %d", low, high, high-low+1, len(targets))
	}
	tabs := &a.img.Tables
	idx := len(tabs.TableSwitches)
	tabs.TableSwitches = append(tabs.TableSwitches, svm.TableSwitch{
		Low:     int32(low),
		High:    int32(high),
		Targets: make([]int, len(targets)),
	})
	if err := a.target(args[2], func(x int) { tabs.TableSwitches[idx].Default = x }); err != nil {
		return err
	}
	for i, t := range targets {
		if err := a.target(t, func(x int) { tabs.TableSwitches[idx].Targets[i] = x }); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) lookupSwitch(args []string) error {
	if len(args) < 1 {
		return a.errorf(".lookupswitch takes a default and key:target pairs")
	}
	tabs := &a.img.Tables
	idx := len(tabs.LookupSwitches)
	tabs.LookupSwitches = append(tabs.LookupSwitches, svm.LookupSwitch{
		Keys:    make([]int32, len(args)-1),
		Targets: make([]int, len(args)-1),
	})
	if err := a.target(args[0], func(x int) { tabs.LookupSwitches[idx].Default = x }); err != nil {
		return err
	}
	for i, pair := range args[1:] {
		k, t, ok := strings.Cut(pair, ":")
		if !ok {
			return a.errorf("bad lookup pair %q", pair)
		}
		key, err := strconv.ParseInt(k, 0, 32)
		if err != nil {
			return a.errorf("bad lookup key %q", k)
		}
		if i > 0 && int32(key) <= tabs.LookupSwitches[idx].Keys[i-1] {
			return a.errorf("lookup keys must be increasing")
		}
		tabs.LookupSwitches[idx].Keys[i] = int32(key)
		if err := a.target(t, func(x int) { tabs.LookupSwitches[idx].Targets[i] = x }); err != nil {
			return err
		}
	}
	return nil
}

// target resolves s as an instruction index or a label.
func (a *assembler) target(s string, set func(int)) error {
	if n, err := strconv.Atoi(s); err == nil {
		set(n)
		return nil
	}
	if !isLabel(s) {
		return a.errorf("bad target %q", s)
	}
	a.fixups = append(a.fixups, fixup{line: a.line, label: s, set: set})
	return nil
}

func (a *assembler) instruction(name string, args []string) error {
	op, err := spec.Parse(name)
	if err != nil {
		return a.errorf("%v", err)
	}
	pc := len(a.img.Program)
	a.img.Program = append(a.img.Program, scramble.Plain(op, 0))
	set := func(x int64) { a.img.Program[pc].Operand = x }

	switch op.Operand() {
	case spec.OperandNone:
		if len(args) > 1 {
			return a.errorf("%v takes at most 1 operand", op)
		}
	case spec.OperandIinc:
		if len(args) != 2 {
			return a.errorf("IINC takes a local and an increment")
		}
		idx, err1 := strconv.ParseUint(args[0], 0, 32)
		inc, err2 := strconv.ParseInt(args[1], 0, 32)
		if err1 != nil || err2 != nil {
			return a.errorf("bad IINC operands %q %q", args[0], args[1])
		}
		set(PackIinc(uint32(idx), int32(inc)))
		return nil
	case spec.OperandTarget:
		if len(args) != 1 {
			return a.errorf("%v takes a target", op)
		}
		return a.target(args[0], func(x int) { set(int64(x)) })
	default:
		if len(args) != 1 {
			return a.errorf("%v takes 1 operand", op)
		}
	}
	if len(args) == 1 {
		x, err := parseWord(args[0])
		if err != nil {
			return a.errorf("bad operand for %v: %v", op, err)
		}
		set(x)
	}
	return nil
}

// PackIinc builds the operand of IINC.
func PackIinc(local uint32, inc int32) int64 {
	return int64(uint64(local) | uint64(uint32(inc))<<32)
}

// UnpackIinc reverses PackIinc.
func UnpackIinc(x int64) (local uint32, inc int32) {
	return uint32(x), int32(uint64(x) >> 32)
}

func parseWord(s string) (int64, error) {
	switch {
	case strings.HasPrefix(s, "f:"):
		f, err := strconv.ParseFloat(s[2:], 32)
		if err != nil {
			return 0, err
		}
		return int64(int32(math.Float32bits(float32(f)))), nil
	case strings.HasPrefix(s, "d:"):
		f, err := strconv.ParseFloat(s[2:], 64)
		if err != nil {
			return 0, err
		}
		return int64(math.Float64bits(f)), nil
	}
	x, err := strconv.ParseInt(s, 0, 64)
	if err == nil {
		return x, nil
	}
	// allow hex patterns with the high bit set
	u, err2 := strconv.ParseUint(s, 0, 64)
	if err2 != nil {
		return 0, err
	}
	return int64(u), nil
}

func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z'):
		case '0' <= r && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
