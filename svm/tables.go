package svm

import "strings"

// MethodRef names a method by owner class, name and descriptor.
type MethodRef struct {
	Class string
	Name  string
	Desc  string
}

// FieldRef names a field by owner class, name and descriptor.
type FieldRef struct {
	Class string
	Name  string
	Desc  string
}

// MultiArrayRef describes a MULTIANEWARRAY site.
// Class is the array descriptor, e.g. "[[I" or "[[Ljava/lang/String;".
type MultiArrayRef struct {
	Class string
	Dims  int
}

type TableSwitch struct {
	Low, High int32
	Default   int
	Targets   []int
}

// Target returns the jump target for key.
func (ts *TableSwitch) Target(key int32) int {
	if key < ts.Low || key > ts.High {
		return ts.Default
	}
	i := int64(key) - int64(ts.Low)
	if i >= int64(len(ts.Targets)) {
		return ts.Default
	}
	return ts.Targets[i]
}

type LookupSwitch struct {
	Keys    []int32
	Targets []int
	Default int
}

// Target returns the jump target for key. The first matching key wins.
func (ls *LookupSwitch) Target(key int32) int {
	for i, k := range ls.Keys {
		if k == key && i < len(ls.Targets) {
			return ls.Targets[i]
		}
	}
	return ls.Default
}

// Tables holds the reference tables a program indexes with its operands.
// The machine caches resolutions by the address of MethodRef and FieldRef entries,
// so the same Tables should be passed to every call of a program.
type Tables struct {
	Constants      []string
	Methods        []MethodRef
	Fields         []FieldRef
	MultiArrays    []MultiArrayRef
	TableSwitches  []TableSwitch
	LookupSwitches []LookupSwitch
}

func (t *Tables) constant(i Word) (string, bool) {
	if i < 0 || i >= Word(len(t.Constants)) {
		return "", false
	}
	return t.Constants[i], true
}

func (t *Tables) method(i Word) (*MethodRef, bool) {
	if i < 0 || i >= Word(len(t.Methods)) {
		return nil, false
	}
	return &t.Methods[i], true
}

func (t *Tables) field(i Word) (*FieldRef, bool) {
	if i < 0 || i >= Word(len(t.Fields)) {
		return nil, false
	}
	return &t.Fields[i], true
}

func (t *Tables) multiArray(i Word) (*MultiArrayRef, bool) {
	if i < 0 || i >= Word(len(t.MultiArrays)) {
		return nil, false
	}
	return &t.MultiArrays[i], true
}

func (t *Tables) tableSwitch(i Word) (*TableSwitch, bool) {
	if i < 0 || i >= Word(len(t.TableSwitches)) {
		return nil, false
	}
	return &t.TableSwitches[i], true
}

func (t *Tables) lookupSwitch(i Word) (*LookupSwitch, bool) {
	if i < 0 || i >= Word(len(t.LookupSwitches)) {
		return nil, false
	}
	return &t.LookupSwitches[i], true
}

// Signature is a parsed method descriptor.
type Signature struct {
	Args []Kind
	Ret  Kind
}

// ParseSignature parses a method descriptor such as "(I[JLjava/lang/String;)D".
// Array and object arguments are KindRef.
// Malformed descriptors are parsed as far as possible.
func ParseSignature(desc string) Signature {
	var sig Signature
	p := strings.TrimPrefix(desc, "(")
	for len(p) > 0 && p[0] != ')' {
		c := p[0]
		p = p[1:]
		switch c {
		case 'L':
			p = skipClassName(p)
			sig.Args = append(sig.Args, KindRef)
		case '[':
			p = strings.TrimLeft(p, "[")
			if len(p) > 0 && p[0] == 'L' {
				p = skipClassName(p[1:])
			} else if len(p) > 0 {
				p = p[1:]
			}
			sig.Args = append(sig.Args, KindRef)
		default:
			sig.Args = append(sig.Args, KindFromDesc(string(c)))
		}
	}
	p = strings.TrimPrefix(p, ")")
	if p == "" {
		sig.Ret = KindVoid
	} else {
		sig.Ret = KindFromDesc(p)
	}
	return sig
}

func skipClassName(p string) string {
	if i := strings.IndexByte(p, ';'); i >= 0 {
		return p[i+1:]
	}
	return ""
}

// arrayElem returns the kind and class name used to allocate the elements of an array
// with descriptor desc. The returned kind is KindRef for object and array elements.
func arrayElem(desc string) (Kind, string) {
	elem := strings.TrimPrefix(desc, "[")
	switch {
	case strings.HasPrefix(elem, "["):
		return KindRef, elem
	case strings.HasPrefix(elem, "L"):
		return KindRef, strings.TrimSuffix(elem[1:], ";")
	default:
		return KindFromDesc(elem), ""
	}
}
