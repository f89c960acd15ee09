package hostsim

import (
	"shroudvm.org/shroud/svm"
)

// MethodFunc implements a method. recv is Null for static methods.
// A method throws by calling Host.Throw or Host.ThrowNew.
type MethodFunc = func(h *Host, recv svm.Ref, args []svm.Value) svm.Value

type Class struct {
	Name  string
	Super *Class

	ref     svm.Ref
	methods map[string]*Method
	fields  map[string]*Field
	statics map[svm.ID]svm.Value
	// elem is the element kind if this is an array class.
	elem svm.Kind
}

type Method struct {
	Owner  *Class
	Name   string
	Desc   string
	Static bool
	Fn     MethodFunc

	id svm.ID
}

type Field struct {
	Owner  *Class
	Name   string
	Desc   string
	Static bool

	id svm.ID
}

// Ref returns the handle of the class object.
func (c *Class) Ref() svm.Ref {
	return c.ref
}

// IsSubclassOf returns true if c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for x := c; x != nil; x = x.Super {
		if x == other {
			return true
		}
	}
	return false
}

// ID returns the handle returned by Host.MethodID.
func (m *Method) ID() svm.ID {
	return m.id
}

// ID returns the handle returned by Host.FieldID.
func (f *Field) ID() svm.ID {
	return f.id
}

func (c *Class) IsArray() bool {
	return len(c.Name) > 0 && c.Name[0] == '['
}

// DefineMethod adds a method to c. An existing method with the same name and descriptor is replaced.
func (c *Class) DefineMethod(h *Host, name, desc string, static bool, fn MethodFunc) *Method {
	h.nextID++
	m := &Method{Owner: c, Name: name, Desc: desc, Static: static, Fn: fn, id: h.nextID}
	c.methods[name+desc] = m
	h.methods[m.id] = m
	return m
}

// DefineField adds a field to c.
func (c *Class) DefineField(h *Host, name, desc string, static bool) *Field {
	h.nextID++
	f := &Field{Owner: c, Name: name, Desc: desc, Static: static, id: h.nextID}
	c.fields[name+":"+desc] = f
	h.fields[f.id] = f
	return f
}

// findMethod looks up a method on c and its superclasses.
func (c *Class) findMethod(name, desc string) *Method {
	for x := c; x != nil; x = x.Super {
		if m, ok := x.methods[name+desc]; ok {
			return m
		}
	}
	return nil
}

func (c *Class) findField(name, desc string) *Field {
	for x := c; x != nil; x = x.Super {
		if f, ok := x.fields[name+":"+desc]; ok {
			return f
		}
	}
	return nil
}
