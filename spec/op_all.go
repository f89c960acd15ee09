package spec

import (
	"fmt"
	"strings"
)

// All returns every valid Op in numeric order.
func All() (ret []Op) {
	for i := 0; i < int(OpCount); i++ {
		ret = append(ret, Op(i))
	}
	return ret
}

// AllJITable returns the ops a compiled program may contain.
func AllJITable() (ret []Op) {
	for _, o := range All() {
		if o.IsJITable() {
			ret = append(ret, o)
		}
	}
	return ret
}

// AllDecoys contains the decoy ops
func AllDecoys() []Op {
	return []Op{NOP, JUNK1, JUNK2}
}

var byName = func() map[string]Op {
	ret := make(map[string]Op, OpCount)
	for _, o := range All() {
		ret[o.String()] = o
	}
	return ret
}()

// Parse returns the Op with the given mnemonic. Case is ignored.
func Parse(name string) (Op, error) {
	o, ok := byName[strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("unknown op %q", name)
	}
	return o, nil
}
