package svm

// pinSet tracks the arrays accessed by one call.
// An array is pinned on its second access and stays pinned until release.
type pinSet struct {
	seen   map[Ref]int
	pinned map[Ref][]Value
	count  uint64
}

// elems returns the pinned elements of arr, pinning it if this is a repeat access.
// It returns nil if arr is not pinned.
func (p *pinSet) elems(host Host, arr Ref) []Value {
	if elems, ok := p.pinned[arr]; ok {
		return elems
	}
	if p.seen == nil {
		p.seen = make(map[Ref]int)
		p.pinned = make(map[Ref][]Value)
	}
	p.seen[arr]++
	if p.seen[arr] < 2 {
		return nil
	}
	elems := host.PinArray(arr)
	if elems == nil {
		return nil
	}
	p.pinned[arr] = elems
	p.count++
	return elems
}

// release writes back and unpins every pinned array.
func (p *pinSet) release(host Host) {
	for arr, elems := range p.pinned {
		host.ReleaseArray(arr, elems)
	}
	clear(p.pinned)
	clear(p.seen)
}
