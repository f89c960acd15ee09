package svm

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// CacheStats counts resolution cache activity since the last Reset.
type CacheStats struct {
	// ClassLookups is the number of class resolutions requested.
	ClassLookups uint64
	ClassHits    uint64
	// ClassMisses counts calls to Host.FindClass made by the cache.
	ClassMisses uint64
	// ClassExpired counts weak refs found cleared by the host.
	ClassExpired uint64

	MemberHits   uint64
	MemberMisses uint64

	SignatureHits   uint64
	SignatureMisses uint64
}

// member is a resolved method or field.
// class is a global ref for static members and Null for instance members.
type member struct {
	class Ref
	id    ID
}

type resolver struct {
	host  Host
	stats CacheStats

	classes       *simplelru.LRU[string, Ref]
	staticMethods *simplelru.LRU[*MethodRef, member]
	methods       *simplelru.LRU[*MethodRef, member]
	staticFields  *simplelru.LRU[*FieldRef, member]
	fields        *simplelru.LRU[*FieldRef, member]
	sigs          *simplelru.LRU[string, *Signature]
}

func newResolver(host Host, classes, members, sigs int) *resolver {
	r := &resolver{host: host}
	r.classes = mustLRU(classes, func(_ string, weak Ref) {
		r.host.DeleteWeakRef(weak)
	})
	releaseStatic := func(m member) {
		if m.class != Null {
			r.host.DeleteGlobalRef(m.class)
		}
	}
	r.staticMethods = mustLRU(members, func(_ *MethodRef, m member) { releaseStatic(m) })
	r.methods = mustLRU[*MethodRef, member](members, nil)
	r.staticFields = mustLRU(members, func(_ *FieldRef, m member) { releaseStatic(m) })
	r.fields = mustLRU[*FieldRef, member](members, nil)
	r.sigs = mustLRU[string, *Signature](sigs, nil)
	return r
}

func mustLRU[K comparable, V any](size int, onEvict func(K, V)) *simplelru.LRU[K, V] {
	if size <= 0 {
		size = 1
	}
	c, err := simplelru.NewLRU[K, V](size, onEvict)
	if err != nil {
		panic(err)
	}
	return c
}

// class returns a local ref to the named class, or Null with an exception pending.
// The caller must delete the returned ref.
func (r *resolver) class(name string) Ref {
	r.stats.ClassLookups++
	if weak, ok := r.classes.Get(name); ok {
		if local := r.host.NewLocalRef(weak); local != Null {
			r.stats.ClassHits++
			return local
		}
		r.stats.ClassExpired++
		r.classes.Remove(name)
	}
	r.stats.ClassMisses++
	local := r.host.FindClass(name)
	if local == Null {
		return Null
	}
	r.classes.Add(name, r.host.NewWeakRef(local))
	return local
}

func (r *resolver) signature(desc string) *Signature {
	if sig, ok := r.sigs.Get(desc); ok {
		r.stats.SignatureHits++
		return sig
	}
	r.stats.SignatureMisses++
	sig := ParseSignature(desc)
	r.sigs.Add(desc, &sig)
	return &sig
}

// staticMethod resolves ref as a static method. The returned class is a global ref owned by the cache.
func (r *resolver) staticMethod(ref *MethodRef) (member, bool) {
	if m, ok := r.staticMethods.Get(ref); ok {
		r.stats.MemberHits++
		return m, true
	}
	r.stats.MemberMisses++
	m, ok := r.resolveStatic(ref.Class, func(cls Ref) ID {
		return r.host.MethodID(cls, ref.Name, ref.Desc, true)
	})
	if ok {
		r.staticMethods.Add(ref, m)
	}
	return m, ok
}

func (r *resolver) staticField(ref *FieldRef) (member, bool) {
	if m, ok := r.staticFields.Get(ref); ok {
		r.stats.MemberHits++
		return m, true
	}
	r.stats.MemberMisses++
	m, ok := r.resolveStatic(ref.Class, func(cls Ref) ID {
		return r.host.FieldID(cls, ref.Name, ref.Desc, true)
	})
	if ok {
		r.staticFields.Add(ref, m)
	}
	return m, ok
}

func (r *resolver) resolveStatic(className string, lookup func(Ref) ID) (member, bool) {
	cls := r.class(className)
	if cls == Null {
		return member{}, false
	}
	defer r.host.DeleteLocalRef(cls)
	id := lookup(cls)
	if id == 0 || r.host.ExceptionCheck() {
		return member{}, false
	}
	return member{class: r.host.NewGlobalRef(cls), id: id}, true
}

// method resolves ref as an instance method.
func (r *resolver) method(ref *MethodRef) (ID, bool) {
	if m, ok := r.methods.Get(ref); ok {
		r.stats.MemberHits++
		return m.id, true
	}
	r.stats.MemberMisses++
	id, ok := r.resolveInstance(ref.Class, func(cls Ref) ID {
		return r.host.MethodID(cls, ref.Name, ref.Desc, false)
	})
	if ok {
		r.methods.Add(ref, member{id: id})
	}
	return id, ok
}

func (r *resolver) field(ref *FieldRef) (ID, bool) {
	if m, ok := r.fields.Get(ref); ok {
		r.stats.MemberHits++
		return m.id, true
	}
	r.stats.MemberMisses++
	id, ok := r.resolveInstance(ref.Class, func(cls Ref) ID {
		return r.host.FieldID(cls, ref.Name, ref.Desc, false)
	})
	if ok {
		r.fields.Add(ref, member{id: id})
	}
	return id, ok
}

func (r *resolver) resolveInstance(className string, lookup func(Ref) ID) (ID, bool) {
	cls := r.class(className)
	if cls == Null {
		return 0, false
	}
	defer r.host.DeleteLocalRef(cls)
	id := lookup(cls)
	if id == 0 || r.host.ExceptionCheck() {
		return 0, false
	}
	return id, true
}

// reset releases every handle held by the caches and zeroes the counters.
// It returns the number of entries dropped.
func (r *resolver) reset() int {
	n := r.classes.Len() + r.staticMethods.Len() + r.methods.Len() +
		r.staticFields.Len() + r.fields.Len() + r.sigs.Len()
	r.classes.Purge()
	r.staticMethods.Purge()
	r.methods.Purge()
	r.staticFields.Purge()
	r.fields.Purge()
	r.sigs.Purge()
	r.stats = CacheStats{}
	return n
}
