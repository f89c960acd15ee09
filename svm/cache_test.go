package svm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shroudvm.org/shroud/spec"
	"shroudvm.org/shroud/svm"
)

func TestClassCache(t *testing.T) {
	e := newDemoEnv(t)
	tabs := demoTables()
	prog := e.encode(t, 1, []I{P(spec.NEW, 0)})

	for i := 0; i < 3; i++ {
		res := e.m.Execute(e.ctx, prog, nil, 1, tabs)
		require.NotZero(t, res)
	}
	require.Equal(t, uint64(1), e.host.Stats().FindClass)
	cs := e.m.CacheStats()
	require.Equal(t, uint64(3), cs.ClassLookups)
	require.Equal(t, uint64(2), cs.ClassHits)
	require.Equal(t, uint64(1), cs.ClassMisses)
	require.Equal(t, 1, e.host.LiveWeakRefs())

	e.m.Reset(e.ctx)
	require.Equal(t, svm.CacheStats{}, e.m.CacheStats())
	require.Equal(t, 0, e.host.LiveWeakRefs())

	e.m.Execute(e.ctx, prog, nil, 1, tabs)
	require.Equal(t, uint64(2), e.host.Stats().FindClass)
}

func TestClassCacheWeakExpiry(t *testing.T) {
	e := newDemoEnv(t)
	tabs := demoTables()
	prog := e.encode(t, 1, []I{P(spec.NEW, 0)})

	e.m.Execute(e.ctx, prog, nil, 1, tabs)
	e.host.ClearWeakRefs()
	res := e.m.Execute(e.ctx, prog, nil, 1, tabs)
	require.Equal(t, counterClass, e.host.ClassOf(svm.Ref(res)).Name)
	require.Equal(t, uint64(1), e.m.CacheStats().ClassExpired)
	require.Equal(t, uint64(2), e.host.Stats().FindClass)
	// the cleared ref is deleted and replaced
	require.Equal(t, 1, e.host.LiveWeakRefs())
}

func TestClassUnloaded(t *testing.T) {
	e := newDemoEnv(t)
	tabs := demoTables()
	prog := e.encode(t, 1, []I{P(spec.NEW, 0)})

	e.m.Execute(e.ctx, prog, nil, 1, tabs)
	e.host.Unload(counterClass)
	require.Equal(t, svm.Word(0), e.m.Execute(e.ctx, prog, nil, 1, tabs))
	require.Equal(t, svm.HaltHost, e.m.LastHalt())
	require.Equal(t, svm.NoClassDefFoundError, e.host.ClassOf(e.host.PendingException()).Name)
}

func TestMemberCache(t *testing.T) {
	e := newDemoEnv(t)
	tabs := demoTables()
	prog := e.encode(t, 2, []I{
		P(spec.PUSH, 4),
		P(spec.PUSH, 6),
		P(spec.INVOKESTATIC, 1),
		P(spec.PUTSTATIC, 1),
		P(spec.GETSTATIC, 1),
	})
	for i := 0; i < 4; i++ {
		require.Equal(t, svm.Word(6), e.m.Execute(e.ctx, prog, nil, 2, tabs))
	}
	hs := e.host.Stats()
	require.Equal(t, uint64(1), hs.MethodID)
	require.Equal(t, uint64(1), hs.FieldID)
	require.Equal(t, 2, e.host.LiveGlobalRefs())

	cs := e.m.CacheStats()
	require.Equal(t, uint64(2), cs.MemberMisses)
	require.Equal(t, uint64(10), cs.MemberHits)
	require.Equal(t, uint64(1), cs.SignatureMisses)
	require.Equal(t, uint64(3), cs.SignatureHits)

	e.m.Reset(e.ctx)
	require.Equal(t, 0, e.host.LiveGlobalRefs())
	require.Equal(t, uint64(2), e.host.Stats().GlobalRefsDeleted)

	require.Equal(t, svm.Word(6), e.m.Execute(e.ctx, prog, nil, 2, tabs))
	require.Equal(t, uint64(2), e.host.Stats().MethodID)
}

func TestMemberCacheKeyedByRef(t *testing.T) {
	e := newDemoEnv(t)
	prog := e.encode(t, 2, []I{P(spec.PUSH, 4), P(spec.PUSH, 6), P(spec.INVOKESTATIC, 1)})
	// separate tables hold distinct refs, even with equal contents
	e.m.Execute(e.ctx, prog, nil, 2, demoTables())
	e.m.Execute(e.ctx, prog, nil, 2, demoTables())
	require.Equal(t, uint64(2), e.host.Stats().MethodID)
}

func TestSmallCacheEvicts(t *testing.T) {
	e := newDemoEnv(t, func(o *svm.Options) { o.ClassCacheSize = 1 })
	tabs := demoTables()
	prog := e.encode(t, 4, []I{P(spec.NEW, 0), P(spec.NEW, 3), P(spec.NEW, 0)})
	e.m.Execute(e.ctx, prog, nil, 4, tabs)
	require.Equal(t, uint64(3), e.host.Stats().FindClass)
	require.Equal(t, uint64(2), e.host.Stats().WeakRefsDeleted)
	require.Equal(t, 1, e.host.LiveWeakRefs())
}
