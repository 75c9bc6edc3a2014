package scopes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergev/larch/hast"
)

func name(id string) *hast.Name {
	return &hast.Name{ID: id, Ctx: hast.Load}
}

func TestFunctionFrameForwardsUnresolved(t *testing.T) {
	r := NewResolver()
	fn := r.PushFunction()
	inner := r.PushFunction()

	free := name("outer_var")
	require.NoError(t, r.Access(free))
	local := name("local_var")
	require.NoError(t, r.Assign(local))

	require.NoError(t, r.Pop())
	// The inner frame kept what it binds and forwarded the rest once.
	assert.True(t, inner.defines("local_var"))
	assert.False(t, inner.defines("outer_var"))
	require.Len(t, fn.seen, 1)
	assert.Same(t, free, fn.seen[0])

	require.NoError(t, r.Pop())
	require.NoError(t, r.Finish())
}

func TestDefinitionLaterInFrameBindsEarlierUse(t *testing.T) {
	r := NewResolver()
	fn := r.PushFunction()
	require.NoError(t, r.Access(name("x")))
	require.NoError(t, r.Assign(name("x")))
	require.NoError(t, r.Pop())
	assert.True(t, fn.defines("x"))
	require.NoError(t, r.Finish())
}

func TestNonlocalAfterUseIsError(t *testing.T) {
	r := NewResolver()
	r.PushFunction()
	require.NoError(t, r.Access(name("x")))
	err := r.DefineNonlocal(name("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "used before")

	r = NewResolver()
	r.PushFunction()
	require.NoError(t, r.Assign(name("y")))
	err = r.DefineGlobal(name("y"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assigned to before")
}

func TestNonlocalAtModuleLevel(t *testing.T) {
	r := NewResolver()
	err := r.DefineNonlocal(name("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module level")

	// global at module level is a no-op.
	require.NoError(t, r.DefineGlobal(name("x")))
}

func TestNonlocalSatisfiedByLaterEnclosingDefinition(t *testing.T) {
	r := NewResolver()
	r.PushFunction()

	r.PushFunction()
	require.NoError(t, r.DefineNonlocal(name("acc")))
	require.NoError(t, r.Assign(name("acc")))
	require.NoError(t, r.Pop())

	// The enclosing frame defines acc only after the inner one closed.
	require.NoError(t, r.Assign(name("acc")))
	require.NoError(t, r.Pop())
	require.NoError(t, r.Finish())
}

func TestNonlocalWithNoBinding(t *testing.T) {
	r := NewResolver()
	r.PushFunction()
	r.PushFunction()
	require.NoError(t, r.DefineNonlocal(name("ghost")))
	require.NoError(t, r.Pop())
	err := r.Pop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no binding for nonlocal")
}

func TestNonlocalSkipsClassFrames(t *testing.T) {
	r := NewResolver()
	r.PushFunction()
	require.NoError(t, r.Assign(name("counter")))
	r.PushClass()
	r.PushFunction()
	require.NoError(t, r.DefineNonlocal(name("counter")))
	require.NoError(t, r.Assign(name("counter")))
	require.NoError(t, r.Pop())
	require.NoError(t, r.Pop())
	require.NoError(t, r.Pop())
	require.NoError(t, r.Finish())
}

func TestNonlocalAssignDoesNotDefineLocally(t *testing.T) {
	r := NewResolver()
	r.PushFunction()
	require.NoError(t, r.Assign(name("x")))
	inner := r.PushFunction()
	require.NoError(t, r.DefineNonlocal(name("x")))
	require.NoError(t, r.Assign(name("x")))
	assert.False(t, inner.defines("x"))
	require.NoError(t, r.Pop())
	require.NoError(t, r.Pop())
	require.NoError(t, r.Finish())
}

func TestLetRenamesUsesInPlace(t *testing.T) {
	r := NewResolver()
	let := r.PushLet()

	bound := name("x")
	hidden := let.Bind(bound)
	assert.NotEqual(t, "x", hidden)
	assert.Equal(t, hidden, bound.ID)

	use := name("x")
	require.NoError(t, r.Access(use))
	assert.Equal(t, hidden, use.ID)

	store := name("x")
	require.NoError(t, r.Assign(store))
	assert.Equal(t, hidden, store.ID)

	other := name("y")
	require.NoError(t, r.Access(other))
	assert.Equal(t, "y", other.ID)

	require.NoError(t, r.Pop())
	require.NoError(t, r.Finish())
}

func TestLetBindingsAreDistinctPerBind(t *testing.T) {
	r := NewResolver()
	let := r.PushLet()
	first := name("x")
	h1 := let.Bind(first)
	second := name("x")
	h2 := let.Bind(second)
	assert.NotEqual(t, h1, h2)

	// The newest binding shadows.
	use := name("x")
	require.NoError(t, r.Access(use))
	assert.Equal(t, h2, use.ID)
}

func TestLocalDefinitionRemovesLetShadowing(t *testing.T) {
	r := NewResolver()
	let := r.PushLet()
	let.Bind(name("f"))
	r.Define("f")
	_, stillBound := let.Rename("f")
	assert.False(t, stillBound)

	use := name("f")
	require.NoError(t, r.Access(use))
	assert.Equal(t, "f", use.ID)
}

func TestLetResolutionThroughFunctionFrame(t *testing.T) {
	// A use inside a nested function resolves against an outer let
	// binding when the function frame settles.
	r := NewResolver()
	let := r.PushLet()
	hidden := let.Bind(name("captured"))

	r.PushFunction()
	use := name("captured")
	require.NoError(t, r.Access(use))
	assert.Equal(t, "captured", use.ID)
	require.NoError(t, r.Pop())
	assert.Equal(t, hidden, use.ID)

	require.NoError(t, r.Pop())
	require.NoError(t, r.Finish())
}

func TestGeneratorIterationVariableProtected(t *testing.T) {
	r := NewResolver()
	gen := r.PushGenerator()
	gen.DefineIteration(name("i"))

	err := r.Assign(name("i"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iteration variable")

	require.NoError(t, r.Access(name("i")))
}

func TestGeneratorLeaksAssignmentsToFunction(t *testing.T) {
	r := NewResolver()
	fn := r.PushFunction()
	gen := r.PushGenerator()
	gen.DefineIteration(name("i"))
	require.NoError(t, r.Assign(name("total")))
	require.NoError(t, r.Pop())

	assert.True(t, fn.defines("total"))
	assert.False(t, fn.defines("i"))
	require.NoError(t, r.Pop())
	require.NoError(t, r.Finish())
}

func TestGeneratorLeaksThroughLetFrames(t *testing.T) {
	r := NewResolver()
	fn := r.PushFunction()
	r.PushLet()
	gen := r.PushGenerator()
	gen.DefineIteration(name("i"))
	require.NoError(t, r.Assign(name("total")))
	require.NoError(t, r.Pop())
	assert.True(t, fn.defines("total"))
}

func TestGeneratorLeakBlockedByClassAndGenerator(t *testing.T) {
	r := NewResolver()
	cls := r.PushClass()
	gen := r.PushGenerator()
	require.NoError(t, r.Assign(name("x")))
	require.NoError(t, r.Pop())
	assert.False(t, cls.defines("x"))
	_ = gen

	r = NewResolver()
	outer := r.PushGenerator()
	inner := r.PushGenerator()
	require.NoError(t, r.Assign(name("y")))
	require.NoError(t, r.Pop())
	assert.False(t, outer.defines("y"))
	_ = inner
}

func TestCustomGensym(t *testing.T) {
	n := 0
	r := NewResolver(WithGensym(func(base string) string {
		n++
		return base + "_hidden"
	}))
	let := r.PushLet()
	assert.Equal(t, "x_hidden", let.Bind(name("x")))
	assert.Equal(t, 1, n)
}
