package oracle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chakravyuha/internal/ir"
	"chakravyuha/internal/oracle"
)

func twoBlockFunc(name string) *ir.Function {
	entry := &ir.BasicBlock{Label: "entry"}
	exit := &ir.BasicBlock{Label: "exit"}
	ir.SetTerminator(entry, &ir.Br{Target: exit})
	ir.SetTerminator(exit, &ir.Ret{})
	f := &ir.Function{Name: name, Blocks: []*ir.BasicBlock{entry, exit}}
	return f
}

func TestMayTransformRejectsDeclarations(t *testing.T) {
	mod := &ir.Module{}
	f := &ir.Function{Name: "extern_fn", Declaration: true}
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	assert.False(t, oc.MayTransform(f))
}

func TestMayTransformRejectsSingleBlock(t *testing.T) {
	mod := &ir.Module{}
	b := &ir.BasicBlock{Label: "entry"}
	ir.SetTerminator(b, &ir.Ret{})
	f := &ir.Function{Name: "single", Blocks: []*ir.BasicBlock{b}}
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	assert.False(t, oc.MayTransform(f))
}

func TestMayTransformAcceptsPlainTwoBlockFunction(t *testing.T) {
	mod := &ir.Module{}
	f := twoBlockFunc("plain")
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	assert.True(t, oc.MayTransform(f))
}

func TestMayTransformRejectsUnsupportedTerminator(t *testing.T) {
	mod := &ir.Module{}
	f := twoBlockFunc("weird")
	ir.SetTerminator(f.Blocks[1], &ir.UnsupportedTerminator{Kind: "indirectbr"})
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	assert.False(t, oc.MayTransform(f))
}

func TestMayTransformRejectsDirectInlineAsm(t *testing.T) {
	mod := &ir.Module{}
	f := twoBlockFunc("has_asm")
	ir.Append(f.Blocks[0], &ir.Call{Callee: "asm_stub", InlineAsm: true})
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	assert.False(t, oc.MayTransform(f))
	assert.True(t, oc.IsDirectlyUnsafe(f))
}

func TestMayTransformRejectsJumpMarkerCalls(t *testing.T) {
	mod := &ir.Module{}
	f := twoBlockFunc("has_setjmp")
	ir.Append(f.Blocks[0], &ir.Call{Callee: "setjmp"})
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	assert.False(t, oc.MayTransform(f))
}

func TestUnsafetyPropagatesThroughCallers(t *testing.T) {
	mod := &ir.Module{}
	unsafeFn := twoBlockFunc("unsafe_leaf")
	ir.Append(unsafeFn.Blocks[0], &ir.Call{Callee: "setjmp"})

	caller := twoBlockFunc("caller")
	ir.Append(caller.Blocks[0], &ir.Call{Callee: "unsafe_leaf", CalleeFunc: unsafeFn})

	grandcaller := twoBlockFunc("grandcaller")
	ir.Append(grandcaller.Blocks[0], &ir.Call{Callee: "caller", CalleeFunc: caller})

	mod.Functions = append(mod.Functions, unsafeFn, caller, grandcaller)

	oc := oracle.New(mod)
	assert.False(t, oc.MayTransform(unsafeFn))
	assert.False(t, oc.MayTransform(caller))
	assert.False(t, oc.MayTransform(grandcaller))
	assert.False(t, oc.IsDirectlyUnsafe(caller), "caller has no direct asm/jmp call of its own")
}

func TestMutualRecursionConverges(t *testing.T) {
	mod := &ir.Module{}
	a := twoBlockFunc("a")
	b := twoBlockFunc("b")
	ir.Append(a.Blocks[0], &ir.Call{Callee: "b", CalleeFunc: b})
	ir.Append(b.Blocks[0], &ir.Call{Callee: "a", CalleeFunc: a})
	ir.Append(b.Blocks[0], &ir.Call{Callee: "setjmp"})
	mod.Functions = append(mod.Functions, a, b)

	oc := oracle.New(mod)
	assert.False(t, oc.MayTransform(a))
	assert.False(t, oc.MayTransform(b))
}

func TestMayEncryptUsersOfRejectsWhenAnyUserUnsafe(t *testing.T) {
	mod := &ir.Module{}
	unsafeFn := twoBlockFunc("unsafe_user")
	ir.Append(unsafeFn.Blocks[0], &ir.Call{Callee: "longjmp"})
	safeFn := twoBlockFunc("safe_user")
	mod.Functions = append(mod.Functions, unsafeFn, safeFn)

	oc := oracle.New(mod)
	assert.False(t, oc.MayEncryptUsersOf([]*ir.Function{safeFn, unsafeFn}))
	assert.True(t, oc.MayEncryptUsersOf([]*ir.Function{safeFn}))
}
