package se_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chakravyuha/internal/ir"
	"chakravyuha/internal/oracle"
	"chakravyuha/internal/report"
	"chakravyuha/internal/rng"
	"chakravyuha/internal/se"
)

func stringGlobal(name, text string) *ir.GlobalVariable {
	bytes := []byte(text)
	return &ir.GlobalVariable{
		Name:     name,
		Type:     &ir.ArrayType{Elem: ir.I8, Length: len(bytes) + 1},
		Linkage:  ir.LinkagePrivate,
		Constant: true,
		Init:     &ir.StringData{Bytes: bytes},
	}
}

func moduleWithOneStringUser(t *testing.T) (*ir.Module, *ir.GlobalVariable, []byte) {
	t.Helper()
	mod := &ir.Module{}
	g := stringGlobal("msg", "hello")
	plain := append([]byte(nil), g.Init.(*ir.StringData).Bytes...)
	mod.Globals = append(mod.Globals, g)

	entry := &ir.BasicBlock{Label: "entry"}
	ref := mod.GlobalValue(g)
	result := mod.NewValue("printed", ir.I32)
	ir.Append(entry, &ir.Call{Result: result, Callee: "puts", Args: []*ir.Value{ref}})
	ir.SetTerminator(entry, &ir.Ret{})

	f := &ir.Function{Name: "main", ReturnType: ir.I32}
	f.AppendBlock(entry)
	mod.Functions = append(mod.Functions, f)

	return mod, g, plain
}

// globalNamed finds a global by name, the way a caller inspecting Run's
// output has to since the original global it replaces is erased from
// mod.Globals by the time Run returns.
func globalNamed(mod *ir.Module, name string) *ir.GlobalVariable {
	for _, g := range mod.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

func TestRunEncryptsEligibleString(t *testing.T) {
	mod, g, plain := moduleWithOneStringUser(t)
	oc := oracle.New(mod)
	r := rng.NewSeeded(1)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, se.Run(mod, oc, r, agg))

	assert.Nil(t, globalNamed(mod, g.Name), "the original plaintext global must be erased")

	ct := globalNamed(mod, g.Name+"_ct")
	require.NotNil(t, ct, "a new ciphertext global must replace it")
	sd := ct.Init.(*ir.StringData)
	assert.True(t, sd.Encrypted)
	assert.False(t, ct.Constant, "ciphertext storage is not constant, since in-place decryption mutates it")
	assert.NotEqual(t, plain, sd.Bytes, "ciphertext must differ from plaintext")
}

func TestRunSkipsAlreadyEncryptedGlobal(t *testing.T) {
	mod, g, _ := moduleWithOneStringUser(t)
	sd := g.Init.(*ir.StringData)
	sd.Encrypted = true
	sd.Key = [16]byte{0x42}
	before := append([]byte(nil), sd.Bytes...)

	oc := oracle.New(mod)
	r := rng.NewSeeded(2)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, se.Run(mod, oc, r, agg))
	assert.Equal(t, before, sd.Bytes, "an already-encrypted global is left untouched")
	assert.Same(t, g, globalNamed(mod, g.Name), "an already-encrypted global is never erased")
}

func TestRunRedirectsUsesThroughDispatchPointer(t *testing.T) {
	mod, g, _ := moduleWithOneStringUser(t)
	oc := oracle.New(mod)
	r := rng.NewSeeded(3)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, se.Run(mod, oc, r, agg))

	mainFn := mod.FunctionByName("main")
	require.NotNil(t, mainFn)

	var sawDirectGlobalRef, sawIndirectCall bool
	for _, inst := range mainFn.Entry().Instructions {
		for _, op := range inst.Operands() {
			if op != nil && op.IsGlobal && op.GlobalRef == g {
				sawDirectGlobalRef = true
			}
		}
		if call, ok := inst.(*ir.Call); ok && call.CalleeIndirect {
			sawIndirectCall = true
		}
	}
	assert.False(t, sawDirectGlobalRef, "the original call must no longer reference the plaintext global directly")
	assert.True(t, sawIndirectCall, "a load of the dispatch pointer followed by an indirect call must precede the original use")
}

func TestRunSkipsGlobalWithNoUses(t *testing.T) {
	mod := &ir.Module{}
	g := stringGlobal("unused", "orphan")
	mod.Globals = append(mod.Globals, g)

	oc := oracle.New(mod)
	r := rng.NewSeeded(4)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, se.Run(mod, oc, r, agg))
	assert.False(t, g.Init.(*ir.StringData).Encrypted)
	assert.Same(t, g, globalNamed(mod, g.Name))
}

func TestRunSkipsStringUsedByUnsafeFunction(t *testing.T) {
	mod := &ir.Module{}
	g := stringGlobal("msg", "danger")
	mod.Globals = append(mod.Globals, g)

	entry := &ir.BasicBlock{Label: "entry"}
	ir.Append(entry, &ir.Call{Callee: "setjmp"})
	result := mod.NewValue("printed", ir.I32)
	ir.Append(entry, &ir.Call{Result: result, Callee: "puts", Args: []*ir.Value{mod.GlobalValue(g)}})
	ir.SetTerminator(entry, &ir.Ret{})

	f := &ir.Function{Name: "risky", ReturnType: ir.I32}
	f.AppendBlock(entry)
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	r := rng.NewSeeded(5)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, se.Run(mod, oc, r, agg))
	assert.False(t, g.Init.(*ir.StringData).Encrypted)
	assert.Same(t, g, globalNamed(mod, g.Name))
}
