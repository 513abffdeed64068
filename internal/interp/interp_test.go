package interp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chakravyuha/internal/cff"
	"chakravyuha/internal/fci"
	"chakravyuha/internal/interp"
	"chakravyuha/internal/ir"
	"chakravyuha/internal/oracle"
	"chakravyuha/internal/report"
	"chakravyuha/internal/rng"
	"chakravyuha/internal/se"
)

func newAggregator() *report.Aggregator {
	return report.New("in.chakir", "out.chakir", report.InputParameters{})
}

// branchy builds: entry picks between two arms based on a parameter,
// each arm computes a distinct constant, and a join block returns it via
// a Phi — enough shape to exercise CondBr, BinOp and Phi before
// flattening collapses it into a dispatcher.
func branchy(mod *ir.Module) *ir.Function {
	f := &ir.Function{Name: "branchy", ReturnType: ir.I32}

	entry := &ir.BasicBlock{Label: "entry"}
	left := &ir.BasicBlock{Label: "left"}
	right := &ir.BasicBlock{Label: "right"}
	join := &ir.BasicBlock{Label: "join"}

	param := &ir.Parameter{Name: "flag", Type: ir.I1, Value: mod.NewValue("flag", ir.I1)}
	f.Params = []*ir.Parameter{param}

	ir.SetTerminator(entry, &ir.CondBr{Cond: param.Value, True: left, False: right})

	lv := mod.NewValue("lv", ir.I32)
	ir.Append(left, &ir.BinOp{Result: lv, Op: "add", LHS: mod.ImmValue(ir.I32, 10), RHS: mod.ImmValue(ir.I32, 1)})
	ir.SetTerminator(left, &ir.Br{Target: join})

	rv := mod.NewValue("rv", ir.I32)
	ir.Append(right, &ir.BinOp{Result: rv, Op: "add", LHS: mod.ImmValue(ir.I32, 20), RHS: mod.ImmValue(ir.I32, 2)})
	ir.SetTerminator(right, &ir.Br{Target: join})

	phi := mod.NewValue("result", ir.I32)
	ir.Append(join, &ir.Phi{Result: phi, Incoming: []ir.PhiInput{{Pred: left, Value: lv}, {Pred: right, Value: rv}}})
	ir.SetTerminator(join, &ir.Ret{Value: phi})

	f.AppendBlock(entry)
	f.AppendBlock(left)
	f.AppendBlock(right)
	f.AppendBlock(join)
	f.RebuildCFGLinks()

	mod.Functions = append(mod.Functions, f)
	return f
}

func TestCallEvaluatesBranchesAndPhi(t *testing.T) {
	mod := &ir.Module{}
	f := branchy(mod)
	m := interp.New(mod)

	trueResult, err := m.Call(f, interp.Int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(11), trueResult.Int)

	falseResult, err := m.Call(f, interp.Int64(0))
	require.NoError(t, err)
	assert.Equal(t, int64(22), falseResult.Int)
}

func TestControlFlowFlatteningPreservesBehavior(t *testing.T) {
	mod := &ir.Module{}
	f := branchy(mod)

	before := interp.New(mod)
	want0, err := before.Call(f, interp.Int64(0))
	require.NoError(t, err)
	want1, err := before.Call(f, interp.Int64(1))
	require.NoError(t, err)

	_, err = cff.FlattenFunction(mod, f)
	require.NoError(t, err)

	after := interp.New(mod)
	got0, err := after.Call(f, interp.Int64(0))
	require.NoError(t, err)
	got1, err := after.Call(f, interp.Int64(1))
	require.NoError(t, err)

	assert.Equal(t, want0.Int, got0.Int)
	assert.Equal(t, want1.Int, got1.Int)
}

// putsOfConstant builds a function that calls puts on a string global's
// address and returns 0 — the shape String Encryption redirects.
func putsOfConstant(mod *ir.Module, text string) (*ir.Function, *ir.GlobalVariable) {
	bytes := []byte(text)
	g := &ir.GlobalVariable{
		Name:     "greeting",
		Type:     &ir.ArrayType{Elem: ir.I8, Length: len(bytes) + 1},
		Linkage:  ir.LinkagePrivate,
		Constant: true,
		Init:     &ir.StringData{Bytes: bytes},
	}
	mod.Globals = append(mod.Globals, g)

	putsDecl := &ir.Function{Name: "puts", Linkage: ir.LinkageExternal, ReturnType: ir.I32, Declaration: true}
	mod.Functions = append(mod.Functions, putsDecl)

	f := &ir.Function{Name: "greet", ReturnType: ir.I32}
	entry := &ir.BasicBlock{Label: "entry"}
	call := &ir.Call{Callee: "puts", CalleeFunc: putsDecl, Args: []*ir.Value{mod.GlobalValue(g)}}
	ir.Append(entry, call)
	ir.SetTerminator(entry, &ir.Ret{Value: mod.ImmValue(ir.I32, 0)})
	f.AppendBlock(entry)
	mod.Functions = append(mod.Functions, f)
	return f, g
}

func TestStringEncryptionPreservesObservedOutput(t *testing.T) {
	mod := &ir.Module{}
	f, _ := putsOfConstant(mod, "hello")

	before := interp.New(mod)
	_, err := before.Call(f)
	require.NoError(t, err)
	require.Equal(t, []string{"hello"}, before.Puts)

	agg := newAggregator()
	oc := oracle.New(mod)
	require.NoError(t, se.Run(mod, oc, rng.NewSeeded(1), agg))

	after := interp.New(mod)
	_, err = after.Call(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, after.Puts)
}

func TestStringEncryptionLazyDecryptRunsSlowPathOnce(t *testing.T) {
	mod := &ir.Module{}
	f, _ := putsOfConstant(mod, "once")

	agg := newAggregator()
	oc := oracle.New(mod)
	require.NoError(t, se.Run(mod, oc, rng.NewSeeded(7), agg))

	dispatchGlobals := 0
	const dispatchPrefix = "chakravyuha_dispatch_"
	var dispatch *ir.GlobalVariable
	for _, g := range mod.Globals {
		if len(g.Name) > len(dispatchPrefix) && g.Name[:len(dispatchPrefix)] == dispatchPrefix {
			dispatchGlobals++
			dispatch = g
		}
	}
	require.Equal(t, 1, dispatchGlobals)

	slowFn, ok := dispatch.Init.(*ir.FuncRef)
	require.True(t, ok, "dispatch pointer must start out pointing at slow-dispatch")

	m := interp.New(mod)
	assert.Equal(t, slowFn.Fn, m.GlobalScalar(dispatch).Fn, "dispatch pointer starts at slow-dispatch")

	for i := 0; i < 3; i++ {
		_, err := m.Call(f)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"once", "once", "once"}, m.Puts)
	assert.NotEqual(t, slowFn.Fn, m.GlobalScalar(dispatch).Fn, "dispatch pointer must retire onto fast-dispatch after the first call")
}

func straightLine(mod *ir.Module, blocks int) *ir.Function {
	f := &ir.Function{Name: "chain", ReturnType: ir.I32}
	bs := make([]*ir.BasicBlock, blocks)
	for i := range bs {
		bs[i] = &ir.BasicBlock{Label: ir.FormatInt(int64(i))}
	}
	for i := 0; i < blocks-1; i++ {
		ir.SetTerminator(bs[i], &ir.Br{Target: bs[i+1]})
	}
	ir.SetTerminator(bs[blocks-1], &ir.Ret{Value: mod.ImmValue(ir.I32, 42)})
	for _, b := range bs {
		f.AppendBlock(b)
	}
	f.RebuildCFGLinks()
	mod.Functions = append(mod.Functions, f)
	return f
}

func TestFakeCodeInsertionPreservesBehavior(t *testing.T) {
	mod := &ir.Module{}
	f := straightLine(mod, 6)

	before := interp.New(mod)
	want, err := before.Call(f)
	require.NoError(t, err)

	agg := newAggregator()
	oc := oracle.New(mod)
	require.NoError(t, fci.Run(mod, oc, rng.NewSeeded(3), agg))

	after := interp.New(mod)
	got, err := after.Call(f)
	require.NoError(t, err)
	assert.Equal(t, want.Int, got.Int)
}

func TestUnresolvedExternalIsAnError(t *testing.T) {
	mod := &ir.Module{}
	decl := &ir.Function{Name: "mystery", Declaration: true, ReturnType: ir.I32}
	mod.Functions = append(mod.Functions, decl)

	f := &ir.Function{Name: "caller", ReturnType: ir.I32}
	entry := &ir.BasicBlock{Label: "entry"}
	result := mod.NewValue("r", ir.I32)
	ir.Append(entry, &ir.Call{Result: result, Callee: "mystery", CalleeFunc: decl})
	ir.SetTerminator(entry, &ir.Ret{Value: result})
	f.AppendBlock(entry)
	mod.Functions = append(mod.Functions, f)

	m := interp.New(mod)
	_, err := m.Call(f)
	assert.Error(t, err)

	m.RegisterExternal("mystery", func(*interp.Machine, []interp.Value) (interp.Value, error) {
		return interp.Int64(99), nil
	})
	got, err := m.Call(f)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.Int)
}

func TestUnreachableTerminatorIsAnError(t *testing.T) {
	mod := &ir.Module{}
	f := &ir.Function{Name: "dead", ReturnType: ir.I32}
	entry := &ir.BasicBlock{Label: "entry"}
	ir.SetTerminator(entry, &ir.Unreachable{})
	f.AppendBlock(entry)
	mod.Functions = append(mod.Functions, f)

	m := interp.New(mod)
	_, err := m.Call(f)
	assert.Error(t, err)
}
