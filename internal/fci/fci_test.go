package fci_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chakravyuha/internal/fci"
	"chakravyuha/internal/ir"
	"chakravyuha/internal/oracle"
	"chakravyuha/internal/report"
	"chakravyuha/internal/rng"
)

func straightLineFunc(name string, blockCount int) *ir.Function {
	f := &ir.Function{Name: name, ReturnType: ir.I32}
	blocks := make([]*ir.BasicBlock, blockCount)
	for i := range blocks {
		blocks[i] = &ir.BasicBlock{Label: fmt.Sprintf("b%d", i)}
	}
	for i := 0; i < blockCount-1; i++ {
		ir.SetTerminator(blocks[i], &ir.Br{Target: blocks[i+1]})
	}
	ir.SetTerminator(blocks[blockCount-1], &ir.Ret{})
	for _, b := range blocks {
		f.AppendBlock(b)
	}
	return f
}

func fakeBlockCount(f *ir.Function) int {
	count := 0
	for _, b := range f.Blocks {
		if strings.Contains(b.Label, "fake") {
			count++
		}
	}
	return count
}

func TestRunInsertsFakeBlocksOnEligibleEdges(t *testing.T) {
	mod := &ir.Module{}
	f := straightLineFunc("chain", 4)
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	r := rng.NewSeeded(10)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, fci.Run(mod, oc, r, agg))
	assert.Greater(t, fakeBlockCount(f), 0, "expected at least one fake block to be spliced in")
}

func TestRunRespectsMaxInsertionsCap(t *testing.T) {
	mod := &ir.Module{}
	f := straightLineFunc("long_chain", 20)
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	r := rng.NewSeeded(11)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, fci.Run(mod, oc, r, agg))
	assert.LessOrEqual(t, fakeBlockCount(f), fci.MaxInsertions)
}

func TestRunSkipsEdgeIntoPhiHeadedBlock(t *testing.T) {
	mod := &ir.Module{}
	entry := &ir.BasicBlock{Label: "entry"}
	join := &ir.BasicBlock{Label: "join"}
	ir.SetTerminator(entry, &ir.Br{Target: join})
	phiVal := mod.NewValue("p", ir.I32)
	ir.Append(join, &ir.Phi{Result: phiVal, Incoming: []ir.PhiInput{{Pred: entry, Value: mod.ImmValue(ir.I32, 1)}}})
	ir.SetTerminator(join, &ir.Ret{Value: phiVal})

	f := &ir.Function{Name: "phi_fn", ReturnType: ir.I32}
	f.AppendBlock(entry)
	f.AppendBlock(join)
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	r := rng.NewSeeded(12)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, fci.Run(mod, oc, r, agg))

	br, ok := entry.Terminator.(*ir.Br)
	require.True(t, ok, "edge into a phi-headed block must not be split into a CondBr")
	assert.Equal(t, join, br.Target)
}

func TestRunSkipsFunctionsTheOracleRejects(t *testing.T) {
	mod := &ir.Module{}
	f := straightLineFunc("unsafe_fn", 3)
	ir.Append(f.Blocks[0], &ir.Call{Callee: "setjmp"})
	mod.Functions = append(mod.Functions, f)

	oc := oracle.New(mod)
	r := rng.NewSeeded(13)
	agg := report.New("in", "out", report.InputParameters{})

	require.NoError(t, fci.Run(mod, oc, r, agg))
	assert.Equal(t, 0, fakeBlockCount(f))
}
