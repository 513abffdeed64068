package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chakravyuha/internal/ir"
)

func TestEffectsClassifiesEachInstructionKind(t *testing.T) {
	mod := &ir.Module{}
	slot := mod.NewValue("slot", ir.Ptr(ir.I32))

	load := &ir.Load{Result: mod.NewValue("v", ir.I32), Address: slot}
	store := &ir.Store{Address: slot, Value: mod.ImmValue(ir.I32, 1)}
	call := &ir.Call{Callee: "puts"}
	binop := &ir.BinOp{Result: mod.NewValue("sum", ir.I32), Op: "add", LHS: mod.ImmValue(ir.I32, 1), RHS: mod.ImmValue(ir.I32, 2)}

	assert.Equal(t, []ir.Effect{ir.EffectReadsMemory}, ir.Effects(load))
	assert.Equal(t, []ir.Effect{ir.EffectWritesMemory}, ir.Effects(store))
	assert.Equal(t, []ir.Effect{ir.EffectCall}, ir.Effects(call))
	assert.Equal(t, []ir.Effect{ir.EffectPure}, ir.Effects(binop))
}

func TestHasSideEffectsPreservesStoresAndCallsOnly(t *testing.T) {
	mod := &ir.Module{}
	slot := mod.NewValue("slot", ir.Ptr(ir.I32))

	assert.True(t, ir.HasSideEffects(&ir.Store{Address: slot, Value: mod.ImmValue(ir.I32, 1), Volatile: true}))
	assert.True(t, ir.HasSideEffects(&ir.Call{Callee: "puts"}))
	assert.False(t, ir.HasSideEffects(&ir.Load{Result: mod.NewValue("v", ir.I32), Address: slot}))
	assert.False(t, ir.HasSideEffects(&ir.BinOp{Result: mod.NewValue("s", ir.I32), Op: "add", LHS: mod.ImmValue(ir.I32, 1), RHS: mod.ImmValue(ir.I32, 1)}))
}
