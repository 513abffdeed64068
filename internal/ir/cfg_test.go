package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chakravyuha/internal/ir"
)

func TestRebuildCFGLinksComputesPredsAndSuccs(t *testing.T) {
	entry := &ir.BasicBlock{Label: "entry"}
	left := &ir.BasicBlock{Label: "left"}
	right := &ir.BasicBlock{Label: "right"}

	mod := &ir.Module{}
	cond := mod.NewValue("c", ir.I1)
	ir.SetTerminator(entry, &ir.CondBr{Cond: cond, True: left, False: right})
	ir.SetTerminator(left, &ir.Ret{})
	ir.SetTerminator(right, &ir.Ret{})

	f := &ir.Function{Name: "f"}
	f.AppendBlock(entry)
	f.AppendBlock(left)
	f.AppendBlock(right)

	f.RebuildCFGLinks()

	assert.ElementsMatch(t, []*ir.BasicBlock{left, right}, entry.Successors)
	assert.ElementsMatch(t, []*ir.BasicBlock{entry}, left.Predecessors)
	assert.ElementsMatch(t, []*ir.BasicBlock{entry}, right.Predecessors)
}

func TestRemoveUnreachableBlocksDropsDeadBlock(t *testing.T) {
	entry := &ir.BasicBlock{Label: "entry"}
	reachable := &ir.BasicBlock{Label: "reachable"}
	dead := &ir.BasicBlock{Label: "dead"}

	ir.SetTerminator(entry, &ir.Br{Target: reachable})
	ir.SetTerminator(reachable, &ir.Ret{})
	ir.SetTerminator(dead, &ir.Ret{})

	f := &ir.Function{Name: "f"}
	f.AppendBlock(entry)
	f.AppendBlock(reachable)
	f.AppendBlock(dead)

	removed := f.RemoveUnreachableBlocks()

	assert.Equal(t, 1, removed)
	assert.Len(t, f.Blocks, 2)
	assert.Nil(t, f.BlockByLabel("dead"))
	assert.NotNil(t, f.BlockByLabel("reachable"))
}

func TestInsertBlockBeforePreservesOrderAroundTarget(t *testing.T) {
	a := &ir.BasicBlock{Label: "a"}
	b := &ir.BasicBlock{Label: "b"}
	c := &ir.BasicBlock{Label: "c"}
	inserted := &ir.BasicBlock{Label: "inserted"}

	f := &ir.Function{Name: "f"}
	f.AppendBlock(a)
	f.AppendBlock(b)
	f.AppendBlock(c)

	f.InsertBlockBefore(b, inserted)

	labels := make([]string, len(f.Blocks))
	for i, blk := range f.Blocks {
		labels[i] = blk.Label
	}
	assert.Equal(t, []string{"a", "inserted", "b", "c"}, labels)
}

func TestInsertBlockBeforeAppendsWhenTargetMissing(t *testing.T) {
	a := &ir.BasicBlock{Label: "a"}
	orphan := &ir.BasicBlock{Label: "orphan"}
	missing := &ir.BasicBlock{Label: "missing"}

	f := &ir.Function{Name: "f"}
	f.AppendBlock(a)
	f.InsertBlockBefore(missing, orphan)

	assert.Len(t, f.Blocks, 2)
	assert.Equal(t, "orphan", f.Blocks[len(f.Blocks)-1].Label)
}
