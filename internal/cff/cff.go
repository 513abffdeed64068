// Package cff implements Control-Flow Flattening: SSA-to-memory demotion
// followed by a CFG rebuild into a dispatcher-driven state machine.
// Grounded on kanso's `ir.Builder`/optimization-pass shape
// (internal/ir/optimizations.go, internal/ir/builder.go in kanso) — a pass
// walks a function's blocks once, synthesizes new instructions through the
// façade, and leaves a rewritten function behind; this package follows the
// same walk-then-rewrite structure, generalized from Kanso's dead-code/
// constant-folding rewrites to wholesale CFG reshaping.
package cff

import (
	"fmt"

	"chakravyuha/internal/diag"
	"chakravyuha/internal/ir"
	"chakravyuha/internal/oracle"
	"chakravyuha/internal/report"
)

const passName = "chakravyuha-control-flow-flatten"

// Run flattens every function in mod the Safety Oracle accepts, recording
// metrics into agg. Fatal (malformed-input / resource-exhaustion) errors
// abort the whole run; per-function precondition-miss and partial-abort
// diagnostics are counted as skips and never stop the pipeline.
func Run(mod *ir.Module, oc *oracle.Oracle, agg *report.Aggregator) error {
	for _, f := range mod.Functions {
		if f.Declaration || f.Intrinsic {
			continue
		}
		if !oc.MayTransform(f) {
			agg.RecordCFFSkip()
			continue
		}
		blocks, err := FlattenFunction(mod, f)
		if err != nil {
			if _, ok := err.(*diag.Skip); ok {
				agg.RecordCFFSkip()
				continue
			}
			return err
		}
		agg.RecordFlatten(blocks)
	}
	agg.RecordPass(passName)
	agg.FlushCFFMetrics()
	return nil
}

// FlattenFunction rewrites f's CFG into a dispatcher/switch state machine,
// returning the count of flattened (formerly non-entry) blocks. Every
// precondition check runs before any mutation so a rejected function is
// left completely untouched.
func FlattenFunction(mod *ir.Module, f *ir.Function) (int, error) {
	if len(f.Blocks) < 2 {
		return 0, diag.NewSkip("cff", f.Name, diag.CodeOracleRejected, "fewer than two basic blocks")
	}
	entry := f.Entry()
	nonEntry := f.Blocks[1:]

	switch entry.Terminator.(type) {
	case *ir.Ret, *ir.Unreachable:
		return 0, diag.NewSkip("cff", f.Name, diag.CodeNoEligibleBlocks, "entry block never branches")
	}

	for _, b := range f.Blocks {
		if b.Terminator == nil {
			return 0, diag.NewSkip("cff", f.Name, diag.CodeMidFunctionInvalid, "block "+b.Label+" has no terminator")
		}
		if _, bad := b.Terminator.(*ir.UnsupportedTerminator); bad {
			return 0, diag.NewSkip("cff", f.Name, diag.CodeOracleRejected, "unsupported terminator in "+b.Label)
		}
		for _, succ := range b.Terminator.Successors() {
			if succ == entry {
				return 0, diag.NewSkip("cff", f.Name, diag.CodeUnmappableSuccessor, "terminator branches back to entry")
			}
		}
	}

	ids := make(map[*ir.BasicBlock]int64, len(nonEntry))
	for i, b := range nonEntry {
		ids[b] = int64(i + 1)
	}

	demoteSSA(mod, f)

	stateSlot := mod.NewValue(f.Name+".state", ir.Ptr(ir.I32))
	ir.InsertFront(entry, &ir.Alloca{Result: stateSlot, Elem: ir.I32})

	dispatcher := &ir.BasicBlock{Label: mod.NewBlockLabel(f.Name + ".dispatch")}
	unreachableBlk := &ir.BasicBlock{Label: mod.NewBlockLabel(f.Name + ".unreachable")}
	ir.SetTerminator(unreachableBlk, &ir.Unreachable{})

	if err := rewriteTerminator(mod, ids, stateSlot, entry); err != nil {
		return 0, diag.NewSkip("cff", f.Name, diag.CodeUnmappableSuccessor, err.Error())
	}
	ir.SetTerminator(entry, &ir.Br{Target: dispatcher})

	loaded := mod.NewValue(f.Name+".state.load", ir.I32)
	ir.Append(dispatcher, &ir.Load{Result: loaded, Address: stateSlot})
	cases := make([]ir.SwitchCase, 0, len(nonEntry))
	for _, b := range nonEntry {
		cases = append(cases, ir.SwitchCase{Value: ids[b], Target: b})
	}
	ir.SetTerminator(dispatcher, &ir.Switch{Value: loaded, Default: unreachableBlk, Cases: cases})

	for _, b := range nonEntry {
		switch b.Terminator.(type) {
		case *ir.Ret, *ir.Unreachable:
			continue
		}
		if err := rewriteTerminator(mod, ids, stateSlot, b); err != nil {
			return 0, diag.NewSkip("cff", f.Name, diag.CodeUnmappableSuccessor, err.Error())
		}
		ir.SetTerminator(b, &ir.Br{Target: dispatcher})
	}

	f.AppendBlock(dispatcher)
	f.AppendBlock(unreachableBlk)

	f.RemoveUnreachableBlocks()

	return len(nonEntry), nil
}

// rewriteTerminator translates block's current terminator into a store of
// the next state into stateSlot. The terminator itself is left in place;
// the caller overwrites it with a branch to the dispatcher afterward.
func rewriteTerminator(mod *ir.Module, ids map[*ir.BasicBlock]int64, stateSlot *ir.Value, block *ir.BasicBlock) error {
	switch t := block.Terminator.(type) {
	case *ir.Br:
		id, ok := ids[t.Target]
		if !ok {
			return fmt.Errorf("block %s: branch target %s not flattened", block.Label, t.Target.Label)
		}
		ir.Append(block, &ir.Store{Address: stateSlot, Value: mod.ImmValue(ir.I32, id)})

	case *ir.CondBr:
		tid, ok1 := ids[t.True]
		fid, ok2 := ids[t.False]
		if !ok1 || !ok2 {
			return fmt.Errorf("block %s: condbr target not flattened", block.Label)
		}
		sel := mod.NewValue(block.Label+".next", ir.I32)
		ir.Append(block, &ir.Select{Result: sel, Cond: t.Cond, True: mod.ImmValue(ir.I32, tid), False: mod.ImmValue(ir.I32, fid)})
		ir.Append(block, &ir.Store{Address: stateSlot, Value: sel})

	case *ir.Switch:
		defID, ok := ids[t.Default]
		if !ok {
			return fmt.Errorf("block %s: switch default not flattened", block.Label)
		}
		acc := mod.ImmValue(ir.I32, defID)
		for _, c := range t.Cases {
			tid, ok := ids[c.Target]
			if !ok {
				return fmt.Errorf("block %s: switch case target not flattened", block.Label)
			}
			cmp := mod.NewValue(block.Label+".casecmp", ir.I1)
			ir.Append(block, &ir.ICmp{Result: cmp, Pred: "eq", LHS: t.Value, RHS: mod.ImmValue(t.Value.Type, c.Value)})
			next := mod.NewValue(block.Label+".nextacc", ir.I32)
			ir.Append(block, &ir.Select{Result: next, Cond: cmp, True: mod.ImmValue(ir.I32, tid), False: acc})
			acc = next
		}
		ir.Append(block, &ir.Store{Address: stateSlot, Value: acc})

	default:
		return fmt.Errorf("block %s: terminator kind not flattenable", block.Label)
	}
	return nil
}

// demoteSSA eliminates every phi into a stack slot plus loads/stores, and
// gives every remaining value used outside its defining block the same
// treatment, so each block becomes self-contained once the dispatcher
// severs direct fall-through between blocks.
func demoteSSA(mod *ir.Module, f *ir.Function) {
	entry := f.Entry()

	var phis []*ir.Phi
	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			if p, ok := inst.(*ir.Phi); ok {
				phis = append(phis, p)
			}
		}
	}
	for _, phi := range phis {
		demotePhi(mod, entry, phi)
	}

	var candidates []ir.Instruction
	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			switch inst.(type) {
			case *ir.Alloca, *ir.Phi, *ir.Store:
				continue
			}
			if inst.GetResult() != nil {
				candidates = append(candidates, inst)
			}
		}
	}
	for _, inst := range candidates {
		demoteCrossBlockValue(mod, entry, inst)
	}
}

func demotePhi(mod *ir.Module, entry *ir.BasicBlock, phi *ir.Phi) {
	slot := mod.NewValue(fmt.Sprintf("phi.slot.%d", phi.Result.ID), ir.Ptr(phi.Result.Type))
	ir.InsertFront(entry, &ir.Alloca{Result: slot, Elem: phi.Result.Type})

	for _, in := range phi.Incoming {
		ir.Append(in.Pred, &ir.Store{Address: slot, Value: in.Value})
	}

	uses := append([]*ir.Use(nil), phi.Result.Uses...)
	for _, u := range uses {
		block := u.User.Block()
		load := &ir.Load{Result: mod.NewValue(fmt.Sprintf("phi.reload.%d", phi.Result.ID), phi.Result.Type), Address: slot}
		ir.InsertBefore(block, u.User, load)
		u.User.ReplaceOperand(phi.Result, load.Result)
		load.Result.AddUse(u.User, u.Index)
	}
	phi.Result.Uses = nil

	ir.RemoveInstruction(phi.Block(), phi)
}

func demoteCrossBlockValue(mod *ir.Module, entry *ir.BasicBlock, inst ir.Instruction) {
	res := inst.GetResult()
	defBlock := inst.Block()

	var crossUses []*ir.Use
	for _, u := range res.Uses {
		if u.User.Block() != defBlock {
			crossUses = append(crossUses, u)
		}
	}
	if len(crossUses) == 0 {
		return
	}

	slot := mod.NewValue(fmt.Sprintf("ssa.slot.%d", res.ID), ir.Ptr(res.Type))
	ir.InsertFront(entry, &ir.Alloca{Result: slot, Elem: res.Type})
	ir.InsertAfter(defBlock, inst, &ir.Store{Address: slot, Value: res})

	remaining := res.Uses[:0]
	crossSet := make(map[*ir.Use]bool, len(crossUses))
	for _, u := range crossUses {
		crossSet[u] = true
	}
	for _, u := range res.Uses {
		if !crossSet[u] {
			remaining = append(remaining, u)
		}
	}

	for _, u := range crossUses {
		block := u.User.Block()
		load := &ir.Load{Result: mod.NewValue(fmt.Sprintf("ssa.reload.%d", res.ID), res.Type), Address: slot}
		ir.InsertBefore(block, u.User, load)
		u.User.ReplaceOperand(res, load.Result)
		load.Result.AddUse(u.User, u.Index)
	}
	res.Uses = remaining
}
