// Package fci implements Fake Code Insertion: a number of eligible edges
// are split with a block of junk arithmetic that never actually executes,
// padding the binary's apparent control-flow surface for a static
// disassembler without changing run-time behavior. Grounded on the same
// builder-driven synthesis style cff and se use, and on kanso's
// `internal/ir` terminator handling for splicing a new block into an
// existing edge without disturbing the rest of the function.
package fci

import (
	"fmt"

	"chakravyuha/internal/ir"
	"chakravyuha/internal/oracle"
	"chakravyuha/internal/report"
	"chakravyuha/internal/rng"
)

const passName = "chakravyuha-fake-code-insertion"

// MaxInsertions caps how many edges one run will pad, regardless of how
// many eligible edges exist.
const MaxInsertions = 15

// junkOps is the opcode set a fake block's instructions are drawn from.
var junkOps = []string{"add", "sub", "mul", "xor", "shl"}

// operandPoolSeed is fixed rather than derived from the run's own seed, so
// the literal junk constants look the same across runs even when the
// caller reseeds the main generator for reproducibility of the real
// transforms.
const operandPoolSeed = 42

// Run splits up to MaxInsertions eligible edges across mod's functions
// with a junk block, recording metrics into agg.
func Run(mod *ir.Module, oc *oracle.Oracle, r *rng.Rng, agg *report.Aggregator) error {
	pool := buildOperandPool(rng.NewSeeded(operandPoolSeed))

	var eligible []edge
	for _, f := range mod.Functions {
		if !oc.MayTransform(f) {
			continue
		}
		eligible = append(eligible, eligibleEdges(f)...)
	}

	n := MaxInsertions
	if len(eligible) < n {
		n = len(eligible)
	}
	chosen := sampleWithoutReplacement(eligible, n, r)

	sinks := map[*ir.Function]*ir.Value{}
	for _, e := range chosen {
		insertFakeBlock(mod, e, pool, r, sinks)
		agg.RecordFakeBlock()
	}
	agg.FlushFCIMetrics()
	agg.RecordPass(passName)
	return nil
}

type edge struct {
	fn   *ir.Function
	pred *ir.BasicBlock
	succ *ir.BasicBlock
}

// eligibleEdges finds every unconditional-branch edge in f whose successor
// doesn't open with a Phi — splicing a block in between would otherwise
// need to rewrite that Phi's incoming-block label.
func eligibleEdges(f *ir.Function) []edge {
	var out []edge
	for _, b := range f.Blocks {
		br, ok := b.Terminator.(*ir.Br)
		if !ok {
			continue
		}
		succ := br.Target
		if len(succ.Instructions) > 0 {
			if _, isPhi := succ.Instructions[0].(*ir.Phi); isPhi {
				continue
			}
		}
		out = append(out, edge{fn: f, pred: b, succ: succ})
	}
	return out
}

func sampleWithoutReplacement(items []edge, n int, r *rng.Rng) []edge {
	pool := append([]edge(nil), items...)
	chosen := make([]edge, 0, n)
	for i := 0; i < n && len(pool) > 0; i++ {
		idx := r.Intn(len(pool))
		chosen = append(chosen, pool[idx])
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return chosen
}

// buildOperandPool generates a small fixed set of plausible i32 constants
// junk instructions draw their operands from, so the chain of fake
// arithmetic reads as if it were computing something rather than only
// ever combining freshly drawn noise.
func buildOperandPool(seeded *rng.Rng) []int64 {
	pool := make([]int64, 8)
	for i := range pool {
		pool[i] = int64(seeded.Uint32() % 0xffff)
	}
	return pool
}

// sinkSlotFor returns fn's per-function sink stack slot, allocating it in
// the entry block the first time fn gets a fake block — following CFF's
// entry-block-Alloca idiom for a value that needs to outlive a single
// block but never needs to leave the function.
func sinkSlotFor(mod *ir.Module, fn *ir.Function, sinks map[*ir.Function]*ir.Value) *ir.Value {
	if slot, ok := sinks[fn]; ok {
		return slot
	}
	slot := mod.NewValue(fn.Name+".sink", ir.Ptr(ir.I32))
	ir.InsertFront(fn.Entry(), &ir.Alloca{Result: slot, Elem: ir.I32})
	sinks[fn] = slot
	return slot
}

// insertFakeBlock splices a junk block between e.pred and e.succ. The
// branch guarding it is a literal-false condition with the fake block on
// the true arm and the real successor on the false arm — backwards from
// what a reader expects, but that inversion is what makes the fake block
// provably dead at compile time while still looking, to anything that
// doesn't constant-fold the condition, like a live conditional edge.
func insertFakeBlock(mod *ir.Module, e edge, pool []int64, r *rng.Rng, sinks map[*ir.Function]*ir.Value) {
	fake := &ir.BasicBlock{Label: mod.NewBlockLabel(e.fn.Name + ".fake")}

	m := r.IntRange(2, 30)
	var prev *ir.Value
	for i := 0; i < m; i++ {
		op := junkOps[r.Intn(len(junkOps))]
		lhs := mod.ImmValue(ir.I32, pool[r.Intn(len(pool))])
		if prev != nil {
			lhs = prev
		}
		rhs := mod.ImmValue(ir.I32, pool[r.Intn(len(pool))])
		result := mod.NewValue(fmt.Sprintf("%s.junk.%d", fake.Label, i), ir.I32)
		ir.Append(fake, &ir.BinOp{Result: result, Op: op, LHS: lhs, RHS: rhs})
		prev = result
	}
	if prev == nil {
		prev = mod.ImmValue(ir.I32, pool[0])
	}
	ir.Append(fake, &ir.Store{Address: sinkSlotFor(mod, e.fn, sinks), Value: prev, Volatile: true})
	ir.SetTerminator(fake, &ir.Br{Target: e.succ})

	e.fn.InsertBlockBefore(e.succ, fake)

	falseCond := mod.ImmValue(ir.I1, 0)
	ir.SetTerminator(e.pred, &ir.CondBr{Cond: falseCond, True: fake, False: e.succ})

	e.fn.RebuildCFGLinks()
}
