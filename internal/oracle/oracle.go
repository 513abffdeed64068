// Package oracle implements the Safety Oracle: a pure, read-only analysis
// deciding whether a function may be handed to a transforming pass.
// Grounded on kanso's `internal/ir` optimization passes
// (internal/ir/optimizations.go in kanso), which walk a function's
// instructions to classify its contents before rewriting it; this package
// keeps that walk-and-classify shape but answers a yes/no safety question
// instead of mutating anything.
package oracle

import "chakravyuha/internal/ir"

// jumpMarkers are the callee names the oracle treats as a setjmp/longjmp
// call for rule 4's purposes, matched by name on direct calls.
var jumpMarkers = map[string]bool{
	"setjmp":  true,
	"_setjmp": true,
	"longjmp": true,
}

// Oracle answers may-transform queries for a single module, caching the
// per-function "directly unsafe" classification and the transitive
// call-graph closure computed once per module.
type Oracle struct {
	mod *ir.Module

	direct   map[*ir.Function]bool
	unsafe   map[*ir.Function]bool
	computed bool
}

// New builds an Oracle over mod. The transitive closure is computed lazily
// on first query and memoized; callers that mutate mod (adding/removing
// calls) between queries should call a fresh Oracle.
func New(mod *ir.Module) *Oracle {
	return &Oracle{mod: mod}
}

// MayTransform reports whether f may be handed to the Control-Flow
// Flattening or Fake Code Insertion passes.
func (o *Oracle) MayTransform(f *ir.Function) bool {
	o.ensureClosure()
	if f.Declaration || f.Intrinsic {
		return false
	}
	if len(f.Blocks) < 2 {
		return false
	}
	if o.unsafe[f] {
		return false
	}
	for _, b := range f.Blocks {
		if _, bad := b.Terminator.(*ir.UnsupportedTerminator); bad {
			return false
		}
	}
	return true
}

// MayTransformForFlatten is an alias naming CFF's specific entry point
// (rule 2's block-count floor only matters to CFF, but CFF and FCI both
// route through MayTransform; SE uses MayEncryptUsersOf instead).
func (o *Oracle) MayTransformForFlatten(f *ir.Function) bool { return o.MayTransform(f) }

// MayEncryptUsersOf reports whether every function using g is safe under
// rules 3-4's transitive closure. users is every function whose instructions reference g,
// typically gathered by walking g.Users.
func (o *Oracle) MayEncryptUsersOf(users []*ir.Function) bool {
	o.ensureClosure()
	for _, f := range users {
		if o.unsafe[f] {
			return false
		}
	}
	return true
}

// IsDirectlyUnsafe reports whether f itself (ignoring its callers) contains
// an inline-asm call or a setjmp/longjmp call (rules 3-4), without
// consulting the call-graph closure.
func (o *Oracle) IsDirectlyUnsafe(f *ir.Function) bool {
	o.ensureClosure()
	return o.direct[f]
}

func (o *Oracle) ensureClosure() {
	if o.computed {
		return
	}
	o.computed = true
	o.direct = make(map[*ir.Function]bool)
	o.unsafe = make(map[*ir.Function]bool)

	callers := make(map[*ir.Function][]*ir.Function)

	for _, f := range o.mod.Functions {
		if f.Declaration {
			continue
		}
		for _, b := range f.Blocks {
			for _, inst := range b.Instructions {
				call, ok := inst.(*ir.Call)
				if !ok {
					continue
				}
				if call.InlineAsm {
					o.direct[f] = true
				}
				if !call.CalleeIndirect && jumpMarkers[call.Callee] {
					o.direct[f] = true
				}
				if call.CalleeFunc != nil {
					callers[call.CalleeFunc] = append(callers[call.CalleeFunc], f)
				}
			}
		}
	}

	// Fixed-point propagation: any caller of an unsafe function is itself
	// unsafe. Mutual recursion converges because a
	// function already marked unsafe is never revisited as a worklist seed
	// twice — both sides of a cycle flip to unsafe on the pass that reaches
	// either one first, and propagating from either settles the other.
	worklist := make([]*ir.Function, 0, len(o.direct))
	for f := range o.direct {
		o.unsafe[f] = true
		worklist = append(worklist, f)
	}
	for len(worklist) > 0 {
		f := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, caller := range callers[f] {
			if !o.unsafe[caller] {
				o.unsafe[caller] = true
				worklist = append(worklist, caller)
			}
		}
	}
}
