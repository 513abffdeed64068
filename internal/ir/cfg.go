package ir

// RebuildCFGLinks recomputes every block's Predecessors/Successors from
// its terminator. Passes mutate terminators freely while rewriting a
// function (CFF rewrites every non-entry terminator; FCI splits edges);
// call this once per function after a batch of terminator edits rather
// than keeping predecessor lists up to date incrementally, mirroring how
// kanso's IR optimizations (`DeadCodeElimination.markReachable`)
// walk a function fresh from its terminators rather than trust stale
// adjacency.
func (f *Function) RebuildCFGLinks() {
	for _, b := range f.Blocks {
		b.Predecessors = nil
		b.Successors = nil
	}
	for _, b := range f.Blocks {
		if b.Terminator == nil {
			continue
		}
		for _, succ := range b.Terminator.Successors() {
			if succ == nil {
				continue
			}
			b.Successors = append(b.Successors, succ)
			succ.Predecessors = append(succ.Predecessors, b)
		}
	}
}

// ReachableBlocks returns every block reachable from the function's entry
// block via terminator successors, entry included.
func (f *Function) ReachableBlocks() map[*BasicBlock]bool {
	reachable := make(map[*BasicBlock]bool)
	entry := f.Entry()
	if entry == nil {
		return reachable
	}
	var walk func(b *BasicBlock)
	walk = func(b *BasicBlock) {
		if reachable[b] {
			return
		}
		reachable[b] = true
		if b.Terminator == nil {
			return
		}
		for _, s := range b.Terminator.Successors() {
			if s != nil {
				walk(s)
			}
		}
	}
	walk(entry)
	return reachable
}

// RemoveUnreachableBlocks drops every block RebuildCFGLinks/ReachableBlocks
// would consider unreachable from the entry block, the cleanup CFF runs
// after rewriting every terminator into a dispatcher-relative jump.
func (f *Function) RemoveUnreachableBlocks() int {
	f.RebuildCFGLinks()
	reachable := f.ReachableBlocks()
	kept := f.Blocks[:0]
	removed := 0
	for _, b := range f.Blocks {
		if reachable[b] {
			kept = append(kept, b)
		} else {
			removed++
		}
	}
	f.Blocks = kept
	f.RebuildCFGLinks()
	return removed
}

// AppendBlock adds b to the end of f's block list, claiming it for f. CFF's
// dispatcher and its unreachable-default sink are built detached from any
// function and attached this way once fully constructed.
func (f *Function) AppendBlock(b *BasicBlock) {
	b.fn = f
	f.Blocks = append(f.Blocks, b)
}

// BlockByLabel finds a block by label within the function, or nil.
func (f *Function) BlockByLabel(label string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// InsertBlockBefore inserts newBlock immediately before target in the
// function's block order (purely cosmetic — order doesn't affect
// semantics — but FCI places the fake block immediately before the
// original successor, so the printed `.chakir` text reads in the order
// execution actually takes).
func (f *Function) InsertBlockBefore(target, newBlock *BasicBlock) {
	newBlock.fn = f
	idx := -1
	for i, b := range f.Blocks {
		if b == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.Blocks = append(f.Blocks, newBlock)
		return
	}
	f.Blocks = append(f.Blocks, nil)
	copy(f.Blocks[idx+1:], f.Blocks[idx:])
	f.Blocks[idx] = newBlock
}
