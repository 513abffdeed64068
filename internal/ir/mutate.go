package ir

// Append adds inst to the end of b's instruction list, wiring its operand
// use-lists and its result's def site. Exported so passes outside this
// package (CFF's SSA demotion, FCI's junk-block synthesis) can splice
// instructions without going through Builder's block-cursor model, which
// only ever appends to "the current block".
func Append(b *BasicBlock, inst Instruction) {
	inst.SetBlock(b)
	b.Instructions = append(b.Instructions, inst)
	wireOperands(inst)
}

// InsertFront inserts inst as the first instruction of b — CFF's stack-slot
// allocas at the top of the entry block.
func InsertFront(b *BasicBlock, inst Instruction) {
	inst.SetBlock(b)
	b.Instructions = append([]Instruction{inst}, b.Instructions...)
	wireOperands(inst)
}

// InsertAfter inserts inst immediately after after in b's instruction
// list — CFF's Step A ("store the value immediately after its defining
// instruction"). If after is not found, inst is appended.
func InsertAfter(b *BasicBlock, after, inst Instruction) {
	inst.SetBlock(b)
	idx := indexOf(b, after)
	if idx < 0 {
		b.Instructions = append(b.Instructions, inst)
		wireOperands(inst)
		return
	}
	b.Instructions = insertAt(b.Instructions, idx+1, inst)
	wireOperands(inst)
}

// InsertBefore inserts inst immediately before before in b's instruction
// list — CFF's Step A ("a load inserted before the using instruction"). If
// before is not found, inst is appended.
func InsertBefore(b *BasicBlock, before, inst Instruction) {
	inst.SetBlock(b)
	idx := indexOf(b, before)
	if idx < 0 {
		b.Instructions = append(b.Instructions, inst)
		wireOperands(inst)
		return
	}
	b.Instructions = insertAt(b.Instructions, idx, inst)
	wireOperands(inst)
}

// SetTerminator installs term as b's terminator, wiring its operand
// use-lists.
func SetTerminator(b *BasicBlock, term Terminator) {
	term.SetBlock(b)
	b.Terminator = term
	for i, op := range term.Operands() {
		if op != nil {
			op.AddUse(term, i)
		}
	}
}

// RemoveInstruction drops inst from b's instruction list without touching
// its operands' use-lists (callers that erase an instruction whose result
// has no remaining users, e.g. a dead phi after demotion, don't need
// those use-lists updated — the result itself is simply discarded).
func RemoveInstruction(b *BasicBlock, inst Instruction) {
	idx := indexOf(b, inst)
	if idx < 0 {
		return
	}
	b.Instructions = append(b.Instructions[:idx], b.Instructions[idx+1:]...)
}

// EraseGlobal drops g from mod's global list — String Encryption's last
// step once every use of an original plaintext global has been redirected
// through a dispatch pointer to its replacement ciphertext global.
func EraseGlobal(mod *Module, g *GlobalVariable) {
	out := make([]*GlobalVariable, 0, len(mod.Globals))
	for _, candidate := range mod.Globals {
		if candidate != g {
			out = append(out, candidate)
		}
	}
	mod.Globals = out
}

func wireOperands(inst Instruction) {
	for i, op := range inst.Operands() {
		if op != nil {
			op.AddUse(inst, i)
		}
	}
	if res := inst.GetResult(); res != nil {
		res.DefBlock = inst.Block()
		res.DefInst = inst
	}
}

func indexOf(b *BasicBlock, inst Instruction) int {
	for i, candidate := range b.Instructions {
		if candidate == inst {
			return i
		}
	}
	return -1
}

func insertAt(s []Instruction, idx int, inst Instruction) []Instruction {
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = inst
	return s
}
