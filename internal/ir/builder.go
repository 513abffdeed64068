package ir

// Builder is a cursor-style helper for synthesizing new values, blocks
// and instructions in a function. The passes (CFF, SE, FCI) do not use
// it; they splice instructions with Append, InsertBefore, InsertAfter and
// SetTerminator.
// Grounded on kanso's `ir.Builder` (internal/ir/builder.go in
// kanso), which lowers a source AST into IR with a value/block/instruction
// counter and a "current block" cursor; this module has no source AST to
// lower, so Builder is cut down to exactly that counter-and-cursor
// machinery and repurposed as an IR→IR editing helper.
type Builder struct {
	mod   *Module
	fn    *Function
	block *BasicBlock
}

// NewBuilder creates a Builder appending to fn (which must belong to mod).
func NewBuilder(mod *Module, fn *Function) *Builder {
	return &Builder{mod: mod, fn: fn}
}

// SetBlock points subsequent Emit* calls at b.
func (b *Builder) SetBlock(blk *BasicBlock) { b.block = blk }

// NewBlock creates and appends a fresh block to the function, named from
// label via the module's unique-label counter, and returns it without
// changing the builder's current block.
func (b *Builder) NewBlock(label string) *BasicBlock {
	blk := &BasicBlock{Label: b.mod.NewBlockLabel(label), fn: b.fn}
	b.fn.Blocks = append(b.fn.Blocks, blk)
	return blk
}

// NewBlockBefore is like NewBlock but inserts the new block immediately
// before target in block order.
func (b *Builder) NewBlockBefore(label string, target *BasicBlock) *BasicBlock {
	blk := &BasicBlock{Label: b.mod.NewBlockLabel(label), fn: b.fn}
	b.fn.InsertBlockBefore(target, blk)
	return blk
}

// Value allocates a fresh SSA value named from hint.
func (b *Builder) Value(hint string, t Type) *Value {
	return b.mod.NewValue(hint, t)
}

// Imm wraps an integer literal as an inline operand.
func (b *Builder) Imm(t Type, v int64) *Value {
	return b.mod.ImmValue(t, v)
}

// Global wraps a global's address as an inline operand.
func (b *Builder) Global(g *GlobalVariable) *Value {
	return b.mod.GlobalValue(g)
}

func (b *Builder) emit(inst Instruction) {
	inst.SetBlock(b.block)
	b.block.Instructions = append(b.block.Instructions, inst)
	for i, op := range inst.Operands() {
		if op != nil {
			op.AddUse(inst, i)
		}
	}
}

// Alloca emits an alloca in the current block and returns its result
// value (a pointer to elem).
func (b *Builder) Alloca(hint string, elem Type) *Value {
	res := b.Value(hint, Ptr(elem))
	inst := &Alloca{Result: res, Elem: elem}
	b.emit(inst)
	b.setDef(res, inst)
	return res
}

func (b *Builder) setDef(v *Value, inst Instruction) {
	if v == nil {
		return
	}
	v.DefBlock = b.block
	v.DefInst = inst
}

// Load emits a load of elem through addr.
func (b *Builder) Load(hint string, elem Type, addr *Value) *Value {
	res := b.Value(hint, elem)
	inst := &Load{Result: res, Address: addr}
	b.emit(inst)
	b.setDef(res, inst)
	return res
}

// Store emits a store of value into addr.
func (b *Builder) Store(addr, value *Value, volatile bool) {
	b.emit(&Store{Address: addr, Value: value, Volatile: volatile})
}

// BinOp emits an integer ALU instruction.
func (b *Builder) BinOp(hint, op string, t Type, lhs, rhs *Value) *Value {
	res := b.Value(hint, t)
	inst := &BinOp{Result: res, Op: op, LHS: lhs, RHS: rhs}
	b.emit(inst)
	b.setDef(res, inst)
	return res
}

// ICmp emits an integer comparison.
func (b *Builder) ICmp(hint, pred string, lhs, rhs *Value) *Value {
	res := b.Value(hint, I1)
	inst := &ICmp{Result: res, Pred: pred, LHS: lhs, RHS: rhs}
	b.emit(inst)
	b.setDef(res, inst)
	return res
}

// Select emits a select.
func (b *Builder) Select(hint string, cond, trueV, falseV *Value) *Value {
	res := b.Value(hint, trueV.Type)
	inst := &Select{Result: res, Cond: cond, True: trueV, False: falseV}
	b.emit(inst)
	b.setDef(res, inst)
	return res
}

// Call emits a direct call by callee name.
func (b *Builder) Call(hint string, retType Type, callee string, calleeFn *Function, args ...*Value) *Value {
	var res *Value
	if retType != nil {
		if _, void := retType.(*VoidType); !void {
			res = b.Value(hint, retType)
		}
	}
	inst := &Call{Result: res, Callee: callee, CalleeFunc: calleeFn, Args: args}
	b.emit(inst)
	b.setDef(res, inst)
	return res
}

// CallIndirect emits a call through a loaded function pointer.
func (b *Builder) CallIndirect(hint string, retType Type, ptr *Value, args ...*Value) *Value {
	var res *Value
	if retType != nil {
		res = b.Value(hint, retType)
	}
	inst := &Call{Result: res, CalleeIndirect: true, CalleePtr: ptr, Args: args}
	b.emit(inst)
	b.setDef(res, inst)
	return res
}

// Cast emits a type-adjusting cast.
func (b *Builder) Cast(hint, kind string, to Type, operand *Value) *Value {
	res := b.Value(hint, to)
	inst := &Cast{Result: res, Kind: kind, Operand: operand}
	b.emit(inst)
	b.setDef(res, inst)
	return res
}

// Br sets the current block's terminator to an unconditional branch.
func (b *Builder) Br(target *BasicBlock) {
	b.block.Terminator = &Br{Target: target, block: b.block}
}

// CondBr sets the current block's terminator to a conditional branch.
func (b *Builder) CondBr(cond *Value, t, f *BasicBlock) {
	b.block.Terminator = &CondBr{Cond: cond, True: t, False: f, block: b.block}
}

// Ret sets the current block's terminator to a return.
func (b *Builder) Ret(v *Value) {
	b.block.Terminator = &Ret{Value: v, block: b.block}
}

// Unreachable sets the current block's terminator to unreachable.
func (b *Builder) Unreachable() {
	b.block.Terminator = &Unreachable{block: b.block}
}
