package ir

import (
	"fmt"
	"strings"
)

// Instruction is an operation with operands, a type, and zero or more
// users. Distinguished kinds used by the core: alloca, load,
// store, phi, call, integer ALU ops, comparison, select, cast.
type Instruction interface {
	GetResult() *Value // nil for instructions with no result (store, call-to-void, ...).
	Operands() []*Value
	Block() *BasicBlock
	SetBlock(*BasicBlock)
	IsTerminator() bool
	// ReplaceOperand rewrites every occurrence of old in this
	// instruction's operand list with with. Used by Value.ReplaceAllUsesWith.
	ReplaceOperand(old, with *Value)
	String() string
}

// Alloca reserves a stack slot of type Elem. CFF's SSA-demotion step
// allocates one of these per phi/cross-block value, in the entry block.
type Alloca struct {
	Result *Value
	Elem   Type
	block  *BasicBlock
}

func (a *Alloca) GetResult() *Value      { return a.Result }
func (a *Alloca) Operands() []*Value     { return nil }
func (a *Alloca) Block() *BasicBlock     { return a.block }
func (a *Alloca) SetBlock(b *BasicBlock) { a.block = b }
func (a *Alloca) IsTerminator() bool     { return false }
func (a *Alloca) ReplaceOperand(*Value, *Value) {}
func (a *Alloca) String() string {
	return fmt.Sprintf("%s = alloca %s", Ref(a.Result), a.Elem.String())
}

// Load reads through Address.
type Load struct {
	Result  *Value
	Address *Value
	block   *BasicBlock
}

func (l *Load) GetResult() *Value      { return l.Result }
func (l *Load) Operands() []*Value     { return []*Value{l.Address} }
func (l *Load) Block() *BasicBlock     { return l.block }
func (l *Load) SetBlock(b *BasicBlock) { l.block = b }
func (l *Load) IsTerminator() bool     { return false }
func (l *Load) ReplaceOperand(old, with *Value) {
	if l.Address == old {
		l.Address = with
	}
}
func (l *Load) String() string {
	return fmt.Sprintf("%s = load %s, %s* %s", Ref(l.Result), l.Result.Type, l.Result.Type, Ref(l.Address))
}

// Store writes Value into Address.
type Store struct {
	Address  *Value
	Value    *Value
	Volatile bool // FCI's sink write is volatile.
	block    *BasicBlock
}

func (s *Store) GetResult() *Value      { return nil }
func (s *Store) Operands() []*Value     { return []*Value{s.Value, s.Address} }
func (s *Store) Block() *BasicBlock     { return s.block }
func (s *Store) SetBlock(b *BasicBlock) { s.block = b }
func (s *Store) IsTerminator() bool     { return false }
func (s *Store) ReplaceOperand(old, with *Value) {
	if s.Value == old {
		s.Value = with
	}
	if s.Address == old {
		s.Address = with
	}
}
func (s *Store) String() string {
	v := ""
	if s.Volatile {
		v = "volatile "
	}
	return fmt.Sprintf("%sstore %s %s, %s* %s", v, s.Value.Type, Ref(s.Value), s.Value.Type, Ref(s.Address))
}

// Phi is an SSA merge: a pseudo-instruction at a block's top that selects
// one of several incoming values based on which predecessor executed.
// CFF's Step A eliminates every Phi in a flattened function.
type Phi struct {
	Result *Value
	Block_ *BasicBlock
	// Incoming preserves predecessor order (unlike a map) so demotion is
	// deterministic.
	Incoming []PhiInput
}

// PhiInput is one (predecessor, value) pair of a Phi.
type PhiInput struct {
	Pred  *BasicBlock
	Value *Value
}

func (p *Phi) GetResult() *Value { return p.Result }
func (p *Phi) Operands() []*Value {
	ops := make([]*Value, len(p.Incoming))
	for i, in := range p.Incoming {
		ops[i] = in.Value
	}
	return ops
}
func (p *Phi) Block() *BasicBlock     { return p.Block_ }
func (p *Phi) SetBlock(b *BasicBlock) { p.Block_ = b }
func (p *Phi) IsTerminator() bool     { return false }
func (p *Phi) ReplaceOperand(old, with *Value) {
	for i := range p.Incoming {
		if p.Incoming[i].Value == old {
			p.Incoming[i].Value = with
		}
	}
}
func (p *Phi) String() string {
	s := Ref(p.Result) + " = phi " + p.Result.Type.String() + " "
	for i, in := range p.Incoming {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("[ %s, %%%s ]", Ref(in.Value), in.Pred.Label)
	}
	return s
}

// Call invokes Callee (by name; the façade has no first-class function
// values) with Args. Result is nil when Callee returns void.
type Call struct {
	Result *Value
	Callee string
	Args   []*Value
	// CalleeFunc is the resolved *Function when Callee names a function
	// defined in the same module (nil for external calls); the Safety
	// Oracle's call-graph closure walks this.
	CalleeFunc *Function
	// CalleeIndirect is set for a call through a loaded function pointer
	// (SE's dispatch-through-pointer call, ); CalleePtr holds
	// the pointer value and Callee is empty.
	CalleeIndirect bool
	CalleePtr      *Value
	// InlineAsm marks a call whose callee operand is inline assembly
	// (Safety Oracle rule 3).
	InlineAsm bool
	block     *BasicBlock
}

func (c *Call) GetResult() *Value { return c.Result }
func (c *Call) Operands() []*Value {
	if c.CalleeIndirect {
		return append([]*Value{c.CalleePtr}, c.Args...)
	}
	return c.Args
}
func (c *Call) Block() *BasicBlock     { return c.block }
func (c *Call) SetBlock(b *BasicBlock) { c.block = b }
func (c *Call) IsTerminator() bool     { return false }
func (c *Call) ReplaceOperand(old, with *Value) {
	if c.CalleeIndirect && c.CalleePtr == old {
		c.CalleePtr = with
	}
	for i, a := range c.Args {
		if a == old {
			c.Args[i] = with
		}
	}
}
func (c *Call) String() string {
	callee := "@" + c.Callee
	if c.CalleeIndirect {
		callee = Ref(c.CalleePtr)
	}
	result := ""
	if c.Result != nil {
		result = Ref(c.Result) + " = "
	}
	asm := ""
	if c.InlineAsm {
		asm = "asm "
	}
	retType := (&VoidType{}).String()
	if c.Result != nil {
		retType = c.Result.Type.String()
	}
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = fmt.Sprintf("%s %s", a.Type.String(), Ref(a))
	}
	return fmt.Sprintf("%scall %s%s %s(%s)", result, asm, retType, callee, strings.Join(args, ", "))
}

// BinOp is one of ADD/SUB/MUL/XOR/SHL/AND/OR over integer operands. FCI
// draws its junk instructions from the ADD/SUB/MUL/XOR/SHL subset.
type BinOp struct {
	Result *Value
	Op     string // "add","sub","mul","xor","shl","and","or"
	LHS    *Value
	RHS    *Value
	block  *BasicBlock
}

func (b *BinOp) GetResult() *Value      { return b.Result }
func (b *BinOp) Operands() []*Value     { return []*Value{b.LHS, b.RHS} }
func (b *BinOp) Block() *BasicBlock     { return b.block }
func (b *BinOp) SetBlock(blk *BasicBlock) { b.block = blk }
func (b *BinOp) IsTerminator() bool     { return false }
func (b *BinOp) ReplaceOperand(old, with *Value) {
	if b.LHS == old {
		b.LHS = with
	}
	if b.RHS == old {
		b.RHS = with
	}
}
func (b *BinOp) String() string {
	return fmt.Sprintf("%s = %s %s %s, %s", Ref(b.Result), b.Op, b.Result.Type, Ref(b.LHS), Ref(b.RHS))
}

// ICmp is an integer comparison producing an i1.
type ICmp struct {
	Result *Value
	Pred   string // "eq","ne","slt","sgt","sle","sge"
	LHS    *Value
	RHS    *Value
	block  *BasicBlock
}

func (i *ICmp) GetResult() *Value      { return i.Result }
func (i *ICmp) Operands() []*Value     { return []*Value{i.LHS, i.RHS} }
func (i *ICmp) Block() *BasicBlock     { return i.block }
func (i *ICmp) SetBlock(b *BasicBlock) { i.block = b }
func (i *ICmp) IsTerminator() bool     { return false }
func (i *ICmp) ReplaceOperand(old, with *Value) {
	if i.LHS == old {
		i.LHS = with
	}
	if i.RHS == old {
		i.RHS = with
	}
}
func (i *ICmp) String() string {
	return fmt.Sprintf("%s = icmp %s %s %s, %s", Ref(i.Result), i.Pred, i.LHS.Type, Ref(i.LHS), Ref(i.RHS))
}

// Select computes Cond ? True : False without branching. CFF's
// switch-terminator rewrite builds a cascade of these to fold a
// multi-way switch into a single next-state value.
type Select struct {
	Result *Value
	Cond   *Value
	True   *Value
	False  *Value
	block  *BasicBlock
}

func (s *Select) GetResult() *Value      { return s.Result }
func (s *Select) Operands() []*Value     { return []*Value{s.Cond, s.True, s.False} }
func (s *Select) Block() *BasicBlock     { return s.block }
func (s *Select) SetBlock(b *BasicBlock) { s.block = b }
func (s *Select) IsTerminator() bool     { return false }
func (s *Select) ReplaceOperand(old, with *Value) {
	if s.Cond == old {
		s.Cond = with
	}
	if s.True == old {
		s.True = with
	}
	if s.False == old {
		s.False = with
	}
}
func (s *Select) String() string {
	return fmt.Sprintf("%s = select i1 %s, %s %s, %s %s", Ref(s.Result), Ref(s.Cond), s.True.Type, Ref(s.True), s.False.Type, Ref(s.False))
}

// Cast reinterprets/converts Operand to the Result's type (bitcast,
// zext/sext, trunc, ptrtoint/inttoptr — the passes don't distinguish these
// beyond "a type-adjusting no-op", so one node covers them, tagged by Kind
// for printing).
type Cast struct {
	Result  *Value
	Kind    string // "bitcast","zext","sext","trunc","ptrtoint","inttoptr"
	Operand *Value
	block   *BasicBlock
}

func (c *Cast) GetResult() *Value      { return c.Result }
func (c *Cast) Operands() []*Value     { return []*Value{c.Operand} }
func (c *Cast) Block() *BasicBlock     { return c.block }
func (c *Cast) SetBlock(b *BasicBlock) { c.block = b }
func (c *Cast) IsTerminator() bool     { return false }
func (c *Cast) ReplaceOperand(old, with *Value) {
	if c.Operand == old {
		c.Operand = with
	}
}
func (c *Cast) String() string {
	return fmt.Sprintf("%s = %s %s %s to %s", Ref(c.Result), c.Kind, c.Operand.Type, Ref(c.Operand), c.Result.Type)
}
