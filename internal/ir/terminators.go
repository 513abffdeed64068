package ir

import (
	"fmt"
	"strings"
)

// Terminator is the last instruction of a basic block; it determines
// successors.
type Terminator interface {
	Instruction
	Successors() []*BasicBlock
}

// Ret returns Value (nil for a void return).
type Ret struct {
	Value *Value
	block *BasicBlock
}

func (r *Ret) GetResult() *Value { return nil }
func (r *Ret) Operands() []*Value {
	if r.Value != nil {
		return []*Value{r.Value}
	}
	return nil
}
func (r *Ret) Block() *BasicBlock     { return r.block }
func (r *Ret) SetBlock(b *BasicBlock) { r.block = b }
func (r *Ret) IsTerminator() bool     { return true }
func (r *Ret) Successors() []*BasicBlock { return nil }
func (r *Ret) ReplaceOperand(old, with *Value) {
	if r.Value == old {
		r.Value = with
	}
}
func (r *Ret) String() string {
	if r.Value == nil {
		return "ret void"
	}
	return fmt.Sprintf("ret %s %s", r.Value.Type, Ref(r.Value))
}

// Unreachable marks a block whose execution the producing analysis has
// proven (or, after CFF, asserts by construction) can never happen. The
// dispatcher's default case branches here.
type Unreachable struct {
	block *BasicBlock
}

func (u *Unreachable) GetResult() *Value         { return nil }
func (u *Unreachable) Operands() []*Value        { return nil }
func (u *Unreachable) Block() *BasicBlock        { return u.block }
func (u *Unreachable) SetBlock(b *BasicBlock)    { u.block = b }
func (u *Unreachable) IsTerminator() bool        { return true }
func (u *Unreachable) Successors() []*BasicBlock { return nil }
func (u *Unreachable) ReplaceOperand(*Value, *Value) {}
func (u *Unreachable) String() string { return "unreachable" }

// Br is an unconditional branch to Target.
type Br struct {
	Target *BasicBlock
	block  *BasicBlock
}

func (b *Br) GetResult() *Value         { return nil }
func (b *Br) Operands() []*Value        { return nil }
func (b *Br) Block() *BasicBlock        { return b.block }
func (b *Br) SetBlock(blk *BasicBlock)  { b.block = blk }
func (b *Br) IsTerminator() bool        { return true }
func (b *Br) Successors() []*BasicBlock { return []*BasicBlock{b.Target} }
func (b *Br) ReplaceOperand(*Value, *Value) {}
func (b *Br) String() string { return "br label %" + b.Target.Label }

// CondBr is a two-way conditional branch.
type CondBr struct {
	Cond  *Value
	True  *BasicBlock
	False *BasicBlock
	block *BasicBlock
}

func (c *CondBr) GetResult() *Value         { return nil }
func (c *CondBr) Operands() []*Value        { return []*Value{c.Cond} }
func (c *CondBr) Block() *BasicBlock        { return c.block }
func (c *CondBr) SetBlock(b *BasicBlock)    { c.block = b }
func (c *CondBr) IsTerminator() bool        { return true }
func (c *CondBr) Successors() []*BasicBlock { return []*BasicBlock{c.True, c.False} }
func (c *CondBr) ReplaceOperand(old, with *Value) {
	if c.Cond == old {
		c.Cond = with
	}
}
func (c *CondBr) String() string {
	return fmt.Sprintf("br i1 %s, label %%%s, label %%%s", Ref(c.Cond), c.True.Label, c.False.Label)
}

// SwitchCase is one (value, target) arm of a Switch.
type SwitchCase struct {
	Value  int64
	Target *BasicBlock
}

// Switch is a multi-way dispatch on Value, falling to Default when no
// case matches.
type Switch struct {
	Value   *Value
	Default *BasicBlock
	Cases   []SwitchCase
	block   *BasicBlock
}

func (s *Switch) GetResult() *Value  { return nil }
func (s *Switch) Operands() []*Value { return []*Value{s.Value} }
func (s *Switch) Block() *BasicBlock { return s.block }
func (s *Switch) SetBlock(b *BasicBlock) { s.block = b }
func (s *Switch) IsTerminator() bool { return true }
func (s *Switch) Successors() []*BasicBlock {
	out := make([]*BasicBlock, 0, len(s.Cases)+1)
	out = append(out, s.Default)
	for _, c := range s.Cases {
		out = append(out, c.Target)
	}
	return out
}
func (s *Switch) ReplaceOperand(old, with *Value) {
	if s.Value == old {
		s.Value = with
	}
}
func (s *Switch) String() string {
	cases := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		cases[i] = fmt.Sprintf("%s %d, label %%%s", s.Value.Type, c.Value, c.Target.Label)
	}
	return fmt.Sprintf("switch %s %s, label %%%s [%s]", s.Value.Type, Ref(s.Value), s.Default.Label, strings.Join(cases, " "))
}

// UnsupportedTerminator marks a block ending in a terminator kind the
// façade doesn't model in detail — invoke, landingpad/catchswitch,
// indirectbr, callbr. The Safety Oracle's rule 5 rejects any
// function containing one of these for CFF; no pass ever constructs one.
type UnsupportedTerminator struct {
	Kind  string // "invoke","landingpad","indirectbr","callbr"
	block *BasicBlock
}

func (u *UnsupportedTerminator) GetResult() *Value         { return nil }
func (u *UnsupportedTerminator) Operands() []*Value        { return nil }
func (u *UnsupportedTerminator) Block() *BasicBlock        { return u.block }
func (u *UnsupportedTerminator) SetBlock(b *BasicBlock)    { u.block = b }
func (u *UnsupportedTerminator) IsTerminator() bool        { return true }
func (u *UnsupportedTerminator) Successors() []*BasicBlock { return nil }
func (u *UnsupportedTerminator) ReplaceOperand(*Value, *Value) {}
func (u *UnsupportedTerminator) String() string { return "unsupported." + u.Kind }
