package ir

import "fmt"

// Module owns a set of functions and a set of global variables, and
// carries a source file name and a target triple string.
type Module struct {
	SourceFilename string
	TargetTriple   string
	Functions      []*Function
	Globals        []*GlobalVariable

	nextValueID int
	nextBlockID int
}

// Linkage mirrors the subset of LLVM-style linkages the passes care about:
// whether a function/global is externally visible (and therefore must not
// be renamed or erased) or private to the module.
type Linkage string

const (
	LinkagePrivate  Linkage = "private"
	LinkageInternal Linkage = "internal"
	LinkageExternal Linkage = "external"
)

// Function is an ordered sequence of basic blocks with a distinguished
// entry block; it carries linkage, attributes and a parameter list.
type Function struct {
	Name       string
	Linkage    Linkage
	Params     []*Parameter
	ReturnType Type
	Blocks     []*BasicBlock // Blocks[0] is always the entry block.

	// Declaration is true for external/declaration-only functions: no
	// blocks, no body, never a transform target (Safety Oracle rule 1).
	Declaration bool
	// Intrinsic is true for compiler/runtime intrinsics (e.g. llvm.*):
	// also never a transform target (Safety Oracle rule 1).
	Intrinsic bool

	m *Module
}

// Entry returns the function's distinguished entry block, or nil for a
// declaration.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Parameter is a function parameter; it also carries the SSA Value bound
// to it at call sites.
type Parameter struct {
	Name  string
	Type  Type
	Value *Value
}

// BasicBlock is an ordered sequence of instructions ending in a single
// terminator. Predecessors/Successors are derived from the
// terminator, not independently maintained, and are recomputed on demand
// by Function.RebuildCFGLinks (see cfg.go) after a pass mutates
// terminators in bulk.
type BasicBlock struct {
	Label        string
	Instructions []Instruction
	Terminator   Terminator

	Predecessors []*BasicBlock
	Successors   []*BasicBlock

	fn *Function
}

// Func returns the function the block belongs to.
func (b *BasicBlock) Func() *Function { return b.fn }

// GlobalVariable is a named constant or mutable value living in the
// module. A constant data-array global whose element type is
// 8-bit integer and that is null-terminated is a "string global"
// (IsStringGlobal).
type GlobalVariable struct {
	Name     string
	Type     Type
	Linkage  Linkage
	Constant bool
	// Init holds the compile-time initializer. For a string global this is
	// a StringData; for a scalar it's an int64/bool/nil.
	Init any

	Users []*Use
}

// StringData is the initializer payload of a string global: raw bytes not
// including the trailing NUL, which IsStringGlobal treats as implicit.
// Encrypted/Key/SboxInverse exist purely for a string-encryption pass to
// stash its cipher state on the value it transformed; an unencrypted
// string global leaves all three at their zero value. Key holds the
// scheme's length-16 key material in whatever form (plain or
// binary-obfuscated) the pass that set it chose to stash there.
type StringData struct {
	Bytes []byte

	Encrypted   bool
	Key         [16]byte
	SboxInverse []byte
}

// FuncRef is a global's initializer that names a function's address. The
// façade has no first-class function type, so a function-pointer global
// (String Encryption's per-string dispatch pointer) is typed as a plain
// pointer and simply carries the function it currently points to here.
type FuncRef struct {
	Fn *Function
}

// IsStringGlobal reports whether g is a constant, null-terminated,
// 8-bit-element data array — the working definition of "string global".
func (g *GlobalVariable) IsStringGlobal() bool {
	if !g.Constant {
		return false
	}
	arr, ok := g.Type.(*ArrayType)
	if !ok {
		return false
	}
	it, ok := arr.Elem.(*IntType)
	if !ok || it.Bits != 8 {
		return false
	}
	_, ok = g.Init.(*StringData)
	return ok
}

// HasStringData reports whether g's initializer carries byte-string
// payload, regardless of constness — covering both an original constant
// string global and the non-constant ciphertext global String Encryption
// replaces it with.
func (g *GlobalVariable) HasStringData() bool {
	_, ok := g.Init.(*StringData)
	return ok
}

// AddUser records that inst uses this global (so erasing a global can
// assert no stale users remain, invariant).
func (g *GlobalVariable) AddUser(inst Instruction) {
	g.Users = append(g.Users, &Use{User: inst})
}

// RemoveUser drops inst from the global's user list.
func (g *GlobalVariable) RemoveUser(inst Instruction) {
	out := g.Users[:0]
	for _, u := range g.Users {
		if u.User != inst {
			out = append(out, u)
		}
	}
	g.Users = out
}

// Value is an SSA value: each is defined in exactly one place and carries
// its own use list. A Value is one of four kinds: SSA-defined (DefInst
// set), an immediate integer constant (IsImm), a global symbol's
// address used directly as an operand (IsGlobal), or a function's
// address used the same way (IsFunc) — mirroring how LLVM
// lets a ConstantInt or a GlobalVariable's address appear inline as an
// operand without a dedicated defining instruction.
type Value struct {
	ID   int
	Name string
	Type Type

	DefBlock *BasicBlock
	DefInst  Instruction // nil for a Parameter's Value, an immediate, or a global reference.

	IsImm bool
	Imm   int64

	IsGlobal  bool
	GlobalRef *GlobalVariable

	// IsFunc marks an operand that is a function's address used directly
	// inline (String Encryption's dispatch-pointer CAS arguments), the
	// function-valued counterpart to IsImm/IsGlobal.
	IsFunc  bool
	FuncVal *Function

	Uses []*Use
}

// Use records that User consumes Value at operand position Index (so
// operand rewrites — e.g. CFF demoting a cross-block value to a stack
// slot — can walk a value's users without re-scanning every block).
type Use struct {
	Value *Value
	User  Instruction
	Index int
}

// AddUse registers that inst uses v, appending to v's use list.
func (v *Value) AddUse(inst Instruction, index int) {
	v.Uses = append(v.Uses, &Use{Value: v, User: inst, Index: index})
}

// ReplaceAllUsesWith rewrites every recorded user of v to instead use
// with, via each instruction's ReplaceOperand. The passes do not call it:
// SE and CFF rewrite individual users with ReplaceOperand directly.
func (v *Value) ReplaceAllUsesWith(with *Value) {
	for _, u := range v.Uses {
		u.User.ReplaceOperand(v, with)
		with.AddUse(u.User, u.Index)
	}
	v.Uses = nil
}

// NewValue allocates a fresh SSA value with a module-unique ID.
func (m *Module) NewValue(name string, t Type) *Value {
	m.nextValueID++
	return &Value{ID: m.nextValueID, Name: name, Type: t}
}

// ImmValue wraps an integer literal as an operand with no defining
// instruction, the way a `.chakir` bare integer operand (or any LLVM
// inline ConstantInt) works.
func (m *Module) ImmValue(t Type, imm int64) *Value {
	m.nextValueID++
	return &Value{ID: m.nextValueID, Type: t, IsImm: true, Imm: imm}
}

// GlobalValue wraps a global's address as an operand with no defining
// instruction.
func (m *Module) GlobalValue(g *GlobalVariable) *Value {
	m.nextValueID++
	return &Value{ID: m.nextValueID, Type: Ptr(g.Type), IsGlobal: true, GlobalRef: g}
}

// FuncValue wraps fn's address as an operand with no defining instruction —
// String Encryption's slow-dispatch stub passes fast-dispatch's address to
// the CAS that retires it.
func (m *Module) FuncValue(fn *Function) *Value {
	m.nextValueID++
	return &Value{ID: m.nextValueID, Type: Ptr(I8), IsFunc: true, FuncVal: fn}
}

// Ref renders v the way a `.chakir` operand is written: `%name` for an
// SSA-defined or parameter value, `@name` for a global's or function's
// address, and a bare decimal for an immediate. Every instruction's
// String() goes through this so printer.go and the per-instruction
// String() methods can never drift on the sigil convention.
func Ref(v *Value) string {
	switch {
	case v.IsImm:
		return FormatInt(v.Imm)
	case v.IsGlobal:
		return "@" + v.GlobalRef.Name
	case v.IsFunc:
		return "@" + v.FuncVal.Name
	default:
		return "%" + v.Name
	}
}

// NewBlockLabel returns a module-unique block label built from prefix.
func (m *Module) NewBlockLabel(prefix string) string {
	m.nextBlockID++
	return fmt.Sprintf("%s.%d", prefix, m.nextBlockID)
}
