package grammar

import "github.com/alecthomas/participle/v2/lexer"

// Program is the root of a parsed `.chakir` module: an unordered sequence
// of top-level items (target/source pragmas, globals, functions), mirroring
// LLVM textual IR's own top-level ordering freedom. Grounded on kanso's
// `grammar.Program`/`SourceElement` top-level-alternation pattern
// (grammar/grammar.go in kanso).
type Program struct {
	Pos   lexer.Position
	Items []*TopLevelItem `@@*`
}

type TopLevelItem struct {
	Pos      lexer.Position
	Target   *TargetDecl   `  @@`
	Source   *SourceDecl   `| @@`
	Global   *GlobalDecl   `| @@`
	Function *FunctionDecl `| @@`
}

type TargetDecl struct {
	Pos   lexer.Position
	Value string `"target" @String`
}

type SourceDecl struct {
	Pos   lexer.Position
	Value string `"source" @String`
}

// GlobalDecl is `@name = (constant|global) TYPE INIT`.
type GlobalDecl struct {
	Pos      lexer.Position
	Name     string       `@Global "="`
	Constant bool         `( @"constant" | "global" )`
	Type     *TypeRef     `@@`
	Init     *Initializer `@@`
}

type Initializer struct {
	Pos  lexer.Position
	Str  *string `  "c" @String`
	Int  *int64  `| @Int`
	Zero bool    `| @"zeroinitializer"`
}

// TypeRef is a scalar integer type (`i1`, `i8`, `i32`, ...), a pointer to
// one (`i8*`), or a fixed-length array of one (`[N x i8]`).
type TypeRef struct {
	Pos     lexer.Position
	Array   *ArrayTypeRef `  @@`
	Name    string        `| @Ident`
	Pointer bool          `  @"*"?`
}

type ArrayTypeRef struct {
	Pos    lexer.Position
	Length int64    `"[" @Int "x"`
	Elem   *TypeRef `@@ "]"`
}

// ValueRef is an operand with no explicit type annotation: a local SSA
// name, a global symbol, or an integer literal.
type ValueRef struct {
	Pos    lexer.Position
	Local  *string `  @Local`
	Global *string `| @Global`
	Int    *int64  `| @Int`
}

// TypedValue is an operand written with its type, the form call arguments
// and `ret`/`load`/`store` operands use.
type TypedValue struct {
	Pos  lexer.Position
	Type *TypeRef  `@@`
	Ref  *ValueRef `@@`
}

// FunctionDecl covers both `declare` (no body) and `define` (with body).
type FunctionDecl struct {
	Pos     lexer.Position
	Declare bool           `( @"declare"`
	Define  bool           `| @"define" )`
	RetType *TypeRef       `@@`
	Name    string         `@Global "("`
	Params  []*ParamDecl   `( @@ ( "," @@ )* )? ")"`
	Body    *FunctionBody  `@@?`
}

type ParamDecl struct {
	Pos  lexer.Position
	Type *TypeRef `@@`
	Name string   `@Local`
}

type FunctionBody struct {
	Pos    lexer.Position
	Blocks []*BlockDecl `"{" @@* "}"`
}

type BlockDecl struct {
	Pos          lexer.Position
	Label        string          `@Ident ":"`
	Instructions []*InstrOrTerm  `@@*`
}

// InstrOrTerm is one line of a block body: exactly one alternative
// matches. Ordered so that a result-producing form (`%x = ...`) is tried
// for every opcode that can produce one before the no-result terminator
// alternatives, matching how `.chakir` text actually looks.
type InstrOrTerm struct {
	Pos      lexer.Position
	Alloca   *AllocaInstr   `  @@`
	Load     *LoadInstr     `| @@`
	Phi      *PhiInstr      `| @@`
	BinOp    *BinOpInstr    `| @@`
	ICmp     *ICmpInstr     `| @@`
	Select   *SelectInstr   `| @@`
	CastI    *CastInstr     `| @@`
	CallI    *CallInstr     `| @@`
	Store    *StoreInstr    `| @@`
	CondBr   *CondBrInstr   `| @@`
	Br       *BrInstr       `| @@`
	Switch   *SwitchInstr   `| @@`
	Ret      *RetInstr      `| @@`
	Unreach  *UnreachInstr  `| @@`
}

type AllocaInstr struct {
	Pos    lexer.Position
	Result string   `@Local "=" "alloca"`
	Elem   *TypeRef `@@`
}

type LoadInstr struct {
	Pos     lexer.Position
	Result  string      `@Local "=" "load"`
	Elem    *TypeRef    `@@ ","`
	Address *TypedValue `@@`
}

type PhiIncoming struct {
	Pos   lexer.Position
	Value *ValueRef `"[" @@ ","`
	Pred  string    `@Local "]"`
}

type PhiInstr struct {
	Pos      lexer.Position
	Result   string         `@Local "=" "phi"`
	Type     *TypeRef       `@@`
	Incoming []*PhiIncoming `@@ ( "," @@ )*`
}

type BinOpInstr struct {
	Pos    lexer.Position
	Result string    `@Local "="`
	Op     string    `@("add"|"sub"|"mul"|"xor"|"shl"|"and"|"or")`
	Type   *TypeRef  `@@`
	LHS    *ValueRef `@@ ","`
	RHS    *ValueRef `@@`
}

type ICmpInstr struct {
	Pos    lexer.Position
	Result string    `@Local "=" "icmp"`
	Pred   string    `@("eq"|"ne"|"slt"|"sgt"|"sle"|"sge")`
	Type   *TypeRef  `@@`
	LHS    *ValueRef `@@ ","`
	RHS    *ValueRef `@@`
}

type SelectInstr struct {
	Pos   lexer.Position
	Result string      `@Local "=" "select"`
	Cond   *TypedValue `@@ ","`
	True   *TypedValue `@@ ","`
	False  *TypedValue `@@`
}

type CastInstr struct {
	Pos    lexer.Position
	Result string      `@Local "="`
	Kind   string      `@("bitcast"|"zext"|"sext"|"trunc"|"ptrtoint"|"inttoptr")`
	Value  *TypedValue `@@ "to"`
	To     *TypeRef    `@@`
}

type CallInstr struct {
	Pos      lexer.Position
	Result   string         `( @Local "=" )?`
	Asm      bool           `"call" @"asm"?`
	RetType  *TypeRef       `@@`
	Callee   *string        `( @Global`
	CalleePtr *string       `| @Local )`
	Args     []*TypedValue  `"(" ( @@ ( "," @@ )* )? ")"`
}

type StoreInstr struct {
	Pos      lexer.Position
	Volatile bool        `@"volatile"? "store"`
	Value    *TypedValue `@@ ","`
	Address  *TypedValue `@@`
}

type CondBrInstr struct {
	Pos   lexer.Position
	Cond  string `"br" "i1" @Local ","`
	True  string `"label" @Local ","`
	False string `"label" @Local`
}

type BrInstr struct {
	Pos    lexer.Position
	Target string `"br" "label" @Local`
}

type SwitchCaseDecl struct {
	Pos    lexer.Position
	Type   *TypeRef `@@`
	Value  int64    `@Int ","`
	Target string   `"label" @Local`
}

type SwitchInstr struct {
	Pos     lexer.Position
	Type    *TypeRef          `"switch" @@`
	Value   *ValueRef         `@@ ","`
	Default string            `"label" @Local "["`
	Cases   []*SwitchCaseDecl `@@* "]"`
}

type RetInstr struct {
	Pos   lexer.Position
	Void  bool        `"ret" ( @"void"`
	Value *TypedValue `| @@ )`
}

type UnreachInstr struct {
	Pos lexer.Position
	Set bool `@"unreachable"`
}
