package ir

import (
	"fmt"
	"strconv"
	"strings"

	"chakravyuha/grammar"
	"chakravyuha/token"
)

func isICmpPred(pred string) bool {
	for _, p := range token.ICmpPreds {
		if p == pred {
			return true
		}
	}
	return false
}

func isCastKind(kind string) bool {
	for _, k := range token.CastKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// FromAST lowers a parsed `.chakir` module into the façade's in-memory
// form. Grounded on kanso's AST-to-IR lowering shape
// (internal/ir/builder.go's `Build*` entry points in kanso), which walked a
// parsed source AST once, emitting IR as it went; `.chakir` text is already
// SSA, so this lowering only needs to resolve names, not elaborate types or
// control flow, and it proceeds in three passes so a call, branch, or phi
// input may forward-reference a function, block, or value defined later in
// the same module.
func FromAST(prog *grammar.Program) (*Module, error) {
	mod := &Module{}

	for _, item := range prog.Items {
		switch {
		case item.Target != nil:
			mod.TargetTriple = unquoteString(item.Target.Value)
		case item.Source != nil:
			mod.SourceFilename = unquoteString(item.Source.Value)
		}
	}

	for _, item := range prog.Items {
		if item.Global == nil {
			continue
		}
		g, err := buildGlobal(item.Global)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", item.Global.Name, err)
		}
		mod.Globals = append(mod.Globals, g)
	}

	type funcPair struct {
		decl *grammar.FunctionDecl
		fn   *Function
	}
	var pairs []funcPair
	for _, item := range prog.Items {
		if item.Function == nil {
			continue
		}
		fn, err := buildFuncShell(mod, item.Function)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", item.Function.Name, err)
		}
		mod.Functions = append(mod.Functions, fn)
		pairs = append(pairs, funcPair{decl: item.Function, fn: fn})
	}

	for _, p := range pairs {
		if p.decl.Body == nil {
			continue
		}
		if err := lowerFunctionBody(mod, p.decl, p.fn); err != nil {
			return nil, fmt.Errorf("function %s: %w", p.fn.Name, err)
		}
	}

	return mod, nil
}

// GlobalByName looks up a module-level global by its unsigiled name.
func (m *Module) GlobalByName(name string) *GlobalVariable {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// FunctionByName looks up a module-level function by name.
func (m *Module) FunctionByName(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func buildGlobal(gd *grammar.GlobalDecl) (*GlobalVariable, error) {
	t, err := resolveType(gd.Type)
	if err != nil {
		return nil, err
	}
	g := &GlobalVariable{
		Name:     stripSigil(gd.Name),
		Type:     t,
		Linkage:  LinkageInternal,
		Constant: gd.Constant,
	}
	switch {
	case gd.Init.Str != nil:
		sd, err := stringDataFromLiteral(*gd.Init.Str)
		if err != nil {
			return nil, err
		}
		g.Init = sd
	case gd.Init.Int != nil:
		g.Init = *gd.Init.Int
	case gd.Init.Zero:
		g.Init = nil
	}
	return g, nil
}

func buildFuncShell(mod *Module, fd *grammar.FunctionDecl) (*Function, error) {
	ret, err := resolveType(fd.RetType)
	if err != nil {
		return nil, err
	}
	fn := &Function{
		Name:        stripSigil(fd.Name),
		Linkage:     LinkageExternal,
		ReturnType:  ret,
		Declaration: fd.Declare,
		m:           mod,
	}
	for _, pd := range fd.Params {
		pt, err := resolveType(pd.Type)
		if err != nil {
			return nil, err
		}
		name := stripSigil(pd.Name)
		v := mod.NewValue(name, pt)
		fn.Params = append(fn.Params, &Parameter{Name: name, Type: pt, Value: v})
	}
	if fd.Body != nil {
		for _, bd := range fd.Body.Blocks {
			fn.Blocks = append(fn.Blocks, &BasicBlock{Label: bd.Label, fn: fn})
		}
	}
	return fn, nil
}

// phiFixup defers resolving a phi's incoming values until every block in
// the function has been lowered, since a loop header's phi may read a
// value first defined in the loop latch processed afterward.
type phiFixup struct {
	phi      *Phi
	typ      Type
	incoming []*grammar.PhiIncoming
}

func lowerFunctionBody(mod *Module, fd *grammar.FunctionDecl, fn *Function) error {
	locals := map[string]*Value{}
	for _, p := range fn.Params {
		locals[p.Name] = p.Value
	}
	blocks := map[string]*BasicBlock{}
	for _, b := range fn.Blocks {
		blocks[b.Label] = b
	}

	var fixups []phiFixup

	for bi, bd := range fd.Body.Blocks {
		block := fn.Blocks[bi]
		for _, it := range bd.Instructions {
			switch {
			case it.Alloca != nil:
				elem, err := resolveType(it.Alloca.Elem)
				if err != nil {
					return err
				}
				res := mod.NewValue(stripSigil(it.Alloca.Result), Ptr(elem))
				finishInstr(block, &Alloca{Result: res, Elem: elem})
				locals[res.Name] = res

			case it.Load != nil:
				elem, err := resolveType(it.Load.Elem)
				if err != nil {
					return err
				}
				addr, err := resolveTypedValue(mod, locals, it.Load.Address)
				if err != nil {
					return err
				}
				res := mod.NewValue(stripSigil(it.Load.Result), elem)
				finishInstr(block, &Load{Result: res, Address: addr})
				locals[res.Name] = res

			case it.Phi != nil:
				t, err := resolveType(it.Phi.Type)
				if err != nil {
					return err
				}
				res := mod.NewValue(stripSigil(it.Phi.Result), t)
				phi := &Phi{Result: res, Block_: block}
				block.Instructions = append(block.Instructions, phi)
				res.DefBlock = block
				res.DefInst = phi
				locals[res.Name] = res
				fixups = append(fixups, phiFixup{phi: phi, typ: t, incoming: it.Phi.Incoming})

			case it.BinOp != nil:
				if !token.IsBinOp(it.BinOp.Op) {
					return fmt.Errorf("unknown binary opcode %q", it.BinOp.Op)
				}
				t, err := resolveType(it.BinOp.Type)
				if err != nil {
					return err
				}
				lhs, err := resolveValueRef(mod, locals, t, it.BinOp.LHS)
				if err != nil {
					return err
				}
				rhs, err := resolveValueRef(mod, locals, t, it.BinOp.RHS)
				if err != nil {
					return err
				}
				res := mod.NewValue(stripSigil(it.BinOp.Result), t)
				finishInstr(block, &BinOp{Result: res, Op: it.BinOp.Op, LHS: lhs, RHS: rhs})
				locals[res.Name] = res

			case it.ICmp != nil:
				if !isICmpPred(it.ICmp.Pred) {
					return fmt.Errorf("unknown icmp predicate %q", it.ICmp.Pred)
				}
				t, err := resolveType(it.ICmp.Type)
				if err != nil {
					return err
				}
				lhs, err := resolveValueRef(mod, locals, t, it.ICmp.LHS)
				if err != nil {
					return err
				}
				rhs, err := resolveValueRef(mod, locals, t, it.ICmp.RHS)
				if err != nil {
					return err
				}
				res := mod.NewValue(stripSigil(it.ICmp.Result), I1)
				finishInstr(block, &ICmp{Result: res, Pred: it.ICmp.Pred, LHS: lhs, RHS: rhs})
				locals[res.Name] = res

			case it.Select != nil:
				cond, err := resolveTypedValue(mod, locals, it.Select.Cond)
				if err != nil {
					return err
				}
				trueV, err := resolveTypedValue(mod, locals, it.Select.True)
				if err != nil {
					return err
				}
				falseV, err := resolveTypedValue(mod, locals, it.Select.False)
				if err != nil {
					return err
				}
				res := mod.NewValue(stripSigil(it.Select.Result), trueV.Type)
				finishInstr(block, &Select{Result: res, Cond: cond, True: trueV, False: falseV})
				locals[res.Name] = res

			case it.CastI != nil:
				if !isCastKind(it.CastI.Kind) {
					return fmt.Errorf("unknown cast opcode %q", it.CastI.Kind)
				}
				operand, err := resolveTypedValue(mod, locals, it.CastI.Value)
				if err != nil {
					return err
				}
				to, err := resolveType(it.CastI.To)
				if err != nil {
					return err
				}
				res := mod.NewValue(stripSigil(it.CastI.Result), to)
				finishInstr(block, &Cast{Result: res, Kind: it.CastI.Kind, Operand: operand})
				locals[res.Name] = res

			case it.CallI != nil:
				inst, res, err := lowerCall(mod, locals, it.CallI)
				if err != nil {
					return err
				}
				finishInstr(block, inst)
				if res != nil {
					locals[res.Name] = res
				}

			case it.Store != nil:
				value, err := resolveTypedValue(mod, locals, it.Store.Value)
				if err != nil {
					return err
				}
				addr, err := resolveTypedValue(mod, locals, it.Store.Address)
				if err != nil {
					return err
				}
				finishInstr(block, &Store{Address: addr, Value: value, Volatile: it.Store.Volatile})

			case it.CondBr != nil:
				cond, ok := locals[stripSigil(it.CondBr.Cond)]
				if !ok {
					return fmt.Errorf("undefined value %s", it.CondBr.Cond)
				}
				t, f := blocks[stripSigil(it.CondBr.True)], blocks[stripSigil(it.CondBr.False)]
				if t == nil || f == nil {
					return fmt.Errorf("condbr to unknown label")
				}
				finishTerm(block, &CondBr{Cond: cond, True: t, False: f})

			case it.Br != nil:
				target, ok := blocks[stripSigil(it.Br.Target)]
				if !ok {
					return fmt.Errorf("br to unknown label %s", it.Br.Target)
				}
				finishTerm(block, &Br{Target: target})

			case it.Switch != nil:
				t, err := resolveType(it.Switch.Type)
				if err != nil {
					return err
				}
				val, err := resolveValueRef(mod, locals, t, it.Switch.Value)
				if err != nil {
					return err
				}
				def, ok := blocks[stripSigil(it.Switch.Default)]
				if !ok {
					return fmt.Errorf("switch default to unknown label")
				}
				cases := make([]SwitchCase, 0, len(it.Switch.Cases))
				for _, c := range it.Switch.Cases {
					target, ok := blocks[stripSigil(c.Target)]
					if !ok {
						return fmt.Errorf("switch case to unknown label %s", c.Target)
					}
					cases = append(cases, SwitchCase{Value: c.Value, Target: target})
				}
				finishTerm(block, &Switch{Value: val, Default: def, Cases: cases})

			case it.Ret != nil:
				if it.Ret.Void {
					finishTerm(block, &Ret{})
					continue
				}
				v, err := resolveTypedValue(mod, locals, it.Ret.Value)
				if err != nil {
					return err
				}
				finishTerm(block, &Ret{Value: v})

			case it.Unreach != nil:
				finishTerm(block, &Unreachable{})
			}
		}
	}

	for _, fx := range fixups {
		for _, inc := range fx.incoming {
			pred, ok := blocks[stripSigil(inc.Pred)]
			if !ok {
				return fmt.Errorf("phi references unknown predecessor %s", inc.Pred)
			}
			val, err := resolveValueRef(mod, locals, fx.typ, inc.Value)
			if err != nil {
				return err
			}
			idx := len(fx.phi.Incoming)
			fx.phi.Incoming = append(fx.phi.Incoming, PhiInput{Pred: pred, Value: val})
			val.AddUse(fx.phi, idx)
		}
	}

	fn.RebuildCFGLinks()
	return nil
}

func lowerCall(mod *Module, locals map[string]*Value, ci *grammar.CallInstr) (*Call, *Value, error) {
	retType, err := resolveType(ci.RetType)
	if err != nil {
		return nil, nil, err
	}
	args := make([]*Value, 0, len(ci.Args))
	for _, a := range ci.Args {
		v, err := resolveTypedValue(mod, locals, a)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, v)
	}

	var res *Value
	if ci.Result != "" {
		res = mod.NewValue(stripSigil(ci.Result), retType)
	}

	inst := &Call{Result: res, Args: args, InlineAsm: ci.Asm}
	if ci.CalleePtr != nil {
		ptr, ok := locals[stripSigil(*ci.CalleePtr)]
		if !ok {
			return nil, nil, fmt.Errorf("undefined callee pointer %s", *ci.CalleePtr)
		}
		inst.CalleeIndirect = true
		inst.CalleePtr = ptr
	} else if ci.Callee != nil {
		name := stripSigil(*ci.Callee)
		inst.Callee = name
		inst.CalleeFunc = mod.FunctionByName(name)
	}
	return inst, res, nil
}

func finishInstr(block *BasicBlock, inst Instruction) {
	inst.SetBlock(block)
	block.Instructions = append(block.Instructions, inst)
	for i, op := range inst.Operands() {
		if op != nil {
			op.AddUse(inst, i)
		}
	}
	if res := inst.GetResult(); res != nil {
		res.DefBlock = block
		res.DefInst = inst
	}
}

func finishTerm(block *BasicBlock, term Terminator) {
	term.SetBlock(block)
	block.Terminator = term
	for i, op := range term.Operands() {
		if op != nil {
			op.AddUse(term, i)
		}
	}
}

func resolveValueRef(mod *Module, locals map[string]*Value, t Type, ref *grammar.ValueRef) (*Value, error) {
	switch {
	case ref.Local != nil:
		name := stripSigil(*ref.Local)
		v, ok := locals[name]
		if !ok {
			return nil, fmt.Errorf("undefined value %s", *ref.Local)
		}
		return v, nil
	case ref.Global != nil:
		name := stripSigil(*ref.Global)
		g := mod.GlobalByName(name)
		if g == nil {
			return nil, fmt.Errorf("undefined global %s", *ref.Global)
		}
		return mod.GlobalValue(g), nil
	case ref.Int != nil:
		if t == nil {
			t = I32
		}
		return mod.ImmValue(t, *ref.Int), nil
	default:
		return nil, fmt.Errorf("empty value reference")
	}
}

func resolveTypedValue(mod *Module, locals map[string]*Value, tv *grammar.TypedValue) (*Value, error) {
	t, err := resolveType(tv.Type)
	if err != nil {
		return nil, err
	}
	return resolveValueRef(mod, locals, t, tv.Ref)
}

func resolveType(t *grammar.TypeRef) (Type, error) {
	var base Type
	switch {
	case t.Array != nil:
		elem, err := resolveType(t.Array.Elem)
		if err != nil {
			return nil, err
		}
		base = &ArrayType{Elem: elem, Length: int(t.Array.Length)}
	case t.Name == "void":
		base = &VoidType{}
	case strings.HasPrefix(t.Name, "i"):
		bits, err := strconv.Atoi(t.Name[1:])
		if err != nil {
			return nil, fmt.Errorf("unknown type %q", t.Name)
		}
		base = &IntType{Bits: bits}
	default:
		return nil, fmt.Errorf("unknown type %q", t.Name)
	}
	if t.Pointer {
		return Ptr(base), nil
	}
	return base, nil
}

func stripSigil(s string) string {
	if len(s) > 0 && (s[0] == '%' || s[0] == '@') {
		return s[1:]
	}
	return s
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// unquoteBytes decodes a `.chakir` string literal: a double-quoted token
// whose body is either a raw printable byte, a named escape (\n, \t, \",
// \\), or a two-hex-digit escape (\0A), the form Print's quoteCString emits.
func unquoteBytes(raw string) ([]byte, error) {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return nil, fmt.Errorf("malformed string literal %q", raw)
	}
	body := raw[1 : len(raw)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			out = append(out, c)
			i++
			continue
		}
		next := body[i+1]
		if i+2 < len(body) && isHexDigit(next) && isHexDigit(body[i+2]) {
			b, err := strconv.ParseUint(body[i+1:i+3], 16, 8)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(b))
			i += 3
			continue
		}
		switch next {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case '"':
			out = append(out, '"')
		case '\\':
			out = append(out, '\\')
		default:
			out = append(out, next)
		}
		i += 2
	}
	return out, nil
}

func unquoteString(raw string) string {
	b, err := unquoteBytes(raw)
	if err != nil {
		return raw
	}
	return string(b)
}

// stringDataFromLiteral mirrors quoteCString's trailing "\00" terminator:
// StringData.Bytes excludes it, the way IsStringGlobal's doc promises.
func stringDataFromLiteral(raw string) (*StringData, error) {
	b, err := unquoteBytes(raw)
	if err != nil {
		return nil, err
	}
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return &StringData{Bytes: b}, nil
}
