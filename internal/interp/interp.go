// Package interp is a minimal tree-walking evaluator over ir.Module,
// used only by tests to execute a function before and after a pass and
// diff the observable result: the returned value and any puts-style
// output captured into a buffer. There is no real backend assembler in
// this corpus to lower to, so this is how "running the program" is
// actually checked. Grounded on the IR façade's own instruction set
// (internal/ir/instructions.go, terminators.go) — the evaluator is a
// direct case-by-case walk of that closed instruction set, nothing more.
package interp

import (
	"fmt"

	"chakravyuha/internal/ir"
)

// maxSteps bounds the number of basic blocks a single call may visit,
// guarding against a malformed fixture (or a pass bug) constructing a
// cycle that never reaches a Ret.
const maxSteps = 100000

// maxCallDepth bounds recursive interpretation depth the same way.
const maxCallDepth = 1000

// Value is an interpreted SSA value: a plain integer (used for every
// integer width and i1), a pointer into the Machine's memory, or a
// function reference — the façade has no first-class function values, so
// this is the only shape a dispatch-pointer global's contents ever take.
type Value struct {
	Int int64
	Ptr *Pointer
	Fn  *ir.Function
}

// Int64 wraps an integer literal as a Value, the common case for call
// arguments and expected-return comparisons in tests.
func Int64(v int64) Value { return Value{Int: v} }

// Pointer is the address half of a Value: it names exactly one of a
// global's byte buffer, a stack slot (an alloca's identity), or a
// standalone byte buffer (Buf). The decrypt builtins decrypt a global in
// place and return that global's Pointer, not a Buf. The façade has no pointer arithmetic, so identity is
// all a Pointer ever needs to carry.
type Pointer struct {
	Global *ir.GlobalVariable
	Alloca *ir.Value
	Buf    []byte
}

func isTruthy(v Value) bool { return v.Int != 0 }

// ExternalFunc implements a declared-but-undefined function's behavior
// for interpretation purposes — the role a real runtime/linker would
// play for chakravyuha_rt_decrypt_* and friends.
type ExternalFunc func(m *Machine, args []Value) (Value, error)

// Machine holds the memory a single module's worth of interpretation
// runs against: global scalar storage, global byte buffers (string data),
// and the registered behavior of every external/runtime function a
// pass's output may call. Globals persist across calls on the same
// Machine, so a lazy-decrypt dispatch pointer behaves the same way across
// repeated calls as it would at run time: the first call's slow path
// decrypts in place and retires the pointer onto fast-dispatch, and every
// later call observes the already-decrypted global.
type Machine struct {
	mod *ir.Module

	globalData   map[*ir.GlobalVariable][]byte
	globalScalar map[*ir.GlobalVariable]Value

	externals map[string]ExternalFunc
	callDepth int

	// Puts accumulates every string a "puts"-style call observed during
	// interpretation, in call order — the only side effect these fixtures
	// ever produce.
	Puts []string
}

// New builds a Machine over mod, snapshotting every string global's
// current bytes (ciphertext or plaintext, whichever the module currently
// holds) and registering the runtime stubs String Encryption's wrapper
// functions call out to.
func New(mod *ir.Module) *Machine {
	m := &Machine{
		mod:          mod,
		globalData:   map[*ir.GlobalVariable][]byte{},
		globalScalar: map[*ir.GlobalVariable]Value{},
		externals:    map[string]ExternalFunc{},
	}
	for _, g := range mod.Globals {
		if g.HasStringData() {
			sd := g.Init.(*ir.StringData)
			m.globalData[g] = append([]byte(nil), sd.Bytes...)
		}
		if fr, ok := g.Init.(*ir.FuncRef); ok {
			m.globalScalar[g] = Value{Fn: fr.Fn}
		}
	}
	m.registerBuiltins()
	return m
}

// RegisterExternal installs (or overrides) the behavior of an
// external/declared function named name, for fixtures that call out to
// something this package doesn't already know how to simulate.
func (m *Machine) RegisterExternal(name string, fn ExternalFunc) {
	m.externals[name] = fn
}

// GlobalBytes returns the Machine's current view of g's byte buffer (nil
// if g never held string data), letting a test assert on ciphertext vs.
// plaintext without re-walking the module.
func (m *Machine) GlobalBytes(g *ir.GlobalVariable) []byte {
	return m.globalData[g]
}

// GlobalScalar returns the Machine's current value for a non-string
// global (e.g. a lazy-decrypt dispatch pointer).
func (m *Machine) GlobalScalar(g *ir.GlobalVariable) Value {
	return m.globalScalar[g]
}

// Call runs fn to completion with args bound to its parameters in order,
// returning its return value (the zero Value for a void return).
func (m *Machine) Call(fn *ir.Function, args ...Value) (Value, error) {
	if fn.Declaration {
		return m.callExternal(fn.Name, args)
	}
	m.callDepth++
	defer func() { m.callDepth-- }()
	if m.callDepth > maxCallDepth {
		return Value{}, fmt.Errorf("interp: call depth exceeded in %s", fn.Name)
	}

	fr := &frame{vals: map[*ir.Value]Value{}, allocas: map[*ir.Value]Value{}}
	for i, p := range fn.Params {
		if i < len(args) {
			fr.vals[p.Value] = args[i]
		}
	}

	var prev *ir.BasicBlock
	block := fn.Entry()
	if block == nil {
		return Value{}, fmt.Errorf("interp: %s has no entry block", fn.Name)
	}

	for steps := 0; ; steps++ {
		if steps > maxSteps {
			return Value{}, fmt.Errorf("interp: step limit exceeded in %s", fn.Name)
		}
		for _, inst := range block.Instructions {
			if err := m.exec(fr, inst, prev); err != nil {
				return Value{}, err
			}
		}

		switch t := block.Terminator.(type) {
		case *ir.Ret:
			if t.Value == nil {
				return Value{}, nil
			}
			return m.eval(fr, t.Value), nil
		case *ir.Br:
			prev, block = block, t.Target
		case *ir.CondBr:
			cond := m.eval(fr, t.Cond)
			prev = block
			if isTruthy(cond) {
				block = t.True
			} else {
				block = t.False
			}
		case *ir.Switch:
			v := m.eval(fr, t.Value)
			prev = block
			target := t.Default
			for _, c := range t.Cases {
				if c.Value == v.Int {
					target = c.Target
					break
				}
			}
			block = target
		case *ir.Unreachable:
			return Value{}, fmt.Errorf("interp: hit unreachable block %s in %s", block.Label, fn.Name)
		case nil:
			return Value{}, fmt.Errorf("interp: block %s in %s has no terminator", block.Label, fn.Name)
		default:
			return Value{}, fmt.Errorf("interp: unsupported terminator %T in %s", t, fn.Name)
		}
		if block == nil {
			return Value{}, fmt.Errorf("interp: branch to nil block in %s", fn.Name)
		}
	}
}

type frame struct {
	vals    map[*ir.Value]Value
	allocas map[*ir.Value]Value
}

func (m *Machine) eval(fr *frame, v *ir.Value) Value {
	if v == nil {
		return Value{}
	}
	switch {
	case v.IsImm:
		return Value{Int: v.Imm}
	case v.IsGlobal:
		return Value{Ptr: &Pointer{Global: v.GlobalRef}}
	case v.IsFunc:
		return Value{Fn: v.FuncVal}
	default:
		return fr.vals[v]
	}
}

func (m *Machine) exec(fr *frame, inst ir.Instruction, prev *ir.BasicBlock) error {
	switch in := inst.(type) {
	case *ir.Alloca:
		fr.vals[in.Result] = Value{Ptr: &Pointer{Alloca: in.Result}}
		fr.allocas[in.Result] = Value{}
		return nil

	case *ir.Load:
		addr := m.eval(fr, in.Address)
		v, err := m.readPtr(fr, addr)
		if err != nil {
			return err
		}
		fr.vals[in.Result] = v
		return nil

	case *ir.Store:
		addr := m.eval(fr, in.Address)
		v := m.eval(fr, in.Value)
		return m.writePtr(fr, addr, v)

	case *ir.Phi:
		for _, inc := range in.Incoming {
			if inc.Pred == prev {
				fr.vals[in.Result] = m.eval(fr, inc.Value)
				return nil
			}
		}
		return fmt.Errorf("interp: phi %s has no incoming value for predecessor %s", ir.Ref(in.Result), labelOf(prev))

	case *ir.BinOp:
		lhs := m.eval(fr, in.LHS).Int
		rhs := m.eval(fr, in.RHS).Int
		v, err := applyBinOp(in.Op, lhs, rhs)
		if err != nil {
			return err
		}
		fr.vals[in.Result] = Value{Int: v}
		return nil

	case *ir.ICmp:
		lhs := m.eval(fr, in.LHS).Int
		rhs := m.eval(fr, in.RHS).Int
		v, err := applyICmp(in.Pred, lhs, rhs)
		if err != nil {
			return err
		}
		fr.vals[in.Result] = Value{Int: v}
		return nil

	case *ir.Select:
		cond := m.eval(fr, in.Cond)
		if isTruthy(cond) {
			fr.vals[in.Result] = m.eval(fr, in.True)
		} else {
			fr.vals[in.Result] = m.eval(fr, in.False)
		}
		return nil

	case *ir.Cast:
		fr.vals[in.Result] = castValue(in.Kind, in.Operand.Type, in.Result.Type, m.eval(fr, in.Operand))
		return nil

	case *ir.Call:
		return m.execCall(fr, in)

	default:
		return fmt.Errorf("interp: unsupported instruction %T", inst)
	}
}

func labelOf(b *ir.BasicBlock) string {
	if b == nil {
		return "<entry>"
	}
	return b.Label
}

func (m *Machine) execCall(fr *frame, in *ir.Call) error {
	args := make([]Value, len(in.Args))
	for i, a := range in.Args {
		args[i] = m.eval(fr, a)
	}

	var (
		result Value
		err    error
	)
	switch {
	case in.CalleeIndirect:
		target := m.eval(fr, in.CalleePtr)
		if target.Fn == nil {
			return fmt.Errorf("interp: indirect call through a value with no resolvable function")
		}
		result, err = m.Call(target.Fn, args...)
	case in.CalleeFunc != nil:
		result, err = m.Call(in.CalleeFunc, args...)
	default:
		result, err = m.callExternal(in.Callee, args)
	}
	if err != nil {
		return err
	}
	if in.Result != nil {
		fr.vals[in.Result] = result
	}
	return nil
}

func (m *Machine) callExternal(name string, args []Value) (Value, error) {
	fn, ok := m.externals[name]
	if !ok {
		return Value{}, fmt.Errorf("interp: unresolved external function %q", name)
	}
	return fn(m, args)
}

func (m *Machine) readPtr(fr *frame, addr Value) (Value, error) {
	if addr.Ptr == nil {
		return Value{}, fmt.Errorf("interp: load through a non-pointer value")
	}
	switch {
	case addr.Ptr.Alloca != nil:
		v, ok := fr.allocas[addr.Ptr.Alloca]
		if !ok {
			return Value{}, fmt.Errorf("interp: load from a slot not allocated in this call")
		}
		return v, nil
	case addr.Ptr.Global != nil:
		return m.globalScalar[addr.Ptr.Global], nil
	default:
		return Value{}, fmt.Errorf("interp: load through an unsupported pointer")
	}
}

func (m *Machine) writePtr(fr *frame, addr, v Value) error {
	if addr.Ptr == nil {
		return fmt.Errorf("interp: store through a non-pointer value")
	}
	switch {
	case addr.Ptr.Alloca != nil:
		fr.allocas[addr.Ptr.Alloca] = v
	case addr.Ptr.Global != nil:
		m.globalScalar[addr.Ptr.Global] = v
	default:
		return fmt.Errorf("interp: store through an unsupported pointer")
	}
	return nil
}

func applyBinOp(op string, lhs, rhs int64) (int64, error) {
	switch op {
	case "add":
		return lhs + rhs, nil
	case "sub":
		return lhs - rhs, nil
	case "mul":
		return lhs * rhs, nil
	case "xor":
		return lhs ^ rhs, nil
	case "shl":
		return lhs << uint(rhs&63), nil
	case "and":
		return lhs & rhs, nil
	case "or":
		return lhs | rhs, nil
	default:
		return 0, fmt.Errorf("interp: unsupported binop %q", op)
	}
}

func applyICmp(pred string, lhs, rhs int64) (int64, error) {
	var b bool
	switch pred {
	case "eq":
		b = lhs == rhs
	case "ne":
		b = lhs != rhs
	case "slt":
		b = lhs < rhs
	case "sgt":
		b = lhs > rhs
	case "sle":
		b = lhs <= rhs
	case "sge":
		b = lhs >= rhs
	default:
		return 0, fmt.Errorf("interp: unsupported icmp predicate %q", pred)
	}
	if b {
		return 1, nil
	}
	return 0, nil
}

func bitWidth(t ir.Type) int {
	if it, ok := t.(*ir.IntType); ok {
		return it.Bits
	}
	return 64
}

// castValue implements the façade's single Cast node for every Kind it
// carries. zext/sext/trunc reinterpret the integer's bit width; bitcast,
// ptrtoint and inttoptr don't distinguish pointers from integers in this
// evaluator's Value representation, so they pass the operand through
// unchanged.
func castValue(kind string, from, to ir.Type, v Value) Value {
	switch kind {
	case "zext":
		bits := bitWidth(from)
		if bits >= 64 {
			return v
		}
		mask := int64(1)<<uint(bits) - 1
		return Value{Int: v.Int & mask}
	case "sext":
		bits := bitWidth(from)
		if bits >= 64 {
			return v
		}
		mask := int64(1)<<uint(bits) - 1
		x := v.Int & mask
		if x&(int64(1)<<uint(bits-1)) != 0 {
			x -= int64(1) << uint(bits)
		}
		return Value{Int: x}
	case "trunc":
		bits := bitWidth(to)
		if bits >= 64 {
			return v
		}
		mask := int64(1)<<uint(bits) - 1
		return Value{Int: v.Int & mask}
	default: // bitcast, ptrtoint, inttoptr
		return v
	}
}
