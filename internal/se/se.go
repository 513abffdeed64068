// Package se implements String Encryption: every eligible constant string
// global is replaced by a new non-constant ciphertext global plus a
// per-string dispatch pointer, and every use of the original global's
// address is redirected through that pointer. Grounded on kanso's
// `internal/ir` builder-driven code-synthesis style — a pass builds brand
// new functions and globals through the same façade the rest of the module
// uses, rather than hand-assembling structs — and on kanso's
// external-function declaration handling for the runtime stub the
// dispatch's slow path calls out to.
package se

import (
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/segmentio/ksuid"

	"chakravyuha/internal/ir"
	"chakravyuha/internal/oracle"
	"chakravyuha/internal/report"
	"chakravyuha/internal/rng"
)

const passName = "chakravyuha-string-encrypt"

// keyLen is the length of a string's random key material, L in the cipher
// table: a fixed 16 bytes applied cyclically over the plaintext.
const keyLen = 16

// Scheme names one of the four cipher schemes a string can be encrypted
// under.
type Scheme string

const (
	SchemeXOR  Scheme = "xor"
	SchemeAdd  Scheme = "add"
	SchemeSub  Scheme = "sub"
	SchemeSbox Scheme = "sbox"
)

var allSchemes = []Scheme{SchemeXOR, SchemeAdd, SchemeSub, SchemeSbox}

// Run replaces every eligible string global in mod using r for scheme and
// key selection, recording metrics into agg.
func Run(mod *ir.Module, oc *oracle.Oracle, r *rng.Rng, agg *report.Aggregator) error {
	count := 0
	var lastScheme Scheme

	// Globals is mutated in place (new ciphertext/key globals appended,
	// the original erased) as each candidate is processed, so the
	// candidate list is snapshotted up front.
	candidates := append([]*ir.GlobalVariable(nil), mod.Globals...)

	for _, g := range candidates {
		if !g.IsStringGlobal() {
			continue
		}
		sd := g.Init.(*ir.StringData)
		if sd.Encrypted {
			continue
		}

		uses := findGlobalUses(mod, g)
		if len(uses) == 0 {
			continue
		}
		funcs := usingFunctions(uses)
		if !oc.MayEncryptUsersOf(funcs) {
			continue
		}

		scheme := allSchemes[r.Intn(len(allSchemes))]
		id := ksuid.New().String()[:10]

		ciphertext := encryptGlobal(mod, g, scheme, r)
		dispatch := buildDispatch(mod, ciphertext, scheme, id)
		redirectUses(mod, uses, dispatch)
		ir.EraseGlobal(mod, g)

		count++
		lastScheme = scheme
	}

	if count == 0 {
		lastScheme = "none"
	}
	agg.RecordStringEncryption(count, string(lastScheme))
	agg.RecordPass(passName)
	return nil
}

type globalUse struct {
	inst Instruction
	fn   *ir.Function
	val  *ir.Value
}

// Instruction is a narrow alias so this file doesn't need to import the ir
// package's Instruction name twice under two different spellings.
type Instruction = ir.Instruction

// findGlobalUses walks every function's instructions (operands only — a
// string global's address is never itself a terminator operand) looking
// for a Value wrapping g's address, since mod.GlobalValue mints a fresh
// *Value per reference rather than sharing one canonical Value per global.
func findGlobalUses(mod *ir.Module, g *ir.GlobalVariable) []globalUse {
	var uses []globalUse
	for _, f := range mod.Functions {
		for _, b := range f.Blocks {
			for _, inst := range b.Instructions {
				for _, op := range inst.Operands() {
					if op != nil && op.IsGlobal && op.GlobalRef == g {
						uses = append(uses, globalUse{inst: inst, fn: f, val: op})
					}
				}
			}
		}
	}
	return uses
}

func usingFunctions(uses []globalUse) []*ir.Function {
	seen := map[*ir.Function]bool{}
	var out []*ir.Function
	for _, u := range uses {
		if !seen[u.fn] {
			seen[u.fn] = true
			out = append(out, u.fn)
		}
	}
	return out
}

// encryptGlobal builds g's ciphertext as a brand new non-constant global
// with the same type and linkage as g (the original is left untouched;
// Run erases it once every use has been redirected away from it), and
// stashes the key material the runtime decrypt stub needs on its
// StringData, obfuscated the way the scheme dictates.
func encryptGlobal(mod *ir.Module, g *ir.GlobalVariable, scheme Scheme, r *rng.Rng) *ir.GlobalVariable {
	plain := g.Init.(*ir.StringData).Bytes
	cipher := make([]byte, len(plain))
	data := &ir.StringData{Bytes: cipher, Encrypted: true}

	switch scheme {
	case SchemeXOR:
		var key [keyLen]byte
		r.Bytes(key[:])
		for i, b := range plain {
			cipher[i] = b ^ key[i%keyLen]
		}
		for i, kb := range key {
			data.Key[i] = kb ^ byte(i)
		}
	case SchemeAdd:
		var key [keyLen]byte
		r.Bytes(key[:])
		for i, b := range plain {
			cipher[i] = b + key[i%keyLen]
		}
		for i, kb := range key {
			data.Key[i] = kb + byte(i)
		}
	case SchemeSub:
		// Same cipher formula as XOR — this scheme differs from XOR only
		// in how its key material is obfuscated in the binary.
		var key [keyLen]byte
		r.Bytes(key[:])
		for i, b := range plain {
			cipher[i] = b ^ key[i%keyLen]
		}
		for i, kb := range key {
			data.Key[i] = 0xFF - kb
		}
	case SchemeSbox:
		perm := randomPermutation(r)
		inv := make([]byte, 256)
		for i, p := range perm {
			inv[p] = byte(i)
		}
		for i, b := range plain {
			cipher[i] = perm[b]
		}
		data.SboxInverse = inv
	}

	ct := &ir.GlobalVariable{
		Name:     g.Name + "_ct",
		Type:     g.Type,
		Linkage:  g.Linkage,
		Constant: false,
		Init:     data,
	}
	mod.Globals = append(mod.Globals, ct)
	return ct
}

// randomPermutation builds a Fisher-Yates shuffle of 0..255 using r.
func randomPermutation(r *rng.Rng) []byte {
	perm := make([]byte, 256)
	for i := range perm {
		perm[i] = byte(i)
	}
	for i := 255; i > 0; i-- {
		j := r.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// runtimeDecl ensures mod declares an external function with the given
// name/signature exactly once, returning it.
func runtimeDecl(mod *ir.Module, name string, params []ir.Type, ret ir.Type) *ir.Function {
	if f := mod.FunctionByName(name); f != nil {
		return f
	}
	fn := &ir.Function{Name: name, Linkage: ir.LinkageExternal, ReturnType: ret, Declaration: true}
	for i, t := range params {
		fn.Params = append(fn.Params, &ir.Parameter{Name: fmt.Sprintf("a%d", i), Type: t, Value: mod.NewValue(fmt.Sprintf("a%d", i), t)})
	}
	mod.Functions = append(mod.Functions, fn)
	return fn
}

func decryptRuntimeName(scheme Scheme) string {
	return "chakravyuha_rt_decrypt_" + string(scheme)
}

// buildDispatch synthesizes the lazy self-modifying dispatch for ct: a
// private key-material (or, for SchemeSbox, inverse-permutation-table)
// global, a slow-dispatch function that decrypts ct in place and then
// atomically swaps the dispatch pointer onto fast-dispatch, a fast-dispatch
// function that just returns ct's address, and the dispatch pointer global
// itself, initialized to slow-dispatch.
func buildDispatch(mod *ir.Module, ct *ir.GlobalVariable, scheme Scheme, id string) *ir.GlobalVariable {
	sd := ct.Init.(*ir.StringData)
	base := strcase.ToSnake(ct.Name) + "_" + id
	ptrType := ir.Ptr(ir.I8)

	var keyGlobal *ir.GlobalVariable
	if scheme == SchemeSbox {
		keyGlobal = &ir.GlobalVariable{
			Name:     "chakravyuha_sbox_" + base,
			Type:     &ir.ArrayType{Elem: ir.I8, Length: 256},
			Linkage:  ir.LinkagePrivate,
			Constant: true,
			Init:     &ir.StringData{Bytes: sd.SboxInverse},
		}
	} else {
		keyGlobal = &ir.GlobalVariable{
			Name:     "chakravyuha_key_" + base,
			Type:     &ir.ArrayType{Elem: ir.I8, Length: keyLen},
			Linkage:  ir.LinkagePrivate,
			Constant: true,
			Init:     &ir.StringData{Bytes: append([]byte(nil), sd.Key[:]...)},
		}
	}
	mod.Globals = append(mod.Globals, keyGlobal)

	decryptDecl := runtimeDecl(mod, decryptRuntimeName(scheme), []ir.Type{ptrType, ir.I32, ptrType}, ptrType)

	slowFn := &ir.Function{Name: "chakravyuha_slow_" + base, ReturnType: ptrType, Linkage: ir.LinkageInternal}
	fastFn := &ir.Function{Name: "chakravyuha_fast_" + base, ReturnType: ptrType, Linkage: ir.LinkageInternal}

	dispatch := &ir.GlobalVariable{
		Name:    "chakravyuha_dispatch_" + base,
		Type:    ptrType,
		Linkage: ir.LinkagePrivate,
		Init:    &ir.FuncRef{Fn: slowFn},
	}
	mod.Globals = append(mod.Globals, dispatch)

	casDecl := runtimeDecl(mod, "chakravyuha_rt_cas_ptr", []ir.Type{ir.Ptr(ptrType), ptrType, ptrType}, ir.I1)

	slowEntry := &ir.BasicBlock{Label: mod.NewBlockLabel(slowFn.Name + ".entry")}
	decryptedVal := mod.NewValue(slowFn.Name+".decrypted", ptrType)
	ir.Append(slowEntry, &ir.Call{
		Result: decryptedVal, Callee: decryptDecl.Name, CalleeFunc: decryptDecl,
		Args: []*ir.Value{mod.GlobalValue(ct), mod.ImmValue(ir.I32, int64(len(sd.Bytes))), mod.GlobalValue(keyGlobal)},
	})
	swapped := mod.NewValue(slowFn.Name+".swapped", ir.I1)
	ir.Append(slowEntry, &ir.Call{
		Result: swapped, Callee: casDecl.Name, CalleeFunc: casDecl,
		Args: []*ir.Value{mod.GlobalValue(dispatch), mod.FuncValue(slowFn), mod.FuncValue(fastFn)},
	})
	ir.SetTerminator(slowEntry, &ir.Ret{Value: decryptedVal})
	slowFn.AppendBlock(slowEntry)
	slowFn.RebuildCFGLinks()

	fastEntry := &ir.BasicBlock{Label: mod.NewBlockLabel(fastFn.Name + ".entry")}
	ir.SetTerminator(fastEntry, &ir.Ret{Value: mod.GlobalValue(ct)})
	fastFn.AppendBlock(fastEntry)
	fastFn.RebuildCFGLinks()

	mod.Functions = append(mod.Functions, slowFn, fastFn)
	return dispatch
}

// redirectUses replaces every original use of g's address with a load of
// dispatch followed by a call through the loaded pointer, spliced in
// immediately before the using instruction.
func redirectUses(mod *ir.Module, uses []globalUse, dispatch *ir.GlobalVariable) {
	for _, u := range uses {
		ptrType := ir.Ptr(ir.I8)
		loaded := mod.NewValue(dispatch.Name+".ptr", ptrType)
		ir.InsertBefore(u.inst.Block(), u.inst, &ir.Load{Result: loaded, Address: mod.GlobalValue(dispatch)})

		result := mod.NewValue(dispatch.Name+".ref", ptrType)
		call := &ir.Call{Result: result, CalleeIndirect: true, CalleePtr: loaded}
		ir.InsertBefore(u.inst.Block(), u.inst, call)

		u.inst.ReplaceOperand(u.val, result)
	}
}
