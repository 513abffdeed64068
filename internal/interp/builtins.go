package interp

import (
	"fmt"

	"chakravyuha/internal/ir"
)

// registerBuiltins installs the simulated behavior of every
// declared-but-undefined runtime function chakravyuha's own passes
// emit calls to: the four string-decrypt schemes String Encryption's
// slow-dispatch stub calls out to, its compare-and-swap dispatch-pointer
// guard, and libc's puts, the only side-effecting call any fixture in this
// corpus makes.
func (m *Machine) registerBuiltins() {
	m.externals["puts"] = builtinPuts
	m.externals["chakravyuha_rt_cas_ptr"] = builtinCASPtr
	m.externals["chakravyuha_rt_decrypt_xor"] = builtinDecryptXOR
	m.externals["chakravyuha_rt_decrypt_add"] = builtinDecryptAdd
	m.externals["chakravyuha_rt_decrypt_sub"] = builtinDecryptSub
	m.externals["chakravyuha_rt_decrypt_sbox"] = builtinDecryptSbox
}

func (m *Machine) bufferOf(p *Pointer) ([]byte, error) {
	switch {
	case p == nil:
		return nil, fmt.Errorf("interp: nil pointer has no byte buffer")
	case p.Global != nil:
		buf, ok := m.globalData[p.Global]
		if !ok {
			return nil, fmt.Errorf("interp: global %s carries no byte data", p.Global.Name)
		}
		return buf, nil
	case p.Buf != nil:
		return p.Buf, nil
	default:
		return nil, fmt.Errorf("interp: pointer has no addressable byte buffer")
	}
}

func (m *Machine) readCString(v Value) (string, error) {
	if v.Ptr == nil {
		return "", fmt.Errorf("interp: puts argument is not a pointer")
	}
	buf, err := m.bufferOf(v.Ptr)
	if err != nil {
		return "", err
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}

func builtinPuts(m *Machine, args []Value) (Value, error) {
	if len(args) < 1 {
		return Value{}, fmt.Errorf("interp: puts called with no arguments")
	}
	s, err := m.readCString(args[0])
	if err != nil {
		return Value{}, err
	}
	m.Puts = append(m.Puts, s)
	return Value{Int: int64(len(s))}, nil
}

// builtinCASPtr implements chakravyuha_rt_cas_ptr(dispatch**, old fn*, new
// fn*): the single-threaded equivalent of a compare-and-swap on a
// dispatch-pointer global, the way String Encryption's slow-dispatch
// function retires itself in favor of fast-dispatch exactly once.
func builtinCASPtr(m *Machine, args []Value) (Value, error) {
	if len(args) < 3 || args[0].Ptr == nil || args[0].Ptr.Global == nil {
		return Value{}, fmt.Errorf("interp: chakravyuha_rt_cas_ptr requires a global pointer argument")
	}
	g := args[0].Ptr.Global
	cur := m.globalScalar[g]
	if cur.Fn != args[1].Fn {
		return Value{Int: 0}, nil
	}
	m.globalScalar[g] = Value{Fn: args[2].Fn}
	return Value{Int: 1}, nil
}

// decryptArgs resolves a decrypt stub's (ciphertext ptr, length) arguments
// to the global they address and its in-bounds byte slice, so a decrypt
// builtin can mutate that global's buffer in place — modeling the spec's
// "in-place decryption may mutate it on first access".
func decryptArgs(m *Machine, args []Value) (g *ir.GlobalVariable, cipher []byte, err error) {
	if len(args) < 3 || args[0].Ptr == nil || args[0].Ptr.Global == nil {
		return nil, nil, fmt.Errorf("interp: decrypt stub requires (ptr, len, key) arguments addressing a global")
	}
	g = args[0].Ptr.Global
	buf, err := m.bufferOf(args[0].Ptr)
	if err != nil {
		return nil, nil, err
	}
	n := int(args[1].Int)
	if n > len(buf) {
		return nil, nil, fmt.Errorf("interp: decrypt length %d exceeds buffer of %d bytes", n, len(buf))
	}
	return g, buf[:n], nil
}

// keyBytes reads the 16-byte (or, for sbox, 256-byte) key material a
// decrypt stub's third argument addresses.
func (m *Machine) keyBytes(v Value) ([]byte, error) {
	if v.Ptr == nil {
		return nil, fmt.Errorf("interp: decrypt stub key argument is not a pointer")
	}
	return m.bufferOf(v.Ptr)
}

func builtinDecryptXOR(m *Machine, args []Value) (Value, error) {
	g, cipher, err := decryptArgs(m, args)
	if err != nil {
		return Value{}, err
	}
	obf, err := m.keyBytes(args[2])
	if err != nil {
		return Value{}, err
	}
	key := make([]byte, len(obf))
	for i, kb := range obf {
		key[i] = kb ^ byte(i)
	}
	for i := range cipher {
		cipher[i] ^= key[i%len(key)]
	}
	return Value{Ptr: &Pointer{Global: g}}, nil
}

func builtinDecryptAdd(m *Machine, args []Value) (Value, error) {
	g, cipher, err := decryptArgs(m, args)
	if err != nil {
		return Value{}, err
	}
	obf, err := m.keyBytes(args[2])
	if err != nil {
		return Value{}, err
	}
	key := make([]byte, len(obf))
	for i, kb := range obf {
		key[i] = kb - byte(i)
	}
	for i := range cipher {
		cipher[i] -= key[i%len(key)]
	}
	return Value{Ptr: &Pointer{Global: g}}, nil
}

// builtinDecryptSub implements the SUB-from-constant scheme: its cipher
// formula is the same XOR as SchemeXOR, distinguished only by how its key
// material is obfuscated in the binary (0xFF-complemented rather than
// index-XORed).
func builtinDecryptSub(m *Machine, args []Value) (Value, error) {
	g, cipher, err := decryptArgs(m, args)
	if err != nil {
		return Value{}, err
	}
	obf, err := m.keyBytes(args[2])
	if err != nil {
		return Value{}, err
	}
	key := make([]byte, len(obf))
	for i, kb := range obf {
		key[i] = 0xFF - kb
	}
	for i := range cipher {
		cipher[i] ^= key[i%len(key)]
	}
	return Value{Ptr: &Pointer{Global: g}}, nil
}

// builtinDecryptSbox implements the table-driven scheme: args[2] addresses
// the 256-byte inverse permutation table String Encryption stashed
// alongside the ciphertext, rather than a cyclic key.
func builtinDecryptSbox(m *Machine, args []Value) (Value, error) {
	g, cipher, err := decryptArgs(m, args)
	if err != nil {
		return Value{}, err
	}
	table, err := m.keyBytes(args[2])
	if err != nil {
		return Value{}, err
	}
	for i, c := range cipher {
		cipher[i] = table[c]
	}
	return Value{Ptr: &Pointer{Global: g}}, nil
}
