package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chakravyuha/token"
)

func TestIsBinOpAcceptsEveryListedMnemonic(t *testing.T) {
	for _, op := range token.BinOps {
		assert.True(t, token.IsBinOp(op), "expected %q to be a recognized BinOp mnemonic", op)
	}
}

func TestIsBinOpRejectsUnknownMnemonic(t *testing.T) {
	assert.False(t, token.IsBinOp("icmp"))
	assert.False(t, token.IsBinOp(""))
	assert.False(t, token.IsBinOp("div"))
}

func TestICmpPredsAndCastKindsAreDisjointFromBinOps(t *testing.T) {
	for _, p := range token.ICmpPreds {
		assert.False(t, token.IsBinOp(p), "icmp predicate %q must not also be a BinOp mnemonic", p)
	}
	for _, k := range token.CastKinds {
		assert.False(t, token.IsBinOp(k), "cast kind %q must not also be a BinOp mnemonic", k)
	}
}
