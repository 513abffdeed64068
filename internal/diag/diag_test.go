package diag_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"chakravyuha/internal/diag"
)

func TestNewSkipError(t *testing.T) {
	s := diag.NewSkip("cff", "main", diag.CodeOracleRejected, "fewer than two basic blocks")
	assert.Equal(t, "cff", s.Pass)
	assert.Equal(t, "main", s.Function)
	assert.Equal(t, diag.CodeOracleRejected, s.Code)
	assert.Contains(t, s.Error(), "cff")
	assert.Contains(t, s.Error(), "main")
	assert.Contains(t, s.Error(), diag.CodeOracleRejected)
}

func TestFatalCarriesCodeAndMessage(t *testing.T) {
	err := diag.Fatal(diag.CodeMalformedModule, "missing entry function")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), diag.CodeMalformedModule)
	assert.Contains(t, err.Error(), "missing entry function")
}

func TestFatalfFormats(t *testing.T) {
	err := diag.Fatalf(diag.CodeMalformedGlobal, "global %q has no initializer", "g0")
	assert.Contains(t, err.Error(), `global "g0" has no initializer`)
}

func TestWrapFatalPreservesUnderlyingMessage(t *testing.T) {
	base := errors.New("unexpected token")
	wrapped := diag.WrapFatal(diag.CodeMalformedModule, base)
	assert.Contains(t, wrapped.Error(), "unexpected token")
}
