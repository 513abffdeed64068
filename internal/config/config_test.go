package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chakravyuha/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "medium", cfg.ObfuscationLevel)
	assert.Equal(t, config.PlatformLinux, cfg.TargetPlatform)
	assert.True(t, cfg.EnableStringEncryption)
	assert.True(t, cfg.EnableControlFlowFlattening)
	assert.True(t, cfg.EnableFakeCodeInsertion)
	assert.Zero(t, cfg.Seed)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chakravyuha.yaml")
	doc := `
obfuscationLevel: high
targetPlatform: windows
enableStringEncryption: true
enableControlFlowFlattening: false
enableFakeCodeInsertion: false
seed: 777
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "high", cfg.ObfuscationLevel)
	assert.Equal(t, config.PlatformWindows, cfg.TargetPlatform)
	assert.True(t, cfg.EnableStringEncryption)
	assert.False(t, cfg.EnableControlFlowFlattening)
	assert.False(t, cfg.EnableFakeCodeInsertion)
	assert.EqualValues(t, 777, cfg.Seed)
}

func TestLoadPartialDocumentKeepsDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chakravyuha.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 5\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "medium", cfg.ObfuscationLevel)
	assert.True(t, cfg.EnableFakeCodeInsertion)
	assert.EqualValues(t, 5, cfg.Seed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
