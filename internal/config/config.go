// Package config loads the pipeline's `chakravyuha.yaml` input-parameters
// block via gopkg.in/yaml.v3.
// Grounded on kanso's parser-driven struct-tag style — here struct
// tags drive YAML unmarshaling instead of a participle grammar, but the
// "one struct per document shape" idiom carries over directly.
package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Platform is the `targetPlatform` enum.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
)

// Config is the `inputParameters` object of the final report,
// doubling as the pipeline's run configuration: which passes to run and
// what to print in the report's echoed-back parameters section.
type Config struct {
	ObfuscationLevel            string   `yaml:"obfuscationLevel"`
	TargetPlatform              Platform `yaml:"targetPlatform"`
	EnableStringEncryption      bool     `yaml:"enableStringEncryption"`
	EnableControlFlowFlattening bool     `yaml:"enableControlFlowFlattening"`
	EnableFakeCodeInsertion     bool     `yaml:"enableFakeCodeInsertion"`

	// Seed, when nonzero, pins every pass's PRNG for reproducible output.
	// Not part of the report schema; a pure run-configuration knob.
	Seed uint32 `yaml:"seed"`
}

// Default returns the configuration the CLI falls back to when no
// `chakravyuha.yaml` is present: every pass enabled, medium obfuscation,
// linux target.
func Default() *Config {
	return &Config{
		ObfuscationLevel:            "medium",
		TargetPlatform:              PlatformLinux,
		EnableStringEncryption:      true,
		EnableControlFlowFlattening: true,
		EnableFakeCodeInsertion:     true,
	}
}

// PlatformFromTriple derives a report's targetPlatform from an IR module's
// target triple (e.g. "x86_64-pc-windows-msvc"), falling back to linux
// when the triple names no recognizable platform. The CLI uses this as
// Default()'s targetPlatform rather than always reporting the
// configuration's static default, so an unconfigured run's report reflects
// the module it actually obfuscated.
func PlatformFromTriple(triple string) Platform {
	if strings.Contains(strings.ToLower(triple), "windows") {
		return PlatformWindows
	}
	return PlatformLinux
}

// Load reads and parses a `chakravyuha.yaml` file, filling any field the
// document omits from Default().
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}
