// Package pipeline resolves a list of pass names into an ordered run over
// a module, wiring the Safety Oracle and Report Aggregator that every pass
// shares. Grounded on kanso's single-purpose `cmd/kanso-cli`
// driver — a thin list of named stages invoked in order — generalized
// here from a fixed parse-then-print sequence into a name-resolved list so
// a config file can choose which obfuscation passes run.
package pipeline

import (
	"fmt"

	"chakravyuha/internal/cff"
	"chakravyuha/internal/config"
	"chakravyuha/internal/fci"
	"chakravyuha/internal/ir"
	"chakravyuha/internal/oracle"
	"chakravyuha/internal/report"
	"chakravyuha/internal/rng"
	"chakravyuha/internal/se"
)

const (
	PassStringEncrypt = "chakravyuha-string-encrypt"
	PassFlatten       = "chakravyuha-control-flow-flatten"
	PassFakeCode      = "chakravyuha-fake-code-insertion"
	PassEmitReport    = "chakravyuha-emit-report"
	PassAll           = "chakravyuha-all"
)

// Names expands cfg's three enable flags into the concrete pass sequence
// PassAll stands for. PassEmitReport always runs last regardless of which
// transforms ran.
func Names(cfg *config.Config) []string {
	var names []string
	if cfg.EnableStringEncryption {
		names = append(names, PassStringEncrypt)
	}
	if cfg.EnableControlFlowFlattening {
		names = append(names, PassFlatten)
	}
	if cfg.EnableFakeCodeInsertion {
		names = append(names, PassFakeCode)
	}
	names = append(names, PassEmitReport)
	return names
}

// Resolve turns a caller-requested pass list into the concrete sequence
// Run should execute: a bare PassAll (or an empty list) expands to
// Names(cfg); anything else is taken as an explicit, user-chosen order,
// with PassEmitReport appended if the caller left it off.
func Resolve(cfg *config.Config, requested []string) []string {
	if len(requested) == 0 {
		return Names(cfg)
	}
	for _, n := range requested {
		if n == PassAll {
			return Names(cfg)
		}
	}
	for _, n := range requested {
		if n == PassEmitReport {
			return requested
		}
	}
	return append(append([]string(nil), requested...), PassEmitReport)
}

// Run executes names in order over mod, seeding a fresh Oracle once
// up-front (valid for the whole run since no pass removes or adds calls
// in a way that changes the safety classification of an already-accepted
// function — CFF and FCI only ever touch functions the oracle already
// cleared, and SE never rewrites a function body, only global
// initializers and call sites). agg accumulates every pass's metrics.
func Run(mod *ir.Module, cfg *config.Config, agg *report.Aggregator, names []string) error {
	oc := oracle.New(mod)
	var r *rng.Rng
	if cfg.Seed != 0 {
		r = rng.NewSeeded(cfg.Seed)
	} else {
		r = rng.New()
	}

	for _, name := range names {
		switch name {
		case PassStringEncrypt:
			if err := se.Run(mod, oc, r, agg); err != nil {
				return err
			}
		case PassFlatten:
			if err := cff.Run(mod, oc, agg); err != nil {
				return err
			}
		case PassFakeCode:
			if err := fci.Run(mod, oc, r, agg); err != nil {
				return err
			}
		case PassEmitReport:
			// Deferred to the caller: report.Emit needs a timestamp and
			// the caller already knows the before/after IR sizes to
			// stamp with SetSizes before emitting.
			continue
		default:
			return fmt.Errorf("pipeline: unknown pass %q", name)
		}
	}
	return nil
}
