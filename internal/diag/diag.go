// Package diag is the error taxonomy the core passes report through: a
// closed split between Skip (precondition-miss / partial-transform-abort — counted,
// non-fatal) and Fatal (malformed-input / resource-exhaustion — surfaced to
// the host). Grounded on kanso's `internal/errors` package, which paired
// an error-code enum with a colorized reporter; this module
// has no source text to caret-point at, so the reporter below prints a
// pass/function-scoped diagnostic line instead of a source excerpt, but
// keeps the same code-range-plus-color-by-level shape.
package diag

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// Code ranges:
//   C0001-C0099  precondition-miss   (Safety Oracle rejection, missing structure)
//   C0100-C0199  partial-abort       (mid-function invariant violation, rolled back)
//   C0200-C0299  malformed-input     (fatal)
//   C0300-C0399  resource-exhaustion (fatal)
const (
	CodeOracleRejected      = "C0001"
	CodeNoEligibleBlocks    = "C0002"
	CodeStringAlreadyCipher = "C0003"
	CodeUnmappableSuccessor = "C0101"
	CodeMidFunctionInvalid  = "C0102"
	CodeMalformedModule     = "C0201"
	CodeMalformedGlobal     = "C0202"
	CodeResourceExhausted   = "C0301"
)

// Class distinguishes the two branches of the taxonomy.
type Class int

const (
	ClassSkip Class = iota
	ClassFatal
)

// Skip is a precondition-miss or partial-abort diagnostic: the pass counts
// it and moves on without mutating the module.
type Skip struct {
	Pass     string
	Function string
	Code     string
	Message  string
}

func (s *Skip) Error() string {
	return fmt.Sprintf("[%s] skipped %s: %s (%s)", s.Pass, s.Function, s.Message, s.Code)
}

// NewSkip constructs a Skip diagnostic.
func NewSkip(pass, function, code, message string) *Skip {
	return &Skip{Pass: pass, Function: function, Code: code, Message: message}
}

// Fatal wraps a malformed-input or resource-exhaustion error with a stack
// trace via pkg/errors, so the host's top-level handler can log a full
// trace without the pass needing to capture one itself.
func Fatal(code, message string) error {
	return errors.WithMessage(errors.New(message), code)
}

// Fatalf is Fatal with formatting.
func Fatalf(code, format string, args ...any) error {
	return Fatal(code, fmt.Sprintf(format, args...))
}

// WrapFatal promotes an existing error (e.g. from the IR parser) to a
// Fatal, preserving its stack trace if it already carries one.
func WrapFatal(code string, err error) error {
	return errors.WithMessage(err, code)
}

// Reporter prints diagnostic lines to stderr the way kanso's
// ErrorReporter prints compiler diagnostics, minus source-excerpt framing
// (the core has no source text, only module/function/pass names).
type Reporter struct {
	pass string
}

// NewReporter scopes a Reporter to one pass name, printed in every line it
// emits.
func NewReporter(pass string) *Reporter {
	return &Reporter{pass: pass}
}

// Skip prints a yellow "skipped" diagnostic.
func (r *Reporter) Skip(s *Skip) {
	bold := color.New(color.Bold).SprintFunc()
	color.Yellow("%s: %s", bold(fmt.Sprintf("[%s]", r.pass)), s.Error())
}

// Fatal prints a red "fatal" diagnostic.
func (r *Reporter) Fatal(err error) {
	bold := color.New(color.Bold).SprintFunc()
	color.Red("%s: fatal: %v", bold(fmt.Sprintf("[%s]", r.pass)), err)
}
