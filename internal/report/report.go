// Package report implements the Report Aggregator: a process-wide record
// that every pass writes into and that is serialized once at pipeline end,
// passed explicitly into each pass call rather than kept as a package
// singleton. Grounded on kanso's dependency on
// github.com/sasha-s/go-deadlock for any structure mutated from more than
// one call site, used here to guard the Aggregator against a pipeline
// running several passes concurrently over independent functions.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/sasha-s/go-deadlock"
	"github.com/segmentio/ksuid"
)

// InputParameters mirrors the final report's `inputParameters` object,
// echoing back the configuration the pipeline ran with.
type InputParameters struct {
	ObfuscationLevel            string `json:"obfuscationLevel"`
	TargetPlatform              string `json:"targetPlatform"`
	EnableStringEncryption      bool   `json:"enableStringEncryption"`
	EnableControlFlowFlattening bool   `json:"enableControlFlowFlattening"`
	EnableFakeCodeInsertion     bool   `json:"enableFakeCodeInsertion"`
}

// OutputAttributes mirrors the final report's `outputAttributes` object.
// All size/percentage fields are pre-rendered strings ("<n> bytes",
// "<pct>%").
type OutputAttributes struct {
	OriginalIRSize             string `json:"originalIRSize"`
	ObfuscatedIRSize           string `json:"obfuscatedIRSize"`
	TotalIRSizeChange          string `json:"totalIRSizeChange"`
	OriginalIRStringDataSize   string `json:"originalIRStringDataSize"`
	ObfuscatedIRStringDataSize string `json:"obfuscatedIRStringDataSize"`
	StringDataSizeChange       string `json:"stringDataSizeChange"`
	// ObfuscatedIRChecksum is a blake2b-256 digest of the printed,
	// obfuscated `.chakir` text, hex-encoded — lets a caller confirm two
	// runs over the same input with the same seed produced byte-identical
	// output without diffing the whole file.
	ObfuscatedIRChecksum string `json:"obfuscatedIRChecksum"`
}

// StringEncryptionMetrics is the `stringEncryption` sub-object.
type StringEncryptionMetrics struct {
	Count  int    `json:"count"`
	Method string `json:"method"`
}

// ControlFlowFlatteningMetrics is the `controlFlowFlattening` sub-object.
type ControlFlowFlatteningMetrics struct {
	FlattenedFunctions int `json:"flattenedFunctions"`
	FlattenedBlocks    int `json:"flattenedBlocks"`
	SkippedFunctions   int `json:"skippedFunctions"`
}

// FakeCodeInsertionMetrics is the `fakeCodeInsertion` sub-object.
type FakeCodeInsertionMetrics struct {
	InsertedBlocks int `json:"insertedBlocks"`
}

// ObfuscationMetrics is the final report's `obfuscationMetrics` object.
type ObfuscationMetrics struct {
	CyclesCompleted       int                          `json:"cyclesCompleted"`
	PassesRun             []string                     `json:"passesRun"`
	StringEncryption      StringEncryptionMetrics      `json:"stringEncryption"`
	ControlFlowFlattening ControlFlowFlatteningMetrics `json:"controlFlowFlattening"`
	FakeCodeInsertion     FakeCodeInsertionMetrics     `json:"fakeCodeInsertion"`
}

// Report is the full document a pipeline run serializes; field order here
// is the wire order (Go preserves struct-declaration order when
// marshaling).
type Report struct {
	InputFile          string             `json:"inputFile"`
	OutputFile         string             `json:"outputFile"`
	Timestamp          string             `json:"timestamp"`
	InputParameters    InputParameters    `json:"inputParameters"`
	OutputAttributes   OutputAttributes   `json:"outputAttributes"`
	ObfuscationMetrics ObfuscationMetrics `json:"obfuscationMetrics"`
}

// Aggregator accumulates counters across a pipeline run and renders the
// final Report. One Aggregator per module run; RunID is a unique ID for
// the run. It is not printed in the per-pass stderr metric lines and is
// never part of the serialized schema.
type Aggregator struct {
	mu deadlock.Mutex

	RunID ksuid.KSUID

	inputFile, outputFile string
	params                InputParameters

	originalIRSize, obfuscatedIRSize             int
	originalStringDataSize, obfuscatedStrDataSize int
	checksum                                      string

	passesRun []string

	seCount  int
	seMethod string

	cffFlattenedFns, cffFlattenedBlocks, cffSkipped int

	fciInsertedBlocks int
}

// New creates an Aggregator for one run.
func New(inputFile, outputFile string, params InputParameters) *Aggregator {
	return &Aggregator{
		RunID:      ksuid.New(),
		inputFile:  inputFile,
		outputFile: outputFile,
		params:     params,
	}
}

// SetSizes records the module's size before/after the pipeline ran, in
// bytes of printed `.chakir` text, and the same for just the string-global
// data section.
func (a *Aggregator) SetSizes(originalIR, obfuscatedIR, originalStrData, obfuscatedStrData int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.originalIRSize = originalIR
	a.obfuscatedIRSize = obfuscatedIR
	a.originalStringDataSize = originalStrData
	a.obfuscatedStrDataSize = obfuscatedStrData
}

// SetChecksum records the hex-encoded blake2b-256 digest of the
// obfuscated module's printed text.
func (a *Aggregator) SetChecksum(sum string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checksum = sum
}

// RecordPass appends a pass name to the passesRun list, deduplicating a
// re-entrant call from the same pass.
func (a *Aggregator) RecordPass(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.passesRun {
		if p == name {
			return
		}
	}
	a.passesRun = append(a.passesRun, name)
}

// RecordStringEncryption adds n freshly encrypted strings tagged with
// method, the last scheme chosen (the report has one "method" field for a
// per-string polymorphic choice, so only the final pick survives to it).
func (a *Aggregator) RecordStringEncryption(n int, method string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seCount += n
	a.seMethod = method
	metricLine().Fprintf(os.Stderr, "SE_METRICS:{\"encryptedStrings\":%d,\"scheme\":%q}\n", n, method)
}

// RecordFlatten adds one flattened function's metrics.
func (a *Aggregator) RecordFlatten(blocks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cffFlattenedFns++
	a.cffFlattenedBlocks += blocks
}

// RecordCFFSkip increments the CFF skip counter.
func (a *Aggregator) RecordCFFSkip() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cffSkipped++
}

// FlushCFFMetrics prints the `CFF_METRICS:{...}` stderr line once CFF has
// finished mutating the module.
func (a *Aggregator) FlushCFFMetrics() {
	a.mu.Lock()
	defer a.mu.Unlock()
	metricLine().Fprintf(os.Stderr, "CFF_METRICS:{\"flattenedFunctions\":%d,\"flattenedBlocks\":%d,\"skippedFunctions\":%d}\n",
		a.cffFlattenedFns, a.cffFlattenedBlocks, a.cffSkipped)
}

// RecordFakeBlock increments FCI's inserted-block counter.
func (a *Aggregator) RecordFakeBlock() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fciInsertedBlocks++
}

// FlushFCIMetrics prints FCI's stderr metric line.
func (a *Aggregator) FlushFCIMetrics() {
	a.mu.Lock()
	defer a.mu.Unlock()
	metricLine().Fprintf(os.Stderr, "FCI_METRICS:{\"insertedBlocks\":%d}\n", a.fciInsertedBlocks)
}

// metricLine returns a fresh cyan color.Color each call; fatih/color's
// package-level helpers (color.Cyan, ...) always target color.Output
// (stdout), and the per-pass metric lines belong on stderr alongside the
// final report.
func metricLine() *color.Color { return color.New(color.FgCyan) }

func pct(before, after int) string {
	if before == 0 {
		return "0.00%"
	}
	change := (float64(after) - float64(before)) / float64(before) * 100
	return fmt.Sprintf("%.2f%%", change)
}

// Build renders the final Report, stamping now as its UTC timestamp. now
// is passed in rather than read from time.Now() internally so callers can
// pin it in tests.
func (a *Aggregator) Build(now time.Time) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	passes := make([]string, len(a.passesRun))
	copy(passes, a.passesRun)

	return &Report{
		InputFile:       a.inputFile,
		OutputFile:      a.outputFile,
		Timestamp:       now.UTC().Format("2006-01-02T15:04:05Z"),
		InputParameters: a.params,
		OutputAttributes: OutputAttributes{
			OriginalIRSize:             fmt.Sprintf("%d bytes", a.originalIRSize),
			ObfuscatedIRSize:           fmt.Sprintf("%d bytes", a.obfuscatedIRSize),
			TotalIRSizeChange:          pct(a.originalIRSize, a.obfuscatedIRSize),
			OriginalIRStringDataSize:   fmt.Sprintf("%d bytes", a.originalStringDataSize),
			ObfuscatedIRStringDataSize: fmt.Sprintf("%d bytes", a.obfuscatedStrDataSize),
			StringDataSizeChange:       pct(a.originalStringDataSize, a.obfuscatedStrDataSize),
			ObfuscatedIRChecksum:       a.checksum,
		},
		ObfuscationMetrics: ObfuscationMetrics{
			CyclesCompleted: 1,
			PassesRun:       passes,
			StringEncryption: StringEncryptionMetrics{
				Count:  a.seCount,
				Method: a.seMethod,
			},
			ControlFlowFlattening: ControlFlowFlatteningMetrics{
				FlattenedFunctions: a.cffFlattenedFns,
				FlattenedBlocks:    a.cffFlattenedBlocks,
				SkippedFunctions:   a.cffSkipped,
			},
			FakeCodeInsertion: FakeCodeInsertionMetrics{
				InsertedBlocks: a.fciInsertedBlocks,
			},
		},
	}
}

// Emit marshals the report as indented JSON to stderr, the report pass's
// contract.
func (a *Aggregator) Emit(now time.Time) error {
	rep := a.Build(now)
	enc, err := json.MarshalIndent(rep, "", " ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, string(enc))
	return nil
}
