package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	"golang.org/x/crypto/blake2b"

	"chakravyuha/grammar"
	"chakravyuha/internal/config"
	"chakravyuha/internal/ir"
	"chakravyuha/internal/pipeline"
	"chakravyuha/internal/report"
)

func usage() {
	fmt.Println("Usage: chakravyuha <input.chakir> [-o output.chakir] [-config chakravyuha.yaml] [-passes name,name,...]")
}

var log = commonlog.GetLogger("chakravyuha")

func main() {
	commonlog.Configure(1, nil)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var inputPath, outputPath, configPath, passesFlag string
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o":
			i++
			if i >= len(args) {
				usage()
				os.Exit(1)
			}
			outputPath = args[i]
		case "-config":
			i++
			if i >= len(args) {
				usage()
				os.Exit(1)
			}
			configPath = args[i]
		case "-passes":
			i++
			if i >= len(args) {
				usage()
				os.Exit(1)
			}
			passesFlag = args[i]
		default:
			if inputPath != "" {
				usage()
				os.Exit(1)
			}
			inputPath = args[i]
		}
	}
	if inputPath == "" {
		usage()
		os.Exit(1)
	}
	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, ".chakir") + ".obf.chakir"
	}

	cfg := config.Default()
	usingDefaultConfig := true
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			color.Red("chakravyuha: %s", err)
			os.Exit(1)
		}
		cfg = loaded
		usingDefaultConfig = false
	}

	var requested []string
	if passesFlag != "" {
		requested = strings.Split(passesFlag, ",")
	}

	source, err := os.ReadFile(inputPath)
	if err != nil {
		color.Red("chakravyuha: failed to read %s: %s", inputPath, err)
		os.Exit(1)
	}

	prog, err := grammar.Parse(inputPath, string(source))
	if err != nil {
		// grammar.Parse already printed a caret-style diagnostic.
		os.Exit(1)
	}

	mod, err := ir.FromAST(prog)
	if err != nil {
		color.Red("chakravyuha: %s", err)
		os.Exit(1)
	}

	originalText := ir.Print(mod)
	originalStrData := stringDataSize(mod)

	// An explicit -config always wins; absent one, the report's platform
	// is derived from the module's own target triple rather than the
	// static config default.
	targetPlatform := cfg.TargetPlatform
	if usingDefaultConfig {
		targetPlatform = config.PlatformFromTriple(mod.TargetTriple)
	}

	agg := report.New(inputPath, outputPath, report.InputParameters{
		ObfuscationLevel:            cfg.ObfuscationLevel,
		TargetPlatform:              string(targetPlatform),
		EnableStringEncryption:      cfg.EnableStringEncryption,
		EnableControlFlowFlattening: cfg.EnableControlFlowFlattening,
		EnableFakeCodeInsertion:     cfg.EnableFakeCodeInsertion,
	})

	names := pipeline.Resolve(cfg, requested)
	log.Infof("running %d passes over %s", len(names), inputPath)
	if err := pipeline.Run(mod, cfg, agg, names); err != nil {
		color.Red("chakravyuha: %s", err)
		os.Exit(1)
	}

	obfuscatedText := ir.Print(mod)
	if err := os.WriteFile(outputPath, []byte(obfuscatedText), 0o644); err != nil {
		color.Red("chakravyuha: failed to write %s: %s", outputPath, err)
		os.Exit(1)
	}

	sum := blake2b.Sum256([]byte(obfuscatedText))
	agg.SetChecksum(hex.EncodeToString(sum[:]))
	agg.SetSizes(len(originalText), len(obfuscatedText), originalStrData, stringDataSize(mod))
	if err := agg.Emit(time.Now()); err != nil {
		color.Red("chakravyuha: failed to emit report: %s", err)
		os.Exit(1)
	}

	log.Infof("wrote %s", outputPath)
	color.Green("chakravyuha: wrote %s", outputPath)
}

// stringDataSize sums the byte length of every string global's payload,
// the `outputAttributes.*StringDataSize` fields' source figure.
func stringDataSize(mod *ir.Module) int {
	total := 0
	for _, g := range mod.Globals {
		if !g.HasStringData() {
			continue
		}
		sd := g.Init.(*ir.StringData)
		total += len(sd.Bytes)
	}
	return total
}
