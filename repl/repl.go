// Package repl is an interactive shell for trying obfuscation passes
// against a `.chakir` module without going through the file-based CLI.
// Grounded on kanso's lexer/parser REPL loop shape (a bufio.Scanner
// reading one line at a time, handed to the same parser the file-based
// entry point uses) — generalized here from "parse one line, print its
// AST" into "hold a loaded module across commands, run named passes
// against it, print its IR".
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"chakravyuha/grammar"
	"chakravyuha/internal/config"
	"chakravyuha/internal/ir"
	"chakravyuha/internal/pipeline"
	"chakravyuha/internal/report"
)

const Prompt = "chakravyuha> "

// Start runs the shell loop against in, writing prompts and output to out.
// Recognized commands:
//
//	load <path>         parse a `.chakir` file into the current module
//	run <pass[,pass]>   run one or more passes (or "chakravyuha-all") over it
//	print               print the current module's `.chakir` text
//	report              emit the accumulated report to stderr
//	quit                exit the loop
func Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	cfg := config.Default()

	var mod *ir.Module
	var agg *report.Aggregator

	for {
		fmt.Fprint(out, Prompt)
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "load":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: load <path>")
				continue
			}
			source, err := os.ReadFile(fields[1])
			if err != nil {
				fmt.Fprintf(out, "error: %s\n", err)
				continue
			}
			prog, err := grammar.Parse(fields[1], string(source))
			if err != nil {
				continue // grammar.Parse already printed a caret diagnostic.
			}
			built, err := ir.FromAST(prog)
			if err != nil {
				fmt.Fprintf(out, "error: %s\n", err)
				continue
			}
			mod = built
			agg = report.New(fields[1], "", report.InputParameters{
				ObfuscationLevel:            cfg.ObfuscationLevel,
				TargetPlatform:              string(cfg.TargetPlatform),
				EnableStringEncryption:      cfg.EnableStringEncryption,
				EnableControlFlowFlattening: cfg.EnableControlFlowFlattening,
				EnableFakeCodeInsertion:     cfg.EnableFakeCodeInsertion,
			})
			fmt.Fprintf(out, "loaded %s: %d functions, %d globals\n", fields[1], len(mod.Functions), len(mod.Globals))

		case "run":
			if mod == nil {
				fmt.Fprintln(out, "no module loaded; use: load <path>")
				continue
			}
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: run <pass[,pass,...]>")
				continue
			}
			names := pipeline.Resolve(cfg, strings.Split(fields[1], ","))
			if err := pipeline.Run(mod, cfg, agg, names); err != nil {
				fmt.Fprintf(out, "error: %s\n", err)
				continue
			}
			fmt.Fprintf(out, "ran: %s\n", strings.Join(names, ", "))

		case "print":
			if mod == nil {
				fmt.Fprintln(out, "no module loaded; use: load <path>")
				continue
			}
			fmt.Fprintln(out, ir.Print(mod))

		case "report":
			if agg == nil {
				fmt.Fprintln(out, "no module loaded; use: load <path>")
				continue
			}
			if err := agg.Emit(time.Now()); err != nil {
				fmt.Fprintf(out, "error: %s\n", err)
			}

		case "quit", "exit":
			return

		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
}
