// Command xic drives the optimizing backend's pipeline stages by hand.
// It is a thin wrapper over the programmatic entry points in internal/.
// The lexer, parser, and type checker that would normally hand this
// command a real HIR tree are external collaborators out of this repo's
// scope, so xic ships a small built-in fixture program
// (factorial) every subcommand runs against, the way a unit test would,
// but with colored pass/fail output instead of assertions.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"xic/internal/acfg"
	"xic/internal/asm"
	"xic/internal/cfg"
	"xic/internal/config"
	"xic/internal/fixture"
	"xic/internal/interpret"
	"xic/internal/optimize"
	"xic/internal/regalloc"
	"xic/internal/sexp"
	"xic/internal/tile"
	"xic/internal/xlog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("xic", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML pipeline config")
	diagnostics := fs.Bool("diagnostics", false, "print the folded HIR as an S-expression (fold stage only)")
	verbose := fs.Bool("v", false, "enable info-level logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Println("usage: xic [-config FILE] [-diagnostics] [-v] <stage>")
		fmt.Println("stages: tile emit cfg fold dce inline pre regalloc run")
		return 1
	}

	cfgPipeline, err := config.Load(*configPath)
	if err != nil {
		color.Red("loading config: %v", err)
		return 1
	}
	if *diagnostics {
		cfgPipeline.Diagnostics = true
	}
	if *verbose {
		xlog.SetLevel(xlog.Info)
	} else {
		xlog.SetLevel(xlog.Silent)
	}

	stage := fs.Arg(0)
	if err := runStage(stage, cfgPipeline); err != nil {
		color.Red("%s: %v", stage, err)
		return 1
	}
	color.Green("%s: ok", stage)
	return 0
}

func runStage(stage string, pipeline config.Pipeline) error {
	hirUnit := fixture.Factorial()
	lirUnit := fixture.CanonFactorial()

	switch stage {
	case "tile":
		asmUnit := tile.Unit(lirUnit)
		fmt.Printf("tiled %d function(s)\n", len(asmUnit.Functions))

	case "emit":
		asmUnit := tile.Unit(lirUnit)
		allocated := make(map[string]*asm.Function, len(asmUnit.Functions))
		for name, fn := range asmUnit.Functions {
			allocated[name] = regalloc.AllocateLinear(fn)
		}
		fmt.Print(asm.EmitUnit(&asm.Unit{Functions: allocated, Data: asmUnit.Data}))

	case "cfg":
		fn := lirUnit.Functions["fact"]
		graph := cfg.Construct(fn)
		clean := cfg.Clean(graph)
		destructed := cfg.Destruct(clean, fn)
		fmt.Printf("cfg: %d blocks, destructed to %d statements\n", len(graph.Blocks), len(destructed.Stmts))

	case "fold":
		folded := optimize.ConstantFoldHIR(hirUnit)
		dumpIfEnabled(pipeline, "fold", folded.Functions["fact"].Sexp())

	case "dce":
		asmUnit := tile.Unit(lirUnit)
		out := optimize.EliminateDeadCode(asmUnit.Functions["fact"])
		fmt.Printf("dce: %d instructions remain\n", len(out.Instrs))

	case "inline":
		out := optimize.Inline(lirUnit, pipeline.InlineThreshold)
		fmt.Printf("inline: %d function(s) remain\n", len(out.Functions))

	case "pre":
		out := optimize.EliminatePartialRedundancy(lirUnit)
		fmt.Printf("pre: %d statement(s) in fact\n", len(out.Functions["fact"].Stmts))

	case "regalloc":
		asmUnit := tile.Unit(lirUnit)
		allocGraph := acfg.Construct(asmUnit.Functions["fact"])
		out := regalloc.AllocateLinear(asmUnit.Functions["fact"])
		fmt.Printf("regalloc: %d blocks, %d instructions after allocation\n", len(allocGraph.Blocks), len(out.Instrs))

	case "run":
		rets, err := interpret.InterpretLIR(lirUnit, "fact", []int64{5}, os.Stdin, os.Stdout, pipeline.HeapWords)
		if err != nil {
			return err
		}
		fmt.Printf("fact(5) = %v\n", rets)

	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	return nil
}

func dumpIfEnabled(pipeline config.Pipeline, name string, e sexp.Expr) {
	if !pipeline.Diagnostics {
		return
	}
	fmt.Printf("; %s\n%s\n", name, sexp.Format(e))
}
