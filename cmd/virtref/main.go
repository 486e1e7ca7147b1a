package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

var (
	version = "0.1.0"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	showVersionShort := flag.Bool("v", false, "Print version and exit (shorthand)")
	mode := flag.String("mode", "combine", "Mode: combine|validate|inspect|convert")
	planPath := flag.String("plan", "", "Combine plan YAML (combine mode)")
	inPath := flag.String("in", "", "Input reference document")
	outPath := flag.String("out", "", "Output reference document")
	workers := flag.Int("workers", 0, "Indexer worker count (0 = default)")
	jsonOut := flag.Bool("json", false, "Output report as JSON")
	showModeHelp := flag.Bool("mode-help", false, "Show help for the selected mode")
	flag.Parse()

	if *showVersion || *showVersionShort {
		fmt.Printf("virtref %s\n", version)
		return
	}
	if *showModeHelp {
		printModeHelp(*mode)
		return
	}
	if flag.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "unknown arguments:", flag.Args())
		os.Exit(2)
	}

	if err := run(*mode, *planPath, *inPath, *outPath, *workers, *jsonOut); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			fmt.Fprintln(os.Stderr, ec.Error())
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "%s error: %v\n", *mode, err)
		os.Exit(1)
	}
}

func run(mode, planPath, inPath, outPath string, workers int, jsonOut bool) error {
	switch mode {
	case "combine":
		return runCombine(planPath, outPath, workers, jsonOut)
	case "validate":
		return runValidate(inPath, jsonOut)
	case "inspect":
		return runInspect(inPath, jsonOut)
	case "convert":
		return runConvert(inPath, outPath)
	default:
		return &exitCodeError{code: 2, msg: fmt.Sprintf("unknown mode %q", mode)}
	}
}

func printModeHelp(mode string) {
	switch mode {
	case "combine":
		fmt.Println("combine: merge per-file reference documents into one store")
		fmt.Println("  virtref -mode combine -plan plan.yaml [-out merged.json] [-workers N]")
	case "validate":
		fmt.Println("validate: check a reference document's internal consistency")
		fmt.Println("  virtref -mode validate -in store.json")
	case "inspect":
		fmt.Println("inspect: summarize arrays, chunks and sources of a document")
		fmt.Println("  virtref -mode inspect -in store.json [-json]")
	case "convert":
		fmt.Println("convert: rewrite a document in another format (by extension)")
		fmt.Println("  virtref -mode convert -in store.json -out store.cbor.zst")
	default:
		fmt.Printf("no help for mode %q\n", mode)
	}
}
