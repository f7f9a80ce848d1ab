package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/tokenreg/storage/snapshot"
)

func cmdSnapshot(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: tokenreg snapshot <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: export, import")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdSnapshotExport(args[1:], out, errOut)
	case "import":
		return cmdSnapshotImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown snapshot subcommand: %s\n", args[0])
		return 2
	}
}

func cmdSnapshotExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("snapshot export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var outPath string
	var noIndex bool
	fs.StringVar(&outPath, "out", "", "Output TAR file (- for stdout)")
	fs.BoolVar(&noIndex, "no-index", false, "Omit index.json")
	target := bindTarget(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if outPath == "" {
		fmt.Fprintln(errOut, "missing --out")
		return 2
	}
	store, err := target.openStore()
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 2
	}
	defer store.Close()

	w := out
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(errOut, "create --out: %v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if err := snapshot.Export(context.Background(), w, store, snapshot.ExportOptions{IncludeIndex: !noIndex}); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	return 0
}

func cmdSnapshotImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("snapshot import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var inPath string
	var ignoreUnknown bool
	fs.StringVar(&inPath, "in", "", "Input TAR file")
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown archive entries instead of failing")
	target := bindTarget(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inPath == "" {
		fmt.Fprintln(errOut, "missing --in")
		return 2
	}
	f, err := os.Open(inPath)
	if err != nil {
		fmt.Fprintf(errOut, "open --in: %v\n", err)
		return 1
	}
	defer f.Close()

	store, err := target.openStore()
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 2
	}
	defer store.Close()

	n, err := snapshot.Import(context.Background(), f, store, snapshot.ImportOptions{IgnoreUnknown: ignoreUnknown})
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "Imported %d accounts\n", n)
	return 0
}
