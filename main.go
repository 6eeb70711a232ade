// Command icpp is the CLI entry point for the interpreter described in
// spec.md §6: it compiles a single source file and either disassembles
// it (-s) or loads and runs it, passing any trailing positional
// arguments through to the hosted program's main.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/icpp-lang/icpp/internal/compiler"
	"github.com/icpp-lang/icpp/internal/disasm"
	"github.com/icpp-lang/icpp/internal/loader"
	"github.com/icpp-lang/icpp/internal/tui"
)

// verbosity implements flag.Value so that -v may be repeated to raise
// the diagnostic level, per spec.md §6 ("Each -v increases verbosity
// by one").
type verbosity int

func (v *verbosity) String() string {
	return fmt.Sprintf("%d", int(*v))
}

func (v *verbosity) Set(string) error {
	*v++
	return nil
}

func (v *verbosity) IsBoolFlag() bool { return true }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("icpp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	disassemble := fs.Bool("s", false, "disassemble instead of executing")
	interactive := fs.Bool("tui", false, "open the interactive viewer instead of running to completion")
	var verbose verbosity
	fs.Var(&verbose, "v", "increase diagnostic verbosity (repeatable, 1-4)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: icpp [-s] [-tui] [-v]* <source-file> [args...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	rest := fs.Args()
	if len(rest) < 1 {
		fs.Usage()
		return 1
	}
	sourceFile := rest[0]
	passthrough := rest[1:]

	raw, err := os.ReadFile(sourceFile)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", sourceFile, err)
		return 1
	}
	source := strings.Split(string(raw), "\n")

	var diag io.Writer
	if verbose > 0 {
		diag = stderr
	}
	prog, err := compiler.Compile(source, sourceFile, int(verbose), diag)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if *disassemble {
		disasm.Print(stdout, source, prog)
		return 0
	}

	res, err := loader.Load(prog, sourceFile, passthrough, loader.DefaultMemWords)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	res.Machine.Output = stdout
	res.Machine.Errout = stderr
	if verbose > 0 {
		res.Machine.Trace = stderr
		res.Machine.Verbosity = int(verbose)
	}

	if *interactive {
		if err := tui.New(prog, res, source, sourceFile).Run(); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return res.Machine.ExitCode & 0xff
	}

	if err := res.Machine.Run(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return res.Machine.ExitCode & 0xff
}
