// Command picobasic is the REPL/CLI host exercising the whole
// pipeline: scanner -> compiler -> vm, with pkg/intrinsics registered
// before the first line compiles. Bare invocation starts a REPL, a
// filename argument runs a program, and a handful of verbs cover the
// rest, adapted to a line-oriented BASIC session instead of a
// dot-terminated one.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/dbetz/picobasic/pkg/compiler"
	"github.com/dbetz/picobasic/pkg/config"
	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/host"
	"github.com/dbetz/picobasic/pkg/intrinsics"
	"github.com/dbetz/picobasic/pkg/scanner"
	"github.com/dbetz/picobasic/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("picobasic version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2], false)
	case "-dump", "disasm":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2], true)
	default:
		runFile(os.Args[1], false)
	}
}

func printUsage() {
	fmt.Println("picobasic - a small BASIC compiler and VM")
	fmt.Println("\nUsage:")
	fmt.Println("  picobasic                 Start the interactive REPL")
	fmt.Println("  picobasic <file>          Compile and run a .bas program")
	fmt.Println("  picobasic run <file>      Compile and run a .bas program")
	fmt.Println("  picobasic disasm <file>   Compile, print disassembly, then run")
	fmt.Println("  picobasic version         Show version")
	fmt.Println("  picobasic help            Show this help")
}

// printfWriter adapts an io.Writer into the Printf-shaped sink
// compiler.Compiler.Out and vm.Interpreter.Out expect for trace output.
type printfWriter struct{ w *os.File }

func (p printfWriter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

// errorOut wraps stdout/stderr with go-colorable so ANSI color codes
// render on Windows consoles too, and only emits color codes at all
// when go-isatty reports an interactive terminal -- piping picobasic's
// output to a file or another program gets plain text.
func errorOut() (w io.Writer, colorize func(string) string) {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return os.Stderr, func(s string) string { return s }
	}
	return colorable.NewColorable(os.Stderr), func(s string) string { return "\x1b[31m" + s + "\x1b[0m" }
}

func newSession(cfg config.Config, out *os.File) (*heap.Heap, *compiler.Compiler, *vm.Interpreter, *host.Host) {
	h := heap.New(cfg.HeapSize, cfg.MaxObjects)
	term := host.NewStdio(os.Stdin, colorable.NewColorable(out))
	hst := &host.Host{Terminal: term}

	c := compiler.New(h)
	if err := intrinsics.RegisterDefaults(c); err != nil {
		fmt.Fprintf(os.Stderr, "error: registering intrinsics: %v\n", err)
		os.Exit(1)
	}
	if err := intrinsics.RegisterDebug(c); err != nil {
		fmt.Fprintf(os.Stderr, "error: registering debug intrinsics: %v\n", err)
		os.Exit(1)
	}

	interp := vm.New(h, hst, cfg.StackSize, cfg.StackSize)
	return h, c, interp, hst
}

// runFile compiles and runs every statement in filename as one
// program, db_compiler.c's Compile with oneStatement = VMFALSE.
func runFile(filename string, dump bool) {
	cfg, err := config.Load("picobasic.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	_, c, interp, _ := newSession(cfg, os.Stdout)
	if dump {
		c.Trace = true
		c.Out = printfWriter{w: os.Stdout}
		interp.Trace = true
		interp.Out = printfWriter{w: os.Stdout}
	}

	fileScanner := bufio.NewScanner(f)
	c.SetScanner(scanner.New(func() (string, bool) {
		if !fileScanner.Scan() {
			return "", false
		}
		return fileScanner.Text(), true
	}))

	handle, err := c.CompileProgram()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := interp.Execute(handle); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runREPL starts an interactive session: one compiled-and-run
// statement per line, with a persistent compiler (so globals and
// DEF'd functions survive across lines) and a persistent interpreter
// (so variable values do too) kept alive for the whole session.
func runREPL() {
	fmt.Printf("picobasic REPL v%s\n", version)
	fmt.Println("Type an empty line to exit.")

	cfg, err := config.Load("picobasic.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	_, c, interp, _ := newSession(cfg, os.Stdout)
	errW, colorize := errorOut()

	stdin := bufio.NewScanner(os.Stdin)
	continuing := false
	c.SetScanner(scanner.New(func() (string, bool) {
		if continuing {
			fmt.Print(cfg.Continuation)
		} else {
			fmt.Print(cfg.Prompt)
		}
		continuing = true
		if !stdin.Scan() {
			return "", false
		}
		line := stdin.Text()
		if line == "" {
			return "", false
		}
		return line, true
	}))

	for {
		continuing = false
		handle, err := c.CompileOne()
		if err != nil {
			fmt.Fprintln(errW, colorize("error: "+err.Error()))
			continue
		}
		if handle == 0 {
			return
		}
		if err := interp.Execute(handle); err != nil {
			fmt.Fprintln(errW, colorize("error: "+err.Error()))
		}
	}
}
