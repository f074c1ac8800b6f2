// package intrinsics_test lives outside pkg/intrinsics so it can wire
// pkg/compiler, pkg/vm, and pkg/intrinsics together the way a host
// does -- an internal pkg/vm test cannot import pkg/intrinsics without
// creating an import cycle, since pkg/intrinsics itself imports
// pkg/vm.
package intrinsics_test

import (
	"strings"
	"testing"

	"github.com/dbetz/picobasic/pkg/compiler"
	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/host"
	"github.com/dbetz/picobasic/pkg/intrinsics"
	"github.com/dbetz/picobasic/pkg/scanner"
	"github.com/dbetz/picobasic/pkg/vm"
)

// bufferTerminal is a host.Terminal backed by an in-memory buffer and
// a canned input queue, so a test can assert on exactly what a
// compiled program printed without touching a real console.
type bufferTerminal struct {
	out   strings.Builder
	in    []byte
	inPos int
}

func (b *bufferTerminal) PutChar(c byte) error { b.out.WriteByte(c); return nil }
func (b *bufferTerminal) Flush() error         { return nil }

func (b *bufferTerminal) GetChar() (byte, bool, error) {
	if b.inPos >= len(b.in) {
		return 0, false, nil
	}
	c := b.in[b.inPos]
	b.inPos++
	return c, true, nil
}

func lines(ls ...string) scanner.GetLineFunc {
	i := 0
	return func() (string, bool) {
		if i >= len(ls) {
			return "", false
		}
		l := ls[i]
		i++
		return l, true
	}
}

// run compiles src as one program against a session with every
// default intrinsic registered, executes it, and returns whatever the
// program printed.
func run(t *testing.T, src ...string) string {
	t.Helper()
	h := heap.New(16*1024, 512)
	c := compiler.New(h)
	if err := intrinsics.RegisterDefaults(c); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	c.SetScanner(scanner.New(lines(src...)))
	handle, err := c.CompileProgram()
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}

	term := &bufferTerminal{}
	interp := vm.New(h, &host.Host{Terminal: term}, 256, 256)
	if err := interp.Execute(handle); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return term.out.String()
}

// TestPrintArithmetic exercises "PRINT 1+2*3" end to end: scan,
// compile, register intrinsics, and run.
func TestPrintArithmetic(t *testing.T) {
	got := run(t, "PRINT 1+2*3")
	if want := "7\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPrintStringLiteralAndConcat(t *testing.T) {
	got := run(t, `PRINT "hello, " + "world"`)
	if want := "hello, world\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPrintSemicolonSuppressesNewline(t *testing.T) {
	got := run(t, `PRINT "a";`, `PRINT "b"`)
	if want := "ab\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPrintCommaTabsBetweenItems(t *testing.T) {
	got := run(t, `PRINT "a", "b"`)
	if want := "a\tb\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestStringIntrinsicsLeftRightMid(t *testing.T) {
	got := run(t,
		`S$ = "picobasic"`,
		`PRINT LEFT$(S$, 4)`,
		`PRINT RIGHT$(S$, 5)`,
		`PRINT MID$(S$, 4, 4)`,
	)
	want := "pico\nbasic\nbasi\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestValAndStrRoundTrip(t *testing.T) {
	got := run(t,
		`N = VAL("42")`,
		`PRINT STR$(N + 1)`,
		`PRINT VAL("0x1F")`,
		`PRINT VAL("-17")`,
	)
	want := "43\n31\n-17\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestAscAndChrAndLen(t *testing.T) {
	got := run(t,
		`PRINT ASC("A")`,
		`PRINT CHR$(66)`,
		`PRINT LEN("hello")`,
	)
	want := "65\nB\n5\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestForLoopPrintsEachIteration(t *testing.T) {
	got := run(t,
		"FOR I = 1 TO 3",
		"PRINT I",
		"NEXT I",
	)
	want := "1\n2\n3\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestMidOutOfRangeAborts(t *testing.T) {
	h := heap.New(16*1024, 512)
	c := compiler.New(h)
	if err := intrinsics.RegisterDefaults(c); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	c.SetScanner(scanner.New(lines(`PRINT MID$("hi", 5, 1)`)))
	handle, err := c.CompileProgram()
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	term := &bufferTerminal{}
	interp := vm.New(h, &host.Host{Terminal: term}, 256, 256)
	err = interp.Execute(handle)
	if err == nil {
		t.Fatal("expected a RuntimeAbort for an out-of-range MID$ start index")
	}
	ra, ok := err.(*vm.RuntimeAbort)
	if !ok {
		t.Fatalf("err = %T, want *vm.RuntimeAbort", err)
	}
	if ra.Kind != vm.StringIndexRangeError {
		t.Errorf("Kind = %v, want StringIndexRangeError", ra.Kind)
	}
}
