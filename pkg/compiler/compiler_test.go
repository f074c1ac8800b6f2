package compiler

import (
	"testing"

	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/scanner"
	"github.com/dbetz/picobasic/pkg/vm"
)

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

// compileAndRun compiles src as a whole program and executes it
// against a fresh heap/Interpreter pair, returning the Compiler so the
// caller can inspect globals afterward.
func compileAndRun(t *testing.T, src ...string) (*Compiler, *heap.Heap) {
	t.Helper()
	h := heap.New(16*1024, 512)
	c := New(h)
	c.SetScanner(scanner.New(lines(src...)))
	handle, err := c.CompileProgram()
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	interp := vm.New(h, nil, 256, 256)
	if err := interp.Execute(handle); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return c, h
}

func globalInt(t *testing.T, c *Compiler, h *heap.Heap, name string) int32 {
	t.Helper()
	gh, sym, ok := c.Globals.FindGlobal(name)
	if !ok {
		t.Fatalf("global %s not found", name)
	}
	_ = gh
	return sym.IValue
}

func globalString(t *testing.T, c *Compiler, h *heap.Heap, name string) string {
	t.Helper()
	_, sym, ok := c.Globals.FindGlobal(name)
	if !ok {
		t.Fatalf("global %s not found", name)
	}
	s, err := h.GetString(sym.HValue)
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	return s
}

func TestArithmeticPrecedence(t *testing.T) {
	c, h := compileAndRun(t, "X = 1+2*3")
	if got := globalInt(t, c, h, "X"); got != 7 {
		t.Errorf("X = %d, want 7", got)
	}
}

func TestForLoopAccumulates(t *testing.T) {
	c, h := compileAndRun(t,
		"FOR I = 1 TO 5",
		"X = X + I",
		"NEXT I",
	)
	if got := globalInt(t, c, h, "X"); got != 15 {
		t.Errorf("X = %d, want 15", got)
	}
}

func TestForLoopStepZeroRunsOnce(t *testing.T) {
	c, h := compileAndRun(t,
		"FOR I = 1 TO 5 STEP 0",
		"X = X + 1",
		"NEXT I",
	)
	if got := globalInt(t, c, h, "X"); got != 1 {
		t.Errorf("X = %d, want 1 (step-0 body runs exactly once)", got)
	}
}

func TestIfElse(t *testing.T) {
	c, h := compileAndRun(t,
		"X = 0",
		"IF 1 < 2 THEN",
		"X = 10",
		"ELSE",
		"X = 20",
		"END IF",
	)
	if got := globalInt(t, c, h, "X"); got != 10 {
		t.Errorf("X = %d, want 10", got)
	}
}

// TestStringArrayStoreOrder guards against a regression where the
// array handle was pushed onto the handle stack after the rhs value,
// leaving VSETH popping operands in the wrong order.
func TestStringArrayStoreOrder(t *testing.T) {
	h := heap.New(16*1024, 512)
	c := New(h)
	c.SetScanner(scanner.New(lines(
		`DIM A(3) AS STRING`,
		`A(1) = "hi"`,
	)))
	handle, err := c.CompileProgram()
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	interp := vm.New(h, nil, 256, 256)
	if err := interp.Execute(handle); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	_, sym, ok := c.Globals.FindGlobal("A")
	if !ok {
		t.Fatal("global A not found")
	}
	elemHandle, err := h.StringVectorGet(sym.HValue, 1)
	if err != nil {
		t.Fatalf("StringVectorGet: %v", err)
	}
	s, err := h.GetString(elemHandle)
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if s != "hi" {
		t.Errorf("A(1) = %q, want %q", s, "hi")
	}
}

// TestDefFnArgumentOrder guards against a regression where argument
// frame offsets were assigned in declaration order instead of
// reverse-declaration order, which put the wrong argument at each
// offset whenever a function took more than one.
func TestDefFnArgumentOrder(t *testing.T) {
	c, h := compileAndRun(t,
		"DEF FN SUBTRACT(A, B) AS INTEGER",
		"RETURN A - B",
		"END FN",
		"X = SUBTRACT(10, 3)",
	)
	if got := globalInt(t, c, h, "X"); got != 7 {
		t.Errorf("X = %d, want 7", got)
	}
}

func TestDefSubNoReturnValue(t *testing.T) {
	c, h := compileAndRun(t,
		"DEF SUB DOUBLE(N)",
		"X = N * 2",
		"END SUB",
		"DOUBLE(21)",
	)
	if got := globalInt(t, c, h, "X"); got != 42 {
		t.Errorf("X = %d, want 42", got)
	}
}

func TestStringConcatenation(t *testing.T) {
	c, h := compileAndRun(t, `S$ = "foo" + "bar"`)
	if got := globalString(t, c, h, "S$"); got != "foobar" {
		t.Errorf("S$ = %q, want %q", got, "foobar")
	}
}

func TestUndefinedIdentifierIsParseError(t *testing.T) {
	h := heap.New(1024, 64)
	c := New(h)
	c.SetScanner(scanner.New(lines("X = Y + 1")))
	if _, err := c.CompileProgram(); err == nil {
		t.Fatal("expected a ParseError for an undefined identifier")
	}
}

func TestNextWithoutForIsParseError(t *testing.T) {
	h := heap.New(1024, 64)
	c := New(h)
	c.SetScanner(scanner.New(lines("NEXT I")))
	if _, err := c.CompileProgram(); err == nil {
		t.Fatal("expected a ParseError for NEXT without FOR")
	}
}
