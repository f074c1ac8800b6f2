package vm

import (
	"testing"

	"github.com/dbetz/picobasic/pkg/compiler"
	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/scanner"
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

// compileAndRun builds a fresh heap/compiler/Interpreter triple, runs
// src as one program, and returns the compiler (for global lookups)
// alongside whatever error Execute produced.
func compileAndRun(t *testing.T, maxValueStack, maxHandleStack int, src ...string) (*compiler.Compiler, *heap.Heap, *Interpreter, error) {
	t.Helper()
	h := heap.New(16*1024, 512)
	c := compiler.New(h)
	c.SetScanner(scanner.New(lines(src...)))
	handle, err := c.CompileProgram()
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	interp := New(h, nil, maxValueStack, maxHandleStack)
	err = interp.Execute(handle)
	return c, h, interp, err
}

func globalInt(t *testing.T, c *compiler.Compiler, name string) int32 {
	t.Helper()
	_, sym, ok := c.Globals.FindGlobal(name)
	if !ok {
		t.Fatalf("global %s not found", name)
	}
	return sym.IValue
}

func TestDispatchArithmeticAndComparison(t *testing.T) {
	c, _, _, err := compileAndRun(t, 256, 256,
		"X = (2 + 3) * 4 - 1",
		"Y = 0",
		"IF X >= 19 THEN",
		"Y = 1",
		"END IF",
	)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := globalInt(t, c, "X"); got != 19 {
		t.Errorf("X = %d, want 19", got)
	}
	if got := globalInt(t, c, "Y"); got != 1 {
		t.Errorf("Y = %d, want 1", got)
	}
}

func TestDispatchDescendingForSkipsBody(t *testing.T) {
	// A FOR loop with a descending range never enters its body; this
	// exercises the loop test's BRT/BR without ever touching the accumulator.
	c, _, _, err := compileAndRun(t, 256, 256,
		"X = 0",
		"FOR I = 5 TO 1",
		"X = X + 1",
		"NEXT I",
	)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := globalInt(t, c, "X"); got != 0 {
		t.Errorf("X = %d, want 0 (descending FOR with default positive step skips body)", got)
	}
}

func TestCallReturnFrameWithMultipleArguments(t *testing.T) {
	c, _, _, err := compileAndRun(t, 256, 256,
		"DEF FN COMBINE(A, B, C) AS INTEGER",
		"RETURN A*100 + B*10 + C",
		"END FN",
		"X = COMBINE(1, 2, 3)",
	)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := globalInt(t, c, "X"); got != 123 {
		t.Errorf("X = %d, want 123 (frame offsets must recover each argument in declaration order)", got)
	}
}

func TestCallReturnNestedCalls(t *testing.T) {
	c, _, _, err := compileAndRun(t, 256, 256,
		"DEF FN SQUARE(N) AS INTEGER",
		"RETURN N * N",
		"END FN",
		"DEF FN SUMSQUARES(A, B) AS INTEGER",
		"RETURN SQUARE(A) + SQUARE(B)",
		"END FN",
		"X = SUMSQUARES(3, 4)",
	)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := globalInt(t, c, "X"); got != 25 {
		t.Errorf("X = %d, want 25 (nested CALL/RETURN must restore the caller's frame pointers)", got)
	}
}

func TestDivideByZeroAborts(t *testing.T) {
	_, _, _, err := compileAndRun(t, 256, 256, "X = 1 / 0")
	if err == nil {
		t.Fatal("expected a RuntimeAbort for division by zero")
	}
	ra, ok := err.(*RuntimeAbort)
	if !ok {
		t.Fatalf("err = %T, want *RuntimeAbort", err)
	}
	if ra.Kind != DivideByZero {
		t.Errorf("Kind = %v, want DivideByZero", ra.Kind)
	}
}

func TestArraySubscriptOutOfRangeAborts(t *testing.T) {
	_, _, _, err := compileAndRun(t, 256, 256,
		"DIM A(3) AS INTEGER",
		"X = A(10)",
	)
	if err == nil {
		t.Fatal("expected a RuntimeAbort for an out-of-range array index")
	}
	ra, ok := err.(*RuntimeAbort)
	if !ok {
		t.Fatalf("err = %T, want *RuntimeAbort", err)
	}
	if ra.Kind != ArraySubscriptError {
		t.Errorf("Kind = %v, want ArraySubscriptError", ra.Kind)
	}
}

func TestValueStackOverflowAborts(t *testing.T) {
	// A single-slot value stack can hold the first LIT but not the
	// second operand ADD needs, so this must overflow rather than
	// silently growing past the configured cap.
	_, _, _, err := compileAndRun(t, 1, 256, "X = 1 + 2")
	if err == nil {
		t.Fatal("expected a RuntimeAbort for value stack overflow")
	}
	ra, ok := err.(*RuntimeAbort)
	if !ok {
		t.Fatalf("err = %T, want *RuntimeAbort", err)
	}
	if ra.Kind != StackOverflow {
		t.Errorf("Kind = %v, want StackOverflow", ra.Kind)
	}
}

func TestGlobalsSurviveAfterAbort(t *testing.T) {
	// A fault mid-statement must leave previously-committed globals
	// exactly as they stood, per the VM's documented abort contract.
	h := heap.New(16*1024, 512)
	c := compiler.New(h)
	c.SetScanner(scanner.New(lines("X = 42")))
	handle, err := c.CompileProgram()
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	interp := New(h, nil, 256, 256)
	if err := interp.Execute(handle); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	c.SetScanner(scanner.New(lines("X = 1 / 0")))
	handle2, err := c.CompileProgram()
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	if err := interp.Execute(handle2); err == nil {
		t.Fatal("expected division-by-zero abort")
	}

	if got := globalInt(t, c, "X"); got != 42 {
		t.Errorf("X = %d, want 42 (abort must not clobber previously committed globals)", got)
	}
}
