package intrinsics

import (
	"github.com/dbetz/picobasic/pkg/vm"
)

// termWriter adapts a host.Terminal's byte-at-a-time PutChar into the
// io.Writer shape heap.Heap.Dump expects, for the DUMP intrinsic.
type termWriter struct {
	v *vm.Interpreter
}

func (w termWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if err := w.v.Host.Terminal.PutChar(b); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func putString(v *vm.Interpreter, s string) error {
	for i := 0; i < len(s); i++ {
		if err := v.Host.Terminal.PutChar(s[i]); err != nil {
			return err
		}
	}
	return nil
}

// --- PRINT helpers -----------------------------------------------------

func fcnPrintStr(i interface{}) error {
	v := interp(i)
	sh := v.PopHandle()
	s, err := v.Heap.GetString(sh)
	if err != nil {
		return err
	}
	return putString(v, s)
}

func fcnPrintInt(i interface{}) error {
	v := interp(i)
	n := v.PopValue()
	return putString(v, formatInt(n))
}

func fcnPrintTab(i interface{}) error {
	v := interp(i)
	return v.Host.Terminal.PutChar('\t')
}

func fcnPrintNL(i interface{}) error {
	v := interp(i)
	return v.Host.Terminal.PutChar('\n')
}

func fcnPrintFlush(i interface{}) error {
	v := interp(i)
	return v.Host.Terminal.Flush()
}

// --- INPUT helpers -------------------------------------------------------
//
// Neither the distilled spec nor db_vmfcn.c (which has no fcn_input*
// counterpart -- INPUT is handled inline in the original's statement
// compiler) names an exact protocol for reading a line from the
// terminal through the Intrinsic calling convention, so these two are
// supplemented here: a byte-at-a-time read until '\n' or EOF, matching
// host.Stdio's own GetChar contract.

func readLine(v *vm.Interpreter) (string, error) {
	var buf []byte
	for {
		b, ok, err := v.Host.Terminal.GetChar()
		if err != nil {
			return "", err
		}
		if !ok || b == '\n' {
			break
		}
		if b == '\r' {
			continue
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func fcnInputStr(i interface{}) error {
	v := interp(i)
	s, err := readLine(v)
	if err != nil {
		return err
	}
	h, err := newString(v.Heap, s)
	if err != nil {
		return err
	}
	v.PushHandle(h)
	return nil
}

func fcnInputInt(i interface{}) error {
	v := interp(i)
	s, err := readLine(v)
	if err != nil {
		return err
	}
	v.PushValue(stringVal(s))
	return nil
}

// --- DUMP ------------------------------------------------------------

// fcnDump prints the heap's live handle table to the terminal, ported
// from pico-basic.c's fcn_dump; the dummy integer argument balances
// the same calling convention the original's debug intrinsics use.
func fcnDump(i interface{}) error {
	v := interp(i)
	v.PopValue()
	v.Heap.Dump(termWriter{v: v})
	return nil
}
