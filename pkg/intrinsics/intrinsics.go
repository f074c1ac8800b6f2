// Package intrinsics implements §4.6's built-in function/sub table:
// the host-side functions a compiled program calls through the same
// CALL opcode as a user DEF FN/SUB, registered as heap.KindIntrinsic
// objects rather than heap.KindCode ones. See db_vmfcn.c, which every
// handler below is ported from case for case.
package intrinsics

import (
	"math/rand"

	"github.com/dbetz/picobasic/pkg/compiler"
	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/vm"
)

// interp recovers the concrete *vm.Interpreter behind the
// heap.IntrinsicHandler's interface{} parameter. Every handler in this
// package is only ever installed as a heap.IntrinsicHandler invoked
// from vm.Interpreter.doCall, so the assertion never fails in
// practice; a panic here is a wiring bug, not a runtime fault a BASIC
// program can trigger.
func interp(i interface{}) *vm.Interpreter {
	return i.(*vm.Interpreter)
}

// RegisterDefaults installs the §4.6 table -- ABS, RND, LEFT$, RIGHT$,
// MID$, CHR$, STR$, VAL, ASC, LEN, the PRINT helpers, and INPUT's two
// helpers -- onto c, exactly as db_compiler.c's InitCompiler does
// before compiling the first line of a session.
func RegisterDefaults(c *compiler.Compiler) error {
	table := []struct {
		name      string
		handler   heap.IntrinsicHandler
		signature string
	}{
		{"ABS", fcnAbs, "i=i"},
		{"RND", fcnRnd, "i=i"},
		{"LEFT$", fcnLeft, "s=si"},
		{"RIGHT$", fcnRight, "s=si"},
		{"MID$", fcnMid, "s=sii"},
		{"CHR$", fcnChr, "s=i"},
		{"STR$", fcnStr, "s=i"},
		{"VAL", fcnVal, "i=s"},
		{"ASC", fcnAsc, "i=s"},
		{"LEN", fcnLen, "i=s"},
		{"printStr", fcnPrintStr, "s"},
		{"printInt", fcnPrintInt, "i"},
		{"printTab", fcnPrintTab, ""},
		{"printNL", fcnPrintNL, ""},
		{"printFlush", fcnPrintFlush, ""},
		{"inputStr", fcnInputStr, "s="},
		{"inputInt", fcnInputInt, "i="},
	}
	for _, e := range table {
		if err := c.AddIntrinsic(e.name, e.handler, e.signature); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDebug installs the REPL-only DUMP diagnostic. Kept separate
// from RegisterDefaults since it is a development aid, not a language
// primitive a compiled BASIC program is ever expected to rely on.
func RegisterDebug(c *compiler.Compiler) error {
	return c.AddIntrinsic("DUMP", fcnDump, "i")
}

// --- numeric -----------------------------------------------------------

func fcnAbs(i interface{}) error {
	v := interp(i)
	n := v.PopValue()
	if n < 0 {
		n = -n
	}
	v.PushValue(n)
	return nil
}

func fcnRnd(i interface{}) error {
	v := interp(i)
	n := v.PopValue()
	if n <= 0 {
		v.PushValue(0)
		return nil
	}
	v.PushValue(rand.Int31n(n))
	return nil
}

// --- strings -------------------------------------------------------------

func fcnLeft(i interface{}) error {
	v := interp(i)
	n := v.PopValue()
	sh := v.PopHandle()
	s, err := v.Heap.GetString(sh)
	if err != nil {
		return err
	}
	if int(n) > len(s) {
		n = int32(len(s))
	}
	if n < 0 {
		n = 0
	}
	h, err := newString(v.Heap, s[:n])
	if err != nil {
		return err
	}
	v.PushHandle(h)
	return nil
}

func fcnRight(i interface{}) error {
	v := interp(i)
	n := v.PopValue()
	sh := v.PopHandle()
	s, err := v.Heap.GetString(sh)
	if err != nil {
		return err
	}
	if int(n) > len(s) {
		n = int32(len(s))
	}
	if n < 0 {
		n = 0
	}
	h, err := newString(v.Heap, s[len(s)-int(n):])
	if err != nil {
		return err
	}
	v.PushHandle(h)
	return nil
}

func fcnMid(i interface{}) error {
	v := interp(i)
	n := v.PopValue()
	start := v.PopValue()
	sh := v.PopHandle()
	s, err := v.Heap.GetString(sh)
	if err != nil {
		return err
	}
	if start < 0 || int(start) >= len(s) {
		abortStringIndex(start + 1)
	}
	if int(start+n) > len(s) {
		n = int32(len(s)) - start
	}
	if n < 0 {
		n = 0
	}
	h, err := newString(v.Heap, s[start:start+n])
	if err != nil {
		return err
	}
	v.PushHandle(h)
	return nil
}

func fcnChr(i interface{}) error {
	v := interp(i)
	n := v.PopValue()
	h, err := newString(v.Heap, string([]byte{byte(n)}))
	if err != nil {
		return err
	}
	v.PushHandle(h)
	return nil
}

func fcnStr(i interface{}) error {
	v := interp(i)
	n := v.PopValue()
	h, err := newString(v.Heap, formatInt(n))
	if err != nil {
		return err
	}
	v.PushHandle(h)
	return nil
}

func fcnVal(i interface{}) error {
	v := interp(i)
	sh := v.PopHandle()
	s, err := v.Heap.GetString(sh)
	if err != nil {
		return err
	}
	v.PushValue(stringVal(s))
	return nil
}

func fcnAsc(i interface{}) error {
	v := interp(i)
	sh := v.PopHandle()
	s, err := v.Heap.GetString(sh)
	if err != nil {
		return err
	}
	if len(s) == 0 {
		v.PushValue(0)
		return nil
	}
	v.PushValue(int32(s[0]))
	return nil
}

func fcnLen(i interface{}) error {
	v := interp(i)
	sh := v.PopHandle()
	n, err := v.Heap.GetSize(sh)
	if err != nil {
		return err
	}
	v.PushValue(int32(n))
	return nil
}

// newString allocates and fills a String object from a Go string --
// every fcn_* string result in db_vmfcn.c allocates through
// StoreByteVector the same way.
func newString(h *heap.Heap, s string) (heap.Handle, error) {
	handle, err := h.NewString(len(s))
	if err != nil {
		return 0, err
	}
	if err := h.StoreByteVectorData(handle, []byte(s)); err != nil {
		return 0, err
	}
	return handle, nil
}

// formatInt renders n the way str_value_fmt ("%d") does.
func formatInt(n int32) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	u := uint32(n)
	if neg {
		u = uint32(-n)
	}
	var buf [11]byte
	pos := len(buf)
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// stringVal ports GetStringVal from db_vmfcn.c byte for byte: an
// optional leading sign, then 0b/0x/bare-leading-0 radix detection,
// then digits with `_` as an ignored separator. An invalid digit for
// the selected radix stops consumption (it does not error) and
// whatever was parsed so far is returned.
func stringVal(s string) int32 {
	var val int32
	sign := int32(1)
	radix := byte('d')
	pos := 0

	if pos >= len(s) {
		return 0
	}

	switch s[pos] {
	case '-':
		sign = -1
		pos++
	case '+':
		pos++
	}
	if pos >= len(s) {
		return 0
	}

	switch ch := s[pos]; ch {
	case '0':
		pos++
		if pos >= len(s) {
			return 0
		}
		switch s[pos] {
		case 'b', 'B':
			radix = 'b'
			pos++
		case 'x', 'X':
			radix = 'x'
			pos++
		default:
			radix = 'o'
		}
	default:
		if !isDigit(ch) {
			return 0
		}
		val = int32(ch - '0')
		pos++
	}

	switch radix {
	case 'b':
		for pos < len(s) {
			ch := s[pos]
			pos++
			if ch == '0' || ch == '1' {
				val = val*2 + int32(ch-'0')
			} else if ch != '_' {
				break
			}
		}
	case 'd':
		for pos < len(s) {
			ch := s[pos]
			pos++
			if isDigit(ch) {
				val = val*10 + int32(ch-'0')
			} else if ch != '_' {
				break
			}
		}
	case 'x':
		for pos < len(s) {
			ch := s[pos]
			pos++
			if isHexDigit(ch) {
				val = val*16 + int32(hexDigitValue(ch))
			} else if ch != '_' {
				break
			}
		}
	case 'o':
		for pos < len(s) {
			ch := s[pos]
			pos++
			if ch >= '0' && ch <= '7' {
				val = val*8 + int32(ch-'0')
			} else if ch != '_' {
				break
			}
		}
	}

	return sign * val
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func hexDigitValue(ch byte) byte {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0'
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10
	default:
		return ch - 'A' + 10
	}
}

// abortStringIndex raises the same StringIndexRangeError MID$ reports
// in the original, citing start+1 (1-based) as the offending index.
func abortStringIndex(literal int32) {
	panic(&vm.RuntimeAbort{
		Kind:    vm.StringIndexRangeError,
		Literal: literal,
		Message: "MID$ start index out of range",
	})
}
