package bytecode

import "testing"

func TestWordRoundTrip(t *testing.T) {
	var buf []byte
	buf = PutWord4(buf, -12345)
	if got := GetWord4(buf, 0); got != -12345 {
		t.Errorf("got %d, want -12345", got)
	}
}

func TestByte1RoundTrip(t *testing.T) {
	var buf []byte
	buf = PutByte1(buf, -7)
	if got := GetByte1(buf, 0); got != -7 {
		t.Errorf("got %d, want -7", got)
	}
}

func TestDisassembleFixedWidths(t *testing.T) {
	var code []byte
	code = append(code, byte(HALT))
	code = append(code, byte(LREF))
	code = PutByte1(code, -2)
	code = append(code, byte(RESERVE), 3, 1)
	code = append(code, byte(LIT))
	code = PutWord4(code, 42)

	text, next := Disassemble(code, 0)
	if text != "HALT" || next != 1 {
		t.Errorf("HALT: got %q/%d", text, next)
	}
	text, next = Disassemble(code, next)
	if text != "LREF -2" || next != 3 {
		t.Errorf("LREF: got %q/%d", text, next)
	}
	text, next = Disassemble(code, next)
	if text != "RESERVE 3 1" || next != 6 {
		t.Errorf("RESERVE: got %q/%d", text, next)
	}
	text, _ = Disassemble(code, next)
	if text != "LIT 42" {
		t.Errorf("LIT: got %q", text)
	}
}

func TestIsBranch(t *testing.T) {
	if !IsBranch(BRFSC) || IsBranch(LIT) {
		t.Error("IsBranch misclassified an opcode")
	}
}
