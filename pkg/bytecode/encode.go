package bytecode

import (
	"encoding/binary"
	"strconv"
)

// PutWord4 appends v to buf as a 4-byte little-endian two's-complement
// word, the operand encoding used by LIT/GREF/GSET/LITH/GREFH/GSETH and
// by every branch offset.
func PutWord4(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

// GetWord4 decodes a 4-byte little-endian word starting at code[pc].
func GetWord4(code []byte, pc int) int32 {
	return int32(binary.LittleEndian.Uint32(code[pc : pc+4]))
}

// PutByte1 appends a signed frame-relative offset, the operand encoding
// for LREF/LSET/LREFH/LSETH.
func PutByte1(buf []byte, v int8) []byte {
	return append(buf, byte(v))
}

// GetByte1 decodes a signed byte operand at code[pc].
func GetByte1(code []byte, pc int) int8 {
	return int8(code[pc])
}

// Disassemble renders the instruction at code[pc] as text and returns
// the offset of the following instruction. Used by the compiler/VM's
// optional trace mode.
func Disassemble(code []byte, pc int) (string, int) {
	op := Opcode(code[pc])
	next := pc + 1
	text := op.String()
	switch Width(op) {
	case WidthByte1:
		v := GetByte1(code, next)
		text += spacedInt(int(v))
		next++
	case WidthByte2:
		a, b := code[next], code[next+1]
		text += spacedInt(int(a)) + spacedInt(int(b))
		next += 2
	case WidthWord4:
		v := GetWord4(code, next)
		text += spacedInt(int(v))
		next += 4
	}
	return text, next
}

func spacedInt(v int) string {
	return " " + strconv.Itoa(v)
}
