package compiler

import "github.com/dbetz/picobasic/pkg/heap"

// exprType is the compile-time type of an expression or lvalue: just
// enough to pick value-stack vs handle-stack opcodes and to type-check
// operators, without building a parallel type-expression AST.
type exprType struct {
	handle heap.Handle
}

func (c *Compiler) typeKind(t exprType) heap.TypeKind {
	tp, err := c.Heap.GetType(t.handle)
	if err != nil {
		c.fail("internal error: invalid type handle")
	}
	return tp.Kind
}

func (c *Compiler) isStringType(t exprType) bool {
	return c.typeKind(t) == heap.TypeString
}

func (c *Compiler) isIntegerLike(t exprType) bool {
	k := c.typeKind(t)
	return k == heap.TypeInteger || k == heap.TypeByte
}

func (c *Compiler) isArrayType(t exprType) bool {
	return c.typeKind(t) == heap.TypeArray
}

// elementType returns the element type of an Array exprType.
func (c *Compiler) elementType(t exprType) exprType {
	tp, _ := c.Heap.GetType(t.handle)
	return exprType{tp.ElementType}
}

// isHandleStored reports whether a value of type t is carried on the
// handle stack (String scalars, and every array -- the array variable
// itself is always a handle to its vector object) rather than the
// value stack (Integer, Byte).
func (c *Compiler) isHandleStored(t exprType) bool {
	switch c.typeKind(t) {
	case heap.TypeString, heap.TypeArray:
		return true
	default:
		return false
	}
}

func (c *Compiler) integerType_() exprType { return exprType{c.integerType} }
func (c *Compiler) byteType_() exprType    { return exprType{c.byteType} }
func (c *Compiler) stringType_() exprType  { return exprType{c.stringType} }

// arrayTypeOf returns (creating if needed) the Array-of-element type.
// The three element kinds used by DIM are pre-built in initCommonTypes,
// so this just selects among them.
func (c *Compiler) arrayTypeOf(element exprType) exprType {
	switch c.typeKind(element) {
	case heap.TypeInteger:
		return exprType{c.integerArrayType}
	case heap.TypeByte:
		return exprType{c.byteArrayType}
	case heap.TypeString:
		return exprType{c.stringArrayType}
	default:
		c.fail("invalid array element type")
		return exprType{}
	}
}
