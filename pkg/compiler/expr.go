// Expression compilation: precedence-climbing recursive descent that
// emits opcodes directly, in lockstep with parsing -- there is no
// intermediate expression tree. Precedence (low to high): OR, AND,
// NOT, comparison, additive, multiplicative, unary minus/BNOT,
// primary. BOR/BXOR are folded into the additive tier and BAND/SHL/SHR
// into the multiplicative tier -- an otherwise-unconstrained precedence
// choice.
package compiler

import (
	"github.com/dbetz/picobasic/pkg/bytecode"
	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/scanner"
)

// compileExpr compiles a full expression and returns its type.
func (c *Compiler) compileExpr() exprType {
	return c.compileOr()
}

func (c *Compiler) compileOr() exprType {
	t := c.compileAnd()
	for c.matchReserved("OR") {
		c.requireInteger(t, "OR")
		site := c.emitBranch(bytecode.BRTSC)
		rhs := c.compileAnd()
		c.requireInteger(rhs, "OR")
		c.patchWord4(site, int32(c.pc()-(site+4)))
	}
	return t
}

func (c *Compiler) compileAnd() exprType {
	t := c.compileNot()
	for c.matchReserved("AND") {
		c.requireInteger(t, "AND")
		site := c.emitBranch(bytecode.BRFSC)
		rhs := c.compileNot()
		c.requireInteger(rhs, "AND")
		c.patchWord4(site, int32(c.pc()-(site+4)))
	}
	return t
}

func (c *Compiler) compileNot() exprType {
	if c.matchReserved("NOT") {
		t := c.compileNot()
		c.requireInteger(t, "NOT")
		c.emitOp(bytecode.NOT)
		return t
	}
	return c.compileComparison()
}

var compareOps = map[string]bytecode.Opcode{
	"=": bytecode.EQ, "<>": bytecode.NE,
	"<": bytecode.LT, "<=": bytecode.LE,
	">": bytecode.GT, ">=": bytecode.GE,
}

func (c *Compiler) compileComparison() exprType {
	t := c.compileAdditive()
	tok := c.getToken()
	if tok.Type == scanner.TOperator {
		if op, ok := compareOps[tok.Literal]; ok {
			c.requireInteger(t, tok.Literal)
			rhs := c.compileAdditive()
			c.requireInteger(rhs, tok.Literal)
			c.emitOp(op)
			return c.integerType_()
		}
	}
	c.saveToken(tok)
	return t
}

func (c *Compiler) compileAdditive() exprType {
	t := c.compileMultiplicative()
	for {
		tok := c.getToken()
		switch {
		case tok.Type == scanner.TOperator && tok.Literal == "+":
			rhs := c.compileMultiplicative()
			t = c.compileAdd(t, rhs)
		case tok.Type == scanner.TOperator && tok.Literal == "-":
			c.requireInteger(t, "-")
			rhs := c.compileMultiplicative()
			c.requireInteger(rhs, "-")
			c.emitOp(bytecode.SUB)
		case tok.Type == scanner.TReserved && tok.Literal == "BOR":
			c.requireInteger(t, "BOR")
			rhs := c.compileMultiplicative()
			c.requireInteger(rhs, "BOR")
			c.emitOp(bytecode.BOR)
		case tok.Type == scanner.TReserved && tok.Literal == "BXOR":
			c.requireInteger(t, "BXOR")
			rhs := c.compileMultiplicative()
			c.requireInteger(rhs, "BXOR")
			c.emitOp(bytecode.BXOR)
		default:
			c.saveToken(tok)
			return t
		}
	}
}

// compileAdd implements `+`, which is overloaded: integer addition on
// the value stack, or CAT (concatenation) when both operands are
// strings.
func (c *Compiler) compileAdd(lhs, rhs exprType) exprType {
	lhsString := c.isStringType(lhs)
	rhsString := c.isStringType(rhs)
	if lhsString != rhsString {
		c.fail("operands of + must both be numbers or both be strings")
	}
	if lhsString {
		c.emitOp(bytecode.CAT)
		return c.stringType_()
	}
	c.emitOp(bytecode.ADD)
	return c.integerType_()
}

func (c *Compiler) compileMultiplicative() exprType {
	t := c.compileUnary()
	for {
		tok := c.getToken()
		switch {
		case tok.Type == scanner.TOperator && tok.Literal == "*":
			c.requireInteger(t, "*")
			rhs := c.compileUnary()
			c.requireInteger(rhs, "*")
			c.emitOp(bytecode.MUL)
		case tok.Type == scanner.TOperator && tok.Literal == "/":
			c.requireInteger(t, "/")
			rhs := c.compileUnary()
			c.requireInteger(rhs, "/")
			c.emitOp(bytecode.DIV)
		case tok.Type == scanner.TReserved && tok.Literal == "MOD":
			c.requireInteger(t, "MOD")
			rhs := c.compileUnary()
			c.requireInteger(rhs, "MOD")
			c.emitOp(bytecode.REM)
		case tok.Type == scanner.TReserved && tok.Literal == "BAND":
			c.requireInteger(t, "BAND")
			rhs := c.compileUnary()
			c.requireInteger(rhs, "BAND")
			c.emitOp(bytecode.BAND)
		case tok.Type == scanner.TReserved && tok.Literal == "SHL":
			c.requireInteger(t, "SHL")
			rhs := c.compileUnary()
			c.requireInteger(rhs, "SHL")
			c.emitOp(bytecode.SHL)
		case tok.Type == scanner.TReserved && tok.Literal == "SHR":
			c.requireInteger(t, "SHR")
			rhs := c.compileUnary()
			c.requireInteger(rhs, "SHR")
			c.emitOp(bytecode.SHR)
		default:
			c.saveToken(tok)
			return t
		}
	}
}

func (c *Compiler) compileUnary() exprType {
	tok := c.getToken()
	switch {
	case tok.Type == scanner.TOperator && tok.Literal == "-":
		t := c.compileUnary()
		c.requireInteger(t, "unary -")
		c.emitOp(bytecode.NEG)
		return t
	case tok.Type == scanner.TReserved && tok.Literal == "BNOT":
		t := c.compileUnary()
		c.requireInteger(t, "BNOT")
		c.emitOp(bytecode.BNOT)
		return t
	default:
		c.saveToken(tok)
		return c.compilePrimary()
	}
}

func (c *Compiler) requireInteger(t exprType, context string) {
	if !c.isIntegerLike(t) {
		c.fail("%s requires a numeric operand", context)
	}
}

func (c *Compiler) compilePrimary() exprType {
	tok := c.getToken()
	switch tok.Type {
	case scanner.TIntegerLiteral:
		c.emitOp(bytecode.LIT)
		c.emitWord4(tok.IntValue)
		return c.integerType_()

	case scanner.TStringLiteral:
		h, err := c.Heap.NewString(len(tok.Literal))
		if err != nil {
			c.fail("%v", err)
		}
		if err := c.Heap.StoreByteVectorData(h, []byte(tok.Literal)); err != nil {
			c.fail("%v", err)
		}
		c.emitOp(bytecode.LITH)
		c.emitWord4(int32(h))
		return c.stringType_()

	case scanner.TIdentifier:
		return c.compileIdentifierRef(tok.Literal)

	case scanner.TOperator:
		if tok.Literal == "(" {
			t := c.compileExpr()
			c.expectOperator(")")
			return t
		}
	}
	c.fail("expected an expression")
	return exprType{}
}

// compileIdentifierRef compiles a bare-name reference: a scalar
// variable read, a subscripted array element read, or a function/
// intrinsic call, distinguished by the resolved binding's type.
func (c *Compiler) compileIdentifierRef(name string) exprType {
	b, ok := c.resolve(name)
	if !ok {
		c.fail("undefined identifier %q", name)
	}

	if c.typeKind(b.typ) == heap.TypeFunction {
		return c.compileCall(name, b)
	}

	if c.isArrayType(b.typ) {
		c.expectOperator("(")
		index := c.compileExpr()
		c.requireInteger(index, "array subscript")
		c.expectOperator(")")
		c.pushArrayHandle(b)
		elem := c.elementType(b.typ)
		if c.isStringType(elem) {
			c.emitOp(bytecode.VREFH)
		} else {
			c.emitOp(bytecode.VREF)
		}
		return elem
	}

	// scalar read
	if c.isStringType(b.typ) {
		c.emitLoad(b, true)
	} else {
		c.emitLoad(b, false)
	}
	return b.typ
}

// emitLoad emits the read opcode for binding b on the value stack
// (handle=false) or handle stack (handle=true).
func (c *Compiler) emitLoad(b binding, handle bool) {
	if b.isLocal {
		if handle {
			c.emitOp(bytecode.LREFH)
		} else {
			c.emitOp(bytecode.LREF)
		}
		c.code = append(c.code, byte(int8(b.offset)))
		return
	}
	if handle {
		c.emitOp(bytecode.GREFH)
	} else {
		c.emitOp(bytecode.GREF)
	}
	c.emitWord4(int32(b.handle))
}

// emitStore emits the write opcode for binding b, consuming the value
// already pushed on the appropriate stack.
func (c *Compiler) emitStore(b binding, handle bool) {
	if b.isLocal {
		if handle {
			c.emitOp(bytecode.LSETH)
		} else {
			c.emitOp(bytecode.LSET)
		}
		c.code = append(c.code, byte(int8(b.offset)))
		return
	}
	if handle {
		c.emitOp(bytecode.GSETH)
	} else {
		c.emitOp(bytecode.GSET)
	}
	c.emitWord4(int32(b.handle))
}

// pushArrayHandle pushes the handle to an array variable's vector
// object onto the handle stack, ahead of a VREF/VSET family opcode.
func (c *Compiler) pushArrayHandle(b binding) {
	c.emitLoad(b, true)
}

// compileCall compiles a call to a user-defined FN/SUB or a built-in
// intrinsic: arguments left to right, then the target handle, then
// CALL.
func (c *Compiler) compileCall(name string, b binding) exprType {
	sym := c.globalSymbol(b.handle)
	tp, err := c.Heap.GetType(sym.Type)
	if err != nil {
		c.fail("%v", err)
	}
	argTypes := c.walkArgTypes(tp.Function.ArgsHead)
	if len(argTypes) != tp.Function.ArgsCount {
		c.fail("internal error: argument type table for %s is inconsistent", name)
	}

	c.expectOperator("(")
	for i, want := range argTypes {
		if i > 0 {
			c.expectOperator(",")
		}
		got := c.compileExpr()
		if c.isStringType(want) != c.isStringType(got) {
			c.fail("argument %d to %s has the wrong type", i+1, name)
		}
	}
	c.expectOperator(")")

	c.emitOp(bytecode.LITH)
	c.emitWord4(int32(sym.HValue))
	c.emitOp(bytecode.CALL)
	return exprType{tp.Function.ReturnType}
}

// walkArgTypes reads the ordered argument-type list off a Function
// type's captured argument table: a Local chain rooted at head, built
// by declareArgument via c.arguments and recorded onto the Type when
// the DEF FN/SUB header finished parsing.
func (c *Compiler) walkArgTypes(head heap.Handle) []exprType {
	var types []exprType
	for h := head; h != heap.NilHandle; {
		loc, err := c.Heap.GetLocal(h)
		if err != nil {
			c.fail("%v", err)
		}
		types = append(types, exprType{loc.Type})
		h = loc.Next
	}
	return types
}
