// Statement compilation: dispatch on the leading token of a logical
// line, one BASIC statement form per function, all emitting directly
// into the staging buffer.
package compiler

import (
	"strconv"

	"github.com/dbetz/picobasic/pkg/bytecode"
	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/scanner"
)

// parseStatement dispatches a single statement starting with tok, and
// continues consuming `:`-separated statements on the same logical
// line.
func (c *Compiler) parseStatement(tok scanner.Token) {
	for {
		c.parseOneStatement(tok)
		if !c.matchOperator(":") {
			return
		}
		tok = c.getToken()
		if tok.Type == scanner.TEOL {
			return
		}
	}
}

func (c *Compiler) parseOneStatement(tok scanner.Token) {
	if tok.Type == scanner.TIdentifier {
		if peek := c.peek(); peek.Type == scanner.TOperator && peek.Literal == ":" {
			c.getToken()
			c.defineLabel(tok.Literal)
			return
		}
	}

	if tok.Type == scanner.TReserved {
		switch tok.Literal {
		case "LET":
			c.parseAssignment(c.expectIdentifier())
			return
		case "IF":
			c.parseIf()
			return
		case "ELSE":
			c.parseElse()
			return
		case "END":
			c.parseEnd()
			return
		case "FOR":
			c.parseFor()
			return
		case "NEXT":
			c.parseNext()
			return
		case "DO":
			c.parseDo()
			return
		case "LOOP":
			c.parseLoop()
			return
		case "DEF":
			c.parseDef()
			return
		case "DIM":
			c.parseDim()
			return
		case "GOTO":
			c.referenceLabel(bytecode.BR, c.expectIdentifier())
			return
		case "GOSUB":
			c.parseGosub()
			return
		case "RETURN":
			c.parseReturn()
			return
		case "PRINT":
			c.parsePrint()
			return
		case "INPUT":
			c.parseInput()
			return
		}
	}

	if tok.Type == scanner.TIdentifier {
		c.parseAssignment(tok.Literal)
		return
	}

	c.fail("unexpected token")
}

// --- assignment ------------------------------------------------------------

func (c *Compiler) parseAssignment(name string) {
	b, ok := c.resolve(name)
	if !ok {
		typ := c.inferredGlobalType(name)
		b = binding{isLocal: false, typ: typ, handle: c.declareGlobal(name, heap.ClassGlobal, typ)}
	}
	if !b.isLocal {
		sym := c.globalSymbol(b.handle)
		if sym.Class == heap.ClassConstant {
			if c.typeKind(b.typ) == heap.TypeFunction {
				c.parseCallStatement(name, b)
				return
			}
			c.fail("%s is not assignable", name)
		}
	}

	if c.isArrayType(b.typ) {
		elem := c.elementType(b.typ)
		c.pushArrayHandleForStore(b, elem)
		c.expectOperator("(")
		index := c.compileExpr()
		c.requireInteger(index, "array subscript")
		c.expectOperator(")")
		c.expectOperator("=")
		rhs := c.compileExpr()
		c.checkAssignable(elem, rhs, name)
		if c.isStringType(elem) {
			c.emitOp(bytecode.VSETH)
		} else {
			c.emitOp(bytecode.VSET)
		}
		return
	}

	c.expectOperator("=")
	rhs := c.compileExpr()
	c.checkAssignable(b.typ, rhs, name)
	c.emitStore(b, c.isHandleStored(b.typ))
}

// parseCallStatement compiles a bare `name(args)` statement invoking a
// DEF SUB. A DEF FN's result has nowhere to go on a bare statement
// line -- there is no opcode to discard a handle-stack value (only
// DROP, for the value stack) -- so, like most BASICs, a function's
// result must be used in an expression; only subs may be called this
// way.
func (c *Compiler) parseCallStatement(name string, b binding) {
	sym := c.globalSymbol(b.handle)
	tp, err := c.Heap.GetType(sym.Type)
	if err != nil {
		c.fail("%v", err)
	}
	if tp.Function.ReturnType != heap.NilHandle {
		c.fail("result of %s must be used in an expression", name)
	}
	c.compileCall(name, b)
}

// pushArrayHandleForStore loads the array handle onto the handle stack
// before the index and rhs are compiled. VSETH pops the rhs handle,
// then the index, then drops the array handle -- so for a string
// element the rhs handle must land on top of the array handle, which
// means the array handle has to go on first. VSET (integer elements)
// only ever pushes the one handle, so the same emission order costs
// it nothing.
func (c *Compiler) pushArrayHandleForStore(b binding, elem exprType) {
	c.emitLoad(b, true)
}

// inferredGlobalType implements implicit auto-declaration: an
// undeclared name assigned to for the first time becomes a new global,
// String if it ends in `$`, Integer otherwise.
func (c *Compiler) inferredGlobalType(name string) exprType {
	if len(name) > 0 && name[len(name)-1] == '$' {
		return c.stringType_()
	}
	return c.integerType_()
}

func (c *Compiler) checkAssignable(want, got exprType, name string) {
	if c.isStringType(want) != c.isStringType(got) {
		c.fail("cannot assign to %s: type mismatch", name)
	}
}

// --- IF / ELSE / END ---------------------------------------------------

func (c *Compiler) parseIf() {
	cond := c.compileExpr()
	c.requireInteger(cond, "IF")
	c.expectReserved("THEN")

	falseFixup := c.emitBranch(bytecode.BRF)

	if c.isEndOfStatement() {
		c.blocks = append(c.blocks, &block{typ: blockIf, falseFixup: int32(falseFixup), exitFixups: -1})
		return
	}

	// single-line IF: THEN stmt [ELSE stmt], terminated by end of line.
	tok := c.getToken()
	c.parseStatement(tok)
	if c.matchReserved("ELSE") {
		elseFixup := c.emitBranch(bytecode.BR)
		c.patchWord4(falseFixup, int32(c.pc()-(falseFixup+4)))
		tok = c.getToken()
		c.parseStatement(tok)
		c.patchWord4(elseFixup, int32(c.pc()-(elseFixup+4)))
		return
	}
	c.patchWord4(falseFixup, int32(c.pc()-(falseFixup+4)))
}

func (c *Compiler) parseElse() {
	if len(c.blocks) == 0 || c.blocks[len(c.blocks)-1].typ != blockIf {
		c.fail("ELSE without IF")
	}
	blk := c.blocks[len(c.blocks)-1]
	blk.typ = blockElse
	exitFixup := c.emitBranch(bytecode.BR)
	c.patchWord4(int(blk.falseFixup), int32(c.pc()-(int(blk.falseFixup)+4)))
	blk.falseFixup = int32(exitFixup)
}

// parseEnd handles bare `END` (halts the program) and the `END IF` /
// `END FN` / `END SUB` block terminators.
func (c *Compiler) parseEnd() {
	if c.matchReserved("IF") {
		if len(c.blocks) == 0 || (c.blocks[len(c.blocks)-1].typ != blockIf && c.blocks[len(c.blocks)-1].typ != blockElse) {
			c.fail("END IF without IF")
		}
		blk := c.blocks[len(c.blocks)-1]
		c.patchWord4(int(blk.falseFixup), int32(c.pc()-(int(blk.falseFixup)+4)))
		c.blocks = c.blocks[:len(c.blocks)-1]
		return
	}
	if c.matchReserved("FN") || c.matchReserved("SUB") {
		// handled by storeCode's epilog; nothing further to emit here
		// besides signalling end-of-definition to compileLinesUntilBalanced,
		// which happens when endDef sets codeType back to CodeMain.
		c.endDef()
		return
	}
	c.emitOp(bytecode.HALT)
}

// --- FOR / NEXT -------------------------------------------------------

func (c *Compiler) parseFor() {
	varName := c.expectIdentifier()
	b, ok := c.resolve(varName)
	if !ok {
		b = binding{isLocal: false, typ: c.integerType_(),
			handle: c.declareGlobal(varName, heap.ClassGlobal, c.integerType_())}
	}
	if !c.isIntegerLike(b.typ) {
		c.fail("FOR variable %s must be numeric", varName)
	}

	c.expectOperator("=")
	start := c.compileExpr()
	c.requireInteger(start, "FOR")
	c.emitStore(b, false)

	c.expectReserved("TO")
	limit := c.declareLocal(c.hiddenNameFor("limit"), c.integerType_())
	limitExpr := c.compileExpr()
	c.requireInteger(limitExpr, "FOR")
	c.emitStore(limit, false)

	step := c.declareLocal(c.hiddenNameFor("step"), c.integerType_())
	if c.matchReserved("STEP") {
		stepExpr := c.compileExpr()
		c.requireInteger(stepExpr, "FOR")
	} else {
		c.emitOp(bytecode.LIT)
		c.emitWord4(1)
	}
	c.emitStore(step, false)

	testPC := c.pc()

	// exit test: if step < 0, exit when var < limit; else exit when var > limit.
	c.emitLoad(step, false)
	c.emitOp(bytecode.LIT)
	c.emitWord4(0)
	c.emitOp(bytecode.LT)
	negStepFixup := c.emitBranch(bytecode.BRT)

	// non-negative step: exit if var > limit
	c.emitLoad(b, false)
	c.emitLoad(limit, false)
	c.emitOp(bytecode.GT)
	exitFixup1 := c.emitBranch(bytecode.BRT)
	joinFixup := c.emitBranch(bytecode.BR)

	c.patchWord4(negStepFixup, int32(c.pc()-(negStepFixup+4)))
	c.emitLoad(b, false)
	c.emitLoad(limit, false)
	c.emitOp(bytecode.LT)
	exitFixup2 := c.emitBranch(bytecode.BRT)

	c.patchWord4(joinFixup, int32(c.pc()-(joinFixup+4)))

	c.blocks = append(c.blocks, &block{
		typ: blockFor, testPC: testPC, exitFixups: -1,
		varIsGlobal: !b.isLocal, varHandle: b.handle, varOffset: b.offset,
		limitOffset: limit.offset, stepOffset: step.offset,
	})
	c.addFixup(&c.blocks[len(c.blocks)-1].exitFixups, exitFixup1)
	c.addFixup(&c.blocks[len(c.blocks)-1].exitFixups, exitFixup2)
}

func (c *Compiler) parseNext() {
	if len(c.blocks) == 0 || c.blocks[len(c.blocks)-1].typ != blockFor {
		c.fail("NEXT without FOR")
	}
	blk := c.blocks[len(c.blocks)-1]
	if !c.isEndOfStatement() {
		c.expectIdentifier() // optional NEXT var name, not cross-checked further
	}

	v := c.blockVarBinding(blk)

	// a step of exactly zero must still execute the body once, then
	// stop -- check after the body rather than folding it into the
	// pre-increment exit test.
	c.emitLoad(binding{isLocal: true, offset: blk.stepOffset}, false)
	c.emitOp(bytecode.LIT)
	c.emitWord4(0)
	c.emitOp(bytecode.EQ)
	zeroStepExit := c.emitBranch(bytecode.BRT)

	c.emitLoad(v, false)
	c.emitLoad(binding{isLocal: true, offset: blk.stepOffset}, false)
	c.emitOp(bytecode.ADD)
	c.emitStore(v, false)

	c.emitOp(bytecode.BR)
	c.emitWord4(int32(blk.testPC - (c.pc() + 4)))

	c.patchWord4(zeroStepExit, int32(c.pc()-(zeroStepExit+4)))
	c.resolveFixupChain(blk.exitFixups, c.pc())
	c.blocks = c.blocks[:len(c.blocks)-1]
}

func (c *Compiler) blockVarBinding(blk *block) binding {
	if blk.varIsGlobal {
		return binding{isLocal: false, handle: blk.varHandle}
	}
	return binding{isLocal: true, offset: blk.varOffset}
}

// hiddenNameFor returns a name that can never collide with a user
// identifier (BASIC identifiers cannot contain spaces) and is unique
// for the lifetime of the Compiler, used for the compiler-synthesised
// FOR loop limit/step locals -- nested FOR loops each need their own.
func (c *Compiler) hiddenNameFor(tag string) string {
	c.hiddenCounter++
	return " " + tag + strconv.Itoa(c.hiddenCounter) + " "
}

// --- DO / LOOP ----------------------------------------------------------

func (c *Compiler) parseDo() {
	testPC := c.pc()
	var entryFixup = -1
	if c.matchReserved("WHILE") {
		cond := c.compileExpr()
		c.requireInteger(cond, "DO WHILE")
		entryFixup = c.emitBranch(bytecode.BRF)
	} else if c.matchReserved("UNTIL") {
		cond := c.compileExpr()
		c.requireInteger(cond, "DO UNTIL")
		entryFixup = c.emitBranch(bytecode.BRT)
	}
	blk := &block{typ: blockDo, testPC: testPC, exitFixups: -1}
	if entryFixup >= 0 {
		c.addFixup(&blk.exitFixups, entryFixup)
	}
	c.blocks = append(c.blocks, blk)
}

func (c *Compiler) parseLoop() {
	if len(c.blocks) == 0 || c.blocks[len(c.blocks)-1].typ != blockDo {
		c.fail("LOOP without DO")
	}
	blk := c.blocks[len(c.blocks)-1]

	if c.matchReserved("WHILE") {
		cond := c.compileExpr()
		c.requireInteger(cond, "LOOP WHILE")
		c.emitOp(bytecode.BRT)
		c.emitWord4(int32(blk.testPC - (c.pc() + 4)))
	} else if c.matchReserved("UNTIL") {
		cond := c.compileExpr()
		c.requireInteger(cond, "LOOP UNTIL")
		c.emitOp(bytecode.BRF)
		c.emitWord4(int32(blk.testPC - (c.pc() + 4)))
	} else {
		c.emitOp(bytecode.BR)
		c.emitWord4(int32(blk.testPC - (c.pc() + 4)))
	}

	c.resolveFixupChain(blk.exitFixups, c.pc())
	c.blocks = c.blocks[:len(c.blocks)-1]
}

// --- DEF FN / DEF SUB -----------------------------------------------------

func (c *Compiler) parseDef() {
	if c.codeType != CodeMain {
		c.fail("DEF cannot be nested inside another DEF")
	}
	if len(c.blocks) > 0 {
		c.fail("DEF cannot appear inside a block")
	}

	isFn := c.matchReserved("FN")
	if !isFn {
		c.expectReserved("SUB")
	}
	name := c.expectIdentifier()

	var argNames []string
	var argTypes []exprType
	c.expectOperator("(")
	if !c.matchOperator(")") {
		for {
			argNames = append(argNames, c.expectIdentifier())
			argTypes = append(argTypes, c.parseOptionalAsType(c.integerType_()))
			if !c.matchOperator(",") {
				break
			}
		}
		c.expectOperator(")")
	}

	var retType exprType
	if isFn {
		retType = c.parseOptionalAsType(c.integerType_())
	}

	fnType, err := c.Heap.NewType(heap.TypeFunction)
	if err != nil {
		c.fail("%v", err)
	}
	tp, _ := c.Heap.GetType(fnType)
	if isFn {
		tp.Function.ReturnType = retType.handle
	}

	sh := c.declareGlobal(name, heap.ClassConstant, exprType{fnType})

	c.savedMainCode = c.code
	c.savedMainLabels = c.labels
	c.code = nil
	c.labels = nil

	codeType := CodeSub
	if isFn {
		codeType = CodeFunction
	}
	c.startCode(name, codeType)
	c.declaredIsFn = isFn
	c.declaredRet = retType.handle

	var totalValues, totalHandles int32
	for _, t := range argTypes {
		if c.isHandleStored(t) {
			totalHandles++
		} else {
			totalValues++
		}
	}
	remainingValues, remainingHandles := totalValues, totalHandles
	for i, argName := range argNames {
		t := argTypes[i]
		c.declareArgument(argName, t, remainingValues, remainingHandles)
		if c.isHandleStored(t) {
			remainingHandles--
		} else {
			remainingValues--
		}
	}

	var head, tail heap.Handle
	for _, h := range c.arguments.Handles() {
		if head == heap.NilHandle {
			head = h
		} else {
			prev, _ := c.Heap.GetLocal(tail)
			prev.Next = h
		}
		tail = h
	}
	tp.Function.ArgsHead = head
	tp.Function.ArgsCount = len(argNames)

	c.pendingDefSymbol = sh
}

// parseOptionalAsType parses an optional `AS Integer|Byte|String`
// clause, defaulting to def if absent.
func (c *Compiler) parseOptionalAsType(def exprType) exprType {
	if !c.matchReserved("AS") {
		return def
	}
	tok := c.getToken()
	if tok.Type != scanner.TReserved {
		c.fail("expected a type name")
	}
	switch tok.Literal {
	case "INTEGER":
		return c.integerType_()
	case "BYTE":
		return c.byteType_()
	case "STRING":
		return c.stringType_()
	default:
		c.fail("unknown type %s", tok.Literal)
		return exprType{}
	}
}

// endDef finalises the code object under construction for a DEF FN/SUB,
// stores it into the symbol declared by parseDef, and resumes staging
// the main code object.
func (c *Compiler) endDef() {
	if c.codeType == CodeMain {
		c.fail("END FN/SUB without DEF")
	}
	h := c.storeCode()
	sym := c.globalSymbol(c.pendingDefSymbol)
	sym.HValue = h

	c.codeType = CodeMain
	c.codeName = "main"
	c.code = c.savedMainCode
	c.labels = c.savedMainLabels
	c.savedMainCode = nil
	c.savedMainLabels = nil
	c.arguments.Reset()
	c.locals.Reset()
}

// --- DIM -----------------------------------------------------------------

// parseDim declares a scalar or array variable. There is no bytecode
// opcode for runtime array construction: arrays are allocated once,
// directly on the compiler's heap, at DIM's compile time, which is why
// the size must be a constant -- a natural fit for the fixed-memory
// target this system compiles for.
func (c *Compiler) parseDim() {
	name := c.expectIdentifier()
	var length int32
	isArray := false
	if c.matchOperator("(") {
		isArray = true
		tok := c.getToken()
		if tok.Type != scanner.TIntegerLiteral {
			c.fail("array size must be a constant integer")
		}
		length = tok.IntValue
		c.expectOperator(")")
	}
	elem := c.parseOptionalAsType(c.integerType_())

	typ := elem
	if isArray {
		typ = c.arrayTypeOf(elem)
	}

	var b binding
	if c.codeType != CodeMain {
		b = c.declareLocal(name, typ)
	} else {
		h := c.declareGlobal(name, heap.ClassGlobal, typ)
		b = binding{isLocal: false, typ: typ, handle: h}
	}

	if !isArray {
		return
	}

	vecHandle, err := c.newVector(elem, length)
	if err != nil {
		c.fail("%v", err)
	}

	if b.isLocal {
		// A local array shares one backing vector across every
		// invocation of its function -- there is no per-call array
		// allocation opcode, so the vector is created once here, at
		// compile time, like a global's.
		c.emitOp(bytecode.LITH)
		c.emitWord4(int32(vecHandle))
		c.emitStore(b, true)
		return
	}
	sym := c.globalSymbol(b.handle)
	sym.HValue = vecHandle
}

func (c *Compiler) newVector(elem exprType, length int32) (heap.Handle, error) {
	switch c.typeKind(elem) {
	case heap.TypeString:
		return c.Heap.NewStringVector(int(length))
	case heap.TypeByte:
		return c.Heap.NewByteVector(int(length))
	default:
		return c.Heap.NewIntegerVector(int(length))
	}
}

// --- GOSUB / RETURN --------------------------------------------------------

func (c *Compiler) parseGosub() {
	c.referenceLabel(bytecode.BR, c.expectIdentifier())
}

func (c *Compiler) parseReturn() {
	if c.codeType == CodeMain {
		c.emitOp(bytecode.HALT)
		return
	}
	if c.codeType == CodeFunction && c.declaredIsFn {
		// the value is left on top of its stack for the epilog's
		// RETURN/RETURNH to carry back to the caller
		t := c.compileExpr()
		if c.isStringType(t) != c.isStringType(exprType{handle: c.declaredRet}) {
			c.fail("return type mismatch")
		}
	}
	c.emitOp(bytecode.BR)
	site := c.pc()
	c.emitWord4(0)
	c.addFixup(&c.returnFixups, site)
}

// --- PRINT / INPUT ----------------------------------------------------------

func (c *Compiler) parsePrint() {
	if c.isEndOfStatement() {
		c.emitCallIntrinsicHandle("printNL")
		c.emitCallIntrinsicHandle("printFlush")
		return
	}
	for {
		if c.isEndOfStatement() {
			return
		}
		t := c.peek()
		if t.Type == scanner.TOperator && (t.Literal == ";" || t.Literal == ",") {
			c.getToken()
			if t.Literal == "," {
				c.emitCallIntrinsicHandle("printTab")
			}
			continue
		}
		expr := c.compileExpr()
		if c.isStringType(expr) {
			c.emitCallIntrinsicHandle("printStr")
		} else {
			c.emitCallIntrinsicHandle("printInt")
		}

		nt := c.peek()
		if nt.Type == scanner.TOperator && (nt.Literal == ";" || nt.Literal == ",") {
			c.getToken()
			if nt.Literal == "," {
				c.emitCallIntrinsicHandle("printTab")
			}
			if c.isEndOfStatement() {
				c.emitCallIntrinsicHandle("printFlush")
				return
			}
			continue
		}
		c.emitCallIntrinsicHandle("printNL")
		c.emitCallIntrinsicHandle("printFlush")
		return
	}
}

// emitCallIntrinsicHandle emits `LITH <handle>; CALL` for the named
// intrinsic, assuming its arguments (if any) are already pushed left to
// right on the appropriate stacks.
func (c *Compiler) emitCallIntrinsicHandle(name string) {
	_, sym, ok := c.Globals.FindGlobal(name)
	if !ok {
		c.fail("internal error: intrinsic %s is not registered", name)
	}
	c.emitOp(bytecode.LITH)
	c.emitWord4(int32(sym.HValue))
	c.emitOp(bytecode.CALL)
}

func (c *Compiler) parseInput() {
	name := c.expectIdentifier()
	b, ok := c.resolve(name)
	if !ok {
		typ := c.inferredGlobalType(name)
		b = binding{isLocal: false, typ: typ, handle: c.declareGlobal(name, heap.ClassGlobal, typ)}
	}
	// INPUT always reads a line and stores it through VAL for numeric
	// targets, or directly for string targets; both paths flow through
	// intrinsics that read from the host, not compiled inline here.
	if c.isStringType(b.typ) {
		c.emitCallIntrinsicHandle("inputStr")
		c.emitStore(b, true)
	} else {
		c.emitCallIntrinsicHandle("inputInt")
		c.emitStore(b, false)
	}
}
