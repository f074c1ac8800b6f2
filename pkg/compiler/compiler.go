// Package compiler implements the single-pass recursive-descent
// compiler: source tokens go straight to bytecode in a staging buffer,
// with no intermediate syntax tree. See db_compiler.c's ParseContext/
// Compile/StartCode/StoreCode, which this package follows function for
// function while adding Go's error-as-value discipline at the
// boundary (ParseError panics are recovered at Compile's edge, never
// visible to callers).
package compiler

import (
	"github.com/dbetz/picobasic/pkg/bytecode"
	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/scanner"
	"github.com/dbetz/picobasic/pkg/symtab"
)

// CodeType distinguishes the code object currently under construction.
type CodeType int

const (
	CodeMain CodeType = iota
	CodeFunction
	CodeSub
)

// Compiler holds all state for one Compile (or CompileOne) call: the
// shared heap, the three symbol tables, the in-progress staging buffer
// for the code object currently under construction, and the
// block/label/fixup bookkeeping needed to resolve forward references.
type Compiler struct {
	Heap    *heap.Heap
	Globals *symtab.Table

	arguments *symtab.Table
	locals    *symtab.Table
	scanner   *scanner.Scanner

	// common types, created once and shared by every declaration
	integerType      heap.Handle
	byteType         heap.Handle
	stringType       heap.Handle
	integerArrayType heap.Handle
	byteArrayType    heap.Handle
	stringArrayType  heap.Handle

	code     []byte
	codeType CodeType
	codeName string

	argumentCount       int
	handleArgumentCount int
	nextValueOffset     int32
	nextHandleOffset    int32

	blocks []*block

	labels       map[string]*label
	returnFixups int32 // head of RETURN's forward-fixup chain, -1 if none
	declaredRet  heap.Handle
	declaredIsFn bool // true when compiling a DEF FN (vs. DEF SUB/main)

	// pendingDefSymbol holds the global Symbol handle declared by
	// parseDef, filled in with the finished Code handle by endDef.
	pendingDefSymbol heap.Handle

	// savedMain stashes the main code object's in-progress buffer and
	// label table while a DEF FN/SUB's body is being staged in their
	// place; endDef restores them so main code can resume where it
	// left off, since a program interleaves DEF blocks with top-level
	// statements in source order.
	savedMainCode   []byte
	savedMainLabels map[string]*label

	// hiddenCounter disambiguates compiler-synthesised local names
	// (FOR loop limit/step temporaries) across the whole compilation.
	hiddenCounter int

	// Trace, when true, prints each function's disassembly after
	// storeCode finishes -- the Go analogue of db_compiler.c's
	// unconditional `#if 1 ... DecodeFunction` block, made opt-in.
	Trace bool
	Out   TraceWriter
}

// TraceWriter is the minimal sink Trace output needs.
type TraceWriter interface {
	Printf(format string, args ...interface{})
}

type blockType int

const (
	blockNone blockType = iota
	blockIf
	blockElse
	blockFor
	blockDo
)

// block is one entry in the bounded block-nesting stack (IF/ELSE/FOR/DO).
type block struct {
	typ        blockType
	falseFixup int32 // IF/ELSE: pc of the not-taken branch's operand, to patch
	testPC     int   // FOR/DO: pc of the loop's test, branched back to
	exitFixups int32 // chain of forward branches (e.g. FOR/DO exit) patched at block end

	// FOR-loop bookkeeping
	varIsGlobal bool
	varHandle   heap.Handle // global Symbol handle, when varIsGlobal
	varOffset   int32       // local frame offset, when !varIsGlobal
	limitOffset int32
	stepOffset  int32
}

// label is a forward-referenceable GOTO/GOSUB target.
type label struct {
	defined bool
	pc      int
	fixups  int32 // chain of branch operands awaiting this label's address
}

// New creates a Compiler sharing h and a persistent global table; h is
// expected to live across an entire REPL session exactly like the
// original's single long-lived compiler heap.
func New(h *heap.Heap) *Compiler {
	c := &Compiler{
		Heap:      h,
		Globals:   symtab.NewGlobalTable(h),
		arguments: symtab.NewLocalTable(h),
		locals:    symtab.NewLocalTable(h),
	}
	c.initCommonTypes()
	return c
}

func (c *Compiler) initCommonTypes() {
	c.integerType, _ = c.Heap.NewType(heap.TypeInteger)
	c.byteType, _ = c.Heap.NewType(heap.TypeByte)
	c.stringType, _ = c.Heap.NewType(heap.TypeString)

	c.integerArrayType, _ = c.Heap.NewType(heap.TypeArray)
	if t, err := c.Heap.GetType(c.integerArrayType); err == nil {
		t.ElementType = c.integerType
	}
	c.byteArrayType, _ = c.Heap.NewType(heap.TypeArray)
	if t, err := c.Heap.GetType(c.byteArrayType); err == nil {
		t.ElementType = c.byteType
	}
	c.stringArrayType, _ = c.Heap.NewType(heap.TypeArray)
	if t, err := c.Heap.GetType(c.stringArrayType); err == nil {
		t.ElementType = c.stringType
	}
}

// SetScanner attaches the token source for the next Compile call. The
// scanner is supplied by the host (REPL loop or file reader).
func (c *Compiler) SetScanner(s *scanner.Scanner) { c.scanner = s }

// CompileOne compiles a single logical line (one or more statements
// separated by `:`, plus any block it opens until that block closes)
// into a fresh Code object -- db_compiler.c's Compile with
// oneStatement = VMTRUE, the REPL's unit of execution.
func (c *Compiler) CompileOne() (handle heap.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				err = pe
				return
			}
			panic(r)
		}
	}()

	if !c.scanner.GetLine() {
		return 0, nil
	}
	c.startCode("main", CodeMain)
	c.compileLinesUntilBalanced()
	c.emitOp(bytecode.HALT)
	return c.storeCode(), nil
}

// CompileProgram compiles every remaining line from the scanner as one
// program: db_compiler.c's Compile with oneStatement = VMFALSE.
func (c *Compiler) CompileProgram() (handle heap.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				err = pe
				return
			}
			panic(r)
		}
	}()

	c.startCode("main", CodeMain)
	for c.scanner.GetLine() {
		c.parseLine()
	}
	c.emitOp(bytecode.HALT)
	return c.storeCode(), nil
}

func (c *Compiler) compileLinesUntilBalanced() {
	c.parseLine()
	for len(c.blocks) > 0 || c.codeType == CodeFunction || c.codeType == CodeSub {
		if !c.scanner.GetLine() {
			c.fail("unexpected end of input")
		}
		c.parseLine()
	}
}

func (c *Compiler) parseLine() {
	tok, err := c.scanner.GetToken()
	if err != nil {
		c.fail("%v", err)
	}
	if tok.Type != scanner.TEOL {
		c.parseStatement(tok)
	}
}

// startCode begins staging a new code object. Functions/subs must
// precede or follow the main code and may not nest.
func (c *Compiler) startCode(name string, typ CodeType) {
	c.codeName = name
	c.codeType = typ
	c.argumentCount = 0
	c.handleArgumentCount = 0
	c.arguments.Reset()
	c.locals.Reset()
	c.nextValueOffset = 0
	c.nextHandleOffset = 0
	c.returnFixups = -1
	c.code = c.code[:0]

	// Every code object, including main, gets a RESERVE prolog: main
	// has no caller-built frame, but FOR/DO temporaries still need
	// local slots, so the interpreter treats the program entry point
	// as an implicit call with FP = SP = 0, HFP = HSP = 0.
	c.emitOp(bytecode.RESERVE)
	c.emitByte(0)
	c.emitByte(0)
}

// storeCode finalises the staging buffer: patches RESERVE with the
// final local counts, resolves the RETURN fixup chain, appends the
// epilog, verifies every block and label was closed/defined, and
// writes the bytes into the code object's heap payload.
func (c *Compiler) storeCode() heap.Handle {
	if len(c.blocks) > 0 {
		c.failUnterminatedBlock()
	}

	c.code[1] = byte(c.nextValueOffset)
	c.code[2] = byte(c.nextHandleOffset)
	c.resolveFixupChain(c.returnFixups, len(c.code))
	c.returnFixups = -1

	if c.codeType != CodeMain {
		if c.codeType == CodeFunction && c.declaredIsFn {
			if c.declaredRet == c.stringType {
				c.emitOp(bytecode.RETURNH)
			} else {
				c.emitOp(bytecode.RETURN)
			}
		} else {
			c.emitOp(bytecode.RETURNV)
		}
		c.emitByte(byte(c.argumentCount))
		c.emitByte(byte(c.handleArgumentCount))
	}

	c.checkLabelsDefined()

	handle, err := c.Heap.NewCode(len(c.code))
	if err != nil {
		c.fail("%v", err)
	}
	if err := c.Heap.StoreByteVectorData(handle, c.code); err != nil {
		c.fail("%v", err)
	}

	if c.Trace && c.Out != nil {
		c.Out.Printf("%s:\n", c.codeName)
		for pc := 0; pc < len(c.code); {
			text, next := bytecode.Disassemble(c.code, pc)
			c.Out.Printf("  %4d  %s\n", pc, text)
			pc = next
		}
	}

	c.labels = nil
	return handle
}

func (c *Compiler) failUnterminatedBlock() {
	switch c.blocks[len(c.blocks)-1].typ {
	case blockIf, blockElse:
		c.fail("expecting END IF")
	case blockFor:
		c.fail("expecting NEXT")
	case blockDo:
		c.fail("expecting LOOP")
	}
}

// --- code buffer emission -------------------------------------------------

func (c *Compiler) emitOp(op bytecode.Opcode) { c.code = append(c.code, byte(op)) }
func (c *Compiler) emitByte(b byte)           { c.code = append(c.code, b) }

func (c *Compiler) emitWord4(v int32) {
	c.code = bytecode.PutWord4(c.code, v)
}

func (c *Compiler) pc() int { return len(c.code) }

// emitBranch appends op followed by a placeholder word, returning the
// operand's offset for later use in a fixup chain.
func (c *Compiler) emitBranch(op bytecode.Opcode) int {
	c.emitOp(op)
	site := c.pc()
	c.emitWord4(0)
	return site
}
