// Package vm implements the bytecode interpreter: a dual-stack machine
// that executes the Code objects pkg/compiler builds, over the same
// heap the compiler allocated strings, arrays, and symbols on. See
// db_vmint.c's Execute switch, which this file's dispatch loop mirrors
// case for case, and db_vm.h's Push/Pop/PushH/PopH/Reserve macros,
// which fix the calling convention honoured here.
package vm

import (
	"github.com/dbetz/picobasic/pkg/bytecode"
	"github.com/dbetz/picobasic/pkg/heap"
	"github.com/dbetz/picobasic/pkg/host"
)

// frame records what a CALL must restore when its callee returns: the
// caller's code, program counter, and stack frame pointers. Pushed by
// doCall, popped by doReturn -- kept as a Go-level stack rather than
// interleaved into the value/handle stacks themselves, since Go gives
// us a growable slice for free where the original threads this data
// through raw stack memory shared with the data stacks.
type frame struct {
	code       []byte
	codeHandle heap.Handle
	pc         int
	fp, hfp    int
}

// TraceWriter is the minimal sink Trace output needs.
type TraceWriter interface {
	Printf(format string, args ...interface{})
}

// Interpreter executes compiled Code objects against a shared heap and
// host. One Interpreter is created per REPL/program session and reused
// across every Execute call so that global variables and any open
// files persist between statements, exactly like the original's single
// long-lived Interpreter struct.
type Interpreter struct {
	Heap *heap.Heap
	Host *host.Host

	valueStack  []int32
	handleStack []heap.Handle
	maxValues   int
	maxHandles  int

	fp, hfp    int
	code       []byte
	codeHandle heap.Handle
	pc         int
	frames     []frame

	Trace bool
	Out   TraceWriter
}

// New creates an Interpreter backed by h, with console/file I/O routed
// through hst, and value/handle stacks capped at maxValueStack and
// maxHandleStack entries respectively -- the Go analogue of the
// original's fixed-size C stack arrays, sized by pkg/config.
func New(h *heap.Heap, hst *host.Host, maxValueStack, maxHandleStack int) *Interpreter {
	return &Interpreter{
		Heap:       h,
		Host:       hst,
		maxValues:  maxValueStack,
		maxHandles: maxHandleStack,
	}
}

// Execute runs codeHandle (a Code object built by pkg/compiler) from
// its first instruction until it HALTs, returning any RuntimeAbort or
// HostError raised along the way as a plain error. The value and
// handle stacks start and, on success, end empty; on failure they are
// reset but the heap's globals are left exactly as they stood at the
// moment of the fault.
func (vm *Interpreter) Execute(codeHandle heap.Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			vm.valueStack = vm.valueStack[:0]
			vm.handleStack = vm.handleStack[:0]
			vm.frames = vm.frames[:0]
			switch e := r.(type) {
			case *RuntimeAbort:
				err = e
			case *HostError:
				err = e
			default:
				panic(r)
			}
		}
	}()

	vm.valueStack = vm.valueStack[:0]
	vm.handleStack = vm.handleStack[:0]
	vm.frames = vm.frames[:0]

	payload, e := vm.Heap.GetPayload(codeHandle)
	if e != nil {
		return e
	}
	vm.code = payload
	vm.codeHandle = codeHandle
	vm.pc = 0
	vm.fp = 0
	vm.hfp = 0

	vm.run()
	vm.valueStack = vm.valueStack[:0]
	vm.handleStack = vm.handleStack[:0]
	return nil
}

func (vm *Interpreter) run() {
	for {
		if vm.Trace && vm.Out != nil {
			text, _ := bytecode.Disassemble(vm.code, vm.pc)
			vm.Out.Printf("  %4d  %-24s (v=%d h=%d)\n", vm.pc, text, len(vm.valueStack), len(vm.handleStack))
		}

		op := bytecode.Opcode(vm.fetchByte())
		switch op {
		case bytecode.HALT:
			return

		case bytecode.DROP:
			vm.popInt()

		case bytecode.LIT:
			vm.pushInt(vm.fetchWord4())
		case bytecode.LITH:
			vm.pushHandle(heap.Handle(vm.fetchWord4()))

		case bytecode.GREF:
			vm.pushInt(vm.symbolAt(vm.fetchWord4()).IValue)
		case bytecode.GSET:
			vm.symbolAt(vm.fetchWord4()).IValue = vm.popInt()
		case bytecode.GREFH:
			vm.pushHandle(vm.symbolAt(vm.fetchWord4()).HValue)
		case bytecode.GSETH:
			vm.symbolAt(vm.fetchWord4()).HValue = vm.popHandle()

		case bytecode.LREF:
			vm.pushInt(vm.valueStack[vm.valueIndex(vm.fetchOffset())])
		case bytecode.LSET:
			idx := vm.valueIndex(vm.fetchOffset())
			vm.valueStack[idx] = vm.popInt()
		case bytecode.LREFH:
			vm.pushHandle(vm.handleStack[vm.handleIndex(vm.fetchOffset())])
		case bytecode.LSETH:
			idx := vm.handleIndex(vm.fetchOffset())
			vm.handleStack[idx] = vm.popHandle()

		case bytecode.VREF:
			index := vm.popInt()
			arr := vm.popHandle()
			v, err := vm.Heap.IntegerVectorGet(arr, int(index))
			if err != nil {
				abort(ArraySubscriptError, index, "array index %d out of range", index)
			}
			vm.pushInt(v)
		case bytecode.VSET:
			value := vm.popInt()
			index := vm.popInt()
			arr := vm.popHandle()
			if err := vm.Heap.IntegerVectorSet(arr, int(index), value); err != nil {
				abort(ArraySubscriptError, index, "array index %d out of range", index)
			}
		case bytecode.VREFH:
			index := vm.popInt()
			arr := vm.peekHandle()
			elem, err := vm.Heap.StringVectorGet(arr, int(index))
			if err != nil {
				abort(ArraySubscriptError, index, "array index %d out of range", index)
			}
			vm.setTopHandle(elem)
		case bytecode.VSETH:
			index := vm.popInt()
			value := vm.popHandle()
			arr := vm.popHandle()
			if err := vm.Heap.StringVectorSet(arr, int(index), value); err != nil {
				abort(ArraySubscriptError, index, "array index %d out of range", index)
			}

		case bytecode.NEG:
			vm.pushInt(-vm.popInt())
		case bytecode.ADD:
			b, a := vm.popInt(), vm.popInt()
			vm.pushInt(a + b)
		case bytecode.SUB:
			b, a := vm.popInt(), vm.popInt()
			vm.pushInt(a - b)
		case bytecode.MUL:
			b, a := vm.popInt(), vm.popInt()
			vm.pushInt(a * b)
		case bytecode.DIV:
			b, a := vm.popInt(), vm.popInt()
			if b == 0 {
				abort(DivideByZero, a, "division by zero")
			}
			vm.pushInt(a / b)
		case bytecode.REM:
			b, a := vm.popInt(), vm.popInt()
			if b == 0 {
				abort(DivideByZero, a, "division by zero")
			}
			vm.pushInt(a % b)
		case bytecode.NOT:
			vm.pushInt(boolInt(vm.popInt() == 0))
		case bytecode.BNOT:
			vm.pushInt(^vm.popInt())
		case bytecode.BAND:
			b, a := vm.popInt(), vm.popInt()
			vm.pushInt(a & b)
		case bytecode.BOR:
			b, a := vm.popInt(), vm.popInt()
			vm.pushInt(a | b)
		case bytecode.BXOR:
			b, a := vm.popInt(), vm.popInt()
			vm.pushInt(a ^ b)
		case bytecode.SHL:
			b, a := vm.popInt(), vm.popInt()
			vm.pushInt(a << uint32(b&31))
		case bytecode.SHR:
			b, a := vm.popInt(), vm.popInt()
			vm.pushInt(a >> uint32(b&31))

		case bytecode.LT:
			vm.compare(func(a, b int32) bool { return a < b })
		case bytecode.LE:
			vm.compare(func(a, b int32) bool { return a <= b })
		case bytecode.EQ:
			vm.compare(func(a, b int32) bool { return a == b })
		case bytecode.NE:
			vm.compare(func(a, b int32) bool { return a != b })
		case bytecode.GE:
			vm.compare(func(a, b int32) bool { return a >= b })
		case bytecode.GT:
			vm.compare(func(a, b int32) bool { return a > b })

		case bytecode.CAT:
			bh, ah := vm.popHandle(), vm.popHandle()
			as, err := vm.Heap.GetString(ah)
			if err != nil {
				abort(WrongType, 0, "CAT: %v", err)
			}
			bs, err := vm.Heap.GetString(bh)
			if err != nil {
				abort(WrongType, 0, "CAT: %v", err)
			}
			out := as + bs
			nh, err := vm.Heap.NewString(len(out))
			if err != nil {
				abort(OutOfMemory, int32(len(out)), "%v", err)
			}
			if err := vm.Heap.StoreByteVectorData(nh, []byte(out)); err != nil {
				abort(OutOfMemory, int32(len(out)), "%v", err)
			}
			vm.pushHandle(nh)

		case bytecode.BR:
			offset := vm.fetchWord4()
			vm.pc += int(offset)
		case bytecode.BRT:
			offset := vm.fetchWord4()
			if vm.popInt() != 0 {
				vm.pc += int(offset)
			}
		case bytecode.BRF:
			offset := vm.fetchWord4()
			if vm.popInt() == 0 {
				vm.pc += int(offset)
			}
		case bytecode.BRTSC:
			offset := vm.fetchWord4()
			if vm.peekInt() != 0 {
				vm.pc += int(offset)
			} else {
				vm.popInt()
			}
		case bytecode.BRFSC:
			offset := vm.fetchWord4()
			if vm.peekInt() == 0 {
				vm.pc += int(offset)
			} else {
				vm.popInt()
			}

		case bytecode.RESERVE:
			n, m := int(vm.fetchByte()), int(vm.fetchByte())
			for i := 0; i < n; i++ {
				vm.pushInt(0)
			}
			for i := 0; i < m; i++ {
				vm.pushHandle(heap.NilHandle)
			}

		case bytecode.CALL:
			vm.doCall(vm.popHandle())
		case bytecode.RETURN:
			vm.doReturn(true, false)
		case bytecode.RETURNH:
			vm.doReturn(false, true)
		case bytecode.RETURNV:
			vm.doReturn(false, false)

		default:
			abort(OpcodeError, int32(op), "unrecognised opcode %d", op)
		}
	}
}

// doCall dispatches a CALL to either a user-defined Code object (a new
// frame is pushed and execution jumps into it) or a host Intrinsic
// (invoked in place, no frame): db_vmint.c's OP_CALL, split on the
// handle's kind exactly as the original switches on obj->type.
func (vm *Interpreter) doCall(target heap.Handle) {
	kind, err := vm.Heap.GetKind(target)
	if err != nil {
		abort(NotCodeObject, int32(target), "CALL target is not a valid handle")
	}
	switch kind {
	case heap.KindIntrinsic:
		handler, err := vm.Heap.GetIntrinsic(target)
		if err != nil {
			abort(NotCodeObject, int32(target), "CALL target is not callable")
		}
		if err := handler(vm); err != nil {
			panic(&HostError{Cause: err})
		}
	case heap.KindCode:
		payload, err := vm.Heap.GetPayload(target)
		if err != nil {
			abort(NotCodeObject, int32(target), "CALL target is not callable")
		}
		vm.frames = append(vm.frames, frame{
			code:       vm.code,
			codeHandle: vm.codeHandle,
			pc:         vm.pc,
			fp:         vm.fp,
			hfp:        vm.hfp,
		})
		vm.code = payload
		vm.codeHandle = target
		vm.pc = 0
		vm.fp = len(vm.valueStack)
		vm.hfp = len(vm.handleStack)
	default:
		abort(NotCodeObject, int32(target), "CALL target is not callable")
	}
}

// doReturn pops the current frame and, for RETURN/RETURNH, carries the
// value or handle sitting on top of the appropriate stack back into
// the caller's context. n and m -- the callee's own declared argument
// counts, read from RETURN's operand bytes -- tell us how far below fp
// the caller's pushed arguments began, so the whole frame (arguments,
// locals, and any leftover expression temporaries) collapses in one
// truncation: db_vmint.c's OP_RETURN/OP_RETURNH/OP_RETURNV.
func (vm *Interpreter) doReturn(wantValue, wantHandle bool) {
	n, m := int(vm.fetchByte()), int(vm.fetchByte())

	var retValue int32
	var retHandle heap.Handle
	if wantValue {
		retValue = vm.popInt()
	}
	if wantHandle {
		retHandle = vm.popHandle()
	}

	if len(vm.frames) == 0 {
		abort(NotCodeObject, 0, "RETURN with no active call frame")
	}
	caller := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]

	vm.valueStack = vm.valueStack[:vm.fp-n]
	vm.handleStack = vm.handleStack[:vm.hfp-m]

	vm.code = caller.code
	vm.codeHandle = caller.codeHandle
	vm.pc = caller.pc
	vm.fp = caller.fp
	vm.hfp = caller.hfp

	if wantValue {
		vm.pushInt(retValue)
	}
	if wantHandle {
		vm.pushHandle(retHandle)
	}
}

func (vm *Interpreter) compare(rel func(a, b int32) bool) {
	b, a := vm.popInt(), vm.popInt()
	vm.pushInt(boolInt(rel(a, b)))
}

func boolInt(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

// symbolAt resolves a GREF/GSET/GREFH/GSETH operand, a Symbol handle
// embedded directly in the bytecode by the compiler.
func (vm *Interpreter) symbolAt(raw int32) *heap.Symbol {
	sym, err := vm.Heap.GetSymbol(heap.Handle(raw))
	if err != nil {
		abort(WrongType, raw, "invalid global symbol handle")
	}
	return sym
}

// valueIndex and handleIndex translate a compile-time frame offset
// into an index in the current frame's slice of the shared stack.
// Arguments were pushed by the caller below fp and carry positive
// offsets (1, 2, 3, ... counting back from fp); RESERVE's locals sit
// at or above fp and carry negative offsets (-1, -2, -3, ... counting
// forward from fp) -- the frame layout fixed by pkg/compiler's
// declareArgument/declareLocal.
func (vm *Interpreter) valueIndex(offset int8) int {
	if offset > 0 {
		return vm.fp - int(offset)
	}
	return vm.fp - int(offset) - 1
}

func (vm *Interpreter) handleIndex(offset int8) int {
	if offset > 0 {
		return vm.hfp - int(offset)
	}
	return vm.hfp - int(offset) - 1
}

// --- instruction-stream fetch helpers -------------------------------------

func (vm *Interpreter) fetchByte() byte {
	b := vm.code[vm.pc]
	vm.pc++
	return b
}

func (vm *Interpreter) fetchOffset() int8 {
	return int8(vm.fetchByte())
}

func (vm *Interpreter) fetchWord4() int32 {
	v := bytecode.GetWord4(vm.code, vm.pc)
	vm.pc += 4
	return v
}

// --- stack primitives ------------------------------------------------------
//
// PushValue/PopValue/PushHandle/PopHandle are exported for
// pkg/intrinsics' handlers, which pop their own arguments and push
// their own results exactly as a compiled CALL's callee would, without
// a Code object or frame of their own.

func (vm *Interpreter) pushInt(v int32) {
	if vm.maxValues > 0 && len(vm.valueStack) >= vm.maxValues {
		abort(StackOverflow, int32(len(vm.valueStack)), "value stack overflow")
	}
	vm.valueStack = append(vm.valueStack, v)
}

func (vm *Interpreter) popInt() int32 {
	if len(vm.valueStack) == 0 {
		abort(StackOverflow, 0, "value stack underflow")
	}
	idx := len(vm.valueStack) - 1
	v := vm.valueStack[idx]
	vm.valueStack = vm.valueStack[:idx]
	return v
}

func (vm *Interpreter) peekInt() int32 {
	if len(vm.valueStack) == 0 {
		abort(StackOverflow, 0, "value stack underflow")
	}
	return vm.valueStack[len(vm.valueStack)-1]
}

func (vm *Interpreter) pushHandle(h heap.Handle) {
	if vm.maxHandles > 0 && len(vm.handleStack) >= vm.maxHandles {
		abort(StackOverflow, int32(len(vm.handleStack)), "handle stack overflow")
	}
	vm.handleStack = append(vm.handleStack, h)
}

func (vm *Interpreter) popHandle() heap.Handle {
	if len(vm.handleStack) == 0 {
		abort(StackOverflow, 0, "handle stack underflow")
	}
	idx := len(vm.handleStack) - 1
	h := vm.handleStack[idx]
	vm.handleStack = vm.handleStack[:idx]
	return h
}

func (vm *Interpreter) peekHandle() heap.Handle {
	if len(vm.handleStack) == 0 {
		abort(StackOverflow, 0, "handle stack underflow")
	}
	return vm.handleStack[len(vm.handleStack)-1]
}

func (vm *Interpreter) setTopHandle(h heap.Handle) {
	if len(vm.handleStack) == 0 {
		abort(StackOverflow, 0, "handle stack underflow")
	}
	vm.handleStack[len(vm.handleStack)-1] = h
}

// PushValue pushes v onto the value stack. Exported for pkg/intrinsics.
func (vm *Interpreter) PushValue(v int32) { vm.pushInt(v) }

// PopValue pops and returns the value stack's top. Exported for
// pkg/intrinsics.
func (vm *Interpreter) PopValue() int32 { return vm.popInt() }

// PushHandle pushes h onto the handle stack. Exported for
// pkg/intrinsics.
func (vm *Interpreter) PushHandle(h heap.Handle) { vm.pushHandle(h) }

// PopHandle pops and returns the handle stack's top. Exported for
// pkg/intrinsics.
func (vm *Interpreter) PopHandle() heap.Handle { return vm.popHandle() }
