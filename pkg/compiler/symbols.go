package compiler

import "github.com/dbetz/picobasic/pkg/heap"

// binding is a resolved reference to a name: either a function-local
// (argument or RESERVE'd local), addressed by a signed frame-relative
// offset, or a global, addressed by its Symbol handle.
//
// Frame offsets: arguments are numbered 1, 2, 3, ... from the last
// declared back to the first (the caller has already pushed them left
// to right before CALL, so the last one sits nearest the frame pointer);
// RESERVE'd locals are numbered -1, -2, -3, ... in declaration order.
// Value-stack and handle-stack slots are numbered independently. This
// is a deliberate simplification of the original's single combined
// frame-pointer arithmetic -- see DESIGN.md -- but preserves the same
// property: locals and arguments are addressed by a signed offset from
// the frame pointer, resolved entirely at compile time.
type binding struct {
	isLocal bool
	typ     exprType

	// isLocal == true
	offset int32

	// isLocal == false
	handle heap.Handle
	class  heap.StorageClass
}

// resolve looks up name against locals, then arguments, then globals,
// in that order (shadowing), and reports whether it was found.
func (c *Compiler) resolve(name string) (binding, bool) {
	if _, loc, ok := c.locals.FindLocal(name); ok {
		return binding{isLocal: true, typ: exprType{loc.Type}, offset: loc.Offset}, true
	}
	if _, loc, ok := c.arguments.FindLocal(name); ok {
		return binding{isLocal: true, typ: exprType{loc.Type}, offset: loc.Offset}, true
	}
	if h, sym, ok := c.Globals.FindGlobal(name); ok {
		return binding{isLocal: false, typ: exprType{sym.Type}, handle: h, class: sym.Class}, true
	}
	return binding{}, false
}

// declareLocal allocates a fresh RESERVE'd local slot for name.
func (c *Compiler) declareLocal(name string, typ exprType) binding {
	if _, _, ok := c.locals.FindLocal(name); ok {
		c.fail("%s is already declared", name)
	}
	var offset int32
	if c.isHandleStored(typ) {
		c.nextHandleOffset++
		offset = -c.nextHandleOffset
	} else {
		c.nextValueOffset++
		offset = -c.nextValueOffset
	}
	if _, err := c.locals.AddLocal(name, typ.handle, offset); err != nil {
		c.fail("%v", err)
	}
	return binding{isLocal: true, typ: typ, offset: offset}
}

// declareArgument allocates a positional argument slot for name.
// remainingValues/remainingHandles count name's own stack-kind plus
// every argument still to be declared after it, so the first-declared
// (leftmost, pushed deepest by the caller) argument gets the largest
// offset and the last-declared (rightmost, pushed last, closest to
// fp) gets offset 1 -- the reverse of declaration order, matching
// where CALL's caller actually leaves each value relative to fp.
func (c *Compiler) declareArgument(name string, typ exprType, remainingValues, remainingHandles int32) {
	var offset int32
	if c.isHandleStored(typ) {
		c.handleArgumentCount++
		offset = remainingHandles
	} else {
		c.argumentCount++
		offset = remainingValues
	}
	if _, err := c.arguments.AddLocal(name, typ.handle, offset); err != nil {
		c.fail("%v", err)
	}
}

// declareGlobal adds name to the persistent global table.
func (c *Compiler) declareGlobal(name string, class heap.StorageClass, typ exprType) heap.Handle {
	if _, _, ok := c.Globals.FindGlobal(name); ok {
		c.fail("%s is already declared", name)
	}
	h, err := c.Globals.AddGlobal(name, class, typ.handle)
	if err != nil {
		c.fail("%v", err)
	}
	return h
}

func (c *Compiler) globalSymbol(h heap.Handle) *heap.Symbol {
	sym, err := c.Heap.GetSymbol(h)
	if err != nil {
		c.fail("%v", err)
	}
	return sym
}
