// Package symtab implements the insertion-ordered, case-insensitive
// symbol tables used while compiling: one persistent table for globals,
// and a pair of tables — arguments and locals — cleared between
// functions.
package symtab

import (
	"strings"

	"github.com/dbetz/picobasic/pkg/heap"
)

// Table is an insertion-ordered linked list of Symbol or Local handles,
// threaded through each record's own Next field so the table itself
// need only remember its head, tail, and count — mirroring
// db_symbols.c's SymbolTable exactly.
type Table struct {
	h      *heap.Heap
	head   heap.Handle
	tail   heap.Handle
	count  int
	isArgs bool // true for argument/local tables (Local records); false for globals (Symbol records)
}

// NewGlobalTable returns an empty table of Symbol records.
func NewGlobalTable(h *heap.Heap) *Table {
	return &Table{h: h}
}

// NewLocalTable returns an empty table of Local records (used for both
// the argument table and the local-variable table of a function under
// construction).
func NewLocalTable(h *heap.Heap) *Table {
	return &Table{h: h, isArgs: true}
}

// Count returns the number of entries in the table.
func (t *Table) Count() int { return t.count }

// Head returns the first handle inserted, or NilHandle if the table is
// empty.
func (t *Table) Head() heap.Handle { return t.head }

// Reset empties the table without touching the heap (used between
// functions; the handles themselves become unreachable and are reclaimed
// on the next Compact).
func (t *Table) Reset() {
	t.head, t.tail, t.count = 0, 0, 0
}

// AddGlobal allocates and appends a new Symbol.
func (t *Table) AddGlobal(name string, class heap.StorageClass, typ heap.Handle) (heap.Handle, error) {
	handle, err := t.h.NewSymbol(name, class, typ)
	if err != nil {
		return 0, err
	}
	t.append(handle)
	return handle, nil
}

// FindGlobal looks up a Symbol by case-insensitive name.
func (t *Table) FindGlobal(name string) (heap.Handle, *heap.Symbol, bool) {
	for cur := t.head; cur != 0; {
		sym, err := t.h.GetSymbol(cur)
		if err != nil {
			return 0, nil, false
		}
		if strings.EqualFold(sym.Name, name) {
			return cur, sym, true
		}
		cur = sym.Next
	}
	return 0, nil, false
}

// AddLocal allocates and appends a new Local (used for both argument
// and local-variable tables — the distinction is purely which *Table
// the caller holds).
func (t *Table) AddLocal(name string, typ heap.Handle, offset int32) (heap.Handle, error) {
	handle, err := t.h.NewLocal(name, typ, offset)
	if err != nil {
		return 0, err
	}
	t.append(handle)
	return handle, nil
}

// FindLocal looks up a Local by case-insensitive name.
func (t *Table) FindLocal(name string) (heap.Handle, *heap.Local, bool) {
	for cur := t.head; cur != 0; {
		loc, err := t.h.GetLocal(cur)
		if err != nil {
			return 0, nil, false
		}
		if strings.EqualFold(loc.Name, name) {
			return cur, loc, true
		}
		cur = loc.Next
	}
	return 0, nil, false
}

// Handles returns every handle in insertion order.
func (t *Table) Handles() []heap.Handle {
	out := make([]heap.Handle, 0, t.count)
	if t.isArgs {
		for cur := t.head; cur != 0; {
			out = append(out, cur)
			loc, err := t.h.GetLocal(cur)
			if err != nil {
				break
			}
			cur = loc.Next
		}
	} else {
		for cur := t.head; cur != 0; {
			out = append(out, cur)
			sym, err := t.h.GetSymbol(cur)
			if err != nil {
				break
			}
			cur = sym.Next
		}
	}
	return out
}

func (t *Table) append(handle heap.Handle) {
	if t.tail == 0 {
		t.head, t.tail = handle, handle
	} else {
		if t.isArgs {
			if last, err := t.h.GetLocal(t.tail); err == nil {
				last.Next = handle
			}
		} else {
			if last, err := t.h.GetSymbol(t.tail); err == nil {
				last.Next = handle
			}
		}
		t.tail = handle
	}
	t.count++
}

// IsConstant reports whether a Symbol's storage class is Constant.
func IsConstant(sym *heap.Symbol) bool {
	return sym.Class == heap.ClassConstant
}
