package symtab

import (
	"testing"

	"github.com/dbetz/picobasic/pkg/heap"
)

func TestGlobalLookupIsCaseInsensitive(t *testing.T) {
	h := heap.New(1024, 16)
	typ, _ := h.NewType(heap.TypeInteger)
	table := NewGlobalTable(h)
	if _, err := table.AddGlobal("Count", heap.ClassGlobal, typ); err != nil {
		t.Fatalf("AddGlobal: %v", err)
	}
	if _, _, ok := table.FindGlobal("COUNT"); !ok {
		t.Error("expected case-insensitive lookup to find Count")
	}
	if _, _, ok := table.FindGlobal("nope"); ok {
		t.Error("expected lookup of an absent name to fail")
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	h := heap.New(1024, 16)
	typ, _ := h.NewType(heap.TypeInteger)
	table := NewGlobalTable(h)
	names := []string{"A", "B", "C"}
	for _, n := range names {
		if _, err := table.AddGlobal(n, heap.ClassGlobal, typ); err != nil {
			t.Fatalf("AddGlobal(%s): %v", n, err)
		}
	}
	handles := table.Handles()
	if len(handles) != 3 {
		t.Fatalf("got %d handles, want 3", len(handles))
	}
	for i, h2 := range handles {
		sym, err := h.GetSymbol(h2)
		if err != nil {
			t.Fatalf("GetSymbol: %v", err)
		}
		if sym.Name != names[i] {
			t.Errorf("position %d: got %q, want %q", i, sym.Name, names[i])
		}
	}
}

func TestResetEmptiesTable(t *testing.T) {
	h := heap.New(1024, 16)
	typ, _ := h.NewType(heap.TypeInteger)
	table := NewLocalTable(h)
	table.AddLocal("x", typ, -1)
	table.Reset()
	if table.Count() != 0 {
		t.Errorf("Count after Reset = %d, want 0", table.Count())
	}
	if _, _, ok := table.FindLocal("x"); ok {
		t.Error("expected lookup to fail after Reset")
	}
}
