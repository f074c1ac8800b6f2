package heap

import "testing"

func TestNewStringAndPayload(t *testing.T) {
	h := New(1024, 16)
	handle, err := h.NewString(5)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	if err := h.StoreByteVectorData(handle, []byte("hello")); err != nil {
		t.Fatalf("StoreByteVectorData: %v", err)
	}
	s, err := h.GetString(handle)
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if s != "hello" {
		t.Errorf("got %q, want %q", s, "hello")
	}
	if size, _ := h.GetSize(handle); size != 5 {
		t.Errorf("GetSize = %d, want 5", size)
	}
	if kind, _ := h.GetKind(handle); kind != KindString {
		t.Errorf("GetKind = %v, want String", kind)
	}
}

func TestWrongKindAccessor(t *testing.T) {
	h := New(1024, 16)
	handle, _ := h.NewIntegerVector(4)
	if _, err := h.GetString(handle); err == nil {
		t.Fatal("expected WrongKind error reading a string off an IntegerVector")
	}
}

func TestHandleExhausted(t *testing.T) {
	h := New(1024, 2)
	if _, err := h.NewString(1); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := h.NewString(1); err != nil {
		t.Fatalf("second alloc: %v", err)
	}
	if _, err := h.NewString(1); err != ErrHandleExhausted {
		t.Fatalf("third alloc: got %v, want ErrHandleExhausted", err)
	}
}

func TestHeapFull(t *testing.T) {
	h := New(4, 16)
	if _, err := h.NewString(4); err != nil {
		t.Fatalf("alloc 4 bytes: %v", err)
	}
	if _, err := h.NewString(1); err != ErrHeapFull {
		t.Fatalf("alloc past capacity: got %v, want ErrHeapFull", err)
	}
}

func TestIntegerVectorGetSet(t *testing.T) {
	h := New(1024, 16)
	handle, err := h.NewIntegerVector(3)
	if err != nil {
		t.Fatalf("NewIntegerVector: %v", err)
	}
	if err := h.IntegerVectorSet(handle, 1, 42); err != nil {
		t.Fatalf("IntegerVectorSet: %v", err)
	}
	v, err := h.IntegerVectorGet(handle, 1)
	if err != nil {
		t.Fatalf("IntegerVectorGet: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
	if _, err := h.IntegerVectorGet(handle, 3); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if _, err := h.IntegerVectorGet(handle, -1); err == nil {
		t.Fatal("expected out-of-range error for negative index")
	}
}

func TestCompactPreservesLiveDataAndReclaimsDead(t *testing.T) {
	h := New(64, 16)
	keep, _ := h.NewString(4)
	h.StoreByteVectorData(keep, []byte("keep"))
	discard, _ := h.NewString(4)
	h.StoreByteVectorData(discard, []byte("gone"))

	before, _ := h.GetString(keep)

	if err := h.Compact([]Handle{keep}); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	after, err := h.GetString(keep)
	if err != nil {
		t.Fatalf("GetString after compact: %v", err)
	}
	if after != before {
		t.Errorf("payload changed across compaction: got %q, want %q", after, before)
	}

	if _, err := h.GetKind(discard); err == nil {
		t.Fatal("expected discarded handle to be freed by Compact")
	}

	// Freed arena space must be reusable.
	if _, err := h.NewByteVector(60); err != nil {
		t.Fatalf("allocation after compaction should reuse reclaimed space: %v", err)
	}
}

func TestCompactTracesStringVectorElements(t *testing.T) {
	h := New(64, 16)
	elem, _ := h.NewString(3)
	h.StoreByteVectorData(elem, []byte("abc"))
	vec, _ := h.NewStringVector(1)
	h.StringVectorSet(vec, 0, elem)

	if err := h.Compact([]Handle{vec}); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	if _, err := h.GetKind(elem); err != nil {
		t.Fatalf("element reachable through a live StringVector should survive: %v", err)
	}
}
