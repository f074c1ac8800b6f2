// Package heap implements the managed object heap: a fixed handle table
// over a compacting byte arena.
//
// Every live value a compiled program can name beyond a plain integer —
// strings, arrays, compiled code, symbols, the host's intrinsic functions —
// lives behind a Handle. A Handle is stable across compaction; the
// payload it refers to is not, which is exactly the property that lets
// compiled bytecode embed a handle as a literal operand and keep working
// after the heap slides its arena around underneath it.
//
// Two families of object share the handle table:
//
//   - arena-backed kinds (Code, String, ByteVector, IntegerVector,
//     StringVector) whose payload is a variable-length byte run in the
//     arena, reachable through GetPayload and friends, and moved by
//     Compact;
//   - record kinds (Symbol, Local, Type, Intrinsic) whose payload is a
//     small, fixed Go struct held directly in the object's table entry.
//     These never need sliding: Go's own allocator already gives their
//     fields a stable address for as long as the handle is referenced,
//     so only the handle itself — not a raw pointer into it — may be
//     cited from elsewhere (bytecode literals, other objects' fields).
//
// This split mirrors the original C implementation (db_vmheap.h), which
// distinguished "heap objects" carrying a byte-vector payload from the
// compiler's own structures; it is simply made explicit here instead of
// relying on casts.
package heap

import (
	"fmt"

	"github.com/pkg/errors"
)

// Handle is a stable, opaque reference to a heap object. The zero Handle
// never refers to a live object.
type Handle int32

// NilHandle is the handle value that never refers to a live object.
const NilHandle Handle = 0

// ObjectKind tags the payload layout of a live handle.
type ObjectKind byte

const (
	KindFree ObjectKind = iota
	KindCode
	KindIntrinsic
	KindString
	KindByteVector
	KindIntegerVector
	KindStringVector
	KindSymbol
	KindLocal
	KindType
)

func (k ObjectKind) String() string {
	switch k {
	case KindCode:
		return "Code"
	case KindIntrinsic:
		return "Intrinsic"
	case KindString:
		return "String"
	case KindByteVector:
		return "ByteVector"
	case KindIntegerVector:
		return "IntegerVector"
	case KindStringVector:
		return "StringVector"
	case KindSymbol:
		return "Symbol"
	case KindLocal:
		return "Local"
	case KindType:
		return "Type"
	default:
		return "Free"
	}
}

func (k ObjectKind) arenaBacked() bool {
	switch k {
	case KindCode, KindString, KindByteVector, KindIntegerVector, KindStringVector:
		return true
	default:
		return false
	}
}

// Sentinel error categories for heap faults. Each is returned
// (optionally wrapped with errors.Wrap for extra context) rather than
// named as a concrete type, so callers can test with errors.Is.
var (
	ErrHeapFull        = errors.New("heap full")
	ErrHandleExhausted = errors.New("no free heap handles")
	ErrWrongKind       = errors.New("wrong heap object kind")
)

// IntrinsicHandler is the host-implemented function a KindIntrinsic
// object records. The vm package supplies the concrete Interpreter type
// at the call site; heap only needs to store the function value.
type IntrinsicHandler func(i interface{}) error

// StorageClass is a Symbol's binding class.
type StorageClass byte

const (
	ClassConstant StorageClass = iota
	ClassGlobal
	ClassLocal
	ClassArgument
)

// Symbol is the record payload of a KindSymbol object: a name, its
// storage class, its type, and the union of {integer value, handle
// value} selected by that type. Next chains symbols within whichever
// SymbolTable holds them (see pkg/symtab), in insertion order.
type Symbol struct {
	Name         string
	Class        StorageClass
	Type         Handle
	IValue       int32
	HValue       Handle
	Next         Handle
}

// Local is the record payload of a KindLocal object: an argument or
// local variable's name, type, and signed frame-relative stack offset.
type Local struct {
	Name   string
	Type   Handle
	Offset int32
	Next   Handle
}

// TypeKind distinguishes the variants of Type.
type TypeKind byte

const (
	TypeInteger TypeKind = iota
	TypeByte
	TypeString
	TypeArray
	TypeFunction
)

// FunctionInfo is the payload of a TypeFunction Type: its argument
// symbol table (recorded as the head handle + count, mirroring
// symtab.Table's own shape so the two packages stay decoupled) and
// declared return type.
type FunctionInfo struct {
	ArgsHead   Handle
	ArgsCount  int
	ReturnType Handle
}

// Type is the record payload of a KindType object.
type Type struct {
	Kind        TypeKind
	ElementType Handle       // TypeArray
	Function    FunctionInfo // TypeFunction
}

type object struct {
	kind ObjectKind
	live bool
	mark bool // scratch bit used only during Compact

	// arena-backed kinds
	offset int
	size   int

	// record kinds
	sym       *Symbol
	local     *Local
	typ       *Type
	intrinsic IntrinsicHandler

	// free-list link (valid only when !live)
	nextFree Handle
}

// Heap is the object heap: a fixed-capacity handle table over a bump
// allocator for the data arena.
type Heap struct {
	objects    []object
	freeHead   Handle // 0 == empty free list
	arena      []byte
	arenaNext  int
	maxObjects int
}

// New creates a heap with room for maxObjects live handles and an arena
// of arenaSize bytes. Handle 0 is permanently reserved as NilHandle, so
// the table holds maxObjects+1 entries.
func New(arenaSize, maxObjects int) *Heap {
	h := &Heap{
		objects:    make([]object, maxObjects+1),
		arena:      make([]byte, arenaSize),
		maxObjects: maxObjects,
	}
	// link slots 1..maxObjects into the free list, lowest first, so
	// allocation tends to return low handles first (matches the
	// original's "first-free-slot" policy and keeps sweep order stable).
	for i := maxObjects; i >= 1; i-- {
		h.objects[i].nextFree = h.freeHead
		h.freeHead = Handle(i)
	}
	return h
}

func (h *Heap) slot(handle Handle) (*object, error) {
	if handle <= 0 || int(handle) >= len(h.objects) || !h.objects[handle].live {
		return nil, errors.Wrapf(ErrWrongKind, "invalid handle %d", handle)
	}
	return &h.objects[handle], nil
}

func (h *Heap) allocSlot(kind ObjectKind) (Handle, *object, error) {
	if h.freeHead == 0 {
		return 0, nil, ErrHandleExhausted
	}
	handle := h.freeHead
	obj := &h.objects[handle]
	h.freeHead = obj.nextFree
	*obj = object{kind: kind, live: true}
	return handle, obj, nil
}

func (h *Heap) allocArena(n int) (int, error) {
	if h.arenaNext+n > len(h.arena) {
		return 0, ErrHeapFull
	}
	offset := h.arenaNext
	h.arenaNext += n
	return offset, nil
}

// NewObject allocates a handle of the given kind with a payloadSize-byte
// arena payload (zeroed). It is the generic entry point used by the
// typed constructors below; kinds whose payload is a Go record rather
// than arena bytes should use their dedicated constructor instead.
func (h *Heap) NewObject(kind ObjectKind, payloadSize int) (Handle, error) {
	if payloadSize < 0 {
		return 0, errors.New("negative payload size")
	}
	offset, err := h.allocArena(payloadSize)
	if err != nil {
		return 0, err
	}
	handle, obj, err := h.allocSlot(kind)
	if err != nil {
		return 0, err
	}
	obj.offset = offset
	obj.size = payloadSize
	return handle, nil
}

// NewCode allocates a Code object with an uninitialised byteLength-byte
// payload; StoreByteVectorData fills it in once compilation finishes.
func (h *Heap) NewCode(byteLength int) (Handle, error) {
	return h.NewObject(KindCode, byteLength)
}

// NewString allocates a String (a ByteVector with a distinguished kind)
// of the given length.
func (h *Heap) NewString(length int) (Handle, error) {
	return h.NewObject(KindString, length)
}

// NewByteVector allocates a plain ByteVector of the given length.
func (h *Heap) NewByteVector(length int) (Handle, error) {
	return h.NewObject(KindByteVector, length)
}

// NewIntegerVector allocates a mutable vector of n signed 32-bit
// integers, zero-initialised.
func (h *Heap) NewIntegerVector(n int) (Handle, error) {
	handle, err := h.NewObject(KindIntegerVector, n*4)
	if err != nil {
		return 0, err
	}
	obj, _ := h.slot(handle)
	obj.size = n
	return handle, nil
}

// NewStringVector allocates a mutable vector of n handles, zero
// (NilHandle) initialised.
func (h *Heap) NewStringVector(n int) (Handle, error) {
	handle, err := h.NewObject(KindStringVector, n*4)
	if err != nil {
		return 0, err
	}
	obj, _ := h.slot(handle)
	obj.size = n
	return handle, nil
}

// NewSymbol allocates a Symbol record.
func (h *Heap) NewSymbol(name string, class StorageClass, typ Handle) (Handle, error) {
	handle, obj, err := h.allocSlot(KindSymbol)
	if err != nil {
		return 0, err
	}
	obj.sym = &Symbol{Name: name, Class: class, Type: typ}
	return handle, nil
}

// NewLocal allocates a Local record.
func (h *Heap) NewLocal(name string, typ Handle, offset int32) (Handle, error) {
	handle, obj, err := h.allocSlot(KindLocal)
	if err != nil {
		return 0, err
	}
	obj.local = &Local{Name: name, Type: typ, Offset: offset}
	return handle, nil
}

// NewType allocates a Type record of the given kind.
func (h *Heap) NewType(kind TypeKind) (Handle, error) {
	handle, obj, err := h.allocSlot(KindType)
	if err != nil {
		return 0, err
	}
	obj.typ = &Type{Kind: kind}
	return handle, nil
}

// NewIntrinsic allocates an Intrinsic object wrapping a host handler.
func (h *Heap) NewIntrinsic(handler IntrinsicHandler) (Handle, error) {
	handle, obj, err := h.allocSlot(KindIntrinsic)
	if err != nil {
		return 0, err
	}
	obj.intrinsic = handler
	return handle, nil
}

// GetKind returns the ObjectKind of a live handle.
func (h *Heap) GetKind(handle Handle) (ObjectKind, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return KindFree, err
	}
	return obj.kind, nil
}

// GetSize returns the payload's logical length: bytes for String/
// ByteVector/Code, element count for IntegerVector/StringVector.
func (h *Heap) GetSize(handle Handle) (int, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return 0, err
	}
	return obj.size, nil
}

// GetPayload returns the byte-vector payload of a Code, String, or
// ByteVector object. The returned slice aliases the arena and is valid
// only until the next allocation or Compact.
func (h *Heap) GetPayload(handle Handle) ([]byte, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return nil, err
	}
	switch obj.kind {
	case KindCode, KindString, KindByteVector:
		return h.arena[obj.offset : obj.offset+obj.size], nil
	default:
		return nil, errors.Wrapf(ErrWrongKind, "GetPayload: %s", obj.kind)
	}
}

// GetString returns a copy of a String's or ByteVector's bytes decoded
// as a string.
func (h *Heap) GetString(handle Handle) (string, error) {
	b, err := h.GetPayload(handle)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StoreByteVectorData copies data into handle's payload, resizing the
// underlying arena allocation if necessary.
func (h *Heap) StoreByteVectorData(handle Handle, data []byte) error {
	obj, err := h.slot(handle)
	if err != nil {
		return err
	}
	if !obj.kind.arenaBacked() {
		return errors.Wrapf(ErrWrongKind, "StoreByteVectorData: %s", obj.kind)
	}
	if len(data) <= obj.size {
		copy(h.arena[obj.offset:], data)
		obj.size = len(data)
		return nil
	}
	offset, err := h.allocArena(len(data))
	if err != nil {
		return err
	}
	copy(h.arena[offset:], data)
	obj.offset = offset
	obj.size = len(data)
	return nil
}

// vectorSlot returns the object for an arena-backed vector handle and
// validates index is in [0, obj.size) itself; VM opcodes translate a
// failure here directly into ArraySubscriptError.
func (h *Heap) vectorSlot(handle Handle, kind ObjectKind, index int) (*object, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return nil, err
	}
	if obj.kind != kind {
		return nil, errors.Wrapf(ErrWrongKind, "vector access: %s", obj.kind)
	}
	if index < 0 || index >= obj.size {
		return nil, errors.Errorf("index %d out of range [0,%d)", index, obj.size)
	}
	return obj, nil
}

// IntegerVectorLen returns the element count of an IntegerVector.
func (h *Heap) IntegerVectorLen(handle Handle) (int, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return 0, err
	}
	if obj.kind != KindIntegerVector {
		return 0, errors.Wrapf(ErrWrongKind, "IntegerVectorLen: %s", obj.kind)
	}
	return obj.size, nil
}

// IntegerVectorGet reads element index of an IntegerVector directly out
// of the arena.
func (h *Heap) IntegerVectorGet(handle Handle, index int) (int32, error) {
	obj, err := h.vectorSlot(handle, KindIntegerVector, index)
	if err != nil {
		return 0, err
	}
	b := h.arena[obj.offset+index*4:]
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24), nil
}

// IntegerVectorSet writes element index of an IntegerVector directly
// into the arena.
func (h *Heap) IntegerVectorSet(handle Handle, index int, value int32) error {
	obj, err := h.vectorSlot(handle, KindIntegerVector, index)
	if err != nil {
		return err
	}
	b := h.arena[obj.offset+index*4:]
	u := uint32(value)
	b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
	return nil
}

// StringVectorLen returns the element count of a StringVector.
func (h *Heap) StringVectorLen(handle Handle) (int, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return 0, err
	}
	if obj.kind != KindStringVector {
		return 0, errors.Wrapf(ErrWrongKind, "StringVectorLen: %s", obj.kind)
	}
	return obj.size, nil
}

// StringVectorGet reads element index of a StringVector.
func (h *Heap) StringVectorGet(handle Handle, index int) (Handle, error) {
	obj, err := h.vectorSlot(handle, KindStringVector, index)
	if err != nil {
		return 0, err
	}
	b := h.arena[obj.offset+index*4:]
	return Handle(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24), nil
}

// StringVectorSet writes element index of a StringVector.
func (h *Heap) StringVectorSet(handle Handle, index int, value Handle) error {
	obj, err := h.vectorSlot(handle, KindStringVector, index)
	if err != nil {
		return err
	}
	b := h.arena[obj.offset+index*4:]
	u := uint32(value)
	b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
	return nil
}

// GetSymbol returns the mutable Symbol record behind handle.
func (h *Heap) GetSymbol(handle Handle) (*Symbol, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return nil, err
	}
	if obj.kind != KindSymbol {
		return nil, errors.Wrapf(ErrWrongKind, "GetSymbol: %s", obj.kind)
	}
	return obj.sym, nil
}

// GetLocal returns the mutable Local record behind handle.
func (h *Heap) GetLocal(handle Handle) (*Local, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return nil, err
	}
	if obj.kind != KindLocal {
		return nil, errors.Wrapf(ErrWrongKind, "GetLocal: %s", obj.kind)
	}
	return obj.local, nil
}

// GetType returns the mutable Type record behind handle.
func (h *Heap) GetType(handle Handle) (*Type, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return nil, err
	}
	if obj.kind != KindType {
		return nil, errors.Wrapf(ErrWrongKind, "GetType: %s", obj.kind)
	}
	return obj.typ, nil
}

// GetIntrinsic returns the host handler behind an Intrinsic handle.
func (h *Heap) GetIntrinsic(handle Handle) (IntrinsicHandler, error) {
	obj, err := h.slot(handle)
	if err != nil {
		return nil, err
	}
	if obj.kind != KindIntrinsic {
		return nil, errors.Wrapf(ErrWrongKind, "GetIntrinsic: %s", obj.kind)
	}
	return obj.intrinsic, nil
}

// Dump writes one line per live handle (kind, size) in handle order,
// echoing the original's conditionally-compiled heap-debug dump.
func (h *Heap) Dump(w fmtStringer) {
	for handle := 1; handle < len(h.objects); handle++ {
		obj := &h.objects[handle]
		if !obj.live {
			continue
		}
		fmt.Fprintf(w, "%4d %-13s %d\n", handle, obj.kind, obj.size)
	}
}

// fmtStringer is the minimal io.Writer-shaped interface Dump needs;
// spelled out locally so this file doesn't have to import io solely for
// a type name used once.
type fmtStringer interface {
	Write(p []byte) (n int, err error)
}

