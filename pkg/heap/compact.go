package heap

// Compact reclaims arena space for handles no longer reachable from
// roots. It runs in two phases:
//
//  1. Mark: every handle in roots is live, and so is everything
//     transitively reachable from a live StringVector's elements (the
//     only kind whose arena payload itself encodes further handles).
//     Record kinds (Symbol, Local, Type) are not traced: their handle
//     fields (Next, Type, HValue and the like) are not followed, so an
//     object referenced only from such a field is live only when the
//     caller lists it in roots.
//  2. Sweep: walk the handle table in address (index) order. Any
//     unmarked live object is freed. Any marked, arena-backed object has
//     its bytes slid down to the next free arena offset, which keeps
//     payloads packed in handle-allocation order, and its offset
//     updated — all without moving or
//     renumbering the handle itself, so literal handle operands baked
//     into already-compiled bytecode remain valid.
func (h *Heap) Compact(roots []Handle) error {
	h.markAll(false)

	worklist := make([]Handle, 0, len(roots))
	for _, r := range roots {
		if h.markOne(r) {
			worklist = append(worklist, r)
		}
	}
	for len(worklist) > 0 {
		handle := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		obj := &h.objects[handle]
		if obj.kind != KindStringVector {
			continue
		}
		for i := 0; i < obj.size; i++ {
			elem, err := h.StringVectorGet(handle, i)
			if err != nil {
				return err
			}
			if elem != 0 && h.markOne(elem) {
				worklist = append(worklist, elem)
			}
		}
	}

	h.arenaNext = 0
	for handle := 1; handle < len(h.objects); handle++ {
		obj := &h.objects[handle]
		if !obj.live {
			continue
		}
		if !obj.mark {
			h.free(Handle(handle))
			continue
		}
		if obj.kind.arenaBacked() {
			byteLen := obj.size
			if obj.kind == KindIntegerVector || obj.kind == KindStringVector {
				byteLen = obj.size * 4
			}
			newOffset := h.arenaNext
			if newOffset != obj.offset {
				copy(h.arena[newOffset:newOffset+byteLen], h.arena[obj.offset:obj.offset+byteLen])
			}
			obj.offset = newOffset
			h.arenaNext += byteLen
		}
	}
	return nil
}

func (h *Heap) markAll(mark bool) {
	for i := range h.objects {
		h.objects[i].mark = mark
	}
}

// markOne marks handle live, returning true the first time (so callers
// only enqueue each handle once for transitive tracing).
func (h *Heap) markOne(handle Handle) bool {
	if handle <= 0 || int(handle) >= len(h.objects) {
		return false
	}
	obj := &h.objects[handle]
	if !obj.live || obj.mark {
		return false
	}
	obj.mark = true
	return true
}

// free returns handle's slot to the free list. Arena space it held is
// simply not re-copied during the sweep above; it is reclaimed (the
// overall heap's arenaNext retreats) by virtue of live handles being
// packed contiguously from offset 0.
func (h *Heap) free(handle Handle) {
	obj := &h.objects[handle]
	*obj = object{nextFree: h.freeHead}
	h.freeHead = handle
}
