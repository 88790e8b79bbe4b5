package alloc

import "fmt"

// Slots is a fixed-size slot allocator over a contiguous staging buffer.
//
// Every record occupies exactly one slot of slotSize bytes, and a record's
// byte offset is simply its slot index times the slot size, so consumers can
// derive shader-visible offsets without any indirection. Freed slots are
// recycled through a free list before the allocation frontier advances, and
// the buffer doubles when the frontier runs past the end.
//
// The key type K is any comparable handle; stores in this module use
// generational keys so stale handles miss instead of aliasing reused slots.
//
// The per-slot state partitions the capacity: every slot index is either
// mapped by a live key, sitting on the free list, or beyond the frontier.
type Slots[K comparable] struct {
	raw      []byte
	slotSize int
	slotOf   map[K]int
	free     []int
	next     int

	dirty   bool
	resize  resizeSignal
	growths uint64

	// onGrow, when set, is called after every capacity growth with the new
	// slot capacity. Used by tests to observe growth behavior.
	onGrow func(capacitySlots int)
}

// SlotsStats describes the current occupancy of a Slots allocator.
type SlotsStats struct {
	// SlotSize is the size of one slot in bytes.
	SlotSize int

	// Capacity is the total slot count the staging buffer holds.
	Capacity int

	// Live is the number of slots mapped by a key.
	Live int

	// Free is the number of slots on the free list.
	Free int

	// Growths is the number of times the staging buffer was reallocated.
	Growths uint64
}

// String returns a human-readable summary.
func (s SlotsStats) String() string {
	return fmt.Sprintf("Slots[%d live / %d cap, %dB slots, %d growths]",
		s.Live, s.Capacity, s.SlotSize, s.Growths)
}

// NewSlots creates a slot allocator with slotSize-byte slots and an initial
// capacity of capacitySlots slots. slotSize must be positive; a capacity
// below one is raised to one.
func NewSlots[K comparable](slotSize, capacitySlots int) *Slots[K] {
	if slotSize <= 0 {
		panic(fmt.Sprintf("alloc: slot size must be positive, got %d", slotSize))
	}
	if capacitySlots < 1 {
		capacitySlots = 1
	}
	return &Slots[K]{
		raw:      make([]byte, slotSize*capacitySlots),
		slotSize: slotSize,
		slotOf:   make(map[K]int),
	}
}

// UpdateWith stages the record for k, acquiring a slot on first use and
// growing the buffer if no slot is available. mutate receives the slot's
// byte range, exactly slotSize bytes, and may write any part of it.
//
// The device buffer is untouched; changes become GPU-visible on the next
// sync.
func (s *Slots[K]) UpdateWith(k K, mutate func(slot []byte)) {
	slot, ok := s.slotOf[k]
	if !ok {
		slot = s.acquire()
		s.slotOf[k] = slot
	}
	off := slot * s.slotSize
	mutate(s.raw[off : off+s.slotSize])
	s.dirty = true
}

// Remove frees k's slot for reuse and zeroes its bytes, so a consumer
// holding a stale offset reads zeros rather than the old record until the
// slot is reassigned. Returns false if k has no slot.
func (s *Slots[K]) Remove(k K) bool {
	slot, ok := s.slotOf[k]
	if !ok {
		return false
	}
	delete(s.slotOf, k)
	s.free = append(s.free, slot)
	off := slot * s.slotSize
	clear(s.raw[off : off+s.slotSize])
	s.dirty = true
	return true
}

// Offset returns the byte offset of k's slot in the staging (and device)
// buffer. Returns false if k has no slot.
func (s *Slots[K]) Offset(k K) (int, bool) {
	slot, ok := s.slotOf[k]
	if !ok {
		return 0, false
	}
	return slot * s.slotSize, true
}

// acquire returns a usable slot index: a recycled one when the free list is
// non-empty, otherwise the frontier slot, growing the buffer when the
// frontier runs past the current capacity.
func (s *Slots[K]) acquire() int {
	if n := len(s.free); n > 0 {
		slot := s.free[n-1]
		s.free = s.free[:n-1]
		return slot
	}
	slot := s.next
	s.next++
	if s.next*s.slotSize > len(s.raw) {
		s.grow(s.next)
	}
	return slot
}

// grow reallocates the staging buffer to hold max(capacity, required) * 2
// slots. The slots beyond required join the free list, so the newly
// available range is never stranded past the frontier.
func (s *Slots[K]) grow(requiredSlots int) {
	newCap := max(s.Capacity(), requiredSlots) * 2
	raw := make([]byte, newCap*s.slotSize)
	copy(raw, s.raw)
	s.raw = raw
	for i := newCap - 1; i >= requiredSlots; i-- {
		s.free = append(s.free, i)
	}
	s.next = newCap
	s.growths++
	s.resize.set(len(s.raw))
	s.dirty = true
	if s.onGrow != nil {
		s.onGrow(newCap)
	}
}

// SlotSize returns the size of one slot in bytes.
func (s *Slots[K]) SlotSize() int { return s.slotSize }

// Capacity returns the total slot count of the staging buffer.
func (s *Slots[K]) Capacity() int { return len(s.raw) / s.slotSize }

// Len returns the number of live records.
func (s *Slots[K]) Len() int { return len(s.slotOf) }

// Bytes returns the staging buffer. The whole buffer is uploaded to the
// device on a dirty sync; callers must not hold the slice across a growth.
func (s *Slots[K]) Bytes() []byte { return s.raw }

// TakeResize returns the staging buffer's new byte size once after each
// growth. The owning synced buffer consumes it to recreate the device
// buffer and rebuild dependent bindings.
func (s *Slots[K]) TakeResize() (int, bool) { return s.resize.take() }

// TakeDirty reports once whether staged bytes changed since the last take.
func (s *Slots[K]) TakeDirty() bool {
	d := s.dirty
	s.dirty = false
	return d
}

// Stats returns current occupancy counters.
func (s *Slots[K]) Stats() SlotsStats {
	return SlotsStats{
		SlotSize: s.slotSize,
		Capacity: s.Capacity(),
		Live:     len(s.slotOf),
		Free:     len(s.free),
		Growths:  s.growths,
	}
}
