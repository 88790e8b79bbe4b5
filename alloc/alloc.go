package alloc

// MinBlock is the smallest block the buddy allocator hands out, in bytes.
// It matches the 256-byte offset alignment GPU APIs require for sub-buffer
// bindings, so any buddy offset is directly usable as a binding offset.
const MinBlock = 256

// resizeSignal is the consumed-once growth notification shared by both
// allocators. set records the new staging size; take returns it exactly
// once per growth.
type resizeSignal struct {
	pending bool
	size    int
}

func (s *resizeSignal) set(size int) {
	s.pending = true
	s.size = size
}

func (s *resizeSignal) take() (int, bool) {
	if !s.pending {
		return 0, false
	}
	s.pending = false
	return s.size, true
}
