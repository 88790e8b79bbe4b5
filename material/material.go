// Package material stores per-object shader uniform blobs. Blob sizes
// vary by material model, so blobs live in a buddy-allocated arena whose
// block offsets respect the uniform-binding alignment rule, making every
// blob directly bindable at its offset.
package material

import (
	"fmt"

	"github.com/dakom/awsm-renderer-sub001/alloc"
	"github.com/dakom/awsm-renderer-sub001/key"
)

// Store holds uniform blobs keyed by object handles. Handles are minted
// by the caller; stale handles miss. Not safe for concurrent mutation.
type Store struct {
	buddy *alloc.Buddy[key.Key]
	sizes map[key.Key]int
}

// NewStore creates a store with sizeBytes of arena before the first
// growth. The size rounds up to a power of two.
func NewStore(sizeBytes int) *Store {
	return &Store{
		buddy: alloc.NewBuddy[key.Key](sizeBytes),
		sizes: make(map[key.Key]int),
	}
}

// Len returns the number of stored blobs.
func (s *Store) Len() int { return s.buddy.Len() }

// SetUniform writes k's blob, allocating or resizing its block as
// needed. The caller guarantees the bytes match the shader's uniform
// layout. Growth is internal; SetUniform does not fail.
func (s *Store) SetUniform(k key.Key, data []byte) {
	s.buddy.Update(k, data)
	s.sizes[k] = len(data)
}

// Uniform reads back a copy of the blob stored for k.
func (s *Store) Uniform(k key.Key) ([]byte, error) {
	size, ok := s.sizes[k]
	if !ok {
		return nil, fmt.Errorf("material: uniform %v: %w", k, key.ErrNotFound)
	}
	off, ok := s.buddy.Offset(k)
	if !ok {
		panic("material: tracked uniform has no block")
	}
	out := make([]byte, size)
	copy(out, s.buddy.Bytes()[off:])
	return out, nil
}

// Offset returns the byte offset of k's block in the staging arena. The
// buddy arena keeps it aligned for uniform binding.
func (s *Store) Offset(k key.Key) (int, error) {
	off, ok := s.buddy.Offset(k)
	if !ok {
		return 0, fmt.Errorf("material: uniform %v: %w", k, key.ErrNotFound)
	}
	return off, nil
}

// Range returns the byte offset and padded size of k's block, the extent
// to bind for shader access. The padding past the blob is zeroed.
func (s *Store) Range(k key.Key) (offset, size int, err error) {
	offset, size, ok := s.buddy.Block(k)
	if !ok {
		return 0, 0, fmt.Errorf("material: uniform %v: %w", k, key.ErrNotFound)
	}
	return offset, size, nil
}

// Remove frees k's block. It reports whether a blob was removed.
func (s *Store) Remove(k key.Key) bool {
	delete(s.sizes, k)
	return s.buddy.Remove(k)
}

// Stats returns the underlying arena counters.
func (s *Store) Stats() alloc.BuddyStats { return s.buddy.Stats() }

// Bytes exposes the staging arena. Together with TakeResize and
// TakeDirty the store is a staging source for gpu.SyncedBuffer.
func (s *Store) Bytes() []byte { return s.buddy.Bytes() }

// TakeResize reports an arena capacity change exactly once.
func (s *Store) TakeResize() (int, bool) { return s.buddy.TakeResize() }

// TakeDirty reports pending arena writes exactly once.
func (s *Store) TakeDirty() bool { return s.buddy.TakeDirty() }
