// Package morph stores per-object morph-target weight vectors. Weight
// counts vary per mesh, so vectors live in a buddy-allocated arena that
// rounds each to a power-of-two block and coalesces freed blocks.
package morph

import (
	"fmt"

	"github.com/dakom/awsm-renderer-sub001/alloc"
	"github.com/dakom/awsm-renderer-sub001/key"
	"github.com/dakom/awsm-renderer-sub001/math32"
)

// Store holds weight vectors keyed by object handles. Handles are minted
// by the caller; stale handles miss. Not safe for concurrent mutation.
type Store struct {
	buddy  *alloc.Buddy[key.Key]
	counts map[key.Key]int
}

// NewStore creates a store with sizeBytes of arena before the first
// growth. The size rounds up to a power of two.
func NewStore(sizeBytes int) *Store {
	return &Store{
		buddy:  alloc.NewBuddy[key.Key](sizeBytes),
		counts: make(map[key.Key]int),
	}
}

// Len returns the number of stored vectors.
func (s *Store) Len() int { return s.buddy.Len() }

// SetWeights writes k's weight vector, allocating or resizing its block
// as needed. Growth is internal; SetWeights does not fail.
func (s *Store) SetWeights(k key.Key, weights []float32) {
	buf := make([]byte, 4*len(weights))
	math32.PutFloats(buf, weights)
	s.buddy.Update(k, buf)
	s.counts[k] = len(weights)
}

// Weights reads back the vector stored for k.
func (s *Store) Weights(k key.Key) ([]float32, error) {
	count, ok := s.counts[k]
	if !ok {
		return nil, fmt.Errorf("morph: weights %v: %w", k, key.ErrNotFound)
	}
	off, ok := s.buddy.Offset(k)
	if !ok {
		panic("morph: tracked weights have no block")
	}
	return math32.Floats(s.buddy.Bytes()[off:], count), nil
}

// Offset returns the byte offset of k's block in the staging arena.
func (s *Store) Offset(k key.Key) (int, error) {
	off, ok := s.buddy.Offset(k)
	if !ok {
		return 0, fmt.Errorf("morph: weights %v: %w", k, key.ErrNotFound)
	}
	return off, nil
}

// Range returns the byte offset and padded size of k's block, the extent
// to bind for shader access.
func (s *Store) Range(k key.Key) (offset, size int, err error) {
	offset, size, ok := s.buddy.Block(k)
	if !ok {
		return 0, 0, fmt.Errorf("morph: weights %v: %w", k, key.ErrNotFound)
	}
	return offset, size, nil
}

// Remove frees k's block. It reports whether a vector was removed.
func (s *Store) Remove(k key.Key) bool {
	delete(s.counts, k)
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
