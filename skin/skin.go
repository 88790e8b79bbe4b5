// Package skin stores per-object joint-matrix palettes for skinned
// meshes. Every palette occupies one fixed-size slot of
// jointsPerPalette matrices, so a shader can address palette i at byte
// offset i*SlotSize without indirection.
package skin

import (
	"errors"
	"fmt"

	"github.com/dakom/awsm-renderer-sub001/alloc"
	"github.com/dakom/awsm-renderer-sub001/key"
	"github.com/dakom/awsm-renderer-sub001/math32"
)

// DefaultJointsPerPalette bounds skeletons for stores built with zero
// configuration. Matches the joint budget common in glTF viewers.
const DefaultJointsPerPalette = 64

// ErrPaletteTooLarge is returned when a palette exceeds the store's
// joints-per-palette bound.
var ErrPaletteTooLarge = errors.New("skin: palette exceeds joints per palette")

// Store holds joint palettes in a slot arena keyed by object handles.
// Handles are minted by the caller; stale handles miss. Not safe for
// concurrent mutation.
type Store struct {
	joints int
	slots  *alloc.Slots[key.Key]
	counts map[key.Key]int
}

// NewStore creates a store of jointsPerPalette-matrix palettes with room
// for capacityHint palettes before the first growth. jointsPerPalette
// and capacityHint default when non-positive.
func NewStore(jointsPerPalette, capacityHint int) *Store {
	if jointsPerPalette <= 0 {
		jointsPerPalette = DefaultJointsPerPalette
	}
	return &Store{
		joints: jointsPerPalette,
		slots:  alloc.NewSlots[key.Key](jointsPerPalette*math32.Mat4SizeBytes, capacityHint),
		counts: make(map[key.Key]int),
	}
}

// JointsPerPalette returns the per-palette joint bound.
func (s *Store) JointsPerPalette() int { return s.joints }

// SlotSize returns the palette stride in bytes.
func (s *Store) SlotSize() int { return s.slots.SlotSize() }

// Len returns the number of stored palettes.
func (s *Store) Len() int { return s.slots.Len() }

// SetJoints writes a palette, allocating a slot on first use of k.
// Palettes shorter than the bound leave the slot tail zeroed, so shaders
// reading a fixed-size array see zeros rather than a previous palette.
func (s *Store) SetJoints(k key.Key, matrices []math32.Mat4) error {
	if len(matrices) > s.joints {
		return fmt.Errorf("%w: %d > %d", ErrPaletteTooLarge, len(matrices), s.joints)
	}
	s.slots.UpdateWith(k, func(slot []byte) {
		off := 0
		for _, m := range matrices {
			m.PutBytes(slot[off:])
			off += math32.Mat4SizeBytes
		}
		clear(slot[off:])
	})
	s.counts[k] = len(matrices)
	return nil
}

// Joints reads back the palette stored for k.
func (s *Store) Joints(k key.Key) ([]math32.Mat4, error) {
	count, ok := s.counts[k]
	if !ok {
		return nil, fmt.Errorf("skin: palette %v: %w", k, key.ErrNotFound)
	}
	off, ok := s.slots.Offset(k)
	if !ok {
		panic("skin: tracked palette has no slot")
	}
	raw := s.slots.Bytes()[off:]
	out := make([]math32.Mat4, count)
	for i := range out {
		out[i] = math32.Mat4FromBytes(raw[i*math32.Mat4SizeBytes:])
	}
	return out, nil
}

// Offset returns the byte offset of k's palette in the staging arena.
func (s *Store) Offset(k key.Key) (int, error) {
	off, ok := s.slots.Offset(k)
	if !ok {
		return 0, fmt.Errorf("skin: palette %v: %w", k, key.ErrNotFound)
	}
	return off, nil
}

// Remove frees k's palette slot. It reports whether a palette was
// removed.
func (s *Store) Remove(k key.Key) bool {
	delete(s.counts, k)
	return s.slots.Remove(k)
}

// Stats returns the underlying arena counters.
func (s *Store) Stats() alloc.SlotsStats { return s.slots.Stats() }

// Bytes exposes the staging arena. Together with TakeResize and
// TakeDirty the store is a staging source for gpu.SyncedBuffer.
func (s *Store) Bytes() []byte { return s.slots.Bytes() }

// TakeResize reports an arena capacity change exactly once.
func (s *Store) TakeResize() (int, bool) { return s.slots.TakeResize() }

// TakeDirty reports pending arena writes exactly once.
func (s *Store) TakeDirty() bool { return s.slots.TakeDirty() }
