// Package key provides generational handles for resident renderer objects.
//
// A Key is an index paired with a generation counter. When an object is
// removed its index may be reused, but the generation is bumped, so a handle
// held past removal no longer matches anything: lookups with it fail instead
// of silently aliasing the new occupant. Keys are comparable and can be used
// directly as map keys.
//
// Keys are minted by a Mint, which owns the index space and recycles freed
// indices. All stores in this module (transforms, skins, morph weights,
// material uniforms) are keyed by the same Key, so one object carries one
// handle across every buffer it is resident in.
package key

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a lookup uses a key that was never
// minted, or whose object has been removed. Lookups never silently default;
// a stale handle is a bug the caller should see.
var ErrNotFound = errors.New("key: not found")

// Key identifies one live object. The zero value is NoKey and is never
// minted; use it to mean "no key" (for example, "attach to the root").
type Key struct {
	index      uint32
	generation uint32
}

// NoKey is the zero Key. It is invalid and never refers to an object.
var NoKey = Key{}

// Valid reports whether k was minted (live or stale). NoKey is not valid.
func (k Key) Valid() bool { return k.generation != 0 }

// Index returns the arena index this key occupies. Two keys for the same
// index but different generations refer to different objects.
func (k Key) Index() int { return int(k.index) }

// Generation returns the key's generation counter.
func (k Key) Generation() uint32 { return k.generation }

// String returns a compact debug form, e.g. "key(3v2)".
func (k Key) String() string {
	if !k.Valid() {
		return "key(none)"
	}
	return fmt.Sprintf("key(%dv%d)", k.index, k.generation)
}

// Mint issues keys and recycles their indices.
//
// Generations start at 1 and are bumped on every release, so odd generations
// are live and even generations are retired. Alive distinguishes a current
// handle from a stale one even after the index has been reused.
//
// Mint is not safe for concurrent use.
type Mint struct {
	generations []uint32
	free        []uint32
	live        int
}

// NewMint creates an empty mint.
func NewMint() *Mint {
	return &Mint{}
}

// Next mints a new live key, reusing a freed index when one is available.
func (m *Mint) Next() Key {
	if n := len(m.free); n > 0 {
		idx := m.free[n-1]
		m.free = m.free[:n-1]
		m.generations[idx]++ // even -> odd: live again
		m.live++
		return Key{index: idx, generation: m.generations[idx]}
	}
	idx := uint32(len(m.generations))
	m.generations = append(m.generations, 1)
	m.live++
	return Key{index: idx, generation: 1}
}

// Release retires a key, returning its index to the free pool.
// Returns false if the key is stale, unknown, or NoKey.
func (m *Mint) Release(k Key) bool {
	if !m.Alive(k) {
		return false
	}
	m.generations[k.index]++ // odd -> even: retired
	m.free = append(m.free, k.index)
	m.live--
	return true
}

// Alive reports whether k is a currently live key of this mint.
func (m *Mint) Alive(k Key) bool {
	if !k.Valid() || int(k.index) >= len(m.generations) {
		return false
	}
	gen := m.generations[k.index]
	return gen == k.generation && gen&1 == 1
}

// Len returns the number of live keys.
func (m *Mint) Len() int { return m.live }
