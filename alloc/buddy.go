package alloc

import (
	"fmt"
	"math/bits"
)

// span is an allocated byte range. size is always a power of two >= MinBlock
// and offset is aligned to size.
type span struct {
	offset int
	size   int
}

// Buddy is a power-of-two buddy allocator over a contiguous staging buffer.
//
// The buffer's length is a power of two and a multiple of MinBlock. Free
// space is tracked in a complete binary tree with one node per power-of-two
// sub-range; each node stores the largest free block anywhere in its
// subtree (0 when fully allocated, the full span when fully free). The root
// therefore answers "can this request be satisfied without growing" in one
// comparison, and buddies reunite into larger free blocks as soon as both
// halves are free, so the allocator never fragments externally. Requests
// round up to the next power of two, which bounds internal waste at half a
// block.
//
// Like Slots, Buddy stages CPU bytes only and signals the owning synced
// buffer through TakeResize and TakeDirty.
type Buddy[K comparable] struct {
	raw    []byte
	tree   []int // 1-based; tree[i] = largest free block in i's subtree
	slotOf map[K]span

	dirty   bool
	resize  resizeSignal
	growths uint64

	// onGrow, when set, is called after every growth with the new buffer
	// size in bytes. Used by tests.
	onGrow func(sizeBytes int)
}

// BuddyStats describes the current occupancy of a Buddy allocator.
type BuddyStats struct {
	// Size is the staging buffer length in bytes.
	Size int

	// LargestFree is the largest single allocation currently satisfiable
	// without growth.
	LargestFree int

	// Live is the number of allocated blocks.
	Live int

	// Growths is the number of times the staging buffer was reallocated.
	Growths uint64
}

// String returns a human-readable summary.
func (s BuddyStats) String() string {
	return fmt.Sprintf("Buddy[%d live, %d/%d B largest free, %d growths]",
		s.Live, s.LargestFree, s.Size, s.Growths)
}

// NewBuddy creates a buddy allocator whose staging buffer holds at least
// sizeBytes, rounded up to a power of two no smaller than MinBlock.
func NewBuddy[K comparable](sizeBytes int) *Buddy[K] {
	size := roundUpPow2(sizeBytes)
	b := &Buddy[K]{
		raw:    make([]byte, size),
		slotOf: make(map[K]span),
	}
	b.tree = make([]int, 2*size/MinBlock)
	b.initFull()
	return b
}

// roundUpPow2 rounds n up to the next power of two, clamped to MinBlock.
func roundUpPow2(n int) int {
	if n <= MinBlock {
		return MinBlock
	}
	return 1 << bits.Len(uint(n-1))
}

// Update stages data for k. If k already owns a block large enough, the
// block is overwritten in place and the unused tail zeroed. Otherwise any
// old block is freed and a new one of roundUpPow2(len(data)) bytes is
// allocated, growing the buffer when the request cannot be satisfied.
func (b *Buddy[K]) Update(k K, data []byte) {
	if sp, ok := b.slotOf[k]; ok {
		if len(data) <= sp.size {
			copy(b.raw[sp.offset:], data)
			clear(b.raw[sp.offset+len(data) : sp.offset+sp.size])
			b.dirty = true
			return
		}
		b.free(sp)
		delete(b.slotOf, k)
	}

	size := roundUpPow2(len(data))
	off, ok := b.alloc(size)
	if !ok {
		b.Grow(size)
		off, ok = b.alloc(size)
		if !ok {
			// Growth guarantees a free block of this size; reaching here
			// means the tree no longer reflects the allocations.
			panic(fmt.Sprintf("alloc: buddy allocation of %d bytes failed after growth to %d", size, len(b.raw)))
		}
	}
	b.slotOf[k] = span{offset: off, size: size}
	copy(b.raw[off:], data)
	clear(b.raw[off+len(data) : off+size])
	b.dirty = true
}

// Remove frees k's block for reuse and zeroes its bytes, so a consumer
// holding a stale offset reads zeros until the range is reallocated.
// Returns false if k has no block.
func (b *Buddy[K]) Remove(k K) bool {
	sp, ok := b.slotOf[k]
	if !ok {
		return false
	}
	delete(b.slotOf, k)
	b.free(sp)
	clear(b.raw[sp.offset : sp.offset+sp.size])
	b.dirty = true
	return true
}

// Offset returns the byte offset of k's block. Returns false if k has no
// block.
func (b *Buddy[K]) Offset(k K) (int, bool) {
	sp, ok := b.slotOf[k]
	if !ok {
		return 0, false
	}
	return sp.offset, true
}

// Block returns the byte offset and block size of k's allocation. The size
// is the rounded power-of-two block, not the staged payload length.
// Returns false if k has no block.
func (b *Buddy[K]) Block(k K) (offset, size int, ok bool) {
	sp, ok := b.slotOf[k]
	if !ok {
		return 0, 0, false
	}
	return sp.offset, sp.size, true
}

// Grow doubles the staging buffer until it has room for at least minExtra
// more bytes, rebuilds the free tree at the new size, and re-marks every
// live allocation. Staged bytes keep their offsets; only the device buffer
// identity is invalidated, which the resize signal reports.
//
// Growing leaves the top of the new buffer entirely free, so an allocation
// of minExtra (rounded to a power of two) directly after Grow always
// succeeds.
func (b *Buddy[K]) Grow(minExtra int) {
	if minExtra <= 0 {
		return
	}
	oldSize := len(b.raw)
	newSize := oldSize
	for newSize < oldSize+minExtra {
		newSize *= 2
	}

	raw := make([]byte, newSize)
	copy(raw, b.raw)
	b.raw = raw

	// Rebuild the tree fully free, then carve the live allocations back
	// out. Skipping the re-mark would leave the tree claiming space that
	// is actually occupied.
	b.tree = make([]int, 2*newSize/MinBlock)
	b.initFull()
	for _, sp := range b.slotOf {
		b.markAllocated(b.nodeFor(sp))
	}

	b.growths++
	b.resize.set(newSize)
	b.dirty = true
	if b.onGrow != nil {
		b.onGrow(newSize)
	}
}

// initFull sets every tree node to its subtree's full byte span.
func (b *Buddy[K]) initFull() {
	size := len(b.raw)
	for i := 1; i < len(b.tree); i++ {
		b.tree[i] = size >> (bits.Len(uint(i)) - 1)
	}
}

// alloc finds a free block of exactly size bytes (a power of two >=
// MinBlock) and marks it allocated. Returns false when no such block
// exists, which signals the caller to grow.
func (b *Buddy[K]) alloc(size int) (int, bool) {
	if size > b.tree[1] {
		return 0, false
	}
	node := 1
	nodeSize := len(b.raw)
	for nodeSize > size {
		nodeSize /= 2
		if left := node * 2; b.tree[left] >= size {
			node = left
		} else {
			node = node*2 + 1
		}
	}
	b.markAllocated(node)
	level := bits.Len(uint(node)) - 1
	return (node - 1<<level) * nodeSize, true
}

// markAllocated zeroes node and propagates corrected maxima to the root,
// stopping early once an ancestor's value is unchanged.
func (b *Buddy[K]) markAllocated(node int) {
	b.tree[node] = 0
	for n := node / 2; n >= 1; n /= 2 {
		m := max(b.tree[2*n], b.tree[2*n+1])
		if b.tree[n] == m {
			break
		}
		b.tree[n] = m
	}
}

// free returns sp's block to the tree and coalesces buddies on the way up:
// as long as both children of an ancestor are whole and free, they reunite
// into the ancestor's full span. Past that point ancestors take the max of
// their children until a value is unchanged.
func (b *Buddy[K]) free(sp span) {
	node := b.nodeFor(sp)
	b.tree[node] = sp.size
	childSpan := sp.size
	for n := node / 2; n >= 1; n /= 2 {
		left, right := b.tree[2*n], b.tree[2*n+1]
		v := max(left, right)
		if left == childSpan && right == childSpan {
			v = childSpan * 2
		}
		if b.tree[n] == v {
			break
		}
		b.tree[n] = v
		childSpan *= 2
	}
}

// nodeFor returns the tree node covering exactly sp. Panics if sp does not
// line up with the tree, which means the span table is corrupt.
func (b *Buddy[K]) nodeFor(sp span) int {
	size := len(b.raw)
	if sp.size < MinBlock || sp.size&(sp.size-1) != 0 ||
		sp.offset%sp.size != 0 || sp.offset+sp.size > size {
		panic(fmt.Sprintf("alloc: corrupt buddy span offset=%d size=%d arena=%d", sp.offset, sp.size, size))
	}
	level := bits.Len(uint(size/sp.size)) - 1
	return 1<<level + sp.offset/sp.size
}

// Size returns the staging buffer length in bytes.
func (b *Buddy[K]) Size() int { return len(b.raw) }

// LargestFree returns the largest single allocation currently satisfiable
// without growth.
func (b *Buddy[K]) LargestFree() int { return b.tree[1] }

// Len returns the number of live blocks.
func (b *Buddy[K]) Len() int { return len(b.slotOf) }

// Bytes returns the staging buffer. The whole buffer is uploaded to the
// device on a dirty sync; callers must not hold the slice across a growth.
func (b *Buddy[K]) Bytes() []byte { return b.raw }

// TakeResize returns the staging buffer's new byte size once after each
// growth.
func (b *Buddy[K]) TakeResize() (int, bool) { return b.resize.take() }

// TakeDirty reports once whether staged bytes changed since the last take.
func (b *Buddy[K]) TakeDirty() bool {
	d := b.dirty
	b.dirty = false
	return d
}

// Stats returns current occupancy counters.
func (b *Buddy[K]) Stats() BuddyStats {
	return BuddyStats{
		Size:        len(b.raw),
		LargestFree: b.tree[1],
		Live:        len(b.slotOf),
		Growths:     b.growths,
	}
}
