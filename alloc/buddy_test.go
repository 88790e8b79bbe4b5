package alloc

import (
	"bytes"
	"testing"
)

func pattern(n int, b byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = b
	}
	return p
}

func TestRoundUpPow2(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, MinBlock},
		{1, MinBlock},
		{255, MinBlock},
		{256, 256},
		{257, 512},
		{512, 512},
		{513, 1024},
		{1024, 1024},
	}
	for _, tt := range tests {
		if got := roundUpPow2(tt.n); got != tt.want {
			t.Errorf("roundUpPow2(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestBuddyNewRoundsSize(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{0, MinBlock},
		{100, MinBlock},
		{300, 512},
		{1024, 1024},
	}
	for _, tt := range tests {
		b := NewBuddy[int](tt.size)
		if got := b.Size(); got != tt.want {
			t.Errorf("NewBuddy(%d).Size() = %d, want %d", tt.size, got, tt.want)
		}
		if got := b.LargestFree(); got != tt.want {
			t.Errorf("NewBuddy(%d).LargestFree() = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestBuddyUpdateAllocatesRoundedBlock(t *testing.T) {
	b := NewBuddy[int](1024)

	b.Update(1, pattern(100, 0xAB))

	off, size, ok := b.Block(1)
	if !ok {
		t.Fatal("Block(1) missing after Update")
	}
	if off != 0 {
		t.Errorf("first block offset = %d, want 0", off)
	}
	if size != MinBlock {
		t.Errorf("block size = %d, want %d", size, MinBlock)
	}
	if !bytes.Equal(b.Bytes()[:100], pattern(100, 0xAB)) {
		t.Error("staged bytes do not match the payload")
	}
	if !bytes.Equal(b.Bytes()[100:256], make([]byte, 156)) {
		t.Error("block tail past the payload not zeroed")
	}
}

func TestBuddyCoalesceRoundTrip(t *testing.T) {
	b := NewBuddy[int](1024)
	before := b.LargestFree()

	b.Update(1, pattern(256, 0x01))
	b.Update(2, pattern(256, 0x02))

	off1, _ := b.Offset(1)
	off2, _ := b.Offset(2)
	if off1 != 0 || off2 != 256 {
		t.Fatalf("buddies not adjacent: offsets %d, %d", off1, off2)
	}
	if got := b.LargestFree(); got != 512 {
		t.Errorf("LargestFree() with both buddies live = %d, want 512", got)
	}

	b.Remove(1)
	b.Remove(2)

	if got := b.LargestFree(); got != before {
		t.Errorf("LargestFree() after freeing both buddies = %d, want %d", got, before)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestBuddyFreePropagatesThroughPartialAncestors(t *testing.T) {
	b := NewBuddy[int](1024)
	for k := range 4 {
		b.Update(k, pattern(256, byte(k+1)))
	}
	if got := b.LargestFree(); got != 0 {
		t.Fatalf("LargestFree() of a full arena = %d, want 0", got)
	}

	// Freeing one leaf must surface through every partially allocated
	// ancestor up to the root, not just the immediate parent.
	b.Remove(0)
	if got := b.LargestFree(); got != 256 {
		t.Errorf("LargestFree() after freeing one leaf = %d, want 256", got)
	}

	b.Update(9, pattern(256, 0x99))
	off, _ := b.Offset(9)
	if off != 0 {
		t.Errorf("reallocation offset = %d, want 0 (the freed leaf)", off)
	}
	if got := b.Stats().Growths; got != 0 {
		t.Errorf("Growths = %d, want 0", got)
	}
}

func TestBuddyGrowthPreservesLiveData(t *testing.T) {
	b := NewBuddy[int](512)

	payload := pattern(256, 0xC3)
	b.Update(1, payload)
	offBefore, _ := b.Offset(1)

	// 512 bytes cannot fit next to the live 256-byte block, so this grows.
	b.Update(2, pattern(512, 0x55))

	if got := b.Stats().Growths; got != 1 {
		t.Fatalf("Growths = %d, want 1", got)
	}
	off, ok := b.Offset(1)
	if !ok {
		t.Fatal("Offset(1) missing after growth")
	}
	if off != offBefore {
		t.Errorf("block moved during growth: %d -> %d", offBefore, off)
	}
	if !bytes.Equal(b.Bytes()[off:off+256], payload) {
		t.Error("live bytes changed during growth")
	}

	off2, size2, _ := b.Block(2)
	if size2 != 512 {
		t.Errorf("new block size = %d, want 512", size2)
	}
	if off2 < 256 {
		t.Errorf("new block at offset %d overlaps the live block", off2)
	}
}

func TestBuddyGrowRemarksAllocations(t *testing.T) {
	b := NewBuddy[int](512)
	b.Update(1, pattern(256, 0x01))
	b.Update(2, pattern(256, 0x02))
	if got := b.LargestFree(); got != 0 {
		t.Fatalf("arena should be full, LargestFree() = %d", got)
	}

	b.Update(3, pattern(256, 0x03))

	if got := b.Size(); got != 1024 {
		t.Fatalf("Size() after growth = %d, want 1024", got)
	}
	offs := make(map[int]int)
	for k := 1; k <= 3; k++ {
		off, size, ok := b.Block(k)
		if !ok {
			t.Fatalf("Block(%d) missing after growth", k)
		}
		for other, otherOff := range offs {
			if off < otherOff+256 && otherOff < off+size {
				t.Fatalf("blocks %d and %d overlap at offsets %d, %d", k, other, off, otherOff)
			}
		}
		offs[k] = off
		if !bytes.Equal(b.Bytes()[off:off+256], pattern(256, byte(k))) {
			t.Errorf("key %d bytes wrong after growth", k)
		}
	}
}

func TestBuddyInPlaceUpdateZeroesTail(t *testing.T) {
	b := NewBuddy[int](512)
	b.Update(1, pattern(200, 0xAB))
	off, _ := b.Offset(1)

	b.Update(1, pattern(100, 0xCD))

	if got, _ := b.Offset(1); got != off {
		t.Errorf("in-place update moved the block: %d -> %d", off, got)
	}
	if !bytes.Equal(b.Bytes()[off:off+100], pattern(100, 0xCD)) {
		t.Error("payload not overwritten")
	}
	if !bytes.Equal(b.Bytes()[off+100:off+256], make([]byte, 156)) {
		t.Error("stale tail bytes left after a shorter update")
	}
}

func TestBuddyReplaceGrowsBlock(t *testing.T) {
	b := NewBuddy[int](1024)
	b.Update(1, pattern(256, 0x01))

	// 600 bytes does not fit the 256-byte block: reallocate to 1024.
	b.Update(1, pattern(600, 0x02))

	off, size, ok := b.Block(1)
	if !ok {
		t.Fatal("Block(1) missing after replacing update")
	}
	if size != 1024 {
		t.Errorf("block size = %d, want 1024", size)
	}
	if !bytes.Equal(b.Bytes()[off:off+600], pattern(600, 0x02)) {
		t.Error("payload wrong after replacing update")
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestBuddyRemoveZeroesBlock(t *testing.T) {
	b := NewBuddy[int](512)
	b.Update(1, pattern(256, 0xFF))
	off, _ := b.Offset(1)
	b.TakeDirty()

	if !b.Remove(1) {
		t.Fatal("Remove(1) = false, want true")
	}
	if !bytes.Equal(b.Bytes()[off:off+256], make([]byte, 256)) {
		t.Error("removed block bytes not zeroed")
	}
	if !b.TakeDirty() {
		t.Error("Remove did not mark the buffer dirty")
	}
	if b.Remove(1) {
		t.Error("second Remove of the same key succeeded")
	}
}

func TestBuddyTakeResizeConsumedOnce(t *testing.T) {
	b := NewBuddy[int](256)
	if _, ok := b.TakeResize(); ok {
		t.Error("TakeResize reported a resize before any growth")
	}

	b.Update(1, pattern(256, 0x01))
	b.Update(2, pattern(256, 0x02)) // forces growth

	size, ok := b.TakeResize()
	if !ok {
		t.Fatal("TakeResize() after growth = false, want true")
	}
	if size != b.Size() {
		t.Errorf("TakeResize size = %d, want %d", size, b.Size())
	}
	if _, ok := b.TakeResize(); ok {
		t.Error("second TakeResize still pending")
	}
}

func TestBuddyUpdateEmptyPayload(t *testing.T) {
	b := NewBuddy[int](512)
	b.Update(1, nil)

	_, size, ok := b.Block(1)
	if !ok {
		t.Fatal("Block(1) missing after empty update")
	}
	if size != MinBlock {
		t.Errorf("empty payload block size = %d, want %d", size, MinBlock)
	}
}

func TestBuddyGrowNoop(t *testing.T) {
	b := NewBuddy[int](512)
	b.Grow(0)
	if got := b.Size(); got != 512 {
		t.Errorf("Grow(0) changed size to %d", got)
	}
	if _, ok := b.TakeResize(); ok {
		t.Error("Grow(0) signaled a resize")
	}
}
