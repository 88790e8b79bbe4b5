package morph

import (
	"errors"
	"testing"

	"github.com/dakom/awsm-renderer-sub001/alloc"
	"github.com/dakom/awsm-renderer-sub001/key"
)

func TestSetWeightsRoundTrip(t *testing.T) {
	mint := key.NewMint()
	s := NewStore(1024)

	k := mint.Next()
	weights := []float32{0.25, 0.5, 0.75}
	s.SetWeights(k, weights)

	got, err := s.Weights(k)
	if err != nil {
		t.Fatalf("Weights failed: %v", err)
	}
	if len(got) != len(weights) {
		t.Fatalf("weight count = %d, want %d", len(got), len(weights))
	}
	for i, w := range weights {
		if got[i] != w {
			t.Errorf("weight %d = %v, want %v", i, got[i], w)
		}
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestWeightsBlockRounding(t *testing.T) {
	mint := key.NewMint()
	s := NewStore(1024)

	// 70 weights are 280 bytes, rounding to a 512-byte block.
	k := mint.Next()
	s.SetWeights(k, make([]float32, 70))

	_, size, err := s.Range(k)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if size != 512 {
		t.Errorf("block size = %d, want 512", size)
	}

	// A short vector still occupies the minimum block.
	small := mint.Next()
	s.SetWeights(small, []float32{1})
	_, size, err = s.Range(small)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if size != alloc.MinBlock {
		t.Errorf("block size = %d, want %d", size, alloc.MinBlock)
	}
}

func TestResizingVectorMovesBlock(t *testing.T) {
	mint := key.NewMint()
	s := NewStore(1024)

	k := mint.Next()
	s.SetWeights(k, []float32{1, 2})
	_, sizeBefore, err := s.Range(k)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}

	// Growing past the block forces a reallocation.
	grown := make([]float32, 100) // 400 bytes
	grown[0], grown[99] = 7, 9
	s.SetWeights(k, grown)

	_, sizeAfter, err := s.Range(k)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if sizeAfter <= sizeBefore {
		t.Errorf("block size = %d, want > %d", sizeAfter, sizeBefore)
	}

	got, err := s.Weights(k)
	if err != nil {
		t.Fatalf("Weights failed: %v", err)
	}
	if got[0] != 7 || got[99] != 9 || len(got) != 100 {
		t.Error("resized vector lost data")
	}
}

func TestRemoveAndStaleKey(t *testing.T) {
	mint := key.NewMint()
	s := NewStore(1024)

	k := mint.Next()
	s.SetWeights(k, []float32{1})
	if !s.Remove(k) {
		t.Error("Remove returned false for stored vector")
	}
	if s.Remove(k) {
		t.Error("double Remove returned true")
	}
	if _, err := s.Weights(k); !errors.Is(err, key.ErrNotFound) {
		t.Errorf("Weights after remove: got %v, want key.ErrNotFound", err)
	}
	if _, err := s.Offset(k); !errors.Is(err, key.ErrNotFound) {
		t.Errorf("Offset after remove: got %v, want key.ErrNotFound", err)
	}
	if _, _, err := s.Range(k); !errors.Is(err, key.ErrNotFound) {
		t.Errorf("Range after remove: got %v, want key.ErrNotFound", err)
	}
}

func TestStoreGrowthSignal(t *testing.T) {
	mint := key.NewMint()
	s := NewStore(512)

	s.SetWeights(mint.Next(), make([]float32, 64)) // 256-byte block
	s.SetWeights(mint.Next(), make([]float32, 64))
	if _, ok := s.TakeResize(); ok {
		t.Fatal("arena grew before exhaustion")
	}

	// A third vector exceeds the 512-byte arena and forces growth.
	s.SetWeights(mint.Next(), make([]float32, 64))
	size, ok := s.TakeResize()
	if !ok {
		t.Fatal("expected a pending resize after growth")
	}
	if size != len(s.Bytes()) {
		t.Errorf("resize size = %d, want %d", size, len(s.Bytes()))
	}
	if _, ok := s.TakeResize(); ok {
		t.Error("resize signal not consumed")
	}
}
