package key

import "testing"

func TestNoKeyInvalid(t *testing.T) {
	if NoKey.Valid() {
		t.Error("NoKey.Valid() = true, want false")
	}
	if got := NoKey.String(); got != "key(none)" {
		t.Errorf("NoKey.String() = %q, want %q", got, "key(none)")
	}
}

func TestMintNext(t *testing.T) {
	m := NewMint()
	a := m.Next()
	b := m.Next()

	if !a.Valid() || !b.Valid() {
		t.Fatal("minted keys must be valid")
	}
	if a == b {
		t.Errorf("Next() returned the same key twice: %v", a)
	}
	if a.Index() == b.Index() {
		t.Errorf("fresh keys share index %d", a.Index())
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if !m.Alive(a) || !m.Alive(b) {
		t.Error("minted keys must be alive")
	}
}

func TestMintReleaseAndReuse(t *testing.T) {
	m := NewMint()
	a := m.Next()
	b := m.Next()

	if !m.Release(a) {
		t.Fatal("Release(a) = false, want true")
	}
	if m.Alive(a) {
		t.Error("released key still alive")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	// The freed index must be reused, with a different generation.
	c := m.Next()
	if c.Index() != a.Index() {
		t.Errorf("reused index = %d, want %d", c.Index(), a.Index())
	}
	if c.Generation() == a.Generation() {
		t.Error("reused key has the same generation as the released one")
	}
	if c == a {
		t.Error("reused key compares equal to the stale key")
	}

	// The stale key stays dead even though its index is live again.
	if m.Alive(a) {
		t.Error("stale key reports alive after index reuse")
	}
	if !m.Alive(c) {
		t.Error("reminted key not alive")
	}
	_ = b
}

func TestMintReleaseStale(t *testing.T) {
	m := NewMint()
	a := m.Next()
	if !m.Release(a) {
		t.Fatal("first Release failed")
	}
	if m.Release(a) {
		t.Error("second Release of the same key succeeded")
	}
	if m.Release(NoKey) {
		t.Error("Release(NoKey) succeeded")
	}
	if m.Release(Key{index: 99, generation: 1}) {
		t.Error("Release of a key from another mint succeeded")
	}
}

func TestKeyAsMapKey(t *testing.T) {
	m := NewMint()
	a := m.Next()

	seen := map[Key]string{a: "a"}
	if seen[a] != "a" {
		t.Fatal("map lookup by live key failed")
	}

	m.Release(a)
	c := m.Next() // reuses a's index
	if _, ok := seen[c]; ok {
		t.Error("new key found the stale key's map entry")
	}
}
