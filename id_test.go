package papyrus

import "testing"

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id == "" {
			t.Fatal("empty id")
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestNewIDOrdered(t *testing.T) {
	// UUIDv7 ids embed a timestamp prefix, so ids minted later never sort
	// before ids minted earlier.
	a := NewID()
	b := NewID()
	if b < a {
		t.Errorf("ids not time-ordered: %s then %s", a, b)
	}
}
