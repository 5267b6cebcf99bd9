package cache

import (
	"testing"
	"time"
)

func BenchmarkLRU_Set(b *testing.B) {
	c := New[string](1000, 5*time.Minute)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(HashKey(string(rune(i))), "value")
	}
}

func TestLRU_Basic(t *testing.T) {
	c := New[int](3, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected 1, got %v", v)
	}

	// "b" is now least recently used.
	c.Set("d", 4)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected 'b' to be evicted")
	}
	if c.Len() != 3 {
		t.Fatalf("expected length 3, got %d", c.Len())
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("stats = %d/%d", hits, misses)
	}
}

func TestLRU_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](10, time.Minute).WithClock(func() time.Time { return now })
	c.Set("key", "value")
	if _, ok := c.Get("key"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("key"); ok {
		t.Fatalf("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be removed on access")
	}
}

func TestLRU_ZeroTTLNeverExpires(t *testing.T) {
	now := time.Now()
	c := New[int](2, 0).WithClock(func() time.Time { return now })
	c.Set("k", 7)
	now = now.Add(1000 * time.Hour)
	if v, ok := c.Get("k"); !ok || v != 7 {
		t.Fatalf("zero ttl entry lost: %v %v", v, ok)
	}
}

func TestLRU_DumpRestore(t *testing.T) {
	c := New[[]float32](4, time.Hour)
	c.Set("x", []float32{1, 2})
	c.Set("y", []float32{3})

	d := New[[]float32](1, time.Hour)
	d.Restore(c.Dump())
	if d.Len() != 1 {
		t.Fatalf("restore should respect capacity, got %d", d.Len())
	}
}

func TestHashKeySeparatesParts(t *testing.T) {
	if HashKey("ab", "c") == HashKey("a", "bc") {
		t.Fatalf("parts must not collide when concatenated")
	}
	if HashKey("x") != HashKey("x") {
		t.Fatalf("hash must be deterministic")
	}
}
