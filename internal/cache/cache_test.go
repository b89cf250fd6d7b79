package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]().(*ttlCache[string, int])
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %d (%v)", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to expire")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("entries without ttl must not expire")
	}
}

func TestTTLCacheUpdate(t *testing.T) {
	c := NewTTLCache[string, []int]()

	if c.Update("missing", func(v []int) []int { return append(v, 1) }) {
		t.Fatalf("update on a miss must report false")
	}

	c.Set("k", []int{1}, 0)
	if !c.Update("k", func(v []int) []int { return append(v, 2) }) {
		t.Fatalf("expected update to apply")
	}
	v, _ := c.Get("k")
	if len(v) != 2 || v[1] != 2 {
		t.Fatalf("unexpected value %v", v)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected delete to remove key")
	}
}
