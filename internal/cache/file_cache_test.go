package cache

import (
	"testing"
	"time"
)

func TestFileCacheRoundTrip(t *testing.T) {
	c := New(t.TempDir(), time.Hour)

	if err := c.Set("Running  Shoes", "top picks: ..."); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Equivalent query text hits the same slot.
	entry, ok, err := c.Get("running shoes")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if entry.Result != "top picks: ..." {
		t.Fatalf("unexpected result %q", entry.Result)
	}
}

func TestFileCacheMiss(t *testing.T) {
	c := New(t.TempDir(), time.Hour)

	if _, ok, err := c.Get("never stored"); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	current := time.Now().UTC()
	c := New(t.TempDir(), time.Hour, WithNow(func() time.Time { return current }))

	if err := c.Set("weather oslo", "cloudy"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, ok, _ := c.Get("weather oslo"); ok {
		t.Fatal("expected stale entry to miss")
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := NormalizeQuery("  What's   THE Weather  "); got != "what's the weather" {
		t.Fatalf("unexpected normalization %q", got)
	}
}
