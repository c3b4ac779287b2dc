package scrape

import (
	"path/filepath"
	"testing"
)

func TestCache_MissWhenEmpty(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "cache.json"))
	if _, ok, err := cache.Lookup("deadbeef"); err != nil {
		t.Fatalf("lookup: %v", err)
	} else if ok {
		t.Error("expected a miss on an empty cache")
	}
}

func TestCache_StoreAndLookup(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "cache.json"))
	fp := Fingerprint([]string{"https://a.example"})
	if err := cache.Store(fp, "summarized text"); err != nil {
		t.Fatalf("store: %v", err)
	}
	text, ok, err := cache.Lookup(fp)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok || text != "summarized text" {
		t.Errorf("got (%q, %v), want cached text", text, ok)
	}
}

func TestCache_SingleSlotReplaced(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "cache.json"))
	if err := cache.Store("fp-one", "first"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cache.Store("fp-two", "second"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok, _ := cache.Lookup("fp-one"); ok {
		t.Error("old fingerprint should have been evicted: cache has one slot")
	}
	text, ok, _ := cache.Lookup("fp-two")
	if !ok || text != "second" {
		t.Errorf("got (%q, %v), want the replacing entry", text, ok)
	}
}

func TestCache_Clear(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "cache.json"))
	if err := cache.Store("fp", "text"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cache.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := cache.Lookup("fp"); ok {
		t.Error("expected a miss after Clear")
	}
	// Clearing an already-empty cache is not an error.
	if err := cache.Clear(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}
