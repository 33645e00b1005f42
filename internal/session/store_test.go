package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInMemoryStore_Latch(t *testing.T) {
	store := NewInMemoryStore()

	if _, ok := store.Get(SlotManifest); ok {
		t.Error("expected empty slot")
	}
	if !store.Latch(SlotManifest, "https://h/a.mpd") {
		t.Fatal("first latch should succeed")
	}
	if store.Latch(SlotManifest, "https://h/b.mpd") {
		t.Error("second latch must not overwrite")
	}
	got, ok := store.Get(SlotManifest)
	if !ok || got != "https://h/a.mpd" {
		t.Errorf("Get = %q, %v", got, ok)
	}
}

func TestInMemoryStore_Latch_empty_value(t *testing.T) {
	store := NewInMemoryStore()
	if store.Latch(SlotAudioInit, "") {
		t.Error("empty values are not latched")
	}
	if _, ok := store.Get(SlotAudioInit); ok {
		t.Error("slot should stay empty")
	}
}

func TestInMemoryStore_Snapshot_is_copy(t *testing.T) {
	store := NewInMemoryStore()
	store.Latch(SlotVideoInit, "v")
	snap := store.Snapshot()
	snap[SlotVideoInit] = "changed"
	if got, _ := store.Get(SlotVideoInit); got != "v" {
		t.Errorf("snapshot mutation leaked into store: %q", got)
	}
}

func TestInMemoryStore_concurrent_single_winner(t *testing.T) {
	store := NewInMemoryStore()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if store.Latch(SlotAudioSegment, fmt.Sprintf("u%d", i)) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestLatch(t *testing.T) {
	var l Latch[int]
	if _, ok := l.Get(); ok {
		t.Error("new latch should be empty")
	}
	if !l.Set(1) || l.Set(2) {
		t.Error("latch should accept only the first value")
	}
	if v, ok := l.Get(); !ok || v != 1 {
		t.Errorf("Get = %d, %v", v, ok)
	}
}
