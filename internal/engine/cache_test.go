package engine

import (
	"errors"
	"testing"

	"github.com/softfault/recall/internal/store"
)

func TestRecordCacheReadThrough(t *testing.T) {
	db := testDB(t)
	c := seedConv(t, db, &store.Conversation{Topic: "cached", Importance: 5})

	cache, err := NewRecordCache(db, 8)
	if err != nil {
		t.Fatalf("NewRecordCache: %v", err)
	}

	got, err := cache.GetConversation(c.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Topic != "cached" {
		t.Errorf("topic = %q", got.Topic)
	}
	if cache.Len() != 1 {
		t.Errorf("cache len = %d, want 1", cache.Len())
	}

	// Hit path returns the cached copy even after the row changes
	if err := db.TouchConversation(c.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = cache.GetConversation(c.ID)
	if got.TimesAccessed != 0 {
		t.Error("expected stale cached copy before invalidation")
	}

	// Invalidation forces a re-read
	cache.Invalidate(c.ID)
	got, _ = cache.GetConversation(c.ID)
	if got.TimesAccessed != 1 {
		t.Errorf("times_accessed = %d, want 1 after invalidate", got.TimesAccessed)
	}
}

func TestRecordCacheMiss(t *testing.T) {
	db := testDB(t)
	cache, err := NewRecordCache(db, 8)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cache.GetConversation(404); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if cache.Len() != 0 {
		t.Error("miss must not populate the cache")
	}
}

func TestRecordCacheInvalidateAll(t *testing.T) {
	db := testDB(t)
	a := seedConv(t, db, &store.Conversation{Topic: "a", Importance: 5})
	b := seedConv(t, db, &store.Conversation{Topic: "b", Importance: 5})

	cache, _ := NewRecordCache(db, 8)
	cache.GetConversation(a.ID)
	cache.GetConversation(b.ID)
	if cache.Len() != 2 {
		t.Fatalf("cache len = %d, want 2", cache.Len())
	}

	cache.InvalidateAll()
	if cache.Len() != 0 {
		t.Errorf("cache len = %d after purge, want 0", cache.Len())
	}
}
