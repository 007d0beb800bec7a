package engine

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/softfault/recall/internal/store"
)

// RecordCache is an explicit read-through cache for conversation lookups.
// It is owned by whoever constructs it (the server, a CLI command) and is
// invalidated on writes — never a hidden process-wide singleton.
type RecordCache struct {
	db    *store.DB
	convs *lru.Cache[int64, *store.Conversation]
}

// NewRecordCache creates a cache holding up to size conversations.
func NewRecordCache(db *store.DB, size int) (*RecordCache, error) {
	if size <= 0 {
		size = 256
	}
	convs, err := lru.New[int64, *store.Conversation](size)
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}
	return &RecordCache{db: db, convs: convs}, nil
}

// GetConversation returns a conversation, reading through to the store on
// a miss. Archived conversations are never cached.
func (rc *RecordCache) GetConversation(id int64) (*store.Conversation, error) {
	if c, ok := rc.convs.Get(id); ok {
		return c, nil
	}

	c, err := rc.db.GetConversation(id)
	if err != nil {
		return nil, err
	}
	rc.convs.Add(id, c)
	return c, nil
}

// Invalidate drops a single conversation from the cache. Call after any
// write that touches the row (access bump, scoring, archival).
func (rc *RecordCache) Invalidate(id int64) {
	rc.convs.Remove(id)
}

// InvalidateAll empties the cache. Consolidation rewrites scores in bulk,
// so the engine's caller flushes everything after a real run.
func (rc *RecordCache) InvalidateAll() {
	rc.convs.Purge()
}

// Len returns the number of cached conversations.
func (rc *RecordCache) Len() int {
	return rc.convs.Len()
}
