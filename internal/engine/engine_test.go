package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/softfault/recall/internal/config"
	"github.com/softfault/recall/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	db := testDB(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := New(db, config.Default().Consolidation, log)
	t.Cleanup(eng.Stop)
	return eng
}

func daysAgo(n int) int64 {
	return time.Now().Add(-time.Duration(n)*24*time.Hour).UnixMilli()
}

func seedConv(t *testing.T, db *store.DB, c *store.Conversation) *store.Conversation {
	t.Helper()
	if err := db.CreateConversation(c); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return c
}

func seedItem(t *testing.T, db *store.DB, k *store.KnowledgeItem) *store.KnowledgeItem {
	t.Helper()
	if err := db.CreateKnowledgeItem(k); err != nil {
		t.Fatalf("CreateKnowledgeItem: %v", err)
	}
	return k
}
