package store

import (
	"errors"
	"math"
	"testing"
)

func seedKnowledge(t *testing.T, db *DB, k *KnowledgeItem) *KnowledgeItem {
	t.Helper()
	if err := db.CreateKnowledgeItem(k); err != nil {
		t.Fatalf("CreateKnowledgeItem: %v", err)
	}
	return k
}

func TestCreateAndGetKnowledgeItem(t *testing.T) {
	db := testDB(t)

	k := seedKnowledge(t, db, &KnowledgeItem{
		Category:   "preferences",
		Key:        "editor",
		Value:      "uses vim with gopls",
		Confidence: 0.8,
		Importance: 6,
	})

	got, err := db.GetKnowledgeItem(k.ID)
	if err != nil {
		t.Fatalf("GetKnowledgeItem: %v", err)
	}
	if got.Category != "preferences" || got.Key != "editor" {
		t.Errorf("got %q/%q", got.Category, got.Key)
	}
	if got.Confidence != 0.8 {
		t.Errorf("confidence = %v", got.Confidence)
	}
	if got.SupersededBy != nil {
		t.Error("new item should not be superseded")
	}
}

func TestSupersededItemsHiddenFromLookups(t *testing.T) {
	db := testDB(t)

	primary := seedKnowledge(t, db, &KnowledgeItem{Category: "facts", Key: "tz", Value: "UTC+1", Confidence: 0.9, Importance: 5})
	dup := seedKnowledge(t, db, &KnowledgeItem{Category: "facts", Key: "tz", Value: "UTC+01", Confidence: 0.4, Importance: 5})

	err := db.ApplyMerge(&MergeResult{
		PrimaryID:     primary.ID,
		Value:         primary.Value,
		Confidence:    primary.Confidence,
		TimesAccessed: 0,
		DuplicateIDs:  []int64{dup.ID},
		Strategy:      "keep_highest_confidence",
		Snapshot:      []KnowledgeItem{*primary, *dup},
	})
	if err != nil {
		t.Fatalf("ApplyMerge: %v", err)
	}

	if _, err := db.GetKnowledgeItem(dup.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("superseded lookup err = %v, want ErrNotFound", err)
	}

	items, err := db.ListActiveKnowledgeItems()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != primary.ID {
		t.Errorf("active items = %v, want only primary", items)
	}

	// But the row is retained for audit
	var superseded int64
	if err := db.QueryRow(`SELECT superseded_by FROM knowledge_items WHERE id = ?`, dup.ID).Scan(&superseded); err != nil {
		t.Fatal(err)
	}
	if superseded != primary.ID {
		t.Errorf("superseded_by = %d, want %d", superseded, primary.ID)
	}
}

func TestApplyMergeMissingPrimary(t *testing.T) {
	db := testDB(t)

	err := db.ApplyMerge(&MergeResult{PrimaryID: 42, DuplicateIDs: []int64{43}, Strategy: "keep_newest"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyMergeWritesAudit(t *testing.T) {
	db := testDB(t)

	primary := seedKnowledge(t, db, &KnowledgeItem{Category: "facts", Key: "lang", Value: "Go", Confidence: 0.9, Importance: 5, TimesAccessed: 3})
	dup := seedKnowledge(t, db, &KnowledgeItem{Category: "facts", Key: "lang", Value: "golang", Confidence: 0.5, Importance: 5, TimesAccessed: 2})

	err := db.ApplyMerge(&MergeResult{
		PrimaryID:     primary.ID,
		Value:         "Go",
		Confidence:    0.9,
		TimesAccessed: 5,
		DuplicateIDs:  []int64{dup.ID},
		Strategy:      "keep_highest_confidence",
		Snapshot:      []KnowledgeItem{*primary, *dup},
	})
	if err != nil {
		t.Fatalf("ApplyMerge: %v", err)
	}

	audits, err := db.ListMergeAudits(10)
	if err != nil {
		t.Fatalf("ListMergeAudits: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("audits = %d, want 1", len(audits))
	}
	a := audits[0]
	if a.PrimaryID != primary.ID {
		t.Errorf("audit primary = %d, want %d", a.PrimaryID, primary.ID)
	}
	if len(a.MergedIDs) != 1 || a.MergedIDs[0] != dup.ID {
		t.Errorf("audit merged ids = %v", a.MergedIDs)
	}
	if len(a.Snapshot) != 2 {
		t.Errorf("audit snapshot size = %d, want 2", len(a.Snapshot))
	}
	// Pre-merge values survive in the snapshot
	if a.Snapshot[1].Value != "golang" {
		t.Errorf("snapshot value = %q, want pre-merge %q", a.Snapshot[1].Value, "golang")
	}

	got, _ := db.GetKnowledgeItem(primary.ID)
	if got.TimesAccessed != 5 {
		t.Errorf("merged times_accessed = %d, want 5", got.TimesAccessed)
	}
}

func TestStrengthenKnowledge(t *testing.T) {
	db := testDB(t)

	hot := seedKnowledge(t, db, &KnowledgeItem{Category: "facts", Key: "hot", Value: "v", Confidence: 0.5, Importance: 5, TimesAccessed: 11})
	cold := seedKnowledge(t, db, &KnowledgeItem{Category: "facts", Key: "cold", Value: "v", Confidence: 0.5, Importance: 5, TimesAccessed: 10})
	capped := seedKnowledge(t, db, &KnowledgeItem{Category: "facts", Key: "capped", Value: "v", Confidence: 0.97, Importance: 10, TimesAccessed: 50})

	n, err := db.StrengthenKnowledge(10)
	if err != nil {
		t.Fatalf("StrengthenKnowledge: %v", err)
	}
	if n != 2 {
		t.Errorf("strengthened = %d, want 2", n)
	}

	got, _ := db.GetKnowledgeItem(hot.ID)
	if math.Abs(got.Confidence-0.6) > 1e-9 {
		t.Errorf("hot confidence = %v, want 0.6", got.Confidence)
	}
	if got.Importance != 6 {
		t.Errorf("hot importance = %d, want 6", got.Importance)
	}

	got, _ = db.GetKnowledgeItem(cold.ID)
	if got.Confidence != 0.5 || got.Importance != 5 {
		t.Errorf("cold item changed: confidence=%v importance=%d", got.Confidence, got.Importance)
	}

	got, _ = db.GetKnowledgeItem(capped.ID)
	if got.Confidence != 1.0 {
		t.Errorf("capped confidence = %v, want 1.0", got.Confidence)
	}
	if got.Importance != 10 {
		t.Errorf("capped importance = %d, want 10", got.Importance)
	}

	// The rule is unconditional per pass: a second pass strengthens again.
	if _, err := db.StrengthenKnowledge(10); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetKnowledgeItem(hot.ID)
	if math.Abs(got.Confidence-0.7) > 1e-9 {
		t.Errorf("hot confidence after second pass = %v, want 0.7", got.Confidence)
	}
	if got.Importance != 7 {
		t.Errorf("hot importance after second pass = %d, want 7", got.Importance)
	}
}

func TestFindKnowledgeByCategoryKey(t *testing.T) {
	db := testDB(t)

	seedKnowledge(t, db, &KnowledgeItem{Category: "prefs", Key: "shell", Value: "zsh", Confidence: 0.5, Importance: 5})
	seedKnowledge(t, db, &KnowledgeItem{Category: "prefs", Key: "shell", Value: "zsh with oh-my-zsh", Confidence: 0.5, Importance: 5})
	seedKnowledge(t, db, &KnowledgeItem{Category: "facts", Key: "shell", Value: "unrelated", Confidence: 0.5, Importance: 5})

	items, err := db.FindKnowledgeByCategoryKey("prefs", "shell")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2 (exact category+key only)", len(items))
	}
}
