package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/softfault/recall/internal/store"
)

// DefaultDedupThreshold is the minimum composite similarity for a pair of
// knowledge items to count as duplicates.
const DefaultDedupThreshold = 0.85

// Similarity weights. The flat category baseline means two items in the
// same category with zero textual overlap still register ~0.3 — kept
// deliberately for parity with the scale existing thresholds were tuned
// against.
const (
	keySimWeight     = 0.4
	valueSimWeight   = 0.3
	categoryBaseline = 0.3
)

// MergeStrategy selects how a duplicate group's surviving value is chosen.
type MergeStrategy string

const (
	KeepHighestConfidence MergeStrategy = "keep_highest_confidence"
	KeepNewest            MergeStrategy = "keep_newest"
	CombineValues         MergeStrategy = "combine_values"
)

// ValidMergeStrategy reports whether s names a known strategy.
func ValidMergeStrategy(s MergeStrategy) bool {
	switch s {
	case KeepHighestConfidence, KeepNewest, CombineValues:
		return true
	}
	return false
}

// DuplicatePair is a candidate duplicate found by the similarity scan.
type DuplicatePair struct {
	AID        int64
	BID        int64
	Similarity float64
	A          *store.KnowledgeItem
	B          *store.KnowledgeItem
}

// DuplicateGroup is a merge group assembled from overlapping pairs.
// PrimaryID is the first-seen (lowest) id in the group.
type DuplicateGroup struct {
	PrimaryID int64
	Members   []*store.KnowledgeItem
}

// Similarity computes the composite similarity of two knowledge items.
// Items in different categories are never comparable and score 0.
func Similarity(a, b *store.KnowledgeItem) float64 {
	if a.Category != b.Category {
		return 0
	}
	keySim := stringSimilarity(a.Key, b.Key)
	valueSim := stringSimilarity(a.Value, b.Value)
	return keySimWeight*keySim + valueSimWeight*valueSim + categoryBaseline
}

// stringSimilarity is a normalized Levenshtein similarity over lowercased
// strings: 1 - dist/maxLen, and 1.0 when both strings are empty.
func stringSimilarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// FindDuplicates scans same-category buckets pairwise and returns every
// pair at or above the threshold. Items are expected in first-seen (id)
// order so grouping primaries are stable.
func FindDuplicates(items []store.KnowledgeItem, threshold float64) []DuplicatePair {
	buckets := make(map[string][]*store.KnowledgeItem)
	var categories []string
	for i := range items {
		cat := items[i].Category
		if _, seen := buckets[cat]; !seen {
			categories = append(categories, cat)
		}
		buckets[cat] = append(buckets[cat], &items[i])
	}

	var pairs []DuplicatePair
	for _, cat := range categories {
		bucket := buckets[cat]
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				sim := Similarity(bucket[i], bucket[j])
				if sim >= threshold {
					pairs = append(pairs, DuplicatePair{
						AID: bucket[i].ID, BID: bucket[j].ID,
						Similarity: sim,
						A:          bucket[i], B: bucket[j],
					})
				}
			}
		}
	}
	return pairs
}

// GroupDuplicates folds pairs into merge groups: when either end of a new
// pair already belongs to a group, both ends join that group; otherwise the
// pair starts a new group keyed by its first-seen id.
func GroupDuplicates(pairs []DuplicatePair) []*DuplicateGroup {
	groupOf := make(map[int64]*DuplicateGroup)
	var groups []*DuplicateGroup

	add := func(g *DuplicateGroup, item *store.KnowledgeItem) {
		if _, in := groupOf[item.ID]; in {
			return
		}
		groupOf[item.ID] = g
		g.Members = append(g.Members, item)
	}

	for _, p := range pairs {
		g := groupOf[p.AID]
		if g == nil {
			g = groupOf[p.BID]
		}
		if g == nil {
			g = &DuplicateGroup{PrimaryID: p.AID}
			groups = append(groups, g)
		}
		add(g, p.A)
		add(g, p.B)
	}
	return groups
}

// resolveMerge computes the post-merge state of a group under the given
// strategy. timesAccessed is always summed; value and confidence follow
// the strategy.
func resolveMerge(g *DuplicateGroup, strategy MergeStrategy) (*store.MergeResult, error) {
	if len(g.Members) < 2 {
		return nil, fmt.Errorf("group of %d members is not mergeable", len(g.Members))
	}

	var primary *store.KnowledgeItem
	totalAccesses := 0
	for _, m := range g.Members {
		totalAccesses += m.TimesAccessed
		if m.ID == g.PrimaryID {
			primary = m
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("primary %d not in group", g.PrimaryID)
	}

	result := &store.MergeResult{
		PrimaryID:     g.PrimaryID,
		TimesAccessed: totalAccesses,
		Strategy:      string(strategy),
	}
	for _, m := range g.Members {
		result.Snapshot = append(result.Snapshot, *m)
		if m.ID != g.PrimaryID {
			result.DuplicateIDs = append(result.DuplicateIDs, m.ID)
		}
	}

	switch strategy {
	case KeepHighestConfidence:
		chosen := g.Members[0]
		for _, m := range g.Members[1:] {
			if m.Confidence > chosen.Confidence {
				chosen = m
			}
		}
		result.Value = chosen.Value
		result.Confidence = chosen.Confidence

	case KeepNewest:
		chosen := g.Members[0]
		for _, m := range g.Members[1:] {
			if m.RefTime() > chosen.RefTime() {
				chosen = m
			}
		}
		result.Value = chosen.Value
		result.Confidence = chosen.Confidence

	case CombineValues:
		seen := make(map[string]bool)
		var values []string
		maxConfidence := 0.0
		for _, m := range g.Members {
			if !seen[m.Value] {
				seen[m.Value] = true
				values = append(values, m.Value)
			}
			if m.Confidence > maxConfidence {
				maxConfidence = m.Confidence
			}
		}
		result.Value = strings.Join(values, ", ")
		result.Confidence = maxConfidence

	default:
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}

	return result, nil
}

// DedupResult summarizes one deduplication pass.
type DedupResult struct {
	PairsFound      int
	DuplicateGroups int
	ItemsMerged     int
	GroupsSkipped   int
}

// Dedup finds near-duplicate knowledge items and merges each duplicate
// group under the given strategy. In dry-run mode the same candidate
// groups and counts are computed but nothing is written. A group whose
// primary disappeared between scan and merge is skipped and logged, never
// fatal to the pass.
func (e *Engine) Dedup(threshold float64, strategy MergeStrategy, dryRun bool) (*DedupResult, error) {
	items, err := e.DB.ListActiveKnowledgeItems()
	if err != nil {
		return nil, fmt.Errorf("load knowledge items: %w", err)
	}

	pairs := FindDuplicates(items, threshold)
	groups := GroupDuplicates(pairs)

	result := &DedupResult{PairsFound: len(pairs)}
	if err := e.mergeGroups(groups, strategy, dryRun, result); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) mergeGroups(groups []*DuplicateGroup, strategy MergeStrategy, dryRun bool, result *DedupResult) error {
	for _, g := range groups {
		if len(g.Members) < 2 {
			continue
		}
		result.DuplicateGroups++

		merge, err := resolveMerge(g, strategy)
		if err != nil {
			return fmt.Errorf("resolve group %d: %w", g.PrimaryID, err)
		}

		if dryRun {
			result.ItemsMerged += len(merge.DuplicateIDs)
			continue
		}

		if err := e.DB.ApplyMerge(merge); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.Log.Warn("dedup: merge primary vanished mid-pass, skipping group",
					slog.Int64("primary", g.PrimaryID))
				result.GroupsSkipped++
				continue
			}
			return fmt.Errorf("merge group %d: %w", g.PrimaryID, err)
		}
		result.ItemsMerged += len(merge.DuplicateIDs)
	}

	return nil
}
