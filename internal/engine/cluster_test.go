package engine

import (
	"testing"
	"time"

	"github.com/softfault/recall/internal/store"
)

func convAtDay(id int64, day int) store.Conversation {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return store.Conversation{
		ID:        id,
		CreatedAt: base.Add(time.Duration(day) * 24 * time.Hour).UnixMilli(),
	}
}

func TestClusterByGapAnchorReset(t *testing.T) {
	// Day0, Day1, Day10, Day11 with a 7-day gap: Day1→Day10 is 9 days
	// past the anchor at Day0, so a new group starts at Day10 and Day11
	// joins it.
	convs := []store.Conversation{
		convAtDay(1, 0), convAtDay(2, 1), convAtDay(3, 10), convAtDay(4, 11),
	}

	groups := ClusterByGap(convs, 7)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if len(groups[0]) != 2 || groups[0][0].ID != 1 || groups[0][1].ID != 2 {
		t.Errorf("group 0 = %v", ids(groups[0]))
	}
	if len(groups[1]) != 2 || groups[1][0].ID != 3 || groups[1][1].ID != 4 {
		t.Errorf("group 1 = %v", ids(groups[1]))
	}
}

func TestClusterAnchorPinnedToGroupStart(t *testing.T) {
	// Day0, Day5, Day9: Day5 joins the Day0 group, but Day9 is measured
	// against the pinned anchor (Day0), not Day5 — 9 > 7 starts a new group.
	convs := []store.Conversation{
		convAtDay(1, 0), convAtDay(2, 5), convAtDay(3, 9),
	}

	groups := ClusterByGap(convs, 7)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Errorf("group 0 = %v, want Day0+Day5", ids(groups[0]))
	}
	if len(groups[1]) != 1 || groups[1][0].ID != 3 {
		t.Errorf("group 1 = %v, want Day9 alone", ids(groups[1]))
	}
}

func TestClusterSkipsMissingTimestamps(t *testing.T) {
	convs := []store.Conversation{
		{ID: 99},           // no timestamp: excluded from all clusters
		convAtDay(1, 0),
		{ID: 98},
		convAtDay(2, 1),
	}

	groups := ClusterByGap(convs, 7)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	for _, c := range groups[0] {
		if c.ID == 99 || c.ID == 98 {
			t.Errorf("conversation %d without timestamp was clustered", c.ID)
		}
	}

	assignments := ClusterAssignments(groups)
	if _, ok := assignments[99]; ok {
		t.Error("missing-timestamp conversation got a cluster assignment")
	}
}

func TestClusterEmptyInput(t *testing.T) {
	if groups := ClusterByGap(nil, 7); len(groups) != 0 {
		t.Errorf("groups = %d, want 0", len(groups))
	}
}

func TestClusterSingleConversation(t *testing.T) {
	groups := ClusterByGap([]store.Conversation{convAtDay(1, 0)}, 7)
	if len(groups) != 1 || len(groups[0]) != 1 {
		t.Fatalf("groups = %v", groups)
	}
}

func TestClusterIndicesSequential(t *testing.T) {
	convs := []store.Conversation{
		convAtDay(1, 0), convAtDay(2, 20), convAtDay(3, 40),
	}

	assignments := ClusterAssignments(ClusterByGap(convs, 7))
	want := map[int64]int64{1: 0, 2: 1, 3: 2}
	for id, cluster := range want {
		if assignments[id] != cluster {
			t.Errorf("conversation %d cluster = %d, want %d", id, assignments[id], cluster)
		}
	}
}

func TestClusterBoundaryGapExactlyEqual(t *testing.T) {
	// A gap of exactly gapDays does not split — the rule is strictly
	// greater than.
	convs := []store.Conversation{convAtDay(1, 0), convAtDay(2, 7)}
	groups := ClusterByGap(convs, 7)
	if len(groups) != 1 {
		t.Errorf("groups = %d, want 1 (gap == gapDays stays together)", len(groups))
	}
}

func TestClusterGapCountedInWholeDays(t *testing.T) {
	// 7 days plus an hour is still a 7-day gap after flooring, so it does
	// not split; a full 8 days does.
	base := convAtDay(1, 0)
	sevenAndChange := store.Conversation{
		ID:        2,
		CreatedAt: base.CreatedAt + 7*dayMillis + int64(time.Hour/time.Millisecond),
	}
	groups := ClusterByGap([]store.Conversation{base, sevenAndChange}, 7)
	if len(groups) != 1 {
		t.Errorf("groups = %d, want 1 (partial day does not split)", len(groups))
	}

	eightDays := convAtDay(3, 8)
	groups = ClusterByGap([]store.Conversation{base, eightDays}, 7)
	if len(groups) != 2 {
		t.Errorf("groups = %d, want 2 (8 whole days splits)", len(groups))
	}
}

func ids(convs []store.Conversation) []int64 {
	out := make([]int64, len(convs))
	for i := range convs {
		out[i] = convs[i].ID
	}
	return out
}
