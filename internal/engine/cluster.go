package engine

import (
	"github.com/softfault/recall/internal/store"
)

// DefaultClusterGapDays is the session gap that splits temporal clusters.
const DefaultClusterGapDays = 7

// ClusterByGap partitions conversations into session-like groups using a
// sliding time-gap rule. Input must be ordered by CreatedAt ascending;
// output groups preserve that order and are indexed sequentially from 0.
//
// The anchor stays pinned to each group's first timestamp, so the gap is
// always measured from the group's start rather than the previous item.
// Conversations with no resolvable timestamp are skipped entirely.
func ClusterByGap(convs []store.Conversation, gapDays int) [][]store.Conversation {
	if gapDays <= 0 {
		gapDays = DefaultClusterGapDays
	}

	var groups [][]store.Conversation
	var anchor int64

	for i := range convs {
		ts := convs[i].CreatedAt
		if ts <= 0 {
			continue
		}

		// The gap is counted in whole elapsed days, the same floor
		// retention staleness uses, so 7 days and change is still a
		// 7-day gap and does not split on its own.
		if len(groups) == 0 || (ts-anchor)/dayMillis > int64(gapDays) {
			groups = append(groups, []store.Conversation{convs[i]})
			anchor = ts
			continue
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], convs[i])
	}

	return groups
}

// ClusterAssignments flattens cluster groups into a conversation→cluster
// index map suitable for store.AssignClusters.
func ClusterAssignments(groups [][]store.Conversation) map[int64]int64 {
	assignments := make(map[int64]int64)
	for idx, group := range groups {
		for i := range group {
			assignments[group[i].ID] = int64(idx)
		}
	}
	return assignments
}
