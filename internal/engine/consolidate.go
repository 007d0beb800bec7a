package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Options tunes a single consolidation run. Zero values fall back to the
// engine's configured thresholds.
type Options struct {
	DryRun             bool
	RetentionThreshold float64 // 0 = use configured threshold
}

// Report summarizes one consolidation run. Counts are filled per step even
// when a later step aborts, so callers can tell "ran cleanly, did nothing"
// from "aborted after step N".
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`

	PrioritiesUpdated     int `json:"priorities_updated"`
	ClustersFound         int `json:"clusters_found"`
	RetentionUpdated      int `json:"retention_updated"`
	ConversationsArchived int `json:"conversations_archived"`
	ItemsStrengthened     int `json:"items_strengthened"`
	ItemsMerged           int `json:"items_merged"`
	DuplicateGroups       int `json:"duplicate_groups"`

	// FailedAtStep names the step a store failure aborted the run at,
	// empty on success.
	FailedAtStep string `json:"failed_at_step,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Consolidation step names, in execution order.
const (
	stepPriority   = "priority"
	stepCluster    = "cluster"
	stepRetention  = "retention"
	stepArchive    = "archive"
	stepStrengthen = "strengthen"
	stepDedup      = "dedup"
)

// Consolidate runs the full consolidation pass: refresh priority scores,
// recompute clusters, refresh retention, archive cold conversations,
// strengthen hot knowledge, and deduplicate. Each step is its own store
// transaction/batch; a failure aborts the remaining steps and the report
// records where. Concurrent invocations are serialized.
func (e *Engine) Consolidate(opts Options) (*Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	now := time.Now()
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: now,
		DryRun:    opts.DryRun,
	}

	threshold := opts.RetentionThreshold
	if threshold == 0 {
		threshold = e.Cfg.RetentionThreshold
	}
	if threshold < 0 || threshold > 1 {
		return report, fmt.Errorf("retention threshold %v outside [0,1]", opts.RetentionThreshold)
	}

	fail := func(step string, err error) (*Report, error) {
		report.FailedAtStep = step
		report.Error = err.Error()
		report.FinishedAt = time.Now()
		return report, err
	}

	// Step 1: priority scores for active conversations and knowledge items.
	convs, err := e.DB.ListActiveConversations()
	if err != nil {
		return fail(stepPriority, err)
	}
	items, err := e.DB.ListActiveKnowledgeItems()
	if err != nil {
		return fail(stepPriority, err)
	}

	convPriorities := make(map[int64]float64, len(convs))
	for i := range convs {
		convPriorities[convs[i].ID] = ScoreConversation(&convs[i], now)
	}
	itemPriorities := make(map[int64]float64, len(items))
	for i := range items {
		itemPriorities[items[i].ID] = ScoreKnowledgeItem(&items[i], now)
	}
	if !opts.DryRun {
		if err := e.DB.SetConversationPriorities(convPriorities); err != nil {
			return fail(stepPriority, err)
		}
		if err := e.DB.SetKnowledgePriorities(itemPriorities); err != nil {
			return fail(stepPriority, err)
		}
	}
	report.PrioritiesUpdated = len(convPriorities) + len(itemPriorities)

	// Step 2: temporal clusters over active conversations.
	groups := ClusterByGap(convs, e.Cfg.ClusterGapDays)
	report.ClustersFound = len(groups)
	if !opts.DryRun {
		if err := e.DB.AssignClusters(ClusterAssignments(groups)); err != nil {
			return fail(stepCluster, err)
		}
	}

	// Step 3: retention scores.
	retention := make(map[int64]float64, len(convs))
	for i := range convs {
		retention[convs[i].ID] = Retention(&convs[i], now)
	}
	if !opts.DryRun {
		if err := e.DB.SetConversationRetention(retention); err != nil {
			return fail(stepRetention, err)
		}
	}
	report.RetentionUpdated = len(retention)

	// Step 4: archive low-retention conversations past the age floor.
	// Both conditions required, so young-but-cold conversations survive.
	ageFloorMillis := int64(e.Cfg.ArchivalAgeFloorDays) * dayMillis
	for i := range convs {
		c := &convs[i]
		if retention[c.ID] >= threshold {
			continue
		}
		if c.CreatedAt <= 0 || now.UnixMilli()-c.CreatedAt <= ageFloorMillis {
			continue
		}
		if !opts.DryRun {
			if err := e.DB.ArchiveConversation(c.ID); err != nil {
				return fail(stepArchive, err)
			}
		}
		report.ConversationsArchived++
	}

	// Step 5: strengthen frequently accessed knowledge. Unconditional per
	// pass — rerunning with no new accesses strengthens again.
	if opts.DryRun {
		for i := range items {
			if items[i].TimesAccessed > e.Cfg.StrengthenAccessThreshold {
				report.ItemsStrengthened++
			}
		}
	} else {
		strengthened, err := e.DB.StrengthenKnowledge(e.Cfg.StrengthenAccessThreshold)
		if err != nil {
			return fail(stepStrengthen, err)
		}
		report.ItemsStrengthened = strengthened
	}

	// Step 6: deduplicate active knowledge items.
	dedup, err := e.Dedup(e.Cfg.DedupSimilarityThreshold, MergeStrategy(e.Cfg.MergeStrategy), opts.DryRun)
	if err != nil {
		return fail(stepDedup, err)
	}
	report.ItemsMerged = dedup.ItemsMerged
	report.DuplicateGroups = dedup.DuplicateGroups

	report.FinishedAt = time.Now()
	e.Log.Info("consolidation pass finished",
		"run_id", report.RunID,
		"dry_run", report.DryRun,
		"priorities", report.PrioritiesUpdated,
		"clusters", report.ClustersFound,
		"archived", report.ConversationsArchived,
		"strengthened", report.ItemsStrengthened,
		"merged", report.ItemsMerged)
	return report, nil
}
