package engine

import (
	"math"
	"time"

	"github.com/softfault/recall/internal/store"
)

// Priority scoring weights. Six independently clamped sub-scores sum to a
// composite in [0, 10]; the flat topical term keeps range parity with the
// legacy scale until context weighting exists.
const (
	importanceWeight = 3.0
	confidenceWeight = 2.0
	recencyWeight    = 2.0
	accessWeight     = 1.5
	outcomeWeight    = 1.0
	topicalNeutral   = 0.25

	recencyDecayDays = 365.0

	// Conversations carry no confidence field; score them with this default.
	conversationConfidence = 0.8

	// accessSaturation is the access count at which the frequency
	// sub-score saturates. Logarithmic so repeated access stops dominating.
	accessSaturation = 50.0
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// ScoreInput carries the record fields priority scoring reads. It is a
// copy, so Score can never mutate the record it was derived from.
type ScoreInput struct {
	Importance     int      // 1-10
	Confidence     *float64 // nil for conversations
	CreatedAt      int64    // unix millis, 0 = unknown
	LastAccessedAt *int64
	TimesAccessed  int
	OutcomeSuccess *bool // nil = no outcome recorded
}

// Score computes the composite priority score in [0, 10]. Pure function of
// the input and now; idempotent, no side effects.
func Score(in ScoreInput, now time.Time) float64 {
	score := importanceScore(in.Importance) +
		confidenceScore(in.Confidence) +
		recencyScore(in.CreatedAt, in.LastAccessedAt, now) +
		accessScore(in.TimesAccessed) +
		outcomeScore(in.OutcomeSuccess) +
		topicalNeutral

	return clamp(score, 0, 10)
}

// ScoreConversation scores a conversation with the fixed confidence default.
func ScoreConversation(c *store.Conversation, now time.Time) float64 {
	return Score(ScoreInput{
		Importance:     c.Importance,
		CreatedAt:      c.CreatedAt,
		LastAccessedAt: c.LastAccessedAt,
		TimesAccessed:  c.TimesAccessed,
		OutcomeSuccess: c.OutcomeSuccess,
	}, now)
}

// ScoreKnowledgeItem scores a knowledge item. Knowledge has no recorded
// outcome, so the outcome sub-score stays neutral.
func ScoreKnowledgeItem(k *store.KnowledgeItem, now time.Time) float64 {
	confidence := k.Confidence
	return Score(ScoreInput{
		Importance:     k.Importance,
		Confidence:     &confidence,
		CreatedAt:      k.CreatedAt,
		LastAccessedAt: k.LastAccessedAt,
		TimesAccessed:  k.TimesAccessed,
	}, now)
}

func importanceScore(importance int) float64 {
	return clamp(float64(importance)/10.0, 0, 1) * importanceWeight
}

func confidenceScore(confidence *float64) float64 {
	c := conversationConfidence
	if confidence != nil {
		c = *confidence
	}
	return clamp(c, 0, 1) * confidenceWeight
}

func recencyScore(createdAt int64, lastAccessedAt *int64, now time.Time) float64 {
	ref := createdAt
	if lastAccessedAt != nil && *lastAccessedAt > ref {
		ref = *lastAccessedAt
	}
	if ref <= 0 {
		// No resolvable timestamp: neutral contribution, not decayed.
		return 1.0
	}

	ageDays := float64(now.UnixMilli()-ref) / float64(dayMillis)
	if ageDays < 0 {
		ageDays = 0
	}
	return clamp(recencyWeight*math.Exp(-ageDays/recencyDecayDays), 0, recencyWeight)
}

// accessBoost saturates at accessSaturation accesses and is shared by
// priority scoring and retention estimation.
func accessBoost(timesAccessed int) float64 {
	if timesAccessed < 0 {
		timesAccessed = 0
	}
	boost := math.Log(float64(timesAccessed)+1) / math.Log(accessSaturation)
	return math.Min(1, boost)
}

func accessScore(timesAccessed int) float64 {
	return accessWeight * accessBoost(timesAccessed)
}

func outcomeScore(success *bool) float64 {
	if success == nil {
		return 0.5
	}
	if *success {
		return outcomeWeight
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
