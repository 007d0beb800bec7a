package engine

import (
	"math"
	"time"

	"github.com/softfault/recall/internal/store"
)

// staleFallbackDays is how old a conversation with no resolvable timestamp
// is treated as: maximally stale, a full decay period.
const staleFallbackDays = 365.0

// Retention estimates the probability-like score in [0, 1] that a
// conversation is still worth keeping active. Used only for archival
// eligibility, never for ranking.
//
// Decay slows with importance: λ = 1 / (365 * (1 + importance/10)). The
// pre-decay term (baseImportance + accessBoost) can exceed 1, which is what
// keeps hot, high-importance conversations pinned near 1.0 long after cold
// ones have faded.
func Retention(c *store.Conversation, now time.Time) float64 {
	baseImportance := clamp(float64(c.Importance)/10.0, 0, 1)
	boost := accessBoost(c.TimesAccessed)

	days := daysSinceAccess(c, now)
	lambda := 1.0 / (staleFallbackDays * (1.0 + baseImportance))

	return clamp((baseImportance+boost)*math.Exp(-lambda*days), 0, 1)
}

// daysSinceAccess returns whole days since the conversation was last
// accessed, falling back to creation time, and treating a conversation
// with no resolvable timestamp as maximally stale.
func daysSinceAccess(c *store.Conversation, now time.Time) float64 {
	ref := int64(0)
	if c.LastAccessedAt != nil && *c.LastAccessedAt > 0 {
		ref = *c.LastAccessedAt
	} else if c.CreatedAt > 0 {
		ref = c.CreatedAt
	}
	if ref <= 0 {
		return staleFallbackDays
	}

	days := math.Floor(float64(now.UnixMilli()-ref) / float64(dayMillis))
	if days < 0 {
		return 0
	}
	return days
}
