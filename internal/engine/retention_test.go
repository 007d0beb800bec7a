package engine

import (
	"math"
	"testing"
	"time"

	"github.com/softfault/recall/internal/store"
)

func TestRetentionRange(t *testing.T) {
	now := time.Now()

	convs := []*store.Conversation{
		{},
		{Importance: 10, TimesAccessed: 100000, CreatedAt: now.UnixMilli()},
		{Importance: 1, CreatedAt: daysAgo(5000)},
		{Importance: 0, TimesAccessed: 0},
		{Importance: -3, CreatedAt: -50},
	}
	for i, c := range convs {
		r := Retention(c, now)
		if r < 0 || r > 1 {
			t.Errorf("conversation %d: retention = %v outside [0,1]", i, r)
		}
	}
}

func TestRetentionMonotonicInStaleness(t *testing.T) {
	now := time.Now()

	prev := math.Inf(1)
	for _, days := range []int{0, 1, 7, 30, 90, 365, 1000} {
		c := &store.Conversation{Importance: 5, TimesAccessed: 3, CreatedAt: daysAgo(days)}
		r := Retention(c, now)
		if r > prev {
			t.Errorf("retention increased with staleness at %d days: %v > %v", days, r, prev)
		}
		prev = r
	}
}

func TestRetentionHotStaysHigh(t *testing.T) {
	now := time.Now()

	// Heavily accessed, high importance, a year stale: the combined
	// (base + boost) term above 1 keeps it near 1.0.
	hot := &store.Conversation{Importance: 10, TimesAccessed: 49, LastAccessedAt: i64ptr(daysAgo(365))}
	cold := &store.Conversation{Importance: 1, TimesAccessed: 0, LastAccessedAt: i64ptr(daysAgo(365))}

	rh, rc := Retention(hot, now), Retention(cold, now)
	if rh < 0.9 {
		t.Errorf("hot retention = %v, want >= 0.9", rh)
	}
	if rc > 0.1 {
		t.Errorf("cold retention = %v, want <= 0.1", rc)
	}
}

func TestRetentionPrefersLastAccess(t *testing.T) {
	now := time.Now()

	stale := &store.Conversation{Importance: 5, CreatedAt: daysAgo(200)}
	touched := &store.Conversation{Importance: 5, CreatedAt: daysAgo(200), LastAccessedAt: i64ptr(daysAgo(1))}

	if Retention(touched, now) <= Retention(stale, now) {
		t.Error("a recent access must raise retention")
	}
}

func TestRetentionNoTimestampMaximallyStale(t *testing.T) {
	now := time.Now()

	missing := &store.Conversation{Importance: 5, TimesAccessed: 2}
	yearOld := &store.Conversation{Importance: 5, TimesAccessed: 2, CreatedAt: now.Add(-365 * 24 * time.Hour).UnixMilli()}

	rm, ry := Retention(missing, now), Retention(yearOld, now)
	if math.Abs(rm-ry) > 1e-9 {
		t.Errorf("missing timestamp should decay like 365 days: %v vs %v", rm, ry)
	}
}

func TestRetentionImportanceSlowsDecay(t *testing.T) {
	now := time.Now()

	// Same staleness and (necessarily different) base terms cancel out in
	// the comparison: relative decay of the important one must be slower.
	lo := &store.Conversation{Importance: 2, CreatedAt: daysAgo(400)}
	hi := &store.Conversation{Importance: 9, CreatedAt: daysAgo(400)}

	loFresh := &store.Conversation{Importance: 2, CreatedAt: now.UnixMilli()}
	hiFresh := &store.Conversation{Importance: 9, CreatedAt: now.UnixMilli()}

	loRatio := Retention(lo, now) / Retention(loFresh, now)
	hiRatio := Retention(hi, now) / Retention(hiFresh, now)
	if hiRatio <= loRatio {
		t.Errorf("high importance should decay slower: ratio %v <= %v", hiRatio, loRatio)
	}
}
