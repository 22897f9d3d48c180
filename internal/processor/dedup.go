package processor

import (
	"context"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/recency"
)

// DefaultDedupCapacity is the minimum and default RecencyCache size
// backing Dedup.
const DefaultDedupCapacity = 1000

// Dedup drops any Alert whose ID has already been seen, backed by a
// RecencyCache keyed on Alert.ID.
type Dedup struct {
	seen *recency.Cache[string]
}

// NewDedup builds a Dedup with the given cache capacity. Capacity below
// DefaultDedupCapacity is raised to it.
func NewDedup(capacity int) *Dedup {
	if capacity < DefaultDedupCapacity {
		capacity = DefaultDedupCapacity
	}
	return &Dedup{seen: recency.New[string](capacity)}
}

func (d *Dedup) Name() string { return "dedup" }

func (d *Dedup) Process(_ context.Context, a alert.Alert) (alert.Alert, bool) {
	if !d.seen.Add(a.ID) {
		return alert.Alert{}, false
	}
	return a, true
}
