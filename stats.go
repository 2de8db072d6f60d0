package distill

import (
	"context"
	"time"
)

// Stats represents cache statistics.
type Stats struct {
	Entries      int           // Total number of cache entries
	TotalBytes   int64         // Sum of recorded artifact sizes
	CounterBytes int64         // Persisted size counter (may drift until prune)
	OldestEntry  time.Duration // Age of the oldest entry
	NewestEntry  time.Duration // Age of the newest entry
}

// Stats returns statistics about the cache, computed from the metadata
// store and the persisted size counter.
func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	recs, err := c.meta.Find(ctx, RecordFilter{}, FindOptions{})
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{CounterBytes: c.store.currentSize()}
	var oldest, newest time.Time

	for _, rec := range recs {
		stats.Entries++
		stats.TotalBytes += rec.SizeBytes

		if oldest.IsZero() || rec.CreatedAt.Before(oldest) {
			oldest = rec.CreatedAt
		}
		if newest.IsZero() || rec.CreatedAt.After(newest) {
			newest = rec.CreatedAt
		}
	}

	now := c.now()
	if !oldest.IsZero() {
		stats.OldestEntry = now.Sub(oldest)
	}
	if !newest.IsZero() {
		stats.NewestEntry = now.Sub(newest)
	}
	return stats, nil
}
