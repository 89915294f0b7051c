package revocation

import (
	"context"
	"errors"
	"time"

	"tokengate.org/internal/obs"
)

// Janitor periodically sweeps expired records out of a Store.
type Janitor struct {
	store    Store
	interval time.Duration
}

// NewJanitor builds a sweeper over store. Intervals below one minute are
// clamped to one minute to keep the backend load bounded.
func NewJanitor(store Store, interval time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Janitor{store: store, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	deleted, err := j.store.CleanupExpired(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		obs.LogEntry("error", "revocation cleanup failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	obs.CleanupDeleted(deleted)
	if deleted > 0 {
		obs.LogEntry("info", "revocation cleanup", map[string]any{
			"deleted": deleted,
		})
	}
}
