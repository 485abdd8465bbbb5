// Package retention removes idle conversation threads from stores that do
// not expire entries on their own (memory and bbolt).
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// MinInterval is the shortest sweep interval accepted by NewJanitor.
const MinInterval = time.Minute

// Purger deletes threads last updated before a cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// Janitor periodically purges threads idle for longer than ttl.
type Janitor struct {
	store    Purger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewJanitor creates a janitor. Intervals below MinInterval are raised to it.
func NewJanitor(store Purger, ttl, interval time.Duration) *Janitor {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Janitor{store: store, ttl: ttl, interval: interval, now: time.Now}
}

// Start runs sweeps until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("ttl", j.ttl).
		Msg("Thread janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Thread janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep and returns the number of purged threads.
func (j *Janitor) RunCycle(ctx context.Context) int {
	if j.ttl <= 0 {
		return 0
	}
	start := j.now()
	n, err := j.store.Purge(ctx, start.Add(-j.ttl))
	if err != nil {
		log.Warn().Err(err).Msg("Thread janitor: purge failed")
		return 0
	}
	if n > 0 {
		log.Info().
			Int("purged_threads", n).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
	return n
}
