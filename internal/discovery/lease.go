package discovery

import (
	"context"
	"time"
)

// DefaultLeaseDuration is the default participant lease (spec §5).
const DefaultLeaseDuration = 30 * time.Second

// LeaseTracker wakes periodically and expires participants whose lease
// has elapsed (spec §4.6, §5: "wakes every lease_duration/4").
type LeaseTracker struct {
	engine *Engine
	period time.Duration
}

// NewLeaseTracker constructs a tracker waking every leaseDuration/4.
func NewLeaseTracker(engine *Engine, leaseDuration time.Duration) *LeaseTracker {
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}
	return &LeaseTracker{engine: engine, period: leaseDuration / 4}
}

// Run ticks until ctx is canceled, expiring participants past their
// lease on every tick (spec §4.6, §8 "Lease expiry").
func (t *LeaseTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			t.tick(now)
		}
	}
}

func (t *LeaseTracker) tick(now time.Time) {
	for _, p := range t.engine.Participants().Expired(now) {
		t.engine.RemoveParticipant(p.GUID)
	}
}
