package reliability

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hdds-team/hdds/internal/wire"
)

// DefaultHeartbeatPeriod is the steady-state HEARTBEAT interval (spec §5).
const DefaultHeartbeatPeriod = 100 * time.Millisecond

// HeartbeatSender delivers an encoded HEARTBEAT submessage to a writer's
// matched readers. Implemented by the participant runtime's transport
// layer.
type HeartbeatSender func(hb wire.Heartbeat)

// HeartbeatEmitter periodically announces a writer's retained sequence
// range, backing off when no new samples have been pushed since the last
// announcement (spec §4.7, §9 Open Question: "HEARTBEAT period: fixed vs
// adaptive" - resolved here as adaptive, backing off during idle periods
// and resetting to the base period the moment a new sample is pushed, to
// bound discovery convergence latency without idling at full rate
// forever).
type HeartbeatEmitter struct {
	writerID wire.EntityID
	readerID wire.EntityID
	cache    *WriterCache
	send     HeartbeatSender

	mu        sync.Mutex
	count     uint32
	lastFirst wire.SequenceNumber
	lastLast  wire.SequenceNumber

	backoff *backoff.ExponentialBackOff
}

// NewHeartbeatEmitter constructs an emitter for one writer entity, sending
// through send every time Run's ticker fires.
func NewHeartbeatEmitter(writerID, readerID wire.EntityID, cache *WriterCache, send HeartbeatSender) *HeartbeatEmitter {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultHeartbeatPeriod
	b.MaxInterval = 2 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	// A writer announces its retained range for as long as it lives, even
	// through long idle stretches with no new samples; MaxElapsedTime's
	// give-up-after-N cutoff doesn't apply here.
	b.MaxElapsedTime = 0

	return &HeartbeatEmitter{
		writerID: writerID,
		readerID: readerID,
		cache:    cache,
		send:     send,
		backoff:  b,
	}
}

// Run emits HEARTBEATs until ctx is canceled. The wait interval grows via
// exponential backoff while the cache's retained range stays unchanged
// (no new samples pushed) and resets to the base period the instant the
// range advances.
func (e *HeartbeatEmitter) Run(ctx context.Context) error {
	timer := time.NewTimer(e.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			e.emit()
			timer.Reset(e.nextInterval())
		}
	}
}

func (e *HeartbeatEmitter) nextInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	first, last, ok := e.cache.Range()
	if ok && (first != e.lastFirst || last != e.lastLast) {
		e.backoff.Reset()
	}
	next := e.backoff.NextBackOff()
	return next
}

func (e *HeartbeatEmitter) emit() {
	e.mu.Lock()
	first, last, ok := e.cache.Range()
	if !ok {
		first, last = 1, 0 // empty range per RTPS convention
	}
	e.lastFirst, e.lastLast = first, last
	e.count++
	count := e.count
	e.mu.Unlock()

	e.send(wire.Heartbeat{
		ReaderID: e.readerID,
		WriterID: e.writerID,
		FirstSeq: first,
		LastSeq:  last,
		Count:    int32(count),
		IsFinal:  false,
	})
}
