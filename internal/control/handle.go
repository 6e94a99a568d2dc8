// Package control implements the opaque handle-based control-plane
// channel of spec §6: participant/topic/writer/reader creation and
// teardown, publish/take, wait-sets, and graph visitors, all addressed
// through reference-counted integer handles rather than Go pointers, so
// the API is safe to expose across a language binding boundary.
package control

import (
	"sync"
	"sync/atomic"

	"github.com/hdds-team/hdds/internal/xerr"
)

// Handle is an opaque, process-local reference to a control-plane object
// (participant, topic, writer, reader, or wait-set). The zero Handle is
// never valid, matching the "null handle" convention a C binding expects.
type Handle int64

var nextHandle atomic.Int64

func allocHandle() Handle {
	return Handle(nextHandle.Add(1))
}

// registry is a reference-counted, RWMutex-guarded handle table,
// generalizing the pack's name-keyed BackendRegistry (controlplane's
// Gateway API) to a handle-keyed one.
type registry[T any] struct {
	mu      sync.RWMutex
	entries map[Handle]*entry[T]
}

type entry[T any] struct {
	value T
	refs  int
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{entries: make(map[Handle]*entry[T])}
}

// insert stores value under a freshly allocated handle with one reference
// held on behalf of the caller.
func (r *registry[T]) insert(value T) Handle {
	h := allocHandle()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[h] = &entry[T]{value: value, refs: 1}
	return h
}

// get returns the value for h, or xerr.NotFound if h is unknown.
func (r *registry[T]) get(h Handle) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[h]
	if !ok {
		var zero T
		return zero, xerr.Wrap(xerr.NotFound, nil)
	}
	return e.value, nil
}

// retain increments h's reference count, so one more release is needed
// before the entry is deleted. No Manager method calls it; child handles
// (writers, readers, topics) hold no reference on their participant.
func (r *registry[T]) retain(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return xerr.Wrap(xerr.NotFound, nil)
	}
	e.refs++
	return nil
}

// release drops one reference to h, deleting the entry and returning its
// value once refs reaches zero. ok is false if more references remain,
// or if h is already gone (a double release, tolerated per spec §6
// "releases are explicit": idempotent release is safer across a binding
// boundary than double-free panics).
func (r *registry[T]) release(h Handle) (value T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, present := r.entries[h]
	if !present {
		return value, false
	}
	e.refs--
	if e.refs > 0 {
		return value, false
	}
	delete(r.entries, h)
	return e.value, true
}

// all returns a snapshot of every live value, for graph visitors.
func (r *registry[T]) all() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.value)
	}
	return out
}
