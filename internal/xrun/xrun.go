// Package xrun provides the panic-safe boundary used where the runtime
// calls injected callbacks: discovery match listeners, and the router's
// per-reader delivery and control dispatch (spec §7, §9). Other goroutine
// entry points are not wrapped.
//
// Go has no native poisoned-mutex equivalent; a panic while holding a
// lock unwinds through the deferred Unlock and leaves the data structure
// exactly as it was before the panicking write, which is typically safe
// to keep using. Supervise's job is narrower: stop a panic in one
// callback (a discovery listener, a user-supplied data callback) from
// taking down the whole participant process.
package xrun

import (
	"fmt"

	"go.uber.org/zap"
)

// Supervise runs fn, recovering any panic and logging it instead of
// letting it propagate. Returns the recovered panic value as an error, or
// nil if fn returned normally.
func Supervise(log *zap.SugaredLogger, label string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", label, r)
			log.Errorw("recovered panic", "where", label, "panic", r)
		}
	}()
	fn()
	return nil
}
