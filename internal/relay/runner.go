// Package relay runs webhook processing off the request path. Each
// verified event is handed to a goroutine; there is no queue and no
// retry, but shutdown waits for in-flight work to finish.
package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Runner tracks fire-and-forget goroutines so the process can drain
// them on shutdown.
type Runner struct {
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRunner creates a running Runner.
func NewRunner() *Runner {
	return &Runner{stopCh: make(chan struct{})}
}

// Go runs fn in a goroutine tracked by the runner. After Shutdown has
// begun, new work is dropped with a log line instead of started. A
// panic in fn is recovered and logged; one bad event must not take
// the process down.
func (r *Runner) Go(name string, fn func(ctx context.Context)) {
	select {
	case <-r.stopCh:
		log.Warn().Str("task", name).Msg("shutting down, event dropped")
		return
	default:
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if v := recover(); v != nil {
				log.Error().Str("task", name).Interface("panic", v).Msg("relay task panicked")
			}
		}()
		fn(context.Background())
	}()
}

// Shutdown stops accepting new work and waits for in-flight tasks
// until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) {
	r.once.Do(func() {
		close(r.stopCh)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		log.Warn().Msg("shutdown deadline reached with relay tasks still running")
	case <-done:
	}
}
