package orchestrator

import (
	"context"
	"sync"
	"time"

	"helmsman/internal/core"
)

const (
	reconnectInitialDelay = 3 * time.Second
	reconnectMaxDelay     = 30 * time.Second
	reconnectMaxAttempts  = 5
)

// reconnector retries a failed connection while the user's intent is
// still "connected". One retry goroutine at most; cancelled the moment
// the user disconnects or a connect succeeds.
type reconnector struct {
	o *Orchestrator

	mu       sync.Mutex
	intent   bool
	serverID string
	cancel   context.CancelFunc
	gen      int // bumps per retry loop, so a finished loop only clears itself
}

func newReconnector(o *Orchestrator) *reconnector {
	return &reconnector{o: o}
}

// setIntent records whether the user wants to be connected. Clearing
// intent cancels any active retry loop.
func (r *reconnector) setIntent(serverID string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if connected {
		r.intent = true
		r.serverID = serverID
		// A fresh successful connect supersedes any retry in flight.
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
		return
	}
	r.intent = false
	r.serverID = ""
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// trigger starts the retry loop after an unexpected failure, if intent
// still stands and no loop is already running.
func (r *reconnector) trigger(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.intent || r.serverID != serverID || r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.gen++
	go r.loop(ctx, r.gen, serverID)
}

func (r *reconnector) loop(ctx context.Context, gen int, serverID string) {
	defer func() {
		r.mu.Lock()
		if r.gen == gen && r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
		r.mu.Unlock()
	}()

	delay := reconnectInitialDelay
	core.Log.Infof("Reconnect", "Starting retry loop for server %s", serverID)

	for attempt := 1; attempt <= reconnectMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			core.Log.Infof("Reconnect", "Cancelled for server %s", serverID)
			return
		case <-time.After(delay):
		}

		r.mu.Lock()
		hasIntent := r.intent && r.serverID == serverID
		r.mu.Unlock()
		if !hasIntent {
			core.Log.Infof("Reconnect", "Intent cleared for server %s, stopping", serverID)
			return
		}

		core.Log.Infof("Reconnect", "Attempt %d/%d for server %s", attempt, reconnectMaxAttempts, serverID)
		if _, err := r.o.Connect(ctx, serverID); err != nil {
			core.Log.Warnf("Reconnect", "Attempt %d failed: %v", attempt, err)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		core.Log.Infof("Reconnect", "Server %s reconnected", serverID)
		return
	}
	core.Log.Warnf("Reconnect", "Gave up on server %s after %d attempts", serverID, reconnectMaxAttempts)
}

// stop cancels any retry loop for daemon shutdown.
func (r *reconnector) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
