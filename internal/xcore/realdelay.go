package xcore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"helmsman/internal/core"
)

// realDelayTarget is a fixed low-overhead endpoint for timed requests.
const realDelayTarget = "http://cp.cloudflare.com/generate_204"

// TestRealDelay spins up a throwaway proxy-core instance on an ephemeral
// port, issues one timed request through it, and guarantees teardown. It
// never touches the primary connection's ports or state, so it is safe to
// run while connected.
func TestRealDelay(ctx context.Context, binPath, dir string, server core.Server, settings core.Settings, timeout time.Duration) (time.Duration, error) {
	if err := CheckBinary(binPath); err != nil {
		return 0, err
	}

	port, err := ephemeralPort()
	if err != nil {
		return 0, fmt.Errorf("pick ephemeral port: %w", err)
	}

	cfg, err := SynthesizeProbe(server, settings, port)
	if err != nil {
		return 0, err
	}

	configPath := filepath.Join(dir, fmt.Sprintf("probe-%d.json", port))
	if err := cfg.WriteFile(configPath); err != nil {
		return 0, err
	}
	defer os.Remove(configPath)

	runner := NewRunner(binPath, configPath, nil)
	if err := runner.Start(); err != nil {
		return 0, err
	}
	defer runner.Stop(2 * time.Second)

	if err := awaitPort(ctx, port, 5*time.Second); err != nil {
		return 0, err
	}

	proxyURL, _ := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, realDelayTarget, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request via %q: %w", server.Name, err)
	}
	resp.Body.Close()
	return time.Since(start), nil
}

// ephemeralPort asks the kernel for a free TCP port and releases it.
func ephemeralPort() (uint16, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return uint16(port), nil
}

// awaitPort waits for a bare TCP accept on the probe instance's listener.
func awaitPort(ctx context.Context, port uint16, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		if portAccepts(addr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: probe listener on %s", core.ErrReadinessTimeout, addr)
		case <-ticker.C:
		}
	}
}
