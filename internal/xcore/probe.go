package xcore

import (
	"context"
	"fmt"
	"net"
	"time"

	"helmsman/internal/core"
)

const (
	probeInterval = 200 * time.Millisecond
	probeDeadline = 10 * time.Second
	dialTimeout   = 500 * time.Millisecond
)

// AwaitReady polls the SOCKS and HTTP listeners until both accept a TCP
// connection and the SOCKS listener answers a minimal handshake, bounded
// by the probe deadline. A timeout returns core.ErrReadinessTimeout —
// callers treat it as non-fatal (the core may still be bringing up
// network routes).
func AwaitReady(ctx context.Context, socksPort, httpPort uint16) error {
	ctx, cancel := context.WithTimeout(ctx, probeDeadline)
	defer cancel()

	socksAddr := fmt.Sprintf("127.0.0.1:%d", socksPort)
	httpAddr := fmt.Sprintf("127.0.0.1:%d", httpPort)

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		if portAccepts(httpAddr) && probeSOCKS(socksAddr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: listeners on %s/%s not responsive", core.ErrReadinessTimeout, socksAddr, httpAddr)
		case <-ticker.C:
		}
	}
}

// portAccepts reports whether a TCP connect to addr succeeds.
func portAccepts(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// probeSOCKS confirms the listener is functionally alive, not merely
// bound: it sends the SOCKS5 greeting (version 5, one method, no-auth)
// and accepts any reply.
func probeSOCKS(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(dialTimeout))
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return false
	}
	reply := make([]byte, 2)
	if _, err := conn.Read(reply); err != nil {
		return false
	}
	return true
}
