package xcore

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"helmsman/internal/core"
)

// fakeSocksListener accepts connections and answers the SOCKS5 greeting
// with a no-auth method selection.
func fakeSocksListener(t *testing.T) (uint16, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 3)
				if _, err := c.Read(buf); err != nil {
					return
				}
				_, _ = c.Write([]byte{0x05, 0x00})
			}(conn)
		}
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port), func() { ln.Close() }
}

func fakeTCPListener(t *testing.T) (uint16, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port), func() { ln.Close() }
}

func TestAwaitReady(t *testing.T) {
	socksPort, stopSocks := fakeSocksListener(t)
	defer stopSocks()
	httpPort, stopHTTP := fakeTCPListener(t)
	defer stopHTTP()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := AwaitReady(ctx, socksPort, httpPort); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
}

func TestAwaitReadyTimeout(t *testing.T) {
	// Nothing listening: the probe must fail with the readiness sentinel
	// once the context deadline expires.
	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()

	unusedPort := func() uint16 {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		port := uint16(ln.Addr().(*net.TCPAddr).Port)
		ln.Close()
		return port
	}

	err := AwaitReady(ctx, unusedPort(), unusedPort())
	if !errors.Is(err, core.ErrReadinessTimeout) {
		t.Errorf("expected ErrReadinessTimeout, got %v", err)
	}
}
