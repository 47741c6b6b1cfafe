package sysproxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"helmsman/internal/core"
)

// GeneratePAC synthesizes a Proxy Auto-Configuration script. Loopback,
// plain hostnames and the explicit direct domains go DIRECT; everything
// else (including the proxy domains and the default) falls through a
// SOCKS5 → SOCKS → HTTP → DIRECT chain so at least one proxy type works
// in every PAC evaluator.
func GeneratePAC(socksPort, httpPort uint16, directDomains, proxyDomains []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "var chain = \"SOCKS5 127.0.0.1:%d; SOCKS 127.0.0.1:%d; PROXY 127.0.0.1:%d; DIRECT\";\n\n",
		socksPort, socksPort, httpPort)

	b.WriteString("function FindProxyForURL(url, host) {\n")
	b.WriteString("  host = host.toLowerCase();\n")
	b.WriteString("  if (isPlainHostName(host)) return \"DIRECT\";\n")
	b.WriteString("  if (host === \"localhost\" || shExpMatch(host, \"127.*\") || host === \"::1\") return \"DIRECT\";\n")

	for _, d := range directDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		fmt.Fprintf(&b, "  if (dnsDomainIs(host, %q) || host === %q) return \"DIRECT\";\n", "."+d, d)
	}
	for _, d := range proxyDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		fmt.Fprintf(&b, "  if (dnsDomainIs(host, %q) || host === %q) return chain;\n", "."+d, d)
	}

	b.WriteString("  return chain;\n")
	b.WriteString("}\n")
	return b.String()
}

// Publisher serves the current PAC script from a loopback HTTP listener so
// the OS auto-proxy URL has something to fetch.
type Publisher struct {
	mu     sync.RWMutex
	script string

	server *http.Server
	port   uint16
}

// NewPublisher creates an unstarted publisher on the given port.
func NewPublisher(port uint16) *Publisher {
	return &Publisher{port: port}
}

// SetScript swaps the published script.
func (p *Publisher) SetScript(script string) {
	p.mu.Lock()
	p.script = script
	p.mu.Unlock()
}

// URL returns the address the OS should be pointed at.
func (p *Publisher) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/proxy.pac", p.port)
}

// Start binds the listener. Idempotent per publisher lifetime.
func (p *Publisher) Start() error {
	if p.server != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/proxy.pac", func(w http.ResponseWriter, r *http.Request) {
		p.mu.RLock()
		script := p.script
		p.mu.RUnlock()
		w.Header().Set("Content-Type", "application/x-ns-proxy-autoconfig")
		_, _ = w.Write([]byte(script))
	})

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.port))
	if err != nil {
		return fmt.Errorf("bind PAC listener: %w", err)
	}

	p.server = &http.Server{Handler: mux}
	go func() {
		if err := p.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			core.Log.Errorf("SysProxy", "PAC server: %v", err)
		}
	}()
	core.Log.Infof("SysProxy", "PAC script published at %s", p.URL())
	return nil
}

// Stop shuts the listener down.
func (p *Publisher) Stop() {
	if p.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.server.Shutdown(ctx)
	p.server = nil
}
