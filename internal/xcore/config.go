// Package xcore owns the proxy-core subprocess boundary: configuration
// synthesis, process supervision, readiness probing and the on-demand
// real-delay test. The proxy-core itself is an opaque external binary that
// consumes the JSON document produced here.
package xcore

import (
	"encoding/json"
	"fmt"
	"os"
)

// Outbound tags. The first declared outbound is the implicit default for
// unmatched traffic, so TagProxy must always come first.
const (
	TagProxy  = "proxy"
	TagDirect = "direct"
	TagBlock  = "block"
	TagDNS    = "dns-out"
	TagAPI    = "api"

	TagSocksIn = "socks-in"
	TagHTTPIn  = "http-in"
	TagAPIIn   = "api-in"
)

// Config is the full proxy-core configuration document.
type Config struct {
	Log       LogSection     `json:"log"`
	API       *APISection    `json:"api,omitempty"`
	Stats     *StatsSection  `json:"stats,omitempty"`
	Policy    *PolicySection `json:"policy,omitempty"`
	Inbounds  []Inbound      `json:"inbounds"`
	Outbounds []Outbound     `json:"outbounds"`
	Routing   RoutingSection `json:"routing"`
	DNS       *DNSSection    `json:"dns,omitempty"`
}

// LogSection controls the proxy-core's own logging.
type LogSection struct {
	Loglevel string `json:"loglevel"`
}

// APISection enables the local introspection inbound's services.
type APISection struct {
	Tag      string   `json:"tag"`
	Services []string `json:"services"`
}

// StatsSection enables traffic counters (presence is the switch).
type StatsSection struct{}

// PolicySection enables outbound-level stat counters.
type PolicySection struct {
	System SystemPolicy `json:"system"`
}

// SystemPolicy toggles system-wide counters.
type SystemPolicy struct {
	StatsOutboundUplink   bool `json:"statsOutboundUplink"`
	StatsOutboundDownlink bool `json:"statsOutboundDownlink"`
}

// Inbound is a local listener definition.
type Inbound struct {
	Tag      string         `json:"tag"`
	Listen   string         `json:"listen"`
	Port     uint16         `json:"port"`
	Protocol string         `json:"protocol"`
	Settings map[string]any `json:"settings,omitempty"`
	Sniffing *Sniffing      `json:"sniffing,omitempty"`
}

// Sniffing enables destination-override detection on an inbound.
type Sniffing struct {
	Enabled      bool     `json:"enabled"`
	DestOverride []string `json:"destOverride,omitempty"`
}

// Outbound is an egress path definition.
type Outbound struct {
	Tag            string          `json:"tag"`
	Protocol       string          `json:"protocol"`
	Settings       map[string]any  `json:"settings,omitempty"`
	StreamSettings *StreamSettings `json:"streamSettings,omitempty"`
	Mux            *MuxSettings    `json:"mux,omitempty"`
}

// StreamSettings selects transport framing and the security layer.
type StreamSettings struct {
	Network         string           `json:"network"`
	Security        string           `json:"security,omitempty"`
	TLSSettings     *TLSSettings     `json:"tlsSettings,omitempty"`
	RealitySettings *RealitySettings `json:"realitySettings,omitempty"`
	WSSettings      *WSSettings      `json:"wsSettings,omitempty"`
	GRPCSettings    *GRPCSettings    `json:"grpcSettings,omitempty"`
}

// TLSSettings is the standard TLS stanza.
type TLSSettings struct {
	ServerName    string   `json:"serverName,omitempty"`
	Fingerprint   string   `json:"fingerprint,omitempty"`
	ALPN          []string `json:"alpn,omitempty"`
	AllowInsecure bool     `json:"allowInsecure,omitempty"`
}

// RealitySettings is the REALITY obfuscated-TLS stanza.
type RealitySettings struct {
	Show        bool   `json:"show"`
	ServerName  string `json:"serverName"`
	PublicKey   string `json:"publicKey"`
	ShortID     string `json:"shortId,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	SpiderX     string `json:"spiderX,omitempty"`
}

// WSSettings is the WebSocket framing stanza. Headers is omitted entirely
// when no Host override is configured — an empty-string Host header is
// never emitted.
type WSSettings struct {
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
}

// GRPCSettings is the gRPC framing stanza.
type GRPCSettings struct {
	ServiceName string `json:"serviceName"`
}

// MuxSettings enables stream multiplexing on the proxy outbound.
type MuxSettings struct {
	Enabled     bool `json:"enabled"`
	Concurrency int  `json:"concurrency,omitempty"`
}

// RoutingSection holds the ordered rule list. First match wins; anything
// unmatched falls through to the first declared outbound.
type RoutingSection struct {
	DomainStrategy string `json:"domainStrategy"`
	Rules          []Rule `json:"rules"`
}

// Rule is one routing rule in the proxy-core's native syntax.
type Rule struct {
	Type        string   `json:"type"`
	InboundTag  []string `json:"inboundTag,omitempty"`
	Domain      []string `json:"domain,omitempty"`
	IP          []string `json:"ip,omitempty"`
	Process     []string `json:"process,omitempty"`
	OutboundTag string   `json:"outboundTag"`
}

// DNSSection configures the core's internal resolver.
type DNSSection struct {
	Servers       []DNSServer `json:"servers"`
	QueryStrategy string      `json:"queryStrategy,omitempty"`
	Tag           string      `json:"tag,omitempty"`
}

// DNSServer is one upstream resolver endpoint.
type DNSServer struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

// Marshal renders the document as indented JSON.
func (c *Config) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode core config: %w", err)
	}
	return data, nil
}

// WriteFile persists the document to path with owner-only permissions
// (it carries credentials).
func (c *Config) WriteFile(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write core config %q: %w", path, err)
	}
	return nil
}
