package core

import (
	"fmt"
	"time"
)

// Protocol identifies the tunnel protocol a server speaks.
type Protocol string

const (
	ProtocolVless       Protocol = "vless"
	ProtocolVmess       Protocol = "vmess"
	ProtocolTrojan      Protocol = "trojan"
	ProtocolShadowsocks Protocol = "shadowsocks"
)

// Valid reports whether p is a known protocol.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolVless, ProtocolVmess, ProtocolTrojan, ProtocolShadowsocks:
		return true
	}
	return false
}

// Server describes a remote proxy server. A snapshot is taken at connect
// time; the record is never mutated while a connection attempt is running.
type Server struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Protocol Protocol       `json:"protocol" yaml:"protocol"`
	Address  string         `json:"address" yaml:"address"`
	Port     uint16         `json:"port" yaml:"port"`
	Config   ProtocolConfig `json:"config" yaml:"config"`
	Remarks  string         `json:"remarks,omitempty" yaml:"remarks,omitempty"`
}

// ProtocolConfig is a tagged union of protocol-specific credentials plus
// the shared transport and security stanzas. Exactly one credential field
// is expected to be set, matching Server.Protocol.
type ProtocolConfig struct {
	Vless       *VlessConfig       `json:"vless,omitempty" yaml:"vless,omitempty"`
	Vmess       *VmessConfig       `json:"vmess,omitempty" yaml:"vmess,omitempty"`
	Trojan      *TrojanConfig      `json:"trojan,omitempty" yaml:"trojan,omitempty"`
	Shadowsocks *ShadowsocksConfig `json:"shadowsocks,omitempty" yaml:"shadowsocks,omitempty"`

	Transport TransportConfig `json:"transport" yaml:"transport"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
}

// VlessConfig holds VLESS credentials.
type VlessConfig struct {
	// UUID is the VLESS user UUID.
	UUID string `json:"uuid" yaml:"uuid"`
	// Flow is the XTLS flow type (e.g. "xtls-rprx-vision"). Optional.
	Flow string `json:"flow,omitempty" yaml:"flow,omitempty"`
	// Encryption is always "none" for VLESS; defaulted when empty.
	Encryption string `json:"encryption,omitempty" yaml:"encryption,omitempty"`
}

// VmessConfig holds VMess credentials.
type VmessConfig struct {
	UUID    string `json:"uuid" yaml:"uuid"`
	AlterID int    `json:"alterId" yaml:"alter_id"`
	// Cipher is the VMess security setting: "auto", "aes-128-gcm",
	// "chacha20-poly1305", "none". Defaulted to "auto" when empty.
	Cipher string `json:"cipher,omitempty" yaml:"cipher,omitempty"`
}

// TrojanConfig holds Trojan credentials.
type TrojanConfig struct {
	Password string `json:"password" yaml:"password"`
}

// ShadowsocksConfig holds Shadowsocks credentials.
type ShadowsocksConfig struct {
	Password string `json:"password" yaml:"password"`
	// Method is the AEAD cipher, e.g. "aes-256-gcm", "chacha20-ietf-poly1305".
	Method string `json:"method" yaml:"method"`
}

// TransportConfig selects the stream framing for the outbound.
type TransportConfig struct {
	// Type is "tcp", "ws" or "grpc". Defaulted to "tcp" when empty.
	Type string     `json:"type" yaml:"type"`
	WS   WSConfig   `json:"ws,omitempty" yaml:"ws,omitempty"`
	GRPC GRPCConfig `json:"grpc,omitempty" yaml:"grpc,omitempty"`
}

// WSConfig holds WebSocket transport settings.
type WSConfig struct {
	// Path is the WebSocket upgrade path.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Host overrides the Host header. An empty value means no override —
	// the synthesized config must not carry an empty Host header.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
}

// GRPCConfig holds gRPC transport settings.
type GRPCConfig struct {
	ServiceName string `json:"serviceName,omitempty" yaml:"service_name,omitempty"`
}

// SecurityConfig selects the security layer for the outbound stream.
type SecurityConfig struct {
	// Type is "none", "tls" or "reality". Defaulted to "none" when empty.
	Type    string        `json:"type" yaml:"type"`
	TLS     TLSConfig     `json:"tls,omitempty" yaml:"tls,omitempty"`
	Reality RealityConfig `json:"reality,omitempty" yaml:"reality,omitempty"`
}

// TLSConfig holds standard TLS settings.
type TLSConfig struct {
	// ServerName overrides the SNI.
	ServerName string `json:"serverName,omitempty" yaml:"server_name,omitempty"`
	// Fingerprint is the uTLS fingerprint: "chrome", "firefox", "safari", "random".
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	// ALPN is the protocol negotiation list, e.g. ["h2", "http/1.1"].
	ALPN []string `json:"alpn,omitempty" yaml:"alpn,omitempty"`
	// AllowInsecure disables certificate verification.
	AllowInsecure bool `json:"allowInsecure,omitempty" yaml:"allow_insecure,omitempty"`
}

// RealityConfig holds REALITY settings.
type RealityConfig struct {
	PublicKey   string `json:"publicKey" yaml:"public_key"`
	ShortID     string `json:"shortId,omitempty" yaml:"short_id,omitempty"`
	ServerName  string `json:"serverName" yaml:"server_name"`
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	SpiderX     string `json:"spiderX,omitempty" yaml:"spider_x,omitempty"`
}

// ConnectionState represents the lifecycle state of the managed connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string name.
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ConnectionStatus is the single live status record. It is mutated only by
// the orchestrator; all other callers receive a copy.
type ConnectionStatus struct {
	State       ConnectionState `json:"state"`
	Server      *Server         `json:"server,omitempty"`
	ConnectedAt time.Time       `json:"connectedAt,omitzero"`

	UploadSpeedMbps   float64 `json:"uploadSpeedMbps"`
	DownloadSpeedMbps float64 `json:"downloadSpeedMbps"`
	UploadTotalBytes  int64   `json:"uploadTotalBytes"`
	DownloadTotalBytes int64  `json:"downloadTotalBytes"`

	// PingMs is the last proxied round-trip in milliseconds, or -1 when
	// the probe failed or has not run yet.
	PingMs    int    `json:"pingMs"`
	LastError string `json:"lastError,omitempty"`
}

// RuleKind classifies a routing rule value.
type RuleKind string

const (
	RuleKindDomain  RuleKind = "domain"
	RuleKindIP      RuleKind = "ip"
	RuleKindGeosite RuleKind = "geosite"
	RuleKindGeoip   RuleKind = "geoip"
)

// ParseRuleKind parses a string into a RuleKind.
func ParseRuleKind(s string) (RuleKind, error) {
	switch RuleKind(s) {
	case RuleKindDomain, RuleKindIP, RuleKindGeosite, RuleKindGeoip:
		return RuleKind(s), nil
	default:
		return "", fmt.Errorf("unknown rule kind: %q", s)
	}
}

// RuleAction is the outcome of a matching routing rule.
type RuleAction string

const (
	ActionProxy  RuleAction = "proxy"
	ActionDirect RuleAction = "direct"
	ActionBlock  RuleAction = "block"
)

// ParseRuleAction parses a string into a RuleAction.
func ParseRuleAction(s string) (RuleAction, error) {
	switch RuleAction(s) {
	case ActionProxy, ActionDirect, ActionBlock:
		return RuleAction(s), nil
	default:
		return "", fmt.Errorf("unknown rule action: %q", s)
	}
}

// RoutingRule is a user-defined routing rule. Rendered rules are ordered
// by priority desc, id desc — first match wins in the consuming engine.
type RoutingRule struct {
	ID       int        `json:"id"`
	Kind     RuleKind   `json:"kind"`
	Value    string     `json:"value"`
	Action   RuleAction `json:"action"`
	Enabled  bool       `json:"enabled"`
	Priority int        `json:"priority"`
}

// AppPolicy selects how a managed application's traffic is routed.
type AppPolicy string

const (
	// PolicyNone inherits the ambient default for the active proxy mode.
	PolicyNone AppPolicy = "none"
	// PolicyBypass forces the application onto the direct path.
	PolicyBypass AppPolicy = "bypass"
	// PolicyVPN forces the application through the proxy.
	PolicyVPN AppPolicy = "vpn"
)

// ParseAppPolicy parses a string into an AppPolicy.
func ParseAppPolicy(s string) (AppPolicy, error) {
	switch AppPolicy(s) {
	case PolicyNone, PolicyBypass, PolicyVPN:
		return AppPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown app policy: %q", s)
	}
}

// AppRoutingRule is the persisted per-application policy. One rule per
// application path (upsert semantics).
type AppRoutingRule struct {
	AppPath string    `json:"appPath"`
	AppName string    `json:"appName"`
	Policy  AppPolicy `json:"policy"`
}

// AppEngine is the browser/runtime family an application belongs to. The
// family implies which proxy-override mechanism works for it.
type AppEngine string

const (
	EngineChromium AppEngine = "chromium"
	EngineFirefox  AppEngine = "firefox"
	EngineTelegram AppEngine = "telegram"
	EngineSafari   AppEngine = "safari"
	EngineGeneric  AppEngine = "generic"
)

// AppRoutingCapability describes how (and whether) an application can be
// forced onto a routing path. Derived by name pattern-matching; never
// persisted.
type AppRoutingCapability struct {
	AppPath        string    `json:"appPath"`
	AppName        string    `json:"appName"`
	Engine         AppEngine `json:"engine"`
	CanForceProxy  bool      `json:"canForceProxy"`
	CanForceDirect bool      `json:"canForceDirect"`
	Reason         string    `json:"reason"`
}

// InstalledApp is a discovered application (name + path pair).
type InstalledApp struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ConnectionLogRecord is one persisted connect event.
type ConnectionLogRecord struct {
	ServerID   string    `json:"serverId"`
	ServerName string    `json:"serverName"`
	Protocol   Protocol  `json:"protocol"`
	ProxyMode  ProxyMode `json:"proxyMode"`
	Timestamp  time.Time `json:"timestamp"`
}
