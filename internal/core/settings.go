package core

import "fmt"

// ProxyMode selects how system-level routing is activated on connect.
type ProxyMode string

const (
	// ModeGlobal sets the OS proxy on every network service.
	ModeGlobal ProxyMode = "global"
	// ModePerApp leaves global routing untouched; only applications with
	// an explicit policy are steered.
	ModePerApp ProxyMode = "per-app"
	// ModePAC publishes a PAC script and switches the OS to auto-proxy.
	ModePAC ProxyMode = "pac"
)

// ParseProxyMode parses a string into a ProxyMode.
func ParseProxyMode(s string) (ProxyMode, error) {
	switch ProxyMode(s) {
	case ModeGlobal, ModePerApp, ModePAC:
		return ProxyMode(s), nil
	case "":
		return ModeGlobal, nil
	default:
		return "", fmt.Errorf("unknown proxy mode: %q", s)
	}
}

// Settings is the persisted user settings record. The core consumes it
// read-only; a snapshot is taken at connect time.
type Settings struct {
	ProxyMode   ProxyMode `json:"proxyMode"`
	DNSProvider string    `json:"dnsProvider"`
	// CustomDNSServers is used when DNSProvider is "custom".
	CustomDNSServers []string `json:"customDnsServers,omitempty"`

	BlockAds              bool `json:"blockAds"`
	KillSwitch            bool `json:"killSwitch"`
	ReconnectOnDisconnect bool `json:"reconnectOnDisconnect"`
	IPv6Disable           bool `json:"ipv6Disable"`
	AllowInsecure         bool `json:"allowInsecure"`
	EnablePingCalculation bool `json:"enablePingCalculation"`
	EnableMux             bool `json:"enableMux"`

	ConnectionTimeoutSeconds int `json:"connectionTimeoutSeconds"`

	// Local listener ports for the proxy-core inbounds.
	SocksPort uint16 `json:"socksPort"`
	HTTPPort  uint16 `json:"httpPort"`
	APIPort   uint16 `json:"apiPort"`
}

// DefaultSettings returns the settings used before the user saves any.
func DefaultSettings() Settings {
	return Settings{
		ProxyMode:                ModeGlobal,
		DNSProvider:              "cloudflare",
		KillSwitch:               true,
		ReconnectOnDisconnect:    true,
		EnablePingCalculation:    true,
		ConnectionTimeoutSeconds: 30,
		SocksPort:                10808,
		HTTPPort:                 10809,
		APIPort:                  10813,
	}
}

// Normalize fills defaults for zero-valued fields. Applied after loading
// a persisted record so older records keep working.
func (s *Settings) Normalize() {
	if s.ProxyMode == "" {
		s.ProxyMode = ModeGlobal
	}
	if s.DNSProvider == "" {
		s.DNSProvider = "cloudflare"
	}
	if s.ConnectionTimeoutSeconds <= 0 {
		s.ConnectionTimeoutSeconds = 30
	}
	if s.SocksPort == 0 {
		s.SocksPort = 10808
	}
	if s.HTTPPort == 0 {
		s.HTTPPort = 10809
	}
	if s.APIPort == 0 {
		s.APIPort = 10813
	}
}
