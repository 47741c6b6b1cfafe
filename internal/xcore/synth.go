package xcore

import "helmsman/internal/core"

// Telegram stays on the proxy path ahead of any user rule: its voice/media
// endpoints are latency-sensitive and the app is a frequent censorship
// target, so a stray user rule must not accidentally strand it. Fixed
// policy carried over from the upstream design.
var (
	telegramDomains = []string{
		"domain:telegram.org",
		"domain:telegram.me",
		"domain:t.me",
		"domain:tdesktop.com",
		"domain:telesco.pe",
	}
	telegramRanges = []string{
		"91.108.4.0/22",
		"91.108.8.0/22",
		"91.108.12.0/22",
		"91.108.16.0/22",
		"91.108.56.0/22",
		"149.154.160.0/20",
	}
)

// adBlockCategory is the curated ad/tracker domain category emitted when
// the user enables ad blocking.
const adBlockCategory = "geosite:category-ads-all"

// dnsProviders maps a provider setting to its resolver IP pair.
var dnsProviders = map[string][]string{
	"google":     {"8.8.8.8", "8.8.4.4"},
	"cloudflare": {"1.1.1.1", "1.0.0.1"},
	"quad9":      {"9.9.9.9", "149.112.112.112"},
	"adguard":    {"94.140.14.14", "94.140.15.15"},
}

// SynthesisInput is everything Synthesize depends on. Synthesize is a
// deterministic pure function of this value.
type SynthesisInput struct {
	Server   core.Server
	Settings core.Settings
	// BypassProcesses are the resolved process identifiers of applications
	// marked bypass; they are routed direct ahead of everything but the
	// loopback carve-out.
	BypassProcesses []string
	// UserRules are the RoutingRuleEngine's rendered rules, already in
	// priority order.
	UserRules []Rule
}

// Synthesize builds the full proxy-core configuration for a connection.
//
// Rule ordering is significant and fixed:
//  1. loopback bypass (the client's own control-plane traffic must never
//     re-enter the tunnel)
//  2. api inbound → api service
//  3. bypass-application processes → direct
//  4. telegram carve-out → proxy
//  5. ad/tracker category → block (when enabled)
//  6. user rules
//
// No catch-all is emitted: the proxy outbound is declared first, making it
// the default for anything unmatched. Private LAN ranges are deliberately
// NOT bypassed by default.
func Synthesize(in SynthesisInput) (*Config, error) {
	proxyOut, err := BuildProxyOutbound(in.Server, in.Settings)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Log:    LogSection{Loglevel: "warning"},
		API:    &APISection{Tag: TagAPI, Services: []string{"StatsService"}},
		Stats:  &StatsSection{},
		Policy: &PolicySection{System: SystemPolicy{StatsOutboundUplink: true, StatsOutboundDownlink: true}},
		Inbounds: []Inbound{
			socksInbound(in.Settings.SocksPort),
			httpInbound(in.Settings.HTTPPort),
			apiInbound(in.Settings.APIPort),
		},
		Outbounds: []Outbound{
			proxyOut, // first outbound == default route, a hard invariant
			DirectOutbound(),
			BlockOutbound(),
			DNSOutbound(),
		},
		Routing: RoutingSection{
			DomainStrategy: "IPIfNonMatch",
			Rules:          buildRoutingRules(in),
		},
		DNS: buildDNS(in.Settings),
	}

	return cfg, nil
}

func buildRoutingRules(in SynthesisInput) []Rule {
	rules := []Rule{
		{
			Type:        "field",
			IP:          []string{"127.0.0.0/8", "::1/128"},
			Domain:      []string{"localhost"},
			OutboundTag: TagDirect,
		},
		{
			Type:        "field",
			InboundTag:  []string{TagAPIIn},
			OutboundTag: TagAPI,
		},
	}

	if len(in.BypassProcesses) > 0 {
		rules = append(rules, Rule{
			Type:        "field",
			Process:     in.BypassProcesses,
			OutboundTag: TagDirect,
		})
	}

	rules = append(rules,
		Rule{Type: "field", Domain: telegramDomains, OutboundTag: TagProxy},
		Rule{Type: "field", IP: telegramRanges, OutboundTag: TagProxy},
	)

	if in.Settings.BlockAds {
		rules = append(rules, Rule{
			Type:        "field",
			Domain:      []string{adBlockCategory},
			OutboundTag: TagBlock,
		})
	}

	return append(rules, in.UserRules...)
}

func buildDNS(settings core.Settings) *DNSSection {
	var addrs []string
	if settings.DNSProvider == "custom" && len(settings.CustomDNSServers) > 0 {
		addrs = settings.CustomDNSServers
	} else if pair, ok := dnsProviders[settings.DNSProvider]; ok {
		addrs = pair
	} else {
		addrs = dnsProviders["cloudflare"]
	}

	servers := make([]DNSServer, 0, len(addrs))
	for _, a := range addrs {
		servers = append(servers, DNSServer{Address: a, Port: 53})
	}

	query := "UseIP"
	if settings.IPv6Disable {
		query = "UseIPv4"
	}

	// The resolver queries ride the routing table like any other traffic,
	// so with the proxy outbound as default they resolve through the
	// tunnel — no resolver leakage.
	return &DNSSection{
		Servers:       servers,
		QueryStrategy: query,
		Tag:           "dns-query",
	}
}

func socksInbound(port uint16) Inbound {
	return Inbound{
		Tag:      TagSocksIn,
		Listen:   "127.0.0.1",
		Port:     port,
		Protocol: "socks",
		Settings: map[string]any{"auth": "noauth", "udp": true},
		Sniffing: &Sniffing{Enabled: true, DestOverride: []string{"http", "tls"}},
	}
}

func httpInbound(port uint16) Inbound {
	return Inbound{
		Tag:      TagHTTPIn,
		Listen:   "127.0.0.1",
		Port:     port,
		Protocol: "http",
		Sniffing: &Sniffing{Enabled: true, DestOverride: []string{"http", "tls"}},
	}
}

func apiInbound(port uint16) Inbound {
	return Inbound{
		Tag:      TagAPIIn,
		Listen:   "127.0.0.1",
		Port:     port,
		Protocol: "dokodemo-door",
		Settings: map[string]any{"address": "127.0.0.1"},
	}
}

// SynthesizeProbe builds the minimal throwaway configuration used by the
// real-delay test: one HTTP inbound on an ephemeral port, the protocol
// outbound, and nothing else — no stats, no api, no dns override.
func SynthesizeProbe(server core.Server, settings core.Settings, httpPort uint16) (*Config, error) {
	proxyOut, err := BuildProxyOutbound(server, settings)
	if err != nil {
		return nil, err
	}
	return &Config{
		Log:      LogSection{Loglevel: "none"},
		Inbounds: []Inbound{{
			Tag:      TagHTTPIn,
			Listen:   "127.0.0.1",
			Port:     httpPort,
			Protocol: "http",
		}},
		Outbounds: []Outbound{proxyOut, DirectOutbound()},
		Routing:   RoutingSection{DomainStrategy: "AsIs", Rules: []Rule{}},
	}, nil
}
