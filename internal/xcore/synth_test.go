package xcore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"helmsman/internal/core"
)

func testServer(protocol core.Protocol) core.Server {
	srv := core.Server{
		ID:       "srv-1",
		Name:     "test",
		Protocol: protocol,
		Address:  "203.0.113.10",
		Port:     443,
	}
	switch protocol {
	case core.ProtocolVless:
		srv.Config.Vless = &core.VlessConfig{UUID: "8f2ab4cb-3d30-4bc5-a9a6-d0f3a1f2b7aa"}
	case core.ProtocolVmess:
		srv.Config.Vmess = &core.VmessConfig{UUID: "8f2ab4cb-3d30-4bc5-a9a6-d0f3a1f2b7aa"}
	case core.ProtocolTrojan:
		srv.Config.Trojan = &core.TrojanConfig{Password: "secret"}
	case core.ProtocolShadowsocks:
		srv.Config.Shadowsocks = &core.ShadowsocksConfig{Method: "aes-256-gcm", Password: "secret"}
	}
	return srv
}

func testInput(protocol core.Protocol) SynthesisInput {
	return SynthesisInput{
		Server:   testServer(protocol),
		Settings: core.DefaultSettings(),
	}
}

func TestSynthesizeOutboundOrder(t *testing.T) {
	for _, protocol := range []core.Protocol{
		core.ProtocolVless, core.ProtocolVmess, core.ProtocolTrojan, core.ProtocolShadowsocks,
	} {
		t.Run(string(protocol), func(t *testing.T) {
			cfg, err := Synthesize(testInput(protocol))
			require.NoError(t, err)
			require.NotEmpty(t, cfg.Outbounds)

			// The first outbound is the implicit default for unmatched
			// traffic and must be the proxy.
			require.Equal(t, TagProxy, cfg.Outbounds[0].Tag)

			tags := make([]string, 0, len(cfg.Outbounds))
			for _, o := range cfg.Outbounds {
				tags = append(tags, o.Tag)
			}
			require.Contains(t, tags, TagDirect)
			require.Contains(t, tags, TagBlock)
			require.Contains(t, tags, TagDNS)
		})
	}
}

func TestSynthesizeRejectsUnknownProtocol(t *testing.T) {
	in := testInput(core.ProtocolVless)
	in.Server.Protocol = "wireguard"
	_, err := Synthesize(in)
	require.ErrorIs(t, err, core.ErrProtocolUnsupported)
}

func TestSynthesizeLocalhostRuleFirst(t *testing.T) {
	in := testInput(core.ProtocolVless)
	in.BypassProcesses = []string{"Slack"}
	in.UserRules = []Rule{{Type: "field", Domain: []string{"domain:example.com"}, OutboundTag: TagDirect}}
	in.Settings.BlockAds = true

	cfg, err := Synthesize(in)
	require.NoError(t, err)
	rules := cfg.Routing.Rules
	require.NotEmpty(t, rules)

	first := rules[0]
	require.Equal(t, TagDirect, first.OutboundTag)
	require.Contains(t, first.IP, "127.0.0.0/8")
	require.Contains(t, first.IP, "::1/128")
	require.Contains(t, first.Domain, "localhost")

	// No private-LAN bypass unless the user adds one.
	for i, r := range rules {
		if i == 0 {
			continue
		}
		require.NotContains(t, r.IP, "10.0.0.0/8", "rule %d", i)
		require.NotContains(t, r.IP, "192.168.0.0/16", "rule %d", i)
	}
}

func TestSynthesizeBlockAdsPlacement(t *testing.T) {
	in := testInput(core.ProtocolTrojan)
	in.BypassProcesses = []string{"Slack"}
	in.UserRules = []Rule{{Type: "field", Domain: []string{"domain:example.com"}, OutboundTag: TagProxy}}

	// Disabled: no ad-block rule at all.
	in.Settings.BlockAds = false
	cfg, err := Synthesize(in)
	require.NoError(t, err)
	require.Equal(t, 0, countAdBlockRules(cfg.Routing.Rules))

	// Enabled: exactly one, after the bypass rule and before user rules.
	in.Settings.BlockAds = true
	cfg, err = Synthesize(in)
	require.NoError(t, err)
	require.Equal(t, 1, countAdBlockRules(cfg.Routing.Rules))

	adIdx, bypassIdx, userIdx := -1, -1, -1
	for i, r := range cfg.Routing.Rules {
		switch {
		case len(r.Domain) == 1 && r.Domain[0] == adBlockCategory:
			adIdx = i
		case len(r.Process) > 0:
			bypassIdx = i
		case len(r.Domain) == 1 && r.Domain[0] == "domain:example.com":
			userIdx = i
		}
	}
	require.Greater(t, adIdx, bypassIdx, "ad-block rule must come after bypass rules")
	require.Less(t, adIdx, userIdx, "ad-block rule must come before user rules")
}

func countAdBlockRules(rules []Rule) int {
	n := 0
	for _, r := range rules {
		for _, d := range r.Domain {
			if d == adBlockCategory {
				n++
			}
		}
	}
	return n
}

func TestSynthesizeBypassProcesses(t *testing.T) {
	in := testInput(core.ProtocolVless)

	cfg, err := Synthesize(in)
	require.NoError(t, err)
	for _, r := range cfg.Routing.Rules {
		require.Empty(t, r.Process, "no process rule expected without bypass apps")
	}

	in.BypassProcesses = []string{"Slack", "Discord"}
	cfg, err = Synthesize(in)
	require.NoError(t, err)

	var procRule *Rule
	for i := range cfg.Routing.Rules {
		if len(cfg.Routing.Rules[i].Process) > 0 {
			procRule = &cfg.Routing.Rules[i]
			break
		}
	}
	require.NotNil(t, procRule)
	require.Equal(t, TagDirect, procRule.OutboundTag)
	require.Equal(t, []string{"Slack", "Discord"}, procRule.Process)
}

func TestSynthesizeDNS(t *testing.T) {
	in := testInput(core.ProtocolVless)
	in.Settings.DNSProvider = "quad9"

	cfg, err := Synthesize(in)
	require.NoError(t, err)
	require.NotNil(t, cfg.DNS)
	require.Len(t, cfg.DNS.Servers, 2)
	require.Equal(t, "9.9.9.9", cfg.DNS.Servers[0].Address)
	require.Equal(t, "149.112.112.112", cfg.DNS.Servers[1].Address)
	require.Equal(t, "UseIP", cfg.DNS.QueryStrategy)

	in.Settings.IPv6Disable = true
	cfg, err = Synthesize(in)
	require.NoError(t, err)
	require.Equal(t, "UseIPv4", cfg.DNS.QueryStrategy)

	in.Settings.DNSProvider = "custom"
	in.Settings.CustomDNSServers = []string{"10.1.1.53"}
	cfg, err = Synthesize(in)
	require.NoError(t, err)
	require.Len(t, cfg.DNS.Servers, 1)
	require.Equal(t, "10.1.1.53", cfg.DNS.Servers[0].Address)
}

func TestSynthesizeInbounds(t *testing.T) {
	in := testInput(core.ProtocolShadowsocks)
	cfg, err := Synthesize(in)
	require.NoError(t, err)

	protocols := map[string]uint16{}
	for _, ib := range cfg.Inbounds {
		protocols[ib.Protocol] = ib.Port
		require.Equal(t, "127.0.0.1", ib.Listen)
	}
	require.Equal(t, in.Settings.SocksPort, protocols["socks"])
	require.Equal(t, in.Settings.HTTPPort, protocols["http"])
	require.Equal(t, in.Settings.APIPort, protocols["dokodemo-door"])
}

func TestSynthesizeProbeIsMinimal(t *testing.T) {
	cfg, err := SynthesizeProbe(testServer(core.ProtocolVless), core.DefaultSettings(), 34567)
	require.NoError(t, err)

	require.Nil(t, cfg.API)
	require.Nil(t, cfg.Stats)
	require.Nil(t, cfg.DNS)
	require.Len(t, cfg.Inbounds, 1)
	require.Equal(t, uint16(34567), cfg.Inbounds[0].Port)
	require.Equal(t, TagProxy, cfg.Outbounds[0].Tag)
}
