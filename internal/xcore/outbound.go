package xcore

import (
	"fmt"

	"helmsman/internal/core"
)

// BuildProxyOutbound maps a server record to its protocol-specific proxy
// outbound. Returns core.ErrProtocolUnsupported for unknown protocols —
// fatal at synthesis time.
func BuildProxyOutbound(server core.Server, settings core.Settings) (Outbound, error) {
	var (
		settingsMap map[string]any
		protocol    string
	)

	switch server.Protocol {
	case core.ProtocolVless:
		cfg := server.Config.Vless
		if cfg == nil {
			return Outbound{}, fmt.Errorf("server %q: missing vless config", server.ID)
		}
		encryption := cfg.Encryption
		if encryption == "" {
			encryption = "none"
		}
		user := map[string]any{
			"id":         cfg.UUID,
			"encryption": encryption,
		}
		if cfg.Flow != "" {
			user["flow"] = cfg.Flow
		}
		protocol = "vless"
		settingsMap = map[string]any{
			"vnext": []map[string]any{{
				"address": server.Address,
				"port":    server.Port,
				"users":   []map[string]any{user},
			}},
		}

	case core.ProtocolVmess:
		cfg := server.Config.Vmess
		if cfg == nil {
			return Outbound{}, fmt.Errorf("server %q: missing vmess config", server.ID)
		}
		cipher := cfg.Cipher
		if cipher == "" {
			cipher = "auto"
		}
		protocol = "vmess"
		settingsMap = map[string]any{
			"vnext": []map[string]any{{
				"address": server.Address,
				"port":    server.Port,
				"users": []map[string]any{{
					"id":       cfg.UUID,
					"alterId":  cfg.AlterID,
					"security": cipher,
				}},
			}},
		}

	case core.ProtocolTrojan:
		cfg := server.Config.Trojan
		if cfg == nil {
			return Outbound{}, fmt.Errorf("server %q: missing trojan config", server.ID)
		}
		protocol = "trojan"
		settingsMap = map[string]any{
			"servers": []map[string]any{{
				"address":  server.Address,
				"port":     server.Port,
				"password": cfg.Password,
			}},
		}

	case core.ProtocolShadowsocks:
		cfg := server.Config.Shadowsocks
		if cfg == nil {
			return Outbound{}, fmt.Errorf("server %q: missing shadowsocks config", server.ID)
		}
		protocol = "shadowsocks"
		settingsMap = map[string]any{
			"servers": []map[string]any{{
				"address":  server.Address,
				"port":     server.Port,
				"method":   cfg.Method,
				"password": cfg.Password,
			}},
		}

	default:
		return Outbound{}, fmt.Errorf("server %q protocol %q: %w",
			server.ID, server.Protocol, core.ErrProtocolUnsupported)
	}

	out := Outbound{
		Tag:            TagProxy,
		Protocol:       protocol,
		Settings:       settingsMap,
		StreamSettings: buildStreamSettings(server.Config, settings),
	}

	// Mux destabilizes some transports; only on when explicitly requested.
	if settings.EnableMux {
		out.Mux = &MuxSettings{Enabled: true, Concurrency: 8}
	}

	return out, nil
}

// buildStreamSettings maps the shared transport/security stanzas onto the
// outbound stream configuration.
func buildStreamSettings(cfg core.ProtocolConfig, settings core.Settings) *StreamSettings {
	network := cfg.Transport.Type
	if network == "" {
		network = "tcp"
	}

	stream := &StreamSettings{Network: network}

	switch network {
	case "ws":
		ws := &WSSettings{Path: cfg.Transport.WS.Path}
		if ws.Path == "" {
			ws.Path = "/"
		}
		if host := cfg.Transport.WS.Host; host != "" {
			ws.Headers = map[string]string{"Host": host}
		}
		stream.WSSettings = ws
	case "grpc":
		stream.GRPCSettings = &GRPCSettings{ServiceName: cfg.Transport.GRPC.ServiceName}
	}

	security := cfg.Security.Type
	if security == "" {
		security = "none"
	}

	switch security {
	case "tls":
		stream.Security = "tls"
		tls := &TLSSettings{
			ServerName:    cfg.Security.TLS.ServerName,
			Fingerprint:   cfg.Security.TLS.Fingerprint,
			ALPN:          cfg.Security.TLS.ALPN,
			AllowInsecure: cfg.Security.TLS.AllowInsecure || settings.AllowInsecure,
		}
		// Fall back to the WS host override for SNI when none is set.
		if tls.ServerName == "" && cfg.Transport.WS.Host != "" {
			tls.ServerName = cfg.Transport.WS.Host
		}
		stream.TLSSettings = tls
	case "reality":
		stream.Security = "reality"
		fp := cfg.Security.Reality.Fingerprint
		if fp == "" {
			fp = "chrome"
		}
		stream.RealitySettings = &RealitySettings{
			Show:        false,
			ServerName:  cfg.Security.Reality.ServerName,
			PublicKey:   cfg.Security.Reality.PublicKey,
			ShortID:     cfg.Security.Reality.ShortID,
			Fingerprint: fp,
			SpiderX:     cfg.Security.Reality.SpiderX,
		}
	}

	return stream
}

// DirectOutbound is the freedom egress used for bypassed traffic.
func DirectOutbound() Outbound {
	return Outbound{Tag: TagDirect, Protocol: "freedom"}
}

// BlockOutbound is the blackhole egress used for blocked traffic.
func BlockOutbound() Outbound {
	return Outbound{Tag: TagBlock, Protocol: "blackhole"}
}

// DNSOutbound carries hijacked DNS queries through the core resolver.
func DNSOutbound() Outbound {
	return Outbound{Tag: TagDNS, Protocol: "dns"}
}
