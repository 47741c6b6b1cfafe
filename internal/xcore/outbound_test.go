package xcore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"helmsman/internal/core"
)

func TestBuildProxyOutboundProtocols(t *testing.T) {
	settings := core.DefaultSettings()

	t.Run("vless", func(t *testing.T) {
		out, err := BuildProxyOutbound(testServer(core.ProtocolVless), settings)
		require.NoError(t, err)
		require.Equal(t, "vless", out.Protocol)

		vnext := out.Settings["vnext"].([]map[string]any)
		require.Len(t, vnext, 1)
		require.Equal(t, "203.0.113.10", vnext[0]["address"])
		users := vnext[0]["users"].([]map[string]any)
		require.Equal(t, "none", users[0]["encryption"])
		require.NotContains(t, users[0], "flow")
	})

	t.Run("vless with flow", func(t *testing.T) {
		srv := testServer(core.ProtocolVless)
		srv.Config.Vless.Flow = "xtls-rprx-vision"
		out, err := BuildProxyOutbound(srv, settings)
		require.NoError(t, err)
		users := out.Settings["vnext"].([]map[string]any)[0]["users"].([]map[string]any)
		require.Equal(t, "xtls-rprx-vision", users[0]["flow"])
	})

	t.Run("vmess", func(t *testing.T) {
		out, err := BuildProxyOutbound(testServer(core.ProtocolVmess), settings)
		require.NoError(t, err)
		require.Equal(t, "vmess", out.Protocol)
		users := out.Settings["vnext"].([]map[string]any)[0]["users"].([]map[string]any)
		require.Equal(t, "auto", users[0]["security"])
		require.Equal(t, 0, users[0]["alterId"])
	})

	t.Run("trojan", func(t *testing.T) {
		out, err := BuildProxyOutbound(testServer(core.ProtocolTrojan), settings)
		require.NoError(t, err)
		require.Equal(t, "trojan", out.Protocol)
		servers := out.Settings["servers"].([]map[string]any)
		require.Equal(t, "secret", servers[0]["password"])
	})

	t.Run("shadowsocks", func(t *testing.T) {
		out, err := BuildProxyOutbound(testServer(core.ProtocolShadowsocks), settings)
		require.NoError(t, err)
		require.Equal(t, "shadowsocks", out.Protocol)
		servers := out.Settings["servers"].([]map[string]any)
		require.Equal(t, "aes-256-gcm", servers[0]["method"])
	})

	t.Run("unknown", func(t *testing.T) {
		srv := testServer(core.ProtocolVless)
		srv.Protocol = "quic-magic"
		_, err := BuildProxyOutbound(srv, settings)
		require.ErrorIs(t, err, core.ErrProtocolUnsupported)
	})

	t.Run("missing credentials", func(t *testing.T) {
		srv := testServer(core.ProtocolVless)
		srv.Config.Vless = nil
		_, err := BuildProxyOutbound(srv, settings)
		require.Error(t, err)
	})
}

func TestWebsocketHostHeader(t *testing.T) {
	settings := core.DefaultSettings()

	srv := testServer(core.ProtocolVless)
	srv.Config.Transport.Type = "ws"

	// Empty host override: the headers object is omitted entirely.
	out, err := BuildProxyOutbound(srv, settings)
	require.NoError(t, err)
	ws := out.StreamSettings.WSSettings
	require.NotNil(t, ws)
	require.Equal(t, "/", ws.Path)
	require.Nil(t, ws.Headers)

	// Non-empty override: present with the exact value.
	srv.Config.Transport.WS.Host = "cdn.example.com"
	srv.Config.Transport.WS.Path = "/stream"
	out, err = BuildProxyOutbound(srv, settings)
	require.NoError(t, err)
	ws = out.StreamSettings.WSSettings
	require.Equal(t, "/stream", ws.Path)
	require.Equal(t, map[string]string{"Host": "cdn.example.com"}, ws.Headers)
}

func TestTLSStreamSettings(t *testing.T) {
	settings := core.DefaultSettings()

	srv := testServer(core.ProtocolTrojan)
	srv.Config.Security.Type = "tls"
	srv.Config.Security.TLS.ServerName = "sni.example.com"
	srv.Config.Security.TLS.ALPN = []string{"h2", "http/1.1"}

	out, err := BuildProxyOutbound(srv, settings)
	require.NoError(t, err)
	st := out.StreamSettings
	require.Equal(t, "tls", st.Security)
	require.Equal(t, "sni.example.com", st.TLSSettings.ServerName)
	require.Equal(t, []string{"h2", "http/1.1"}, st.TLSSettings.ALPN)
	require.False(t, st.TLSSettings.AllowInsecure)

	// The global allow-insecure setting applies even when the server's
	// own flag is off.
	settings.AllowInsecure = true
	out, err = BuildProxyOutbound(srv, settings)
	require.NoError(t, err)
	require.True(t, out.StreamSettings.TLSSettings.AllowInsecure)
}

func TestTLSSNIFallsBackToWSHost(t *testing.T) {
	srv := testServer(core.ProtocolVless)
	srv.Config.Transport.Type = "ws"
	srv.Config.Transport.WS.Host = "front.example.com"
	srv.Config.Security.Type = "tls"

	out, err := BuildProxyOutbound(srv, core.DefaultSettings())
	require.NoError(t, err)
	require.Equal(t, "front.example.com", out.StreamSettings.TLSSettings.ServerName)
}

func TestRealityStreamSettings(t *testing.T) {
	srv := testServer(core.ProtocolVless)
	srv.Config.Security.Type = "reality"
	srv.Config.Security.Reality = core.RealityConfig{
		PublicKey:  "pubkey",
		ShortID:    "ab12",
		ServerName: "www.example.com",
	}

	out, err := BuildProxyOutbound(srv, core.DefaultSettings())
	require.NoError(t, err)
	st := out.StreamSettings
	require.Equal(t, "reality", st.Security)
	require.Equal(t, "pubkey", st.RealitySettings.PublicKey)
	require.Equal(t, "ab12", st.RealitySettings.ShortID)
	// Fingerprint defaults when unset.
	require.Equal(t, "chrome", st.RealitySettings.Fingerprint)
}

func TestMuxOnlyWhenEnabled(t *testing.T) {
	settings := core.DefaultSettings()

	out, err := BuildProxyOutbound(testServer(core.ProtocolVless), settings)
	require.NoError(t, err)
	require.Nil(t, out.Mux)

	settings.EnableMux = true
	out, err = BuildProxyOutbound(testServer(core.ProtocolVless), settings)
	require.NoError(t, err)
	require.NotNil(t, out.Mux)
	require.True(t, out.Mux.Enabled)
}

func TestGRPCStreamSettings(t *testing.T) {
	srv := testServer(core.ProtocolVless)
	srv.Config.Transport.Type = "grpc"
	srv.Config.Transport.GRPC.ServiceName = "TunService"

	out, err := BuildProxyOutbound(srv, core.DefaultSettings())
	require.NoError(t, err)
	require.Equal(t, "grpc", out.StreamSettings.Network)
	require.Equal(t, "TunService", out.StreamSettings.GRPCSettings.ServiceName)
}
