package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"helmsman/internal/core"
)

// ─── Connection ─────────────────────────────────────────────────────

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	ok(w, r, s.orch.Status())
}

type connectRequest struct {
	ServerID string `json:"serverId"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		failBadRequest(w, r, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.ServerID == "" {
		failBadRequest(w, r, fmt.Errorf("serverId is required"))
		return
	}

	status, err := s.orch.Connect(r.Context(), req.ServerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, status)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	ok(w, r, s.orch.Disconnect())
}

// ─── Servers ────────────────────────────────────────────────────────

func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	ok(w, r, s.store.Servers())
}

func (s *Server) addServer(w http.ResponseWriter, r *http.Request) {
	var srv core.Server
	if err := render.DecodeJSON(r.Body, &srv); err != nil {
		failBadRequest(w, r, fmt.Errorf("decode server: %w", err))
		return
	}
	if err := validateServer(srv); err != nil {
		failBadRequest(w, r, err)
		return
	}

	created, err := s.store.AddServer(srv)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, created)
}

func (s *Server) updateServer(w http.ResponseWriter, r *http.Request) {
	var srv core.Server
	if err := render.DecodeJSON(r.Body, &srv); err != nil {
		failBadRequest(w, r, fmt.Errorf("decode server: %w", err))
		return
	}
	srv.ID = chi.URLParam(r, "id")
	if err := validateServer(srv); err != nil {
		failBadRequest(w, r, err)
		return
	}

	if err := s.store.UpdateServer(srv); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, srv)
}

func (s *Server) deleteServer(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteServer(chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, nil)
}

type testResult struct {
	LatencyMs int64 `json:"latencyMs"`
}

func (s *Server) testServer(w http.ResponseWriter, r *http.Request) {
	delay, err := s.orch.TestRealDelay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, testResult{LatencyMs: delay.Milliseconds()})
}

func validateServer(srv core.Server) error {
	if srv.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if srv.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if srv.Port == 0 {
		return fmt.Errorf("server port is required")
	}
	if !srv.Protocol.Valid() {
		return fmt.Errorf("unknown protocol %q", srv.Protocol)
	}
	return nil
}

// ─── Routing rules ──────────────────────────────────────────────────

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	ok(w, r, s.rules.Rules())
}

func (s *Server) addRule(w http.ResponseWriter, r *http.Request) {
	var rule core.RoutingRule
	if err := render.DecodeJSON(r.Body, &rule); err != nil {
		failBadRequest(w, r, fmt.Errorf("decode rule: %w", err))
		return
	}

	created, err := s.rules.Add(rule)
	if err != nil {
		failBadRequest(w, r, err)
		return
	}
	ok(w, r, created)
}

func (s *Server) removeRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		failBadRequest(w, r, fmt.Errorf("rule id must be an integer"))
		return
	}
	if err := s.rules.Remove(id); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, nil)
}

// ─── Applications ───────────────────────────────────────────────────

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	ok(w, r, s.apps.DiscoverInstalledApps())
}

func (s *Server) appCapability(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		failBadRequest(w, r, fmt.Errorf("path query parameter is required"))
		return
	}
	ok(w, r, s.apps.Capability(path))
}

func (s *Server) appPolicies(w http.ResponseWriter, r *http.Request) {
	ok(w, r, s.apps.Policies())
}

type setPolicyRequest struct {
	AppPath string `json:"appPath"`
	AppName string `json:"appName"`
	Policy  string `json:"policy"`
}

func (s *Server) setAppPolicy(w http.ResponseWriter, r *http.Request) {
	var req setPolicyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		failBadRequest(w, r, fmt.Errorf("decode policy: %w", err))
		return
	}
	if req.AppPath == "" {
		failBadRequest(w, r, fmt.Errorf("appPath is required"))
		return
	}
	policy, err := core.ParseAppPolicy(req.Policy)
	if err != nil {
		failBadRequest(w, r, err)
		return
	}

	if err := s.apps.SetPolicy(req.AppPath, req.AppName, policy); err != nil {
		fail(w, r, err)
		return
	}

	// The policy is persisted; while connected it also takes effect live,
	// which may relaunch the application.
	if s.orch.Status().State == core.StateConnected {
		settings := s.store.Settings()
		settings.Normalize()
		if err := s.apps.ApplyPolicy(req.AppPath, policy, settings.SocksPort, settings.HTTPPort); err != nil {
			core.Log.Warnf("API", "Live policy apply for %s: %v", req.AppPath, err)
			fail(w, r, err)
			return
		}
	}
	ok(w, r, nil)
}

// ─── Settings ───────────────────────────────────────────────────────

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	ok(w, r, s.store.Settings())
}

func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	var settings core.Settings
	if err := render.DecodeJSON(r.Body, &settings); err != nil {
		failBadRequest(w, r, fmt.Errorf("decode settings: %w", err))
		return
	}
	settings.Normalize()

	if err := s.store.SaveSettings(settings); err != nil {
		fail(w, r, err)
		return
	}
	s.bus.Publish(core.Event{Type: core.EventSettingsSaved, Payload: settings})
	ok(w, r, settings)
}

// ─── Connection log ─────────────────────────────────────────────────

type connectionLogEntry struct {
	ServerID   string `json:"serverId"`
	ServerName string `json:"serverName"`
	Protocol   string `json:"protocol"`
	ProxyMode  string `json:"proxyMode"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) connectionLog(w http.ResponseWriter, r *http.Request) {
	records := s.store.ConnectionLog()
	out := make([]connectionLogEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, connectionLogEntry{
			ServerID:   rec.ServerID,
			ServerName: rec.ServerName,
			Protocol:   string(rec.Protocol),
			ProxyMode:  string(rec.ProxyMode),
			Timestamp:  rec.Timestamp.Format(time.RFC3339),
		})
	}
	ok(w, r, out)
}
