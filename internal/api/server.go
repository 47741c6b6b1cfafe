// Package api exposes the control surface consumed by the UI layer: a
// loopback-only HTTP service whose every response is a uniform
// {success, data|error} envelope.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"helmsman/internal/approuting"
	"helmsman/internal/core"
	"helmsman/internal/orchestrator"
	"helmsman/internal/rules"
	"helmsman/internal/store"
)

// Server is the HTTP boundary. It performs no business logic of its own:
// every handler validates input, delegates, and wraps the result.
type Server struct {
	listen string
	orch   *orchestrator.Orchestrator
	store  *store.Store
	rules  *rules.Engine
	apps   *approuting.Manager
	bus    *core.EventBus

	httpServer *http.Server
}

// NewServer wires the boundary over its collaborators.
func NewServer(listen string, orch *orchestrator.Orchestrator, st *store.Store, ruleEngine *rules.Engine, apps *approuting.Manager, bus *core.EventBus) *Server {
	return &Server{
		listen: listen,
		orch:   orch,
		store:  st,
		rules:  ruleEngine,
		apps:   apps,
		bus:    bus,
	}
}

// Start binds the listener and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			core.Log.Errorf("API", "Serve: %v", err)
		}
	}()
	core.Log.Infof("API", "Listening on %s", s.listen)
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(ctx)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/status", s.getStatus)
	r.Post("/connect", s.connect)
	r.Post("/disconnect", s.disconnect)

	r.Route("/servers", func(r chi.Router) {
		r.Get("/", s.listServers)
		r.Post("/", s.addServer)
		r.Put("/{id}", s.updateServer)
		r.Delete("/{id}", s.deleteServer)
		r.Post("/{id}/test", s.testServer)
	})

	r.Route("/rules", func(r chi.Router) {
		r.Get("/", s.listRules)
		r.Post("/", s.addRule)
		r.Delete("/{id}", s.removeRule)
	})

	r.Route("/apps", func(r chi.Router) {
		r.Get("/", s.listApps)
		r.Get("/capability", s.appCapability)
		r.Get("/policies", s.appPolicies)
		r.Post("/policy", s.setAppPolicy)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", s.getSettings)
		r.Put("/", s.saveSettings)
	})

	r.Get("/logs/connections", s.connectionLog)

	return r
}

// ─── Envelope ───────────────────────────────────────────────────────

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(w http.ResponseWriter, r *http.Request, data any) {
	render.JSON(w, r, envelope{Success: true, Data: data})
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, errStatus(err))
	render.JSON(w, r, envelope{Success: false, Error: err.Error()})
}

func failBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, envelope{Success: false, Error: err.Error()})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrServerNotFound), errors.Is(err, core.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCoreMissing):
		// The error text carries the remediation hint.
		return http.StatusFailedDependency
	case errors.Is(err, core.ErrProtocolUnsupported):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
