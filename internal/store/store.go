// Package store is the persistence collaborator: a JSON-file keyed store
// for servers, settings, routing rules, app-routing rules and the
// connection log. The core treats it as an opaque synchronous store.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"helmsman/internal/core"
)

const maxConnectionLogRecords = 200

// Store persists records as JSON files under a data directory. All
// methods are safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	dir string

	servers  []core.Server
	settings core.Settings
	rules    []core.RoutingRule
	appRules []core.AppRoutingRule
	log      []core.ConnectionLogRecord
}

// Open loads (or initializes) the store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", dir, err)
	}

	s := &Store{dir: dir, settings: core.DefaultSettings()}

	if err := s.loadFile("servers.json", &s.servers); err != nil {
		return nil, err
	}
	if err := s.loadFile("settings.json", &s.settings); err != nil {
		return nil, err
	}
	s.settings.Normalize()
	if err := s.loadFile("rules.json", &s.rules); err != nil {
		return nil, err
	}
	if err := s.loadFile("app_rules.json", &s.appRules); err != nil {
		return nil, err
	}
	if err := s.loadFile("connection_log.json", &s.log); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadFile(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// saveFile writes a record file atomically (tmp + rename).
func (s *Store) saveFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// ─── Servers ────────────────────────────────────────────────────────

// Servers returns a copy of all server records.
func (s *Store) Servers() []core.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Server, len(s.servers))
	copy(out, s.servers)
	return out
}

// Server returns the server with the given id.
func (s *Store) Server(id string) (core.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, srv := range s.servers {
		if srv.ID == id {
			return srv, nil
		}
	}
	return core.Server{}, fmt.Errorf("server %q: %w", id, core.ErrServerNotFound)
}

// AddServer assigns an id and persists the record.
func (s *Store) AddServer(srv core.Server) (core.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	s.servers = append(s.servers, srv)
	if err := s.saveFile("servers.json", s.servers); err != nil {
		return core.Server{}, err
	}
	return srv, nil
}

// UpdateServer replaces the record with the same id.
func (s *Store) UpdateServer(srv core.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.servers {
		if s.servers[i].ID == srv.ID {
			s.servers[i] = srv
			return s.saveFile("servers.json", s.servers)
		}
	}
	return fmt.Errorf("server %q: %w", srv.ID, core.ErrServerNotFound)
}

// DeleteServer removes the record with the given id.
func (s *Store) DeleteServer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.servers {
		if s.servers[i].ID == id {
			s.servers = append(s.servers[:i], s.servers[i+1:]...)
			return s.saveFile("servers.json", s.servers)
		}
	}
	return fmt.Errorf("server %q: %w", id, core.ErrServerNotFound)
}

// ─── Settings ───────────────────────────────────────────────────────

// Settings returns the current settings record.
func (s *Store) Settings() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SaveSettings persists a new settings record.
func (s *Store) SaveSettings(settings core.Settings) error {
	settings.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.saveFile("settings.json", s.settings)
}

// ─── Routing rules ──────────────────────────────────────────────────

// Rules returns a copy of all routing rule records.
func (s *Store) Rules() []core.RoutingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RoutingRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// AddRule assigns the next id and persists the rule.
func (s *Store) AddRule(rule core.RoutingRule) (core.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxID := 0
	for _, r := range s.rules {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	rule.ID = maxID + 1
	s.rules = append(s.rules, rule)
	if err := s.saveFile("rules.json", s.rules); err != nil {
		return core.RoutingRule{}, err
	}
	return rule, nil
}

// RemoveRule deletes the rule with the given id.
func (s *Store) RemoveRule(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return s.saveFile("rules.json", s.rules)
		}
	}
	return fmt.Errorf("rule %d: %w", id, core.ErrRuleNotFound)
}

// ─── App routing rules ──────────────────────────────────────────────

// AppRules returns a copy of all per-application policy records.
func (s *Store) AppRules() []core.AppRoutingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AppRoutingRule, len(s.appRules))
	copy(out, s.appRules)
	return out
}

// UpsertAppRule stores a policy, replacing any existing rule for the same
// application path.
func (s *Store) UpsertAppRule(rule core.AppRoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.appRules {
		if s.appRules[i].AppPath == rule.AppPath {
			s.appRules[i] = rule
			return s.saveFile("app_rules.json", s.appRules)
		}
	}
	s.appRules = append(s.appRules, rule)
	return s.saveFile("app_rules.json", s.appRules)
}

// ─── Connection log ─────────────────────────────────────────────────

// AppendConnectionLog records a connect event, keeping bounded history.
func (s *Store) AppendConnectionLog(rec core.ConnectionLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, rec)
	if len(s.log) > maxConnectionLogRecords {
		s.log = s.log[len(s.log)-maxConnectionLogRecords:]
	}
	return s.saveFile("connection_log.json", s.log)
}

// ConnectionLog returns a copy of the persisted connect events.
func (s *Store) ConnectionLog() []core.ConnectionLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ConnectionLogRecord, len(s.log))
	copy(out, s.log)
	return out
}
