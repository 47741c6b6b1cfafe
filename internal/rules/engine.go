// Package rules owns the user-defined routing rules and renders them into
// the proxy-core's native rule syntax, priority-ordered.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"helmsman/internal/core"
	"helmsman/internal/xcore"
)

// Engine provides CRUD over RoutingRule records and rendering. Records are
// persisted by the external store; the engine is a thin stateless layer
// over it.
type Engine struct {
	store Store
	bus   *core.EventBus
}

// Store is the subset of the persistence collaborator the engine needs.
type Store interface {
	Rules() []core.RoutingRule
	AddRule(core.RoutingRule) (core.RoutingRule, error)
	RemoveRule(id int) error
}

// NewEngine creates a rule engine over the given store.
func NewEngine(store Store, bus *core.EventBus) *Engine {
	return &Engine{store: store, bus: bus}
}

// Rules returns all rule records.
func (e *Engine) Rules() []core.RoutingRule {
	return e.store.Rules()
}

// Add validates and persists a rule, assigning its id.
func (e *Engine) Add(rule core.RoutingRule) (core.RoutingRule, error) {
	if _, err := core.ParseRuleKind(string(rule.Kind)); err != nil {
		return core.RoutingRule{}, err
	}
	if _, err := core.ParseRuleAction(string(rule.Action)); err != nil {
		return core.RoutingRule{}, err
	}
	if strings.TrimSpace(rule.Value) == "" {
		return core.RoutingRule{}, fmt.Errorf("rule value must not be empty")
	}

	added, err := e.store.AddRule(rule)
	if err != nil {
		return core.RoutingRule{}, err
	}
	core.Log.Infof("Rule", "Added: %s %q → %s (priority=%d)", added.Kind, added.Value, added.Action, added.Priority)
	if e.bus != nil {
		e.bus.Publish(core.Event{Type: core.EventRuleAdded, Payload: core.RulePayload{Rule: added}})
	}
	return added, nil
}

// Remove deletes the rule with the given id.
func (e *Engine) Remove(id int) error {
	if err := e.store.RemoveRule(id); err != nil {
		return err
	}
	core.Log.Infof("Rule", "Removed rule %d", id)
	if e.bus != nil {
		e.bus.Publish(core.Event{Type: core.EventRuleRemoved, Payload: core.RulePayload{Rule: core.RoutingRule{ID: id}}})
	}
	return nil
}

// Render maps the enabled rules to the proxy-core's rule objects, ordered
// by priority desc, id desc — mirroring first-match-wins evaluation in the
// consuming engine.
func (e *Engine) Render() []xcore.Rule {
	records := e.store.Rules()

	enabled := records[:0:0]
	for _, r := range records {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority > enabled[j].Priority
		}
		return enabled[i].ID > enabled[j].ID
	})

	out := make([]xcore.Rule, 0, len(enabled))
	for _, r := range enabled {
		out = append(out, renderRule(r))
	}
	return out
}

// renderRule normalizes one record into the native rule object.
func renderRule(r core.RoutingRule) xcore.Rule {
	rule := xcore.Rule{Type: "field", OutboundTag: actionTag(r.Action)}

	switch r.Kind {
	case core.RuleKindDomain:
		rule.Domain = []string{normalizeDomain(r.Value)}
	case core.RuleKindGeosite:
		rule.Domain = []string{normalizePrefixed(r.Value, "geosite:")}
	case core.RuleKindGeoip:
		rule.IP = []string{normalizePrefixed(r.Value, "geoip:")}
	case core.RuleKindIP:
		// CIDR and address literals pass through untouched.
		rule.IP = []string{r.Value}
	}
	return rule
}

// normalizeDomain gives bare domain values the literal-domain prefix.
// Values carrying an explicit scheme (domain:, full:, regexp:, keyword:)
// pass through.
func normalizeDomain(v string) string {
	for _, scheme := range []string{"domain:", "full:", "regexp:", "keyword:"} {
		if strings.HasPrefix(v, scheme) {
			return v
		}
	}
	return "domain:" + v
}

// normalizePrefixed ensures the canonical category prefix exactly once.
func normalizePrefixed(v, prefix string) string {
	return prefix + strings.TrimPrefix(v, prefix)
}

func actionTag(a core.RuleAction) string {
	switch a {
	case core.ActionDirect:
		return xcore.TagDirect
	case core.ActionBlock:
		return xcore.TagBlock
	default:
		return xcore.TagProxy
	}
}
