package approuting

import (
	"strings"
	"testing"

	"helmsman/internal/core"
)

type fakeStore struct {
	rules    []core.AppRoutingRule
	settings core.Settings
}

func (f *fakeStore) AppRules() []core.AppRoutingRule { return f.rules }

func (f *fakeStore) UpsertAppRule(r core.AppRoutingRule) error {
	for i := range f.rules {
		if f.rules[i].AppPath == r.AppPath {
			f.rules[i] = r
			return nil
		}
	}
	f.rules = append(f.rules, r)
	return nil
}

func (f *fakeStore) Settings() core.Settings { return f.settings }

func TestSetPolicyValidatesAndUpserts(t *testing.T) {
	st := &fakeStore{settings: core.DefaultSettings()}
	m := NewManager(st, nil)

	if err := m.SetPolicy("/Applications/Slack.app", "", "sometimes"); err == nil {
		t.Fatal("expected error for unknown policy")
	}

	if err := m.SetPolicy("/Applications/Slack.app", "", core.PolicyBypass); err != nil {
		t.Fatal(err)
	}
	if err := m.SetPolicy("/Applications/Slack.app", "", core.PolicyVPN); err != nil {
		t.Fatal(err)
	}

	rules := m.Policies()
	if len(rules) != 1 {
		t.Fatalf("expected upsert, got %d rules", len(rules))
	}
	if rules[0].Policy != core.PolicyVPN {
		t.Errorf("got %q", rules[0].Policy)
	}
	// The display name is derived when none is supplied.
	if rules[0].AppName != "Slack" {
		t.Errorf("got app name %q", rules[0].AppName)
	}
}

func TestPolicySets(t *testing.T) {
	st := &fakeStore{
		settings: core.DefaultSettings(),
		rules: []core.AppRoutingRule{
			{AppPath: "/Applications/Slack.app", Policy: core.PolicyBypass},
			{AppPath: "/Applications/Firefox.app", Policy: core.PolicyVPN},
			{AppPath: "/Applications/Notes.app", Policy: core.PolicyNone},
		},
	}
	m := NewManager(st, nil)

	bypass, vpn := m.PolicySets()
	if len(bypass) != 1 || bypass[0].AppPath != "/Applications/Slack.app" {
		t.Errorf("bypass set: %v", bypass)
	}
	if len(vpn) != 1 || vpn[0].AppPath != "/Applications/Firefox.app" {
		t.Errorf("vpn set: %v", vpn)
	}

	// The bypass set feeds the config synthesizer's direct rule.
	names := m.BypassProcessNames()
	if len(names) == 0 {
		t.Error("expected process identifiers for bypassed apps")
	}
}

func TestBypassProcessNamesAreExact(t *testing.T) {
	st := &fakeStore{
		settings: core.DefaultSettings(),
		rules: []core.AppRoutingRule{
			{AppPath: "/Applications/Slack.app", Policy: core.PolicyBypass},
		},
	}
	m := NewManager(st, nil)

	// The core's process routing field matches names and executable
	// paths exactly; a glob entry would never match anything.
	names := m.BypassProcessNames()
	if len(names) == 0 {
		t.Fatal("expected process identifiers for bypassed apps")
	}
	for _, n := range names {
		if strings.ContainsAny(n, "*?") {
			t.Errorf("glob %q must not reach the process routing rule", n)
		}
	}
}

func TestSetPolicyPublishesEvent(t *testing.T) {
	bus := core.NewEventBus()
	var got []core.AppPolicyPayload
	bus.Subscribe(core.EventAppPolicyChanged, func(e core.Event) {
		if p, ok := e.Payload.(core.AppPolicyPayload); ok {
			got = append(got, p)
		}
	})

	m := NewManager(&fakeStore{settings: core.DefaultSettings()}, bus)
	if err := m.SetPolicy("/Applications/Slack.app", "Slack", core.PolicyBypass); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 || got[0].Policy != core.PolicyBypass {
		t.Errorf("expected one policy event, got %v", got)
	}
}
