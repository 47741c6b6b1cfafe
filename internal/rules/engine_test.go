package rules

import (
	"testing"

	"helmsman/internal/core"
	"helmsman/internal/xcore"
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	rules  []core.RoutingRule
	nextID int
}

func (f *fakeStore) Rules() []core.RoutingRule { return f.rules }

func (f *fakeStore) AddRule(r core.RoutingRule) (core.RoutingRule, error) {
	f.nextID++
	r.ID = f.nextID
	f.rules = append(f.rules, r)
	return r, nil
}

func (f *fakeStore) RemoveRule(id int) error {
	for i, r := range f.rules {
		if r.ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return core.ErrRuleNotFound
}

func TestAddValidation(t *testing.T) {
	e := NewEngine(&fakeStore{}, nil)

	cases := []struct {
		name string
		rule core.RoutingRule
	}{
		{"bad kind", core.RoutingRule{Kind: "hostname", Value: "x.com", Action: core.ActionProxy, Enabled: true}},
		{"bad action", core.RoutingRule{Kind: core.RuleKindDomain, Value: "x.com", Action: "tunnel", Enabled: true}},
		{"empty value", core.RoutingRule{Kind: core.RuleKindDomain, Value: "  ", Action: core.ActionProxy, Enabled: true}},
	}
	for _, tc := range cases {
		if _, err := e.Add(tc.rule); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}

	added, err := e.Add(core.RoutingRule{Kind: core.RuleKindDomain, Value: "example.com", Action: core.ActionProxy, Enabled: true})
	if err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}
	if added.ID == 0 {
		t.Error("expected assigned id")
	}
}

func TestRemoveUnknownRule(t *testing.T) {
	e := NewEngine(&fakeStore{}, nil)
	if err := e.Remove(42); err == nil {
		t.Fatal("expected error removing unknown rule")
	}
}

func TestRenderOrdering(t *testing.T) {
	st := &fakeStore{}
	e := NewEngine(st, nil)

	mustAdd := func(r core.RoutingRule) core.RoutingRule {
		t.Helper()
		added, err := e.Add(r)
		if err != nil {
			t.Fatal(err)
		}
		return added
	}

	mustAdd(core.RoutingRule{Kind: core.RuleKindDomain, Value: "low.example", Action: core.ActionDirect, Enabled: true, Priority: 1})
	mustAdd(core.RoutingRule{Kind: core.RuleKindDomain, Value: "high.example", Action: core.ActionBlock, Enabled: true, Priority: 10})
	mustAdd(core.RoutingRule{Kind: core.RuleKindDomain, Value: "disabled.example", Action: core.ActionProxy, Enabled: false, Priority: 100})
	// Same priority as the first rule but a higher id: must come first
	// within the tie.
	mustAdd(core.RoutingRule{Kind: core.RuleKindDomain, Value: "tie.example", Action: core.ActionDirect, Enabled: true, Priority: 1})

	rendered := e.Render()
	if len(rendered) != 3 {
		t.Fatalf("expected 3 rendered rules (disabled excluded), got %d", len(rendered))
	}

	want := []string{"domain:high.example", "domain:tie.example", "domain:low.example"}
	for i, w := range want {
		if len(rendered[i].Domain) != 1 || rendered[i].Domain[0] != w {
			t.Errorf("position %d: want %q, got %+v", i, w, rendered[i].Domain)
		}
	}
}

func TestRenderNormalization(t *testing.T) {
	cases := []struct {
		rule       core.RoutingRule
		wantDomain string
		wantIP     string
		wantTag    string
	}{
		{core.RoutingRule{Kind: core.RuleKindDomain, Value: "example.com", Action: core.ActionProxy, Enabled: true}, "domain:example.com", "", xcore.TagProxy},
		{core.RoutingRule{Kind: core.RuleKindDomain, Value: "full:exact.example.com", Action: core.ActionDirect, Enabled: true}, "full:exact.example.com", "", xcore.TagDirect},
		{core.RoutingRule{Kind: core.RuleKindDomain, Value: "regexp:.*\\.ads\\..*", Action: core.ActionBlock, Enabled: true}, "regexp:.*\\.ads\\..*", "", xcore.TagBlock},
		{core.RoutingRule{Kind: core.RuleKindGeosite, Value: "category-ads-all", Action: core.ActionBlock, Enabled: true}, "geosite:category-ads-all", "", xcore.TagBlock},
		{core.RoutingRule{Kind: core.RuleKindGeosite, Value: "geosite:cn", Action: core.ActionDirect, Enabled: true}, "geosite:cn", "", xcore.TagDirect},
		{core.RoutingRule{Kind: core.RuleKindGeoip, Value: "private", Action: core.ActionDirect, Enabled: true}, "", "geoip:private", xcore.TagDirect},
		{core.RoutingRule{Kind: core.RuleKindIP, Value: "10.0.0.0/8", Action: core.ActionDirect, Enabled: true}, "", "10.0.0.0/8", xcore.TagDirect},
	}

	for _, tc := range cases {
		got := renderRule(tc.rule)
		if tc.wantDomain != "" {
			if len(got.Domain) != 1 || got.Domain[0] != tc.wantDomain {
				t.Errorf("%q: want domain %q, got %+v", tc.rule.Value, tc.wantDomain, got.Domain)
			}
		}
		if tc.wantIP != "" {
			if len(got.IP) != 1 || got.IP[0] != tc.wantIP {
				t.Errorf("%q: want ip %q, got %+v", tc.rule.Value, tc.wantIP, got.IP)
			}
		}
		if got.OutboundTag != tc.wantTag {
			t.Errorf("%q: want tag %q, got %q", tc.rule.Value, tc.wantTag, got.OutboundTag)
		}
	}
}
