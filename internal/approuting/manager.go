// Package approuting implements per-application split tunneling: it
// discovers installed applications, classifies their proxy-override
// capability, and forces individual applications onto the proxy or the
// direct path by relaunching them under a modified environment or with
// engine-specific arguments.
package approuting

import (
	"fmt"
	"time"

	"helmsman/internal/core"
	"helmsman/internal/process"
)

const (
	// relaunchWindow bounds how long a relaunch may take to become
	// observable before it is reported as a failure.
	relaunchWindow = 6 * time.Second
	// stopGrace is the graceful-stop window before a forced kill.
	stopGrace = 3 * time.Second

	pollInterval = 250 * time.Millisecond
)

// Store is the subset of the persistence collaborator the manager needs.
type Store interface {
	AppRules() []core.AppRoutingRule
	UpsertAppRule(core.AppRoutingRule) error
	Settings() core.Settings
}

// Manager owns per-application routing state and mechanics.
type Manager struct {
	store Store
	bus   *core.EventBus
}

// NewManager creates an app-routing manager over the given store.
func NewManager(store Store, bus *core.EventBus) *Manager {
	return &Manager{store: store, bus: bus}
}

// DiscoverInstalledApps enumerates installed applications, de-duplicated
// by path.
func (m *Manager) DiscoverInstalledApps() []core.InstalledApp {
	apps := discoverApps()

	seen := make(map[string]bool, len(apps))
	out := make([]core.InstalledApp, 0, len(apps))
	for _, a := range apps {
		if seen[a.Path] {
			continue
		}
		seen[a.Path] = true
		out = append(out, a)
	}
	return out
}

// Capability classifies an application by name pattern.
func (m *Manager) Capability(appPath string) core.AppRoutingCapability {
	return Classify(appPath)
}

// Policies returns all persisted per-application rules.
func (m *Manager) Policies() []core.AppRoutingRule {
	return m.store.AppRules()
}

// PolicySets returns the applications explicitly marked bypass and vpn.
func (m *Manager) PolicySets() (bypass, vpn []core.AppRoutingRule) {
	for _, r := range m.store.AppRules() {
		switch r.Policy {
		case core.PolicyBypass:
			bypass = append(bypass, r)
		case core.PolicyVPN:
			vpn = append(vpn, r)
		}
	}
	return bypass, vpn
}

// BypassProcessNames resolves the process identifiers of every
// bypass-marked application, for the config synthesizer's direct rule.
// The core matches these against process names and executable paths
// exactly, so glob patterns are never included.
func (m *Manager) BypassProcessNames() []string {
	bypass, _ := m.PolicySets()
	var names []string
	for _, r := range bypass {
		names = append(names, routingProcessNames(r.AppPath)...)
	}
	return names
}

// SetPolicy persists a policy (upsert by path) and, when connected, the
// orchestrator re-applies it live via ApplyPolicy.
func (m *Manager) SetPolicy(appPath, appName string, policy core.AppPolicy) error {
	if _, err := core.ParseAppPolicy(string(policy)); err != nil {
		return err
	}
	if appName == "" {
		appName = appDisplayName(appPath)
	}
	if err := m.store.UpsertAppRule(core.AppRoutingRule{AppPath: appPath, AppName: appName, Policy: policy}); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(core.Event{Type: core.EventAppPolicyChanged, Payload: core.AppPolicyPayload{AppPath: appPath, Policy: policy}})
	}
	return nil
}

// ApplyPolicy enforces a policy on a running system. PolicyNone re-applies
// the ambient default for the active proxy mode: proxied under global
// mode, direct under per-app mode.
func (m *Manager) ApplyPolicy(appPath string, policy core.AppPolicy, socksPort, httpPort uint16) error {
	effective := policy
	if policy == core.PolicyNone {
		if m.store.Settings().ProxyMode == core.ModePerApp {
			effective = core.PolicyBypass
		} else {
			effective = core.PolicyVPN
		}
	}

	switch effective {
	case core.PolicyVPN:
		return m.EnsureAppUsesProxy(appPath, true, socksPort, httpPort)
	case core.PolicyBypass:
		return m.EnsureAppBypassesProxy(appPath, true)
	}
	return nil
}

// EnsureAppUsesProxy forces the application through the local proxy. A
// running instance is stopped (graceful, then forced) and relaunched when
// restartIfRunning is set; the relaunch is confirmed against the running
// predicate within a bounded window.
func (m *Manager) EnsureAppUsesProxy(appPath string, restartIfRunning bool, socksPort, httpPort uint16) error {
	return m.relaunch(appPath, restartIfRunning, func() error {
		return launchProxied(appPath, socksPort, httpPort)
	})
}

// EnsureAppBypassesProxy forces the application onto the direct path.
func (m *Manager) EnsureAppBypassesProxy(appPath string, restartIfRunning bool) error {
	return m.relaunch(appPath, restartIfRunning, func() error {
		return launchDirect(appPath)
	})
}

func (m *Manager) relaunch(appPath string, restartIfRunning bool, launch func() error) error {
	patterns := processPatterns(appPath)

	if _, running := process.AnyRunning(patterns); running {
		if !restartIfRunning {
			core.Log.Infof("AppRoute", "%s is running; leaving it untouched", appPath)
			return nil
		}
		core.Log.Infof("AppRoute", "Stopping %s for relaunch", appPath)
		process.TerminateMatching(patterns, stopGrace)
	}

	if err := launch(); err != nil {
		return fmt.Errorf("%w: launch %q: %v", core.ErrRelaunchFailed, appPath, err)
	}

	// A relaunch that does not observably start is a failure, not a
	// silent success.
	deadline := time.Now().Add(relaunchWindow)
	for time.Now().Before(deadline) {
		if _, running := process.AnyRunning(patterns); running {
			core.Log.Infof("AppRoute", "%s confirmed running under new policy", appPath)
			return nil
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("%w: %q did not reach running state within %s", core.ErrRelaunchFailed, appPath, relaunchWindow)
}
