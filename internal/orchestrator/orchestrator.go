// Package orchestrator owns the connection state machine. It is the hub
// tying the rule engine, the per-app routing manager, the config
// synthesizer, the proxy-core supervisor and the system proxy controller
// together; every connect/disconnect flows through it, serialized by a
// single mutex.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"helmsman/internal/approuting"
	"helmsman/internal/core"
	"helmsman/internal/rules"
	"helmsman/internal/sysproxy"
	"helmsman/internal/xcore"
)

const (
	configFileName = "core-config.json"

	// stopGrace is the window between SIGTERM and SIGKILL on disconnect.
	stopGrace = 5 * time.Second
	// readinessDeadline bounds the post-spawn listener probe.
	readinessDeadline = 10 * time.Second
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	Server(id string) (core.Server, error)
	Settings() core.Settings
	AppendConnectionLog(core.ConnectionLogRecord) error
}

// Orchestrator drives the connection lifecycle. All exported methods are
// safe for concurrent use.
type Orchestrator struct {
	cfg   core.DaemonConfig
	store Store
	rules *rules.Engine
	apps  *approuting.Manager
	proxy sysproxy.Controller
	pac   *sysproxy.Publisher
	bus   *core.EventBus

	mu     sync.Mutex
	status core.ConnectionStatus
	runner *xcore.Runner
	// pacActive tracks whether the OS was switched to auto-proxy mode.
	pacActive bool

	telemetry *telemetry
	reconnect *reconnector
}

// New wires an orchestrator over its collaborators.
func New(cfg core.DaemonConfig, store Store, ruleEngine *rules.Engine, apps *approuting.Manager, proxy sysproxy.Controller, bus *core.EventBus) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		store:  store,
		rules:  ruleEngine,
		apps:   apps,
		proxy:  proxy,
		pac:    sysproxy.NewPublisher(cfg.PACPort),
		bus:    bus,
		status: core.ConnectionStatus{State: core.StateDisconnected, PingMs: -1},
	}
	o.telemetry = newTelemetry(o, newAccounting())
	o.reconnect = newReconnector(o)
	return o
}

// Status returns a copy of the live connection status.
func (o *Orchestrator) Status() core.ConnectionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Connect establishes a connection to the given server. A connect while
// already connected performs a full disconnect first.
func (o *Orchestrator) Connect(ctx context.Context, serverID string) (core.ConnectionStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// A cancelled context means the caller's intent is gone, most
	// importantly a retry attempt superseded by a user disconnect. It
	// must not touch any state.
	if err := ctx.Err(); err != nil {
		return o.status, err
	}

	if o.status.State == core.StateConnected || o.status.State == core.StateConnecting {
		core.Log.Infof("Orchestrator", "Connect while %s; disconnecting first", o.status.State)
		o.disconnectLocked()
	}

	// Step 1: snapshot the server and settings for the whole attempt.
	server, err := o.store.Server(serverID)
	if err != nil {
		return o.status, err
	}
	settings := o.store.Settings()
	settings.Normalize()

	if err := xcore.CheckBinary(o.cfg.CoreBinary); err != nil {
		return o.status, err
	}

	o.setState(core.StateConnecting, serverID)
	o.status.Server = &server
	o.status.LastError = ""

	status, err := o.connectLocked(ctx, server, settings)
	if err != nil {
		o.status.State = core.StateError
		o.status.LastError = err.Error()
		o.publishState(core.StateConnecting, core.StateError, serverID)
		return o.status, err
	}
	o.reconnect.setIntent(serverID, true)
	return status, nil
}

// connectLocked performs steps 2-9 of the connect sequence. Any failure
// rolls back partial side effects before returning.
func (o *Orchestrator) connectLocked(ctx context.Context, server core.Server, settings core.Settings) (core.ConnectionStatus, error) {
	// Step 2: current per-application routing intent.
	bypassProcs := o.apps.BypassProcessNames()

	// Step 3: synthesize and persist the per-run config.
	cfg, err := xcore.Synthesize(xcore.SynthesisInput{
		Server:          server,
		Settings:        settings,
		BypassProcesses: bypassProcs,
		UserRules:       o.rules.Render(),
	})
	if err != nil {
		return o.status, err
	}
	configPath := filepath.Join(o.cfg.DataDir, configFileName)
	if err := cfg.WriteFile(configPath); err != nil {
		return o.status, fmt.Errorf("persist core config: %w", err)
	}

	// Step 4: clear out any core left over from a previous run.
	xcore.KillStale(o.cfg.DataDir)

	// Step 5: spawn and register the exit handler. The closure captures
	// the runner itself so a late exit from a superseded runner is told
	// apart from the active one.
	serverID := server.ID
	var runner *xcore.Runner
	runner = xcore.NewRunner(o.cfg.CoreBinary, configPath, func(exitErr error) {
		o.handleCoreExit(runner, serverID, exitErr)
	})
	if err := runner.Start(); err != nil {
		o.rollback(runner, configPath)
		return o.status, err
	}
	o.runner = runner
	runner.WritePIDFile(o.cfg.DataDir)

	// Step 6: readiness probe. A timeout is logged, never fatal: the core
	// may still be bringing routes up.
	probeCtx, cancel := context.WithTimeout(ctx, readinessDeadline)
	err = xcore.AwaitReady(probeCtx, settings.SocksPort, settings.HTTPPort)
	cancel()
	if err != nil {
		core.Log.Warnf("Orchestrator", "Readiness probe: %v; proceeding anyway", err)
	}

	// Step 7: system-level routing per proxy mode.
	if err := o.activateRouting(settings); err != nil {
		o.rollback(runner, configPath)
		return o.status, err
	}

	// Step 8: reset counters, start telemetry.
	now := time.Now()
	o.status.State = core.StateConnected
	o.status.ConnectedAt = now
	o.status.UploadSpeedMbps = 0
	o.status.DownloadSpeedMbps = 0
	o.status.UploadTotalBytes = 0
	o.status.DownloadTotalBytes = 0
	o.status.PingMs = -1
	o.telemetry.start(settings)

	// Step 9: persisted connection-log record.
	if err := o.store.AppendConnectionLog(core.ConnectionLogRecord{
		ServerID:   server.ID,
		ServerName: server.Name,
		Protocol:   server.Protocol,
		ProxyMode:  settings.ProxyMode,
		Timestamp:  now,
	}); err != nil {
		core.Log.Warnf("Orchestrator", "Append connection log: %v", err)
	}

	o.publishState(core.StateConnecting, core.StateConnected, server.ID)
	core.Log.Infof("Orchestrator", "Connected to %s (%s) via %s", server.Name, server.Address, server.Protocol)
	return o.status, nil
}

// activateRouting switches OS-level routing for the configured proxy
// mode. Per-app mode leaves global routing untouched: only explicitly
// managed applications are steered, by their own relaunch path.
func (o *Orchestrator) activateRouting(settings core.Settings) error {
	switch settings.ProxyMode {
	case core.ModeGlobal:
		if err := o.proxy.EnableGlobal(settings.SocksPort, settings.HTTPPort); err != nil {
			return err
		}
		if err := o.proxy.Verify(settings.HTTPPort); err != nil {
			core.Log.Warnf("Orchestrator", "Proxy verification: %v", err)
		}
		return nil

	case core.ModePAC:
		direct, proxied := o.pacDomainSets()
		o.pac.SetScript(sysproxy.GeneratePAC(settings.SocksPort, settings.HTTPPort, direct, proxied))
		if err := o.pac.Start(); err != nil {
			return err
		}
		if err := o.proxy.EnablePAC(o.pac.URL()); err != nil {
			return err
		}
		o.pacActive = true
		if err := o.proxy.VerifyPAC(o.pac.URL()); err != nil {
			core.Log.Warnf("Orchestrator", "PAC verification: %v", err)
		}
		return nil

	case core.ModePerApp:
		core.Log.Infof("Orchestrator", "Per-app mode: global routing left untouched")
		return nil
	}
	return fmt.Errorf("unknown proxy mode %q", settings.ProxyMode)
}

// pacDomainSets derives the PAC script's explicit domain lists from the
// user's enabled domain rules.
func (o *Orchestrator) pacDomainSets() (direct, proxied []string) {
	for _, r := range o.rules.Rules() {
		if !r.Enabled || r.Kind != core.RuleKindDomain {
			continue
		}
		switch r.Action {
		case core.ActionDirect:
			direct = append(direct, r.Value)
		case core.ActionProxy:
			proxied = append(proxied, r.Value)
		}
	}
	return direct, proxied
}

// rollback undoes partial connect side effects: kill the subprocess if
// spawned, best-effort disable the system proxy, drop the config file.
func (o *Orchestrator) rollback(runner *xcore.Runner, configPath string) {
	core.Log.Warnf("Orchestrator", "Rolling back partial connect")
	o.runner = nil
	if runner != nil {
		runner.Stop(stopGrace)
	}
	o.deactivateRouting()
	_ = os.Remove(configPath)
}

// Disconnect tears the connection down. Idempotent: with no active
// subprocess it still clears status and proxy state.
func (o *Orchestrator) Disconnect() core.ConnectionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reconnect.setIntent("", false)
	o.disconnectLocked()
	return o.status
}

func (o *Orchestrator) disconnectLocked() {
	old := o.status.State
	if old == core.StateDisconnected && o.runner == nil {
		// Still clear proxy state: a previous run may have left it on.
		o.deactivateRouting()
		o.status = core.ConnectionStatus{State: core.StateDisconnected, PingMs: -1}
		return
	}

	serverID := ""
	if o.status.Server != nil {
		serverID = o.status.Server.ID
	}
	o.status.State = core.StateDisconnecting
	o.publishState(old, core.StateDisconnecting, serverID)

	o.telemetry.stop()

	if r := o.runner; r != nil {
		// Clearing the handle first marks the exit as requested for the
		// exit handler.
		o.runner = nil
		r.Stop(stopGrace)
	}

	o.deactivateRouting()
	_ = os.Remove(filepath.Join(o.cfg.DataDir, configFileName))

	o.status = core.ConnectionStatus{State: core.StateDisconnected, PingMs: -1}
	o.publishState(core.StateDisconnecting, core.StateDisconnected, serverID)
	core.Log.Infof("Orchestrator", "Disconnected")
}

func (o *Orchestrator) deactivateRouting() {
	if err := o.proxy.Disable(); err != nil {
		core.Log.Warnf("Orchestrator", "Disable system proxy: %v", err)
	}
	if o.pacActive {
		o.pac.Stop()
		o.pacActive = false
	}
}

// handleCoreExit runs when the subprocess exits. An exit we did not ask
// for while connected is a security event: with the kill switch on, the
// system proxy stays ENABLED so traffic blocks rather than silently
// falling back to the direct path.
func (o *Orchestrator) handleCoreExit(r *xcore.Runner, serverID string, exitErr error) {
	o.mu.Lock()

	// A runner we already detached exited because we stopped it.
	if o.runner != r {
		o.mu.Unlock()
		return
	}

	wasConnected := o.status.State == core.StateConnected
	core.Log.Errorf("Orchestrator", "Proxy-core exited unexpectedly (connected=%v): %v", wasConnected, exitErr)

	settings := o.store.Settings()
	settings.Normalize()

	o.telemetry.stop()
	o.runner = nil
	old := o.status.State

	if settings.KillSwitch {
		core.Log.Warnf("Orchestrator", "Kill switch engaged: system proxy stays enabled, traffic is blocked")
	} else {
		o.deactivateRouting()
	}

	if wasConnected {
		o.status.State = core.StateError
		if exitErr != nil {
			o.status.LastError = exitErr.Error()
		} else {
			o.status.LastError = "proxy-core exited unexpectedly"
		}
	} else {
		o.status.State = core.StateDisconnected
	}
	newState := o.status.State
	o.mu.Unlock()

	o.publishState(old, newState, serverID)
	if o.bus != nil {
		o.bus.Publish(core.Event{Type: core.EventCoreExited, Payload: core.CoreExitPayload{
			ServerID:  serverID,
			Requested: false,
			Err:       exitErr,
		}})
	}

	if wasConnected && settings.KillSwitch && settings.ReconnectOnDisconnect {
		o.reconnect.trigger(serverID)
	}
}

// TestRealDelay measures a candidate server's real round-trip through a
// throwaway core instance, without disturbing an active connection.
func (o *Orchestrator) TestRealDelay(ctx context.Context, serverID string) (time.Duration, error) {
	server, err := o.store.Server(serverID)
	if err != nil {
		return 0, err
	}
	settings := o.store.Settings()
	settings.Normalize()

	timeout := time.Duration(settings.ConnectionTimeoutSeconds) * time.Second
	return xcore.TestRealDelay(ctx, o.cfg.CoreBinary, o.cfg.DataDir, server, settings, timeout)
}

// Shutdown stops everything for daemon exit. Unlike Disconnect it honors
// the kill switch only when asked to preserve it.
func (o *Orchestrator) Shutdown() {
	o.reconnect.stop()
	o.Disconnect()
}

// setState transitions the state and publishes the change. Caller holds
// the mutex.
func (o *Orchestrator) setState(s core.ConnectionState, serverID string) {
	old := o.status.State
	o.status.State = s
	o.publishState(old, s, serverID)
}

func (o *Orchestrator) publishState(old, next core.ConnectionState, serverID string) {
	if o.bus == nil || old == next {
		return
	}
	o.bus.Publish(core.Event{Type: core.EventConnectionStateChanged, Payload: core.ConnectionStatePayload{
		OldState: old,
		NewState: next,
		ServerID: serverID,
	}})
}

// updateStatus lets telemetry mutate the status under the lock, but only
// while still connected. TryLock keeps the telemetry goroutine from
// blocking against a disconnect that is waiting for it to stop; a skipped
// sample is acceptable.
func (o *Orchestrator) updateStatus(f func(*core.ConnectionStatus)) {
	if !o.mu.TryLock() {
		return
	}
	defer o.mu.Unlock()
	if o.status.State != core.StateConnected {
		return
	}
	f(&o.status)
}
