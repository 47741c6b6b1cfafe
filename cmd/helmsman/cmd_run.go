package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"helmsman/internal/api"
	"helmsman/internal/approuting"
	"helmsman/internal/core"
	"helmsman/internal/orchestrator"
	"helmsman/internal/rules"
	"helmsman/internal/store"
	"helmsman/internal/sysproxy"
)

var commandRun = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon",
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(); err != nil {
			core.Log.Fatalf("Main", "%v", err)
		}
	},
}

func init() {
	mainCommand.AddCommand(commandRun)
}

func run() error {
	cfg, err := core.LoadDaemonConfig(configPath)
	if err != nil {
		return err
	}
	core.ConfigureOutput(cfg.Log)
	core.Log.Infof("Main", "helmsman %s starting (data dir %s)", version, cfg.DataDir)

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}

	bus := core.NewEventBus()
	bus.Subscribe(core.EventConnectionStateChanged, func(e core.Event) {
		if p, ok := e.Payload.(core.ConnectionStatePayload); ok {
			core.Log.Infof("Main", "Connection state: %s -> %s (server %s)", p.OldState, p.NewState, p.ServerID)
		}
	})
	bus.Subscribe(core.EventCoreExited, func(e core.Event) {
		if p, ok := e.Payload.(core.CoreExitPayload); ok && !p.Requested {
			core.Log.Warnf("Main", "Core exited unexpectedly (server %s): %v", p.ServerID, p.Err)
		}
	})

	ruleEngine := rules.NewEngine(st, bus)
	apps := approuting.NewManager(st, bus)
	proxy := sysproxy.New()
	orch := orchestrator.New(cfg, st, ruleEngine, apps, proxy, bus)

	server := api.NewServer(cfg.APIListen, orch, st, ruleEngine, apps, bus)
	if err := server.Start(); err != nil {
		return err
	}

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)
	sig := <-osSignals
	core.Log.Infof("Main", "Received %s, shutting down", sig)

	server.Stop()
	orch.Shutdown()
	return nil
}
