package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"helmsman/internal/core"
	"helmsman/internal/xcore"
)

var commandCheck = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and the proxy-core binary",
	Run: func(cmd *cobra.Command, args []string) {
		if err := check(); err != nil {
			core.Log.Fatalf("Main", "%v", err)
		}
	},
}

func init() {
	mainCommand.AddCommand(commandCheck)
}

func check() error {
	cfg, err := core.LoadDaemonConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if err := xcore.CheckBinary(cfg.CoreBinary); err != nil {
		return err
	}
	fmt.Printf("configuration ok, proxy-core found at %s\n", cfg.CoreBinary)
	return nil
}
