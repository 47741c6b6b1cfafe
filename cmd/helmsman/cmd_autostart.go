package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"helmsman/internal/autostart"
	"helmsman/internal/core"
)

var commandAutostart = &cobra.Command{
	Use:       "autostart [on|off|status]",
	Short:     "Manage starting the daemon at login",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off", "status"},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runAutostart(args[0]); err != nil {
			core.Log.Fatalf("Main", "%v", err)
		}
	},
}

func init() {
	mainCommand.AddCommand(commandAutostart)
}

func runAutostart(action string) error {
	switch action {
	case "on":
		if err := autostart.SetEnabled(true, ""); err != nil {
			return err
		}
		fmt.Println("autostart enabled")
	case "off":
		if err := autostart.SetEnabled(false, ""); err != nil {
			return err
		}
		fmt.Println("autostart disabled")
	case "status":
		enabled, err := autostart.IsEnabled()
		if err != nil {
			return err
		}
		if enabled {
			fmt.Println("autostart: enabled")
		} else {
			fmt.Println("autostart: disabled")
		}
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}
