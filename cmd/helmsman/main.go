package main

import (
	"os"

	"github.com/spf13/cobra"

	"helmsman/internal/core"
)

var configPath string

var mainCommand = &cobra.Command{
	Use:   "helmsman",
	Short: "Desktop VPN client daemon",
	Long:  "helmsman supervises an external proxy-core, steers the OS proxy and routes individual applications around or through the tunnel.",
}

func init() {
	mainCommand.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "daemon configuration file")
}

func main() {
	if err := mainCommand.Execute(); err != nil {
		core.Log.Fatalf("Main", "%v", err)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "helmsman.yaml"
	}
	return home + "/.helmsman/helmsman.yaml"
}
