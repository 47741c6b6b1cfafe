package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is overridable at link time.
var version = "dev"

var commandVersion = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("helmsman %s (%s/%s, %s)\n", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}

func init() {
	mainCommand.AddCommand(commandVersion)
}
