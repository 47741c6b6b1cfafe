//go:build !darwin

package approuting

import (
	"errors"

	"helmsman/internal/core"
)

var errUnsupported = errors.New("per-app routing is not supported on this platform")

func discoverApps() []core.InstalledApp { return nil }

func processPatterns(appPath string) []string { return []string{appPath} }

func routingProcessNames(appPath string) []string { return []string{appDisplayName(appPath)} }

func launchProxied(string, uint16, uint16) error { return errUnsupported }

func launchDirect(string) error { return errUnsupported }
