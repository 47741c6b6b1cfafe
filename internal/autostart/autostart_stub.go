//go:build !darwin

// Package autostart manages starting the daemon at user login.
package autostart

import "errors"

var errUnsupported = errors.New("autostart is not supported on this platform")

// IsEnabled reports whether login autostart is installed.
func IsEnabled() (bool, error) { return false, nil }

// SetEnabled installs or removes login autostart.
func SetEnabled(enabled bool, binaryPath string) error { return errUnsupported }
