// Package sysproxy controls the operating system's global proxy settings
// across all network services, including PAC-based auto-proxy mode.
package sysproxy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Controller mutates and verifies the OS proxy state. Implementations are
// platform-specific; the stub is used where no implementation exists.
type Controller interface {
	// EnableGlobal sets SOCKS + HTTP + HTTPS proxies on every network
	// service, pointing at the local listeners. Overall success requires
	// only one service to succeed; per-service failures are collected.
	EnableGlobal(socksPort, httpPort uint16) error

	// Disable turns off every proxy type on every service, including any
	// auto-proxy (PAC) state.
	Disable() error

	// EnablePAC switches the OS to auto-proxy mode with the given script URL.
	EnablePAC(pacURL string) error

	// Verify reads back the applied settings on at least one service and
	// confirms server/port/enabled match. Failure is non-fatal: the
	// caller logs it and proceeds.
	Verify(httpPort uint16) error

	// VerifyPAC reads back the auto-proxy state and confirms the script
	// URL took effect. Same non-fatal contract as Verify.
	VerifyPAC(pacURL string) error
}

// commandTimeout bounds every external OS command, elevation prompts
// included.
const commandTimeout = 30 * time.Second

// runner executes an external command and returns its combined output.
// Injectable for tests.
type runner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// serviceError records a per-service failure without aborting the rest.
type serviceError struct {
	Service string
	Err     error
}

func (e serviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func joinServiceErrors(errs []serviceError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}
