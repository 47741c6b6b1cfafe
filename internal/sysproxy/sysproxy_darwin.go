//go:build darwin

package sysproxy

import (
	"context"
	"fmt"
	"strings"

	"helmsman/internal/core"
)

// darwinController drives macOS proxy state through networksetup.
// Commands that fail with a permission error are retried once through an
// osascript administrator prompt.
type darwinController struct {
	run runner
}

// New returns the macOS controller.
func New() Controller {
	return &darwinController{run: execRunner}
}

// listServices enumerates enabled network services. networksetup prefixes
// disabled services with '*'.
func (c *darwinController) listServices(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "networksetup", "-listallnetworkservices")
	if err != nil {
		return nil, fmt.Errorf("list network services: %w", err)
	}

	var services []string
	for i, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" || strings.HasPrefix(line, "*") {
			// First line is an informational banner.
			continue
		}
		services = append(services, line)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("no enabled network services found")
	}
	return services, nil
}

// setCommand runs a networksetup mutation, retrying once via privilege
// escalation when the command is refused.
func (c *darwinController) setCommand(ctx context.Context, args ...string) error {
	out, err := c.run(ctx, "networksetup", args...)
	if err == nil {
		return nil
	}

	if !isPermissionFailure(out, err) {
		return fmt.Errorf("networksetup %s: %v (%s)", args[0], err, out)
	}

	core.Log.Warnf("SysProxy", "networksetup %s needs elevation, prompting", args[0])
	script := "do shell script \"networksetup " + shellQuoteAll(args) + "\" with administrator privileges"
	if out, err = c.run(ctx, "osascript", "-e", script); err != nil {
		return fmt.Errorf("%w: networksetup %s: %v (%s)", core.ErrPermissionDenied, args[0], err, out)
	}
	return nil
}

func isPermissionFailure(out string, err error) bool {
	lower := strings.ToLower(out + " " + err.Error())
	return strings.Contains(lower, "permission") ||
		strings.Contains(lower, "not authorized") ||
		strings.Contains(lower, "requires admin")
}

func shellQuoteAll(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

// EnableGlobal points every service's SOCKS, HTTP and HTTPS proxy at the
// local listeners. The bypass list is loopback only: broad bypass lists
// defeat the purpose of a VPN. Mutations run sequentially — parallel
// networksetup calls can leave services half-configured.
func (c *darwinController) EnableGlobal(socksPort, httpPort uint16) error {
	ctx := context.Background()
	services, err := c.listServices(ctx)
	if err != nil {
		return err
	}

	var (
		okCount int
		errs    []serviceError
	)
	for _, svc := range services {
		steps := [][]string{
			{"-setsocksfirewallproxy", svc, "127.0.0.1", fmt.Sprint(socksPort)},
			{"-setsocksfirewallproxystate", svc, "on"},
			{"-setwebproxy", svc, "127.0.0.1", fmt.Sprint(httpPort)},
			{"-setwebproxystate", svc, "on"},
			{"-setsecurewebproxy", svc, "127.0.0.1", fmt.Sprint(httpPort)},
			{"-setsecurewebproxystate", svc, "on"},
			{"-setproxybypassdomains", svc, "127.0.0.1", "localhost"},
		}
		if err := c.runSteps(ctx, steps); err != nil {
			core.Log.Warnf("SysProxy", "Enable on %q failed: %v", svc, err)
			errs = append(errs, serviceError{Service: svc, Err: err})
			continue
		}
		okCount++
	}

	if okCount == 0 {
		return fmt.Errorf("enable global proxy failed on all services: %s", joinServiceErrors(errs))
	}
	core.Log.Infof("SysProxy", "Global proxy enabled on %d/%d services (socks=%d http=%d)",
		okCount, len(services), socksPort, httpPort)
	return nil
}

// Disable turns every proxy type off on every service, auto-proxy state
// included.
func (c *darwinController) Disable() error {
	ctx := context.Background()
	services, err := c.listServices(ctx)
	if err != nil {
		return err
	}

	var (
		okCount int
		errs    []serviceError
	)
	for _, svc := range services {
		steps := [][]string{
			{"-setsocksfirewallproxystate", svc, "off"},
			{"-setwebproxystate", svc, "off"},
			{"-setsecurewebproxystate", svc, "off"},
			{"-setautoproxystate", svc, "off"},
		}
		if err := c.runSteps(ctx, steps); err != nil {
			core.Log.Warnf("SysProxy", "Disable on %q failed: %v", svc, err)
			errs = append(errs, serviceError{Service: svc, Err: err})
			continue
		}
		okCount++
	}

	if okCount == 0 {
		return fmt.Errorf("disable proxy failed on all services: %s", joinServiceErrors(errs))
	}
	core.Log.Infof("SysProxy", "Proxy disabled on %d/%d services", okCount, len(services))
	return nil
}

// EnablePAC switches every service to auto-proxy mode with the given URL.
func (c *darwinController) EnablePAC(pacURL string) error {
	ctx := context.Background()
	services, err := c.listServices(ctx)
	if err != nil {
		return err
	}

	var (
		okCount int
		errs    []serviceError
	)
	for _, svc := range services {
		steps := [][]string{
			{"-setautoproxyurl", svc, pacURL},
			{"-setautoproxystate", svc, "on"},
		}
		if err := c.runSteps(ctx, steps); err != nil {
			core.Log.Warnf("SysProxy", "PAC on %q failed: %v", svc, err)
			errs = append(errs, serviceError{Service: svc, Err: err})
			continue
		}
		okCount++
	}

	if okCount == 0 {
		return fmt.Errorf("enable PAC failed on all services: %s", joinServiceErrors(errs))
	}
	core.Log.Infof("SysProxy", "PAC enabled on %d/%d services (%s)", okCount, len(services), pacURL)
	return nil
}

// Verify reads back the HTTP proxy setting on the first service and checks
// server, port and enabled state.
func (c *darwinController) Verify(httpPort uint16) error {
	ctx := context.Background()
	services, err := c.listServices(ctx)
	if err != nil {
		return err
	}

	out, err := c.run(ctx, "networksetup", "-getwebproxy", services[0])
	if err != nil {
		return fmt.Errorf("read back proxy on %q: %w", services[0], err)
	}

	got := parseGetProxyOutput(out)
	want := proxyReadback{Enabled: true, Server: "127.0.0.1", Port: fmt.Sprint(httpPort)}
	if got != want {
		return fmt.Errorf("proxy readback mismatch on %q: got %+v, want %+v", services[0], got, want)
	}
	return nil
}

// VerifyPAC reads back the auto-proxy state on the first service and
// checks the script URL and enabled state.
func (c *darwinController) VerifyPAC(pacURL string) error {
	ctx := context.Background()
	services, err := c.listServices(ctx)
	if err != nil {
		return err
	}

	out, err := c.run(ctx, "networksetup", "-getautoproxyurl", services[0])
	if err != nil {
		return fmt.Errorf("read back PAC on %q: %w", services[0], err)
	}

	got := parsePACReadback(out)
	want := pacReadback{Enabled: true, URL: pacURL}
	if got != want {
		return fmt.Errorf("PAC readback mismatch on %q: got %+v, want %+v", services[0], got, want)
	}
	return nil
}

type proxyReadback struct {
	Enabled bool
	Server  string
	Port    string
}

type pacReadback struct {
	Enabled bool
	URL     string
}

// parsePACReadback parses networksetup -getautoproxyurl output:
//
//	URL: http://127.0.0.1:18041/proxy.pac
//	Enabled: Yes
func parsePACReadback(out string) pacReadback {
	var rb pacReadback
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Enabled":
			rb.Enabled = strings.EqualFold(value, "yes")
		case "URL":
			rb.URL = value
		}
	}
	return rb
}

// parseGetProxyOutput parses networksetup -getwebproxy output:
//
//	Enabled: Yes
//	Server: 127.0.0.1
//	Port: 10809
func parseGetProxyOutput(out string) proxyReadback {
	var rb proxyReadback
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Enabled":
			rb.Enabled = strings.EqualFold(value, "yes")
		case "Server":
			rb.Server = value
		case "Port":
			rb.Port = value
		}
	}
	return rb
}

func (c *darwinController) runSteps(ctx context.Context, steps [][]string) error {
	for _, args := range steps {
		if err := c.setCommand(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}
