//go:build darwin

package sysproxy

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const listOutput = `An asterisk (*) denotes that a network service is disabled.
Wi-Fi
*Bluetooth PAN
Thunderbolt Bridge
`

// fakeRunner records every invocation and replies from a script keyed by
// the command's first argument.
type fakeRunner struct {
	calls   [][]string
	replies map[string]struct {
		out string
		err error
	}
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))

	if name == "networksetup" && args[0] == "-listallnetworkservices" {
		return listOutput, nil
	}
	if reply, ok := f.replies[args[0]]; ok {
		return reply.out, reply.err
	}
	return "", nil
}

func (f *fakeRunner) callsFor(subcommand string) [][]string {
	var out [][]string
	for _, c := range f.calls {
		if len(c) > 1 && c[1] == subcommand {
			out = append(out, c)
		}
	}
	return out
}

func newTestController() (*darwinController, *fakeRunner) {
	f := &fakeRunner{replies: map[string]struct {
		out string
		err error
	}{}}
	return &darwinController{run: f.run}, f
}

func TestListServicesSkipsBannerAndDisabled(t *testing.T) {
	c, _ := newTestController()
	services, err := c.listServices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Wi-Fi", "Thunderbolt Bridge"}
	if len(services) != len(want) {
		t.Fatalf("got %v", services)
	}
	for i := range want {
		if services[i] != want[i] {
			t.Errorf("service %d: got %q want %q", i, services[i], want[i])
		}
	}
}

func TestEnableGlobalConfiguresAllServices(t *testing.T) {
	c, f := newTestController()
	if err := c.EnableGlobal(10808, 10809); err != nil {
		t.Fatal(err)
	}

	socks := f.callsFor("-setsocksfirewallproxy")
	if len(socks) != 2 {
		t.Fatalf("expected socks proxy set on 2 services, got %d", len(socks))
	}
	for _, call := range socks {
		if call[3] != "127.0.0.1" || call[4] != "10808" {
			t.Errorf("unexpected socks args %v", call)
		}
	}

	if n := len(f.callsFor("-setsecurewebproxy")); n != 2 {
		t.Errorf("expected HTTPS proxy set on 2 services, got %d", n)
	}

	// The bypass list is loopback only.
	for _, call := range f.callsFor("-setproxybypassdomains") {
		if !strings.Contains(strings.Join(call, " "), "127.0.0.1 localhost") {
			t.Errorf("unexpected bypass list %v", call)
		}
	}
}

func TestEnableGlobalSurvivesPartialFailure(t *testing.T) {
	c, f := newTestController()
	failed := false
	inner := f.run
	c.run = func(ctx context.Context, name string, args ...string) (string, error) {
		// Fail every call touching the first service once.
		if len(args) > 1 && args[1] == "Wi-Fi" && !failed {
			failed = true
			return "", errors.New("boom")
		}
		return inner(ctx, name, args...)
	}

	// One service failing is absorbed as long as another succeeds.
	if err := c.EnableGlobal(1080, 8080); err != nil {
		t.Fatalf("expected success with one service down, got %v", err)
	}
}

func TestEnableGlobalFailsWhenAllServicesFail(t *testing.T) {
	c, f := newTestController()
	inner := f.run
	c.run = func(ctx context.Context, name string, args ...string) (string, error) {
		if name == "networksetup" && args[0] == "-listallnetworkservices" {
			return inner(ctx, name, args...)
		}
		return "", errors.New("boom")
	}
	if err := c.EnableGlobal(1080, 8080); err == nil {
		t.Fatal("expected error when every service fails")
	}
}

func TestPermissionFailureEscalatesViaOsascript(t *testing.T) {
	c, f := newTestController()
	inner := f.run
	c.run = func(ctx context.Context, name string, args ...string) (string, error) {
		if name == "networksetup" && args[0] == "-setautoproxyurl" {
			return "", errors.New("permission denied")
		}
		return inner(ctx, name, args...)
	}

	if err := c.EnablePAC("http://127.0.0.1:18041/proxy.pac"); err != nil {
		t.Fatalf("expected escalation to succeed, got %v", err)
	}

	escalated := false
	for _, call := range f.calls {
		if call[0] == "osascript" {
			escalated = true
			if !strings.Contains(call[2], "with administrator privileges") {
				t.Errorf("escalation script missing privilege clause: %q", call[2])
			}
		}
	}
	if !escalated {
		t.Error("expected an osascript escalation call")
	}
}

func TestDisableTurnsEverythingOff(t *testing.T) {
	c, f := newTestController()
	if err := c.Disable(); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{
		"-setsocksfirewallproxystate",
		"-setwebproxystate",
		"-setsecurewebproxystate",
		"-setautoproxystate",
	} {
		calls := f.callsFor(sub)
		if len(calls) != 2 {
			t.Errorf("%s: expected 2 calls, got %d", sub, len(calls))
			continue
		}
		for _, call := range calls {
			if call[len(call)-1] != "off" {
				t.Errorf("%s: expected off, got %v", sub, call)
			}
		}
	}
}

func TestVerify(t *testing.T) {
	c, f := newTestController()
	f.replies["-getwebproxy"] = struct {
		out string
		err error
	}{out: "Enabled: Yes\nServer: 127.0.0.1\nPort: 10809\n"}

	if err := c.Verify(10809); err != nil {
		t.Errorf("expected verify to pass: %v", err)
	}
	if err := c.Verify(9999); err == nil {
		t.Error("expected verify to fail on port mismatch")
	}

	f.replies["-getwebproxy"] = struct {
		out string
		err error
	}{out: "Enabled: No\nServer: 127.0.0.1\nPort: 10809\n"}
	if err := c.Verify(10809); err == nil {
		t.Error("expected verify to fail when disabled")
	}
}

func TestVerifyPAC(t *testing.T) {
	c, f := newTestController()
	pacURL := "http://127.0.0.1:18041/proxy.pac"
	f.replies["-getautoproxyurl"] = struct {
		out string
		err error
	}{out: "URL: " + pacURL + "\nEnabled: Yes\n"}

	if err := c.VerifyPAC(pacURL); err != nil {
		t.Errorf("expected PAC verify to pass: %v", err)
	}
	if err := c.VerifyPAC("http://127.0.0.1:9999/proxy.pac"); err == nil {
		t.Error("expected PAC verify to fail on URL mismatch")
	}

	f.replies["-getautoproxyurl"] = struct {
		out string
		err error
	}{out: "URL: " + pacURL + "\nEnabled: No\n"}
	if err := c.VerifyPAC(pacURL); err == nil {
		t.Error("expected PAC verify to fail when disabled")
	}
}

func TestParseGetProxyOutput(t *testing.T) {
	rb := parseGetProxyOutput("Enabled: Yes\nServer: 10.0.0.1\nPort: 8080\nAuthenticated Proxy Enabled: 0\n")
	want := proxyReadback{Enabled: true, Server: "10.0.0.1", Port: "8080"}
	if rb != want {
		t.Errorf("got %+v, want %+v", rb, want)
	}
}

func TestShellQuoteAll(t *testing.T) {
	got := shellQuoteAll([]string{"-setwebproxy", "Wi-Fi's Net", "127.0.0.1"})
	if !strings.Contains(got, `'Wi-Fi'\''s Net'`) {
		t.Errorf("single quote not escaped: %s", got)
	}
}
