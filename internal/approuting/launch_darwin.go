//go:build darwin

package approuting

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"helmsman/internal/core"
)

// appCandidates is a fixed list of commonly installed applications checked
// in addition to the /Applications scan.
var appCandidates = []string{
	"/Applications/Google Chrome.app",
	"/Applications/Chromium.app",
	"/Applications/Brave Browser.app",
	"/Applications/Microsoft Edge.app",
	"/Applications/Vivaldi.app",
	"/Applications/Opera.app",
	"/Applications/Firefox.app",
	"/Applications/Telegram.app",
	"/Applications/Safari.app",
	"/System/Applications/Safari.app",
	"/Applications/Discord.app",
	"/Applications/Spotify.app",
	"/Applications/Slack.app",
}

func discoverApps() []core.InstalledApp {
	var apps []core.InstalledApp

	for _, path := range appCandidates {
		if _, err := os.Stat(path); err == nil {
			apps = append(apps, core.InstalledApp{Name: appDisplayName(path), Path: path})
		}
	}

	dirs := []string{"/Applications"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "Applications"))
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".app") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			apps = append(apps, core.InstalledApp{Name: appDisplayName(path), Path: path})
		}
	}
	return apps
}

// resolveExecutable maps an .app bundle to its main binary under
// Contents/MacOS. Non-bundle paths pass through.
func resolveExecutable(appPath string) (string, error) {
	if !strings.HasSuffix(appPath, ".app") {
		return appPath, nil
	}

	macOSDir := filepath.Join(appPath, "Contents", "MacOS")
	entries, err := os.ReadDir(macOSDir)
	if err != nil {
		return "", fmt.Errorf("read bundle %q: %w", appPath, err)
	}

	// Prefer the binary named after the bundle, fall back to the first
	// entry (bundles with a renamed main binary).
	want := appDisplayName(appPath)
	var first string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(macOSDir, e.Name())
		if first == "" {
			first = p
		}
		if e.Name() == want {
			return p, nil
		}
	}
	if first == "" {
		return "", fmt.Errorf("bundle %q has no executable", appPath)
	}
	return first, nil
}

// processPatterns returns the identifiers used to find and stop running
// instances of the application, covering both the bundle path prefix and
// the executable name.
func processPatterns(appPath string) []string {
	patterns := []string{appPath + "/*"}
	if exe, err := resolveExecutable(appPath); err == nil {
		patterns = append(patterns, filepath.Base(exe))
	} else {
		patterns = append(patterns, appDisplayName(appPath))
	}
	return patterns
}

// routingProcessNames returns the identifiers fed to the core's process
// routing rule. That field matches process names and full executable
// paths exactly, so no glob entries belong here.
func routingProcessNames(appPath string) []string {
	if exe, err := resolveExecutable(appPath); err == nil {
		return []string{filepath.Base(exe), exe}
	}
	return []string{appDisplayName(appPath)}
}

// proxyEnv is the environment applied to proxied generic/gecko apps.
func proxyEnv(socksPort, httpPort uint16) []string {
	socks := fmt.Sprintf("socks5://127.0.0.1:%d", socksPort)
	httpProxy := fmt.Sprintf("http://127.0.0.1:%d", httpPort)
	return []string{
		"ALL_PROXY=" + socks,
		"all_proxy=" + socks,
		"HTTP_PROXY=" + httpProxy,
		"http_proxy=" + httpProxy,
		"HTTPS_PROXY=" + httpProxy,
		"https_proxy=" + httpProxy,
		"NO_PROXY=localhost,127.0.0.1",
	}
}

// directEnv clears every proxy variable an inherited environment might
// carry.
func directEnv() []string {
	return []string{
		"ALL_PROXY=", "all_proxy=",
		"HTTP_PROXY=", "http_proxy=",
		"HTTPS_PROXY=", "https_proxy=",
		"NO_PROXY=*", "no_proxy=*",
	}
}

// launchProxied starts the application forced onto the proxy path, using
// the mechanism its engine family supports.
func launchProxied(appPath string, socksPort, httpPort uint16) error {
	cap := Classify(appPath)

	switch cap.Engine {
	case core.EngineChromium:
		exe, err := resolveExecutable(appPath)
		if err != nil {
			return err
		}
		return startDetached(exe, []string{
			fmt.Sprintf("--proxy-server=socks5://127.0.0.1:%d", socksPort),
			"--proxy-bypass-list=<-loopback>",
		}, nil)

	case core.EngineTelegram:
		// Bootstrap via the app's own proxy-URL scheme, then make sure an
		// instance is up with the proxy environment as well.
		tgURL := fmt.Sprintf("tg://socks?server=127.0.0.1&port=%d", socksPort)
		if err := exec.Command("open", tgURL).Run(); err != nil {
			core.Log.Warnf("AppRoute", "tg:// bootstrap failed: %v", err)
		}
		exe, err := resolveExecutable(appPath)
		if err != nil {
			return err
		}
		return startDetached(exe, nil, proxyEnv(socksPort, httpPort))

	case core.EngineSafari:
		// No independent override: honors whatever the OS proxy says.
		core.Log.Warnf("AppRoute", "%s follows the OS proxy; launching unmodified", appPath)
		return exec.Command("open", "-a", appPath).Run()

	default: // firefox family and generic
		exe, err := resolveExecutable(appPath)
		if err != nil {
			return err
		}
		return startDetached(exe, nil, proxyEnv(socksPort, httpPort))
	}
}

// launchDirect starts the application forced onto the direct path.
func launchDirect(appPath string) error {
	cap := Classify(appPath)

	switch cap.Engine {
	case core.EngineChromium:
		exe, err := resolveExecutable(appPath)
		if err != nil {
			return err
		}
		return startDetached(exe, []string{"--no-proxy-server"}, nil)

	case core.EngineSafari:
		core.Log.Warnf("AppRoute", "%s follows the OS proxy; launching unmodified", appPath)
		return exec.Command("open", "-a", appPath).Run()

	default:
		exe, err := resolveExecutable(appPath)
		if err != nil {
			return err
		}
		return startDetached(exe, nil, directEnv())
	}
}

// startDetached launches the executable decoupled from the daemon: the
// app must outlive a daemon restart.
func startDetached(exe string, args, extraEnv []string) error {
	cmd := exec.Command(exe, args...)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap in the background so the child never zombies.
	go func() { _ = cmd.Wait() }()
	return nil
}
