//go:build darwin

package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const agentLabel = "com.helmsman.daemon"

var agentPlistTmpl = template.Must(template.New("agent").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.Binary}}</string>
		<string>run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<false/>
</dict>
</plist>
`))

type agentPlistData struct {
	Label  string
	Binary string
}

func agentPlistPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", agentLabel+".plist")
}

// IsEnabled reports whether the login LaunchAgent is installed.
func IsEnabled() (bool, error) {
	_, err := os.Stat(agentPlistPath())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetEnabled installs or removes the login LaunchAgent for the daemon.
// binaryPath defaults to the current executable.
func SetEnabled(enabled bool, binaryPath string) error {
	plistPath := agentPlistPath()

	if !enabled {
		err := os.Remove(plistPath)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove agent plist: %w", err)
		}
		return nil
	}

	if binaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		binaryPath = exe
	}

	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return fmt.Errorf("create LaunchAgents dir: %w", err)
	}

	f, err := os.Create(plistPath)
	if err != nil {
		return fmt.Errorf("create agent plist: %w", err)
	}
	defer f.Close()

	if err := agentPlistTmpl.Execute(f, agentPlistData{Label: agentLabel, Binary: binaryPath}); err != nil {
		return fmt.Errorf("write agent plist: %w", err)
	}
	return nil
}
