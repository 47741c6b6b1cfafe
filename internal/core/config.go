package core

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// DaemonConfig is the YAML configuration for the helmsman daemon itself
// (as opposed to the user Settings record, which lives in the store).
type DaemonConfig struct {
	// APIListen is the loopback address the boundary API binds to.
	APIListen string `yaml:"api_listen,omitempty"`
	// DataDir holds the store files, the per-run core config and logs.
	DataDir string `yaml:"data_dir,omitempty"`
	// CoreBinary is the path to the proxy-core executable.
	CoreBinary string `yaml:"core_binary,omitempty"`
	// PACPort is the local port the PAC script is published on.
	PACPort uint16 `yaml:"pac_port,omitempty"`

	Log LogConfig `yaml:"log,omitempty"`
}

// DefaultDaemonConfig returns the configuration used when no file exists.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		APIListen:  "127.0.0.1:18040",
		DataDir:    defaultDataDir(),
		CoreBinary: defaultCoreBinary(),
		PACPort:    18041,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".helmsman")
}

func defaultCoreBinary() string {
	exe, err := os.Executable()
	if err != nil {
		return "xray"
	}
	name := "xray"
	if runtime.GOOS == "windows" {
		name = "xray.exe"
	}
	return filepath.Join(filepath.Dir(exe), name)
}

// LoadDaemonConfig reads the YAML config file, filling defaults for any
// omitted fields. A missing file yields the defaults.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	if cfg.APIListen == "" {
		cfg.APIListen = "127.0.0.1:18040"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.CoreBinary == "" {
		cfg.CoreBinary = defaultCoreBinary()
	}
	if cfg.PACPort == 0 {
		cfg.PACPort = 18041
	}
	return cfg, nil
}
