package approuting

import (
	"testing"

	"helmsman/internal/core"
)

func TestClassifyEngines(t *testing.T) {
	cases := []struct {
		path   string
		engine core.AppEngine
	}{
		{"/Applications/Google Chrome.app", core.EngineChromium},
		{"/Applications/Brave Browser.app", core.EngineChromium},
		{"/Applications/Microsoft Edge.app", core.EngineChromium},
		{"/Applications/Arc.app", core.EngineChromium},
		{"/Applications/Firefox.app", core.EngineFirefox},
		{"/Applications/LibreWolf.app", core.EngineFirefox},
		{"/Applications/Telegram.app", core.EngineTelegram},
		{"/Applications/Safari.app", core.EngineSafari},
		{"/Applications/Spotify.app", core.EngineGeneric},
		{"/usr/local/bin/some-tool", core.EngineGeneric},
	}

	for _, tc := range cases {
		got := Classify(tc.path)
		if got.Engine != tc.engine {
			t.Errorf("%s: got engine %q, want %q", tc.path, got.Engine, tc.engine)
		}
	}
}

func TestClassifyCapabilities(t *testing.T) {
	chrome := Classify("/Applications/Google Chrome.app")
	if !chrome.CanForceProxy || !chrome.CanForceDirect {
		t.Error("chromium apps must support both overrides")
	}
	if chrome.AppName != "Google Chrome" {
		t.Errorf("app name not derived from bundle: %q", chrome.AppName)
	}

	// Safari follows the OS proxy and can be forced neither way.
	safari := Classify("/Applications/Safari.app")
	if safari.CanForceProxy || safari.CanForceDirect {
		t.Error("safari must report no per-app override capability")
	}
	if safari.Reason == "" {
		t.Error("capability verdicts must carry a reason")
	}

	generic := Classify("/Applications/Spotify.app")
	if !generic.CanForceProxy {
		t.Error("generic apps get best-effort environment overrides")
	}
}

func TestAppDisplayName(t *testing.T) {
	cases := map[string]string{
		"/Applications/Google Chrome.app": "Google Chrome",
		"/usr/local/bin/xray":             "xray",
		"Telegram.app":                    "Telegram",
	}
	for path, want := range cases {
		if got := appDisplayName(path); got != want {
			t.Errorf("%s: got %q want %q", path, got, want)
		}
	}
}
