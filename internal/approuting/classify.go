package approuting

import (
	"path/filepath"
	"strings"

	"helmsman/internal/core"
)

// enginePatterns is a closed allowlist mapping name substrings to engine
// families. It is a heuristic: rebranded or unlisted builds fall through
// to the generic path, which is best-effort, never an error.
var enginePatterns = []struct {
	substr string
	engine core.AppEngine
}{
	{"chrome", core.EngineChromium},
	{"chromium", core.EngineChromium},
	{"brave", core.EngineChromium},
	{"edge", core.EngineChromium},
	{"vivaldi", core.EngineChromium},
	{"opera", core.EngineChromium},
	{"yandex", core.EngineChromium},
	{"arc", core.EngineChromium},
	{"firefox", core.EngineFirefox},
	{"librewolf", core.EngineFirefox},
	{"waterfox", core.EngineFirefox},
	{"telegram", core.EngineTelegram},
	{"safari", core.EngineSafari},
}

// Classify derives the routing capability for an application by
// pattern-matching its name.
func Classify(appPath string) core.AppRoutingCapability {
	name := appDisplayName(appPath)
	engine := classifyEngine(name)

	cap := core.AppRoutingCapability{
		AppPath: appPath,
		AppName: name,
		Engine:  engine,
	}

	switch engine {
	case core.EngineChromium:
		cap.CanForceProxy = true
		cap.CanForceDirect = true
		cap.Reason = "chromium engine honors --proxy-server and --proxy-bypass-list flags"
	case core.EngineFirefox:
		cap.CanForceProxy = true
		cap.CanForceDirect = true
		cap.Reason = "gecko engine honors proxy environment variables"
	case core.EngineTelegram:
		cap.CanForceProxy = true
		cap.CanForceDirect = true
		cap.Reason = "telegram accepts tg:// proxy URLs and environment variables"
	case core.EngineSafari:
		cap.CanForceProxy = false
		cap.CanForceDirect = false
		cap.Reason = "safari always follows the OS proxy; per-app override is equivalent to toggling the global proxy"
	default:
		cap.CanForceProxy = true
		cap.CanForceDirect = true
		cap.Reason = "generic application; proxy environment variables applied best-effort"
	}
	return cap
}

func classifyEngine(name string) core.AppEngine {
	lower := strings.ToLower(name)
	for _, p := range enginePatterns {
		if strings.Contains(lower, p.substr) {
			return p.engine
		}
	}
	return core.EngineGeneric
}

// appDisplayName extracts the app name from its path, dropping a .app
// bundle suffix when present.
func appDisplayName(appPath string) string {
	base := filepath.Base(appPath)
	return strings.TrimSuffix(base, ".app")
}
