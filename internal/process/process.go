// Package process identifies running processes: PID→path resolution,
// name-pattern matching, a running predicate and two-step termination.
// Platform specifics live behind queryProcessPath/listAllPIDs.
package process

import (
	"path/filepath"
	"strings"
	"time"

	"helmsman/internal/core"
)

// Info describes one running process.
type Info struct {
	PID  uint32 `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// List enumerates running processes with resolved executable paths.
// Processes whose path cannot be resolved (permission, zombie) are skipped.
func List() ([]Info, error) {
	pids, err := listAllPIDs()
	if err != nil {
		return nil, err
	}

	result := make([]Info, 0, len(pids))
	for _, pid := range pids {
		path, err := queryProcessPath(pid)
		if err != nil || path == "" {
			continue
		}
		result = append(result, Info{
			PID:  pid,
			Name: filepath.Base(path),
			Path: path,
		})
	}
	return result, nil
}

// MatchPattern checks if an executable path matches a rule pattern.
//
// Pattern types:
//   - "Telegram"        → substring match in exe name (case-insensitive)
//   - "firefox"         → exact or substring exe name match
//   - "/Applications/*" → directory prefix match
func MatchPattern(exePath, pattern string) bool {
	if pattern == "" || exePath == "" {
		return false
	}

	exeLower := strings.ToLower(exePath)
	patternLower := strings.ToLower(pattern)

	// Directory pattern: ends with /* (or \* for foreign paths).
	if strings.HasSuffix(pattern, `/*`) || strings.HasSuffix(pattern, `\*`) {
		dir := patternLower[:len(patternLower)-2]
		if len(exeLower) > len(dir) && strings.HasPrefix(exeLower, dir) {
			c := exeLower[len(dir)]
			return c == '/' || c == '\\'
		}
		return false
	}

	// Pattern with a path separator: full path glob.
	if strings.ContainsAny(pattern, `\/`) {
		matched, _ := filepath.Match(patternLower, exeLower)
		return matched
	}

	baseLower := filepath.Base(exeLower)
	if baseLower == patternLower {
		return true
	}
	return strings.Contains(baseLower, patternLower)
}

// AnyRunning reports whether any running process matches one of the
// patterns, returning the first match.
func AnyRunning(patterns []string) (Info, bool) {
	procs, err := List()
	if err != nil {
		core.Log.Warnf("Process", "List processes: %v", err)
		return Info{}, false
	}
	for _, p := range procs {
		for _, pattern := range patterns {
			if MatchPattern(p.Path, pattern) {
				return p, true
			}
		}
	}
	return Info{}, false
}

// TerminateMatching stops every process matching the patterns: graceful
// signal first, then a forced kill for survivors after the grace window.
// Returns the number of processes signalled.
func TerminateMatching(patterns []string, grace time.Duration) int {
	procs, err := List()
	if err != nil {
		core.Log.Warnf("Process", "List processes: %v", err)
		return 0
	}

	var targets []Info
	for _, p := range procs {
		for _, pattern := range patterns {
			if MatchPattern(p.Path, pattern) {
				targets = append(targets, p)
				break
			}
		}
	}
	if len(targets) == 0 {
		return 0
	}

	for _, t := range targets {
		core.Log.Infof("Process", "Terminating %s (pid=%d)", t.Name, t.PID)
		if err := signalTerm(t.PID); err != nil {
			core.Log.Debugf("Process", "SIGTERM pid=%d: %v", t.PID, err)
		}
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !anyAlive(targets) {
			return len(targets)
		}
		time.Sleep(200 * time.Millisecond)
	}

	for _, t := range targets {
		if alive(t.PID) {
			core.Log.Warnf("Process", "Force killing %s (pid=%d)", t.Name, t.PID)
			_ = signalKill(t.PID)
		}
	}
	return len(targets)
}

func anyAlive(targets []Info) bool {
	for _, t := range targets {
		if alive(t.PID) {
			return true
		}
	}
	return false
}
