package xcore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"helmsman/internal/core"
)

// Runner supervises one proxy-core subprocess. It is not reusable: create
// a fresh Runner per spawn.
type Runner struct {
	binPath    string
	configPath string
	// onExit fires exactly once when the process exits, with the Wait
	// error (nil on clean exit). Set before Start.
	onExit func(err error)

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	stopped bool
}

// NewRunner prepares a supervisor for the given binary and config file.
func NewRunner(binPath, configPath string, onExit func(err error)) *Runner {
	return &Runner{
		binPath:    binPath,
		configPath: configPath,
		onExit:     onExit,
		done:       make(chan struct{}),
	}
}

// CheckBinary verifies the proxy-core executable exists at path.
func CheckBinary(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: expected at %q (place the xray executable there or set core_binary)", core.ErrCoreMissing, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %q is a directory", core.ErrCoreMissing, path)
	}
	return nil
}

// Start spawns the subprocess and begins watching for exit. The process's
// stdout/stderr are consumed for diagnostic logging only — control travels
// exclusively via OS signals and TCP probing.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return fmt.Errorf("runner already started")
	}

	cmd := exec.Command(r.binPath, "run", "-c", r.configPath)
	cmd.Dir = filepath.Dir(r.configPath)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", core.ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %v", core.ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrSpawnFailed, err)
	}
	r.cmd = cmd

	go pipeToLog("core/out", stdout)
	go pipeToLog("core/err", stderr)
	go r.watch()

	core.Log.Infof("XCore", "Spawned proxy-core pid=%d (%s)", cmd.Process.Pid, r.binPath)
	return nil
}

func (r *Runner) watch() {
	err := r.cmd.Wait()
	close(r.done)
	if r.onExit != nil {
		r.onExit(err)
	}
}

// Alive reports whether the subprocess is still running.
func (r *Runner) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// PID returns the subprocess pid, or 0 before Start.
func (r *Runner) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// Stop terminates the subprocess with two-step escalation: graceful signal,
// bounded wait, forced kill. Idempotent.
func (r *Runner) Stop(grace time.Duration) {
	r.mu.Lock()
	if r.cmd == nil || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	proc := r.cmd.Process
	r.mu.Unlock()

	select {
	case <-r.done:
		return // already exited
	default:
	}

	if err := terminateGracefully(proc); err != nil {
		core.Log.Debugf("XCore", "Graceful terminate pid=%d: %v", proc.Pid, err)
	}

	select {
	case <-r.done:
		core.Log.Infof("XCore", "Proxy-core pid=%d exited gracefully", proc.Pid)
	case <-time.After(grace):
		core.Log.Warnf("XCore", "Proxy-core pid=%d did not exit within %s, killing", proc.Pid, grace)
		_ = proc.Kill()
		<-r.done
	}
}

// Done exposes the exit notification channel.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func pipeToLog(tag string, rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		core.Log.Debugf("XCore", "[%s] %s", tag, scanner.Text())
	}
}

// ─── Stale process handling ─────────────────────────────────────────

// pidFileName marks the pid of the last spawned core in the run directory.
const pidFileName = "core.pid"

// WritePIDFile records the runner's pid for stale-kill on the next run.
func (r *Runner) WritePIDFile(dir string) {
	pid := r.PID()
	if pid == 0 {
		return
	}
	path := filepath.Join(dir, pidFileName)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		core.Log.Warnf("XCore", "Write pid file: %v", err)
	}
}

// KillStale terminates any proxy-core left over from a previous run,
// identified via the pid file. Best-effort: errors are logged, never
// returned.
func KillStale(dir string) {
	path := filepath.Join(dir, pidFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	defer os.Remove(path)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 1 {
		return
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	if !processAlive(proc) {
		return
	}

	core.Log.Warnf("XCore", "Killing stale proxy-core pid=%d from previous run", pid)
	_ = terminateGracefully(proc)
	time.Sleep(500 * time.Millisecond)
	if processAlive(proc) {
		_ = proc.Kill()
	}
}
