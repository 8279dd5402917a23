// Package supervisor adopts a *shell.DaemonProcess handed off by the
// Script Engine's shell.run step and owns its exit detection, graceful
// stop, and kill — the process-group lifetime handling the teacher's
// internal/process.Process applies to a supervisor-managed child.
package supervisor

import (
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/orchestrator/internal/logger"
	"github.com/loykin/orchestrator/internal/shell"
)

// tailCapacity bounds the in-memory ring buffer per adopted process, per
// spec.md §4.3's "ring-buffered tail (bounded memory)" requirement.
const tailCapacity = 32 * 1024

// Handle is a supervised daemon process: one app's adopted shell.run
// invocation. Multiple Handles may exist per app only transiently during
// a restart; steady state is one per running app.
type Handle struct {
	appID string
	cmd   *exec.Cmd
	pid   int
	pgid  int

	mu         sync.Mutex
	exited     bool
	exitErr    error
	stopping   bool
	waitDone   chan struct{}
	monitoring bool

	tailMu sync.Mutex
	tail   []byte
}

// Supervisor tracks every adopted Handle by app id.
type Supervisor struct {
	mu      sync.Mutex
	handles map[string]*Handle
	onExit  func(appID string, err error)
}

// New creates a Supervisor. onExit, if non-nil, is called from the
// monitoring goroutine whenever an adopted process exits on its own
// (not via Stop/Kill) — the Lifecycle Manager wires this to drive the
// Running -> Error (or Running -> Stopped, for a clean exit) transition.
func New(onExit func(appID string, err error)) *Supervisor {
	return &Supervisor{handles: make(map[string]*Handle), onExit: onExit}
}

// Adopt takes ownership of d, starting a monitor goroutine that reaps the
// process and reports its exit, plus a drain goroutine that multiplexes
// every remaining line from d.Lines() into Handle's bounded tail and, if
// logDir is non-empty, appends it to "<logDir>/<appId>.log" — the
// Process Supervisor's own log ownership (spec.md §6.2's
// logs/<appId>.log), independent of whatever already consumed Lines()
// for readiness detection before adoption.
func (s *Supervisor) Adopt(appID string, d *shell.DaemonProcess, logDir string) *Handle {
	h := &Handle{
		appID:    appID,
		cmd:      d.Cmd,
		pid:      d.PID,
		pgid:     d.PGID,
		waitDone: make(chan struct{}),
	}
	s.mu.Lock()
	s.handles[appID] = h
	s.mu.Unlock()

	h.monitoring = true
	go s.monitor(appID, h)
	go h.drain(d, logDir)
	return h
}

// drain consumes every remaining line from d.Lines() until the channel
// closes, appending each to the bounded tail and, if logDir is set, to
// the app's rotating log file (logDir/<appId>.log, rolled by
// internal/logger the same way the teacher rotates a managed process's
// captured output). It never blocks process exit: the monitor goroutine
// reaps via cmd.Wait() independently.
func (h *Handle) drain(d *shell.DaemonProcess, logDir string) {
	var w io.WriteCloser
	if logDir != "" {
		// stdout and stderr are already interleaved by drain's own
		// consumption of d.Lines(), so both point at the same rotated
		// file rather than the split *.stdout.log/*.stderr.log pair
		// Config.Writers produces when only Dir is set.
		cfg := logger.Config{StdoutPath: filepath.Join(logDir, h.appID+".log")}
		w, _, _ = cfg.Writers(h.appID)
	}
	if w != nil {
		defer func() { _ = w.Close() }()
	}
	for line := range d.Lines() {
		text := line.Text + "\n"
		h.tailMu.Lock()
		h.tail = append(h.tail, text...)
		if len(h.tail) > tailCapacity {
			h.tail = h.tail[len(h.tail)-tailCapacity:]
		}
		h.tailMu.Unlock()
		if w != nil {
			_, _ = w.Write([]byte(text))
		}
	}
}

// Tail returns the bounded in-memory tail of everything the process has
// written to stdout/stderr since being adopted.
func (h *Handle) Tail() string {
	h.tailMu.Lock()
	defer h.tailMu.Unlock()
	return string(h.tail)
}

func (s *Supervisor) monitor(appID string, h *Handle) {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exited = true
	h.exitErr = err
	stopping := h.stopping
	h.mu.Unlock()
	close(h.waitDone)

	s.mu.Lock()
	delete(s.handles, appID)
	s.mu.Unlock()

	if s.onExit != nil && !stopping {
		s.onExit(appID, err)
	}
}

// Get returns the Handle adopted for appID, or nil if none is running.
func (s *Supervisor) Get(appID string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[appID]
}

// IsRunning reports whether appID has a live adopted process.
func (s *Supervisor) IsRunning(appID string) bool {
	h := s.Get(appID)
	if h == nil {
		return false
	}
	return !h.Exited()
}

// Exited reports whether the process has already been reaped.
func (h *Handle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// PID and PGID describe the adopted process, persisted into the
// registry's ProcessHandle so a restart of the orchestrator itself can
// at least report what it last knew, even though it can no longer
// supervise a process from a prior run.
func (h *Handle) PID() int  { return h.pid }
func (h *Handle) PGID() int { return h.pgid }

// Stop sends SIGTERM to the process group and waits up to wait for the
// monitor goroutine to reap it, escalating to SIGKILL on timeout.
func (h *Handle) Stop(wait time.Duration) error {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return h.exitErr
	}
	h.stopping = true
	h.mu.Unlock()

	_ = syscall.Kill(-h.pgid, syscall.SIGTERM)

	select {
	case <-h.waitDone:
	case <-time.After(wait):
		_ = syscall.Kill(-h.pgid, syscall.SIGKILL)
		select {
		case <-h.waitDone:
		case <-time.After(200 * time.Millisecond):
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Kill sends SIGKILL to the process group immediately.
func (h *Handle) Kill() error {
	h.mu.Lock()
	h.stopping = true
	h.mu.Unlock()
	return syscall.Kill(-h.pgid, syscall.SIGKILL)
}
