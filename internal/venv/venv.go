// Package venv creates, activates, and destroys per-app isolated Python (and
// optionally Node) environments rooted in the platform cache area. An
// environment is never activated by sourcing its "activate" script; callers
// get a shell.VenvActivation describing the PATH prefix and interpreter
// variables to inject instead, matching the Shell Runner's contract.
package venv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/shell"
)

// Kind is the interpreter family an environment was created for.
type Kind string

const (
	KindPython Kind = "python"
	KindNode   Kind = "node"
)

// Handle is the opaque, persisted reference stored on an AppRecord: a path
// plus the interpreter kind needed to reconstruct an Activation later
// without re-probing the filesystem.
type Handle struct {
	Kind Kind
	Root string // e.g. <platformRoot>/apps/<appId>/env or .../env.nodeenv
}

// Manager creates and destroys environments under a single root directory
// (normally the app's install root, resolved by the Path Mapper before
// reaching here).
type Manager struct{}

func New() *Manager {
	return &Manager{}
}

// Create builds a fresh environment of kind at root, progress is reported
// on progress (may be nil) as step-progress style fractional events while a
// pip/npm install that can take minutes runs; the fraction is a heuristic
// derived from the number of entries created directly under root, capped
// at 0.95, and Create reports no completion event of its own.
func (m *Manager) Create(ctx context.Context, root string, kind Kind, progress func(fraction float64)) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(root), 0o750); err != nil {
		return nil, orcherr.Wrap(orcherr.KindVenvFailed, "failed to create venv parent directory", err)
	}

	var lines []string
	switch kind {
	case KindPython:
		lines = []string{fmt.Sprintf("python3 -m venv %q", root)}
	case KindNode:
		lines = []string{fmt.Sprintf("mkdir -p %q", root)}
	default:
		return nil, orcherr.New(orcherr.KindVenvFailed, "unknown venv kind").WithDetail(string(kind))
	}

	stop := watchProgress(root, progress)
	defer stop()

	if _, err := shell.RunForeground(ctx, shell.Command{Lines: lines}); err != nil {
		return nil, orcherr.Wrap(orcherr.KindVenvFailed, "failed to create virtual environment", err)
	}
	return &Handle{Kind: kind, Root: root}, nil
}

// Activation builds the shell.VenvActivation for h: PATH prefixed with the
// environment's binary directory, plus VIRTUAL_ENV for Python environments.
func (h *Handle) Activation() *shell.VenvActivation {
	bin := filepath.Join(h.Root, defaultBinDir(h.Kind))
	extra := map[string]string{}
	if h.Kind == KindPython {
		extra["VIRTUAL_ENV"] = h.Root
	}
	return &shell.VenvActivation{BinDir: bin, Extra: extra}
}

// Destroy removes the environment tree entirely. Best-effort: a partially
// removed environment is not an error the caller needs to retry on, since
// uninstall removes the whole app install root immediately afterward.
func (h *Handle) Destroy() error {
	if h.Root == "" {
		return nil
	}
	if err := os.RemoveAll(h.Root); err != nil {
		return orcherr.Wrap(orcherr.KindVenvFailed, "failed to remove virtual environment", err)
	}
	return nil
}

func defaultBinDir(kind Kind) string {
	if kind == KindNode {
		return "node_modules/.bin"
	}
	return "bin"
}

// watchProgress fsnotify-watches root for file creation, reporting a
// saturating fraction via progress. It never gates correctness: if the
// watcher fails to start, Create proceeds without progress events.
func watchProgress(root string, progress func(float64)) func() {
	if progress == nil {
		return func() {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return func() {}
	}
	_ = os.MkdirAll(root, 0o750)
	if err := watcher.Add(root); err != nil {
		_ = watcher.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		seen := 0
		const plateau = 40 // heuristic: most venvs place well under this many top-level entries
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				seen++
				frac := float64(seen) / plateau
				if frac > 0.95 {
					frac = 0.95 // this heuristic never reports completion
				}
				progress(frac)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
		time.Sleep(0) // yield so the goroutine observes done before Create returns
	}
}
