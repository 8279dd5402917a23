package lifecycle

import (
	"context"
	"path/filepath"
	"time"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
	"github.com/loykin/orchestrator/internal/supervisor"
)

func (m *Manager) logDir() string {
	return filepath.Join(m.profile.Root(), "logs")
}

// Start resolves and runs appID's start script, per spec.md §4.2: requires
// installed or stopped, transitions through starting, and on a daemon
// script resolves once the Server Detector observes readiness (the
// StartDaemon hook blocks the engine's step until then), declaring the app
// running and then, when a local port was detected and tunnel preferences
// are configured, opening a tunnel.
func (m *Manager) Start(ctx context.Context, appID string, args map[string]string) (*registry.AppRecord, error) {
	unlock := m.lockApp(appID)
	defer unlock()

	rec, err := m.reg.Get(appID)
	if err != nil {
		return nil, err
	}
	if rec.State != registry.StateInstalled && rec.State != registry.StateStopped {
		return nil, orcherr.New(orcherr.KindIllegalState, "start: app is not installed or stopped").WithDetail(string(rec.State))
	}
	if err := m.transition(ctx, rec, registry.StateStarting, ""); err != nil {
		return nil, err
	}

	doc, _, err := loadStartScript(pathmapFor(rec, m.sharedRoot), rec.Descriptor.InstallerHint)
	if err != nil {
		if fErr := m.fail(ctx, rec, registry.StateError, err); fErr != nil {
			return nil, fErr
		}
		return nil, err
	}

	hc := &hookContext{m: m, appID: appID, paths: pathmapFor(rec, m.sharedRoot), rec: rec}
	engine := m.engineFor(hc)
	frame := m.newFrame(doc, rec, args)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	if _, err := engine.Run(startCtx, frame); err != nil {
		if fErr := m.fail(ctx, rec, registry.StateError, err); fErr != nil {
			return nil, fErr
		}
		return nil, err
	}
	rec.LocalVars = engine.PersistentLocals(appID)

	// Reload: the StartDaemon hook (m.onDaemonReady) may have persisted
	// process/port fields onto the record mid-run, from inside the same
	// operation but through the registry directly.
	rec, err = m.reg.Get(appID)
	if err != nil {
		return nil, err
	}

	if !doc.Daemon {
		// A non-daemon start script has already run to completion; there
		// is nothing left for the Process Supervisor to own.
		if err := m.transition(ctx, rec, registry.StateStopped, "non-daemon start script completed"); err != nil {
			return nil, err
		}
		return rec, nil
	}

	if err := m.transition(ctx, rec, registry.StateRunning, ""); err != nil {
		return nil, err
	}

	if rec.LocalPort != nil && m.tunnels != nil && len(m.tunnelPreferences) > 0 {
		publicURL, err := m.tunnels.Open(ctx, appID, *rec.LocalPort, m.tunnelPreferences)
		if err == nil {
			provider, _ := m.tunnels.Info(appID)
			rec.Tunnel = &registry.TunnelRecord{
				Provider:  provider,
				LocalPort: *rec.LocalPort,
				PublicURL: publicURL,
				CreatedAt: now(),
				Health:    "healthy",
			}
			if pErr := m.reg.Put(ctx, rec); pErr != nil {
				return nil, pErr
			}
			m.bus.publish(Event{Type: EventTunnelOpened, AppID: appID, Data: map[string]string{"publicUrl": publicURL, "provider": provider}, At: now()})
		}
		// A failed tunnel open degrades gracefully: the app is still
		// running and reachable on its local port, just without a public
		// URL, matching spec.md's "not the core app lifecycle" framing
		// for tunnel-open-failed.
	}

	return rec, nil
}

// onDaemonReady persists the detected port and process handle onto
// appID's record the moment the Server Detector confirms readiness,
// independent of the operation-level app lock Start already holds (same
// goroutine, so re-acquiring it would deadlock); the registry's own
// internal lock still serializes the write against concurrent readers.
func (m *Manager) onDaemonReady(appID string, port int, h *supervisor.Handle) {
	rec, err := m.reg.Get(appID)
	if err != nil {
		return
	}
	p := port
	rec.LocalPort = &p
	rec.Process = &registry.ProcessHandle{
		PID:       h.PID(),
		PGID:      h.PGID(),
		OutputLog: filepath.Join(m.logDir(), appID+".log"),
	}
	_ = m.reg.Put(context.Background(), rec)
}

// onProcessExit is the Process Supervisor's onExit callback: it fires
// whenever a running app's adopted process exits on its own, outside a
// Stop call, and drives the corresponding running -> stopping -> stopped
// (clean exit) or running -> error (crash) transition.
func (m *Manager) onProcessExit(appID string, exitErr error) {
	unlock := m.lockApp(appID)
	defer unlock()

	rec, err := m.reg.Get(appID)
	if err != nil || rec.State != registry.StateRunning {
		return
	}
	ctx := context.Background()
	if rec.Tunnel != nil {
		_ = m.tunnels.Close(ctx, appID)
		rec.Tunnel = nil
	}
	rec.Process = nil
	rec.LocalPort = nil

	if exitErr != nil {
		_ = m.fail(ctx, rec, registry.StateError, orcherr.Wrap(orcherr.KindInternal, "supervised process exited unexpectedly", exitErr))
		return
	}
	if err := m.transition(ctx, rec, registry.StateStopping, "process exited"); err != nil {
		return
	}
	_ = m.transition(ctx, rec, registry.StateStopped, "")
}
