package lifecycle

import (
	"context"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
)

// Stop requires running or starting, per spec.md §4.2: releases any
// tunnel first, then signals the process group and reaps it. Idempotent
// once the app is already stopped.
func (m *Manager) Stop(ctx context.Context, appID string) error {
	unlock := m.lockApp(appID)
	defer unlock()

	rec, err := m.reg.Get(appID)
	if err != nil {
		return err
	}
	if rec.State == registry.StateStopped {
		return nil
	}
	if rec.State != registry.StateRunning && rec.State != registry.StateStarting {
		return orcherr.New(orcherr.KindIllegalState, "stop: app is not running or starting").WithDetail(string(rec.State))
	}
	if err := m.transition(ctx, rec, registry.StateStopping, ""); err != nil {
		return err
	}

	if rec.Tunnel != nil && m.tunnels != nil {
		_ = m.tunnels.Close(ctx, appID)
		m.bus.publish(Event{Type: EventTunnelClosed, AppID: appID, At: now()})
		rec.Tunnel = nil
	}

	if h := m.sup.Get(appID); h != nil {
		_ = h.Stop(m.stopGrace)
	}
	rec.Process = nil
	rec.LocalPort = nil

	return m.transition(ctx, rec, registry.StateStopped, "")
}

// Reset clears a terminal error, moving back to installed (no process was
// ever adopted) or stopped (a process had already started), per spec.md
// §4.2's "no side effects beyond clearing the error".
func (m *Manager) Reset(ctx context.Context, appID string) error {
	unlock := m.lockApp(appID)
	defer unlock()

	rec, err := m.reg.Get(appID)
	if err != nil {
		return err
	}
	if rec.State != registry.StateError {
		return orcherr.New(orcherr.KindIllegalState, "reset: app is not in error").WithDetail(string(rec.State))
	}
	to := registry.StateInstalled
	if rec.Process != nil {
		to = registry.StateStopped
	}
	return m.transition(ctx, rec, to, "reset")
}
