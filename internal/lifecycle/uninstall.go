package lifecycle

import (
	"context"
	"os"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
)

// Uninstall requires stopped or error, per spec.md §4.2: removes the
// install root and venv, then the registry entry. Shared model
// directories under the Manager's shared root are not keyed by app id,
// and other apps may still reference them, so by default they are
// preserved; when purge is true, this app's own fs.link targets (tracked
// on rec.SharedLinks as they're created, since the install root alone
// doesn't say which shared paths an app actually touched) are removed too.
func (m *Manager) Uninstall(ctx context.Context, appID string, purge bool) error {
	unlock := m.lockApp(appID)
	defer unlock()

	rec, err := m.reg.Get(appID)
	if err != nil {
		return err
	}
	if rec.State != registry.StateStopped && rec.State != registry.StateError {
		return orcherr.New(orcherr.KindIllegalState, "uninstall: app is not stopped or in error").WithDetail(string(rec.State))
	}

	if rec.VenvPath != "" {
		if err := os.RemoveAll(rec.VenvPath); err != nil {
			return orcherr.Wrap(orcherr.KindVenvFailed, "failed to remove venv", err)
		}
	}
	if rec.InstallRoot != "" {
		if err := os.RemoveAll(rec.InstallRoot); err != nil {
			return orcherr.Wrap(orcherr.KindInternal, "failed to remove install root", err)
		}
	}
	if purge {
		for _, shared := range rec.SharedLinks {
			if err := os.RemoveAll(shared); err != nil {
				return orcherr.Wrap(orcherr.KindInternal, "failed to purge shared resource", err).WithDetail(shared)
			}
		}
		rec.SharedLinks = nil
	}

	if err := m.transition(ctx, rec, registry.StateAbsent, "uninstalled"); err != nil {
		return err
	}
	return m.reg.Remove(ctx, appID)
}
