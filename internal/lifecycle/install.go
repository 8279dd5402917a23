package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
)

// Install brings descriptor.AppID to the installed state: allocating its
// install root, acquiring the source, and running the installer script.
// Idempotent when a record for the same app id already exists installed
// with the same SourceLocator, per spec.md §8's round-trip property.
func (m *Manager) Install(ctx context.Context, descriptor registry.AppDescriptor) (*registry.AppRecord, error) {
	unlock := m.lockApp(descriptor.AppID)
	defer unlock()

	rec, err := m.reg.Get(descriptor.AppID)
	if err == nil {
		if rec.State == registry.StateInstalled && rec.Descriptor.SourceLocator == descriptor.SourceLocator {
			return rec, nil
		}
		if rec.State != registry.StateAbsent {
			return nil, orcherr.New(orcherr.KindIllegalState, "install: app is not absent").WithDetail(string(rec.State))
		}
	} else {
		rec = &registry.AppRecord{AppID: descriptor.AppID, State: registry.StateAbsent}
	}
	rec.Descriptor = descriptor

	if err := m.transition(ctx, rec, registry.StateInstalling, ""); err != nil {
		return nil, err
	}

	installRoot := filepath.Join(m.profile.Root(), "apps", descriptor.AppID)
	rec.InstallRoot = installRoot

	if err := m.runInstall(ctx, rec); err != nil {
		if orcherr.Is(err, orcherr.KindCancelled) {
			_ = os.RemoveAll(installRoot)
			rec.InstallRoot = ""
			if tErr := m.transition(ctx, rec, registry.StateAbsent, "install cancelled"); tErr != nil {
				return nil, tErr
			}
			return nil, err
		}
		if fErr := m.fail(ctx, rec, registry.StateError, err); fErr != nil {
			return nil, fErr
		}
		return nil, err
	}

	if err := m.transition(ctx, rec, registry.StateInstalled, ""); err != nil {
		return nil, err
	}
	return rec, nil
}

// runInstall does the actual work between installing and installed/error:
// source acquisition, installer script resolution, and interpretation.
// rec is mutated in place (InstallerKind, VenvPath/VenvKind) as detected.
func (m *Manager) runInstall(ctx context.Context, rec *registry.AppRecord) error {
	if err := os.MkdirAll(rec.InstallRoot, 0o750); err != nil {
		return orcherr.Wrap(orcherr.KindDiskFull, "failed to create install root", err)
	}
	if err := acquireSource(ctx, rec.Descriptor.SourceLocator, rec.InstallRoot); err != nil {
		return err
	}

	doc, kind, err := loadInstallScript(pathmapFor(rec, m.sharedRoot), rec.Descriptor.InstallerHint)
	if err != nil {
		return err
	}
	rec.InstallerKind = kind

	if len(doc.Run) == 0 {
		// spec.md §8: a script with 0 steps completes ok immediately.
		return nil
	}

	hc := &hookContext{m: m, appID: rec.AppID, paths: pathmapFor(rec, m.sharedRoot), rec: rec}
	engine := m.engineFor(hc)
	frame := m.newFrame(doc, rec, nil)

	installCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	if _, err := engine.Run(installCtx, frame); err != nil {
		return err
	}

	rec.LocalVars = engine.PersistentLocals(rec.AppID)
	detectVenv(rec)
	return nil
}

// detectVenv fills VenvPath/VenvKind on rec by checking for the
// conventional "env" directory an install script's shell.run steps
// create (e.g. "python3 -m venv env"), matching the Venv Manager's own
// default bin-dir layout.
func detectVenv(rec *registry.AppRecord) {
	for _, name := range []string{"env", "venv", ".venv"} {
		root := filepath.Join(rec.InstallRoot, name)
		if _, err := os.Stat(filepath.Join(root, "bin", "python3")); err == nil {
			rec.VenvPath = root
			rec.VenvKind = "python"
			return
		}
		if _, err := os.Stat(filepath.Join(root, "bin", "activate")); err == nil {
			rec.VenvPath = root
			rec.VenvKind = "python"
			return
		}
	}
}
