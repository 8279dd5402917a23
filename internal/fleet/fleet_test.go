package fleet

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/orchestrator/internal/lifecycle"
	"github.com/loykin/orchestrator/internal/platform"
	"github.com/loykin/orchestrator/internal/registry"
)

// newTestFleet wires a Lifecycle Manager against a scratch platform root,
// the same setup lifecycle's own tests use, then installs one app per
// name in members so Start/Stop/Status have something real to act on.
func newTestFleet(t *testing.T, members ...string) *Fleet {
	t.Helper()
	root := t.TempDir()
	t.Setenv("PLATFORM_OVERRIDE", "generic-linux")
	t.Setenv("PINOKIO_ROOT", root)
	profile := platform.Probe()

	backend, err := registry.OpenStore(registry.Config{Type: "json", Path: filepath.Join(root, "registry.json")})
	if err != nil {
		t.Fatalf("registry.OpenStore() error = %v", err)
	}
	reg, err := registry.Open(context.Background(), backend)
	if err != nil {
		t.Fatalf("registry.Open() error = %v", err)
	}
	mgr := lifecycle.New(profile, reg, nil, lifecycle.Options{StopGrace: time.Second})

	ctx := context.Background()
	for _, name := range members {
		src := t.TempDir()
		writeScript(t, src, "install.json", `{"version":"1","run":[]}`)
		writeScript(t, src, "start.json", scriptFor(name))
		if _, err := mgr.Install(ctx, registry.AppDescriptor{AppID: name, SourceLocator: src}); err != nil {
			t.Fatalf("Install(%s) error = %v", name, err)
		}
	}
	return New(mgr)
}

// scriptFor gives the app named "bad" a start script that fails, so
// rollback tests have a real failing member without touching any real
// shell binary beyond /bin/false.
func scriptFor(name string) string {
	if name == "bad" {
		return `{"version":"1","run":[{"method":"shell.run","params":{"message":"false"}}]}`
	}
	return `{"version":"1","run":[]}`
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o640); err != nil {
		t.Fatalf("writeScript(%s): %v", name, err)
	}
}

func TestFleetStartAndStatus(t *testing.T) {
	f := newTestFleet(t, "a", "b")
	ctx := context.Background()

	recs, err := f.Start(ctx, Group{Name: "grp", AppIDs: []string{"a", "b"}}, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Start() returned %d records, want 2", len(recs))
	}

	statuses, err := f.Status(Group{Name: "grp", AppIDs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(statuses) != 2 || statuses["a"] == nil || statuses["b"] == nil {
		t.Fatalf("Status() = %+v, want entries for a and b", statuses)
	}
}

func TestFleetStartRollsBackOnFailure(t *testing.T) {
	f := newTestFleet(t, "ok", "bad")
	ctx := context.Background()

	_, err := f.Start(ctx, Group{Name: "grp", AppIDs: []string{"ok", "bad"}}, nil)
	if err == nil {
		t.Fatal("Start() with a failing member expected an error, got nil")
	}

	got, err := f.Status(Group{Name: "grp", AppIDs: []string{"ok"}})
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if got["ok"].State == registry.StateRunning || got["ok"].State == registry.StateStarting {
		t.Fatalf("expected rollback to stop %q, state = %s", "ok", got["ok"].State)
	}
}

func TestFleetStopIsBestEffort(t *testing.T) {
	f := newTestFleet(t, "a")
	ctx := context.Background()
	if _, err := f.Start(ctx, Group{Name: "grp", AppIDs: []string{"a"}}, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := f.Stop(ctx, Group{Name: "grp", AppIDs: []string{"a", "missing-from-registry"}})
	if err == nil {
		t.Fatal("Stop() with an unknown app id expected an error, got nil")
	}

	got, statusErr := f.Status(Group{Name: "grp", AppIDs: []string{"a"}})
	if statusErr != nil {
		t.Fatalf("Status() error = %v", statusErr)
	}
	if got["a"].State != registry.StateStopped {
		t.Fatalf("expected Stop() to still stop %q despite the other failure, state = %s", "a", got["a"].State)
	}
}

func TestFleetStatusFailsFastOnUnknownApp(t *testing.T) {
	f := newTestFleet(t, "a")

	if _, err := f.Status(Group{Name: "grp", AppIDs: []string{"a", "does-not-exist"}}); err == nil {
		t.Fatal("Status() with an unknown app id expected an error, got nil")
	}
}
