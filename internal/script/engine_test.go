package script

import (
	"context"
	"strings"
	"testing"

	"github.com/loykin/orchestrator/internal/env"
	"github.com/loykin/orchestrator/internal/pathmap"
)

func newTestFrame(t *testing.T, doc *Document) *Frame {
	t.Helper()
	root := t.TempDir()
	return &Frame{
		Doc:         doc,
		AppID:       "app-under-test",
		InstallRoot: root,
		Paths:       pathmap.New(root, root),
		Args:        map[string]string{},
		Local:       map[string]string{},
		Env:         doc.Env,
	}
}

func TestShellEnvMergesBaseAndPerCallLayers(t *testing.T) {
	doc := &Document{Version: "1", Env: map[string]string{"APP_VAR": "app-value"}}
	f := newTestFrame(t, doc)

	base := env.New()
	base.Set("GLOBAL_VAR", "global-value")

	e := New(&Hooks{}).WithBaseEnv(base)
	got := e.shellEnv(f)

	var sawGlobal, sawApp bool
	for _, kv := range got {
		switch kv {
		case "GLOBAL_VAR=global-value":
			sawGlobal = true
		case "APP_VAR=app-value":
			sawApp = true
		}
	}
	if !sawGlobal {
		t.Errorf("shellEnv() = %v, missing GLOBAL_VAR from base env", got)
	}
	if !sawApp {
		t.Errorf("shellEnv() = %v, missing APP_VAR from document env", got)
	}
}

func TestShellEnvPerCallOverridesBase(t *testing.T) {
	doc := &Document{Version: "1", Env: map[string]string{"SHARED_VAR": "from-doc"}}
	f := newTestFrame(t, doc)

	base := env.New()
	base.Set("SHARED_VAR", "from-base")

	e := New(&Hooks{}).WithBaseEnv(base)
	got := e.shellEnv(f)

	for _, kv := range got {
		if strings.HasPrefix(kv, "SHARED_VAR=") && kv != "SHARED_VAR=from-doc" {
			t.Errorf("shellEnv() SHARED_VAR = %q, want it overridden to from-doc", kv)
		}
	}
}

func TestShellEnvWithoutBaseEnvFallsBackToOSEnv(t *testing.T) {
	doc := &Document{Version: "1"}
	f := newTestFrame(t, doc)

	e := New(&Hooks{})
	got := e.shellEnv(f)
	if len(got) == 0 {
		t.Fatal("shellEnv() returned no entries, want at least the OS environment")
	}
}

func TestStepShellRunUsesComposedEnv(t *testing.T) {
	doc := &Document{Version: "1"}
	f := newTestFrame(t, doc)

	base := env.New()
	base.Set("PROBE_VAR", "probe-value")
	e := New(&Hooks{}).WithBaseEnv(base)

	step := &Step{Method: "shell.run", Params: []byte(`{"message":"test \"$PROBE_VAR\" = \"probe-value\""}`)}
	if _, err := e.stepShellRun(context.Background(), f, step); err != nil {
		t.Fatalf("stepShellRun() error = %v, want the child shell to see PROBE_VAR", err)
	}
}
