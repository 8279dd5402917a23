package main

import (
	"log/slog"
	"os"
	"testing"

	"github.com/loykin/orchestrator/internal/logger"
)

func TestBuildRootRegistersSubcommands(t *testing.T) {
	root, _ := buildRoot()
	want := []string{"serve", "install", "start", "stop", "uninstall", "status", "list"}
	for _, name := range want {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %q to be registered, err = %v", name, err)
		}
	}
}

func TestBuildRootPersistentFlags(t *testing.T) {
	root, _ := buildRoot()
	if root.PersistentFlags().Lookup("api-url") == nil {
		t.Error("expected --api-url persistent flag")
	}
	if root.PersistentFlags().Lookup("api-timeout") == nil {
		t.Error("expected --api-timeout persistent flag")
	}
}

func TestNewBaseHandlerNonTTYIsJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer func() { _ = f.Close() }()

	h := newBaseHandler(f)
	if _, ok := h.(*logger.ColorTextHandler); ok {
		t.Fatal("newBaseHandler() returned a ColorTextHandler for a non-TTY file")
	}

	l := slog.New(h)
	l.Info("test message")
}
