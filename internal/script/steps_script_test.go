package script

import (
	"context"
	"testing"

	"github.com/loykin/orchestrator/internal/orcherr"
)

func TestRunJumpByIndexTransfersControl(t *testing.T) {
	doc, err := Parse([]byte(`{"run": [
		{"method": "jump", "params": {"index": 2}},
		{"method": "log", "params": {"message": "skipped"}},
		{"method": "log", "params": {"message": "landed"}}
	]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var logged []string
	e := New(&Hooks{Log: func(level, category, message string) { logged = append(logged, message) }})
	f := newTestFrame(t, doc)

	out, err := e.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "landed" {
		t.Fatalf("Run() = %q, want %q", out, "landed")
	}
	if len(logged) != 1 || logged[0] != "landed" {
		t.Fatalf("logged = %v, want only [landed]", logged)
	}
}

func TestRunJumpByOutOfRangeIndexFailsScriptParse(t *testing.T) {
	doc, err := Parse([]byte(`{"run": [
		{"method": "jump", "params": {"index": 7}}
	]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	e := New(&Hooks{Log: func(level, category, message string) {}})
	f := newTestFrame(t, doc)

	_, err = e.Run(context.Background(), f)
	if !orcherr.Is(err, orcherr.KindScriptParse) {
		t.Fatalf("Run() error = %v, want KindScriptParse", err)
	}
}

func TestStepJumpRequiresIDOrIndex(t *testing.T) {
	doc, err := Parse([]byte(`{"run": [{"method": "jump", "params": {}}]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	e := New(&Hooks{Log: func(level, category, message string) {}})
	f := newTestFrame(t, doc)

	_, err = e.Run(context.Background(), f)
	if !orcherr.Is(err, orcherr.KindScriptParse) {
		t.Fatalf("Run() error = %v, want KindScriptParse", err)
	}
}

func TestStepJumpByIndexAppliesParams(t *testing.T) {
	doc, err := Parse([]byte(`{"run": [
		{"method": "jump", "params": {"index": 2, "params": {"n": "again"}}},
		{"method": "log", "params": {"message": "skipped"}},
		{"method": "log", "params": {"message": "{{local.n}}"}}
	]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var logged []string
	e := New(&Hooks{Log: func(level, category, message string) { logged = append(logged, message) }})
	f := newTestFrame(t, doc)

	if _, err := e.Run(context.Background(), f); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(logged) != 1 || logged[0] != "again" {
		t.Fatalf("logged = %v, want only [again]", logged)
	}
}
