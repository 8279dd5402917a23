package script

import (
	"context"
	"time"

	"github.com/loykin/orchestrator/internal/env"
	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/shell"
)

type shellRunParams struct {
	Message      string   `json:"message,omitempty"` // single command line, the common case
	Lines        []string `json:"lines,omitempty"`   // multi-line session, run in order via one shell
	Sudo         bool     `json:"sudo,omitempty"`
	Venv         string   `json:"venv,omitempty"`          // overrides the frame's activated venv for this call only
	Readiness    string   `json:"readiness,omitempty"`    // regex matched against daemon output, daemon scripts only
	ReadyAfterMS int      `json:"readyAfterMs,omitempty"` // fallback readiness timeout
}

// stepShellRun resolves every line through Variable Resolution and hands
// the command to shell.RunForeground, or to Hooks.StartDaemon when the
// enclosing Document declares itself a daemon script (its one long-running
// process, whose handoff to the Process Supervisor happens inside the
// hook, not here).
func (e *Engine) stepShellRun(ctx context.Context, f *Frame, step *Step) (string, error) {
	var p shellRunParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}

	lines := p.Lines
	if p.Message != "" {
		lines = append([]string{p.Message}, lines...)
	}
	resolvedLines := make([]string, 0, len(lines))
	for _, l := range lines {
		rl, err := e.resolveString(f, l)
		if err != nil {
			return "", err
		}
		resolvedLines = append(resolvedLines, rl)
	}

	cmd := shell.Command{
		Lines: resolvedLines,
		CWD:   f.InstallRoot,
		Env:   e.shellEnv(f),
		Sudo:  p.Sudo,
	}
	if p.Venv != "" {
		venvPath, err := e.resolvePath(f, p.Venv)
		if err != nil {
			return "", err
		}
		cmd.Venv = &shell.VenvActivation{
			BinDir: venvPath + "/bin",
			Extra:  map[string]string{"VIRTUAL_ENV": venvPath},
		}
	} else if f.Venv != nil {
		cmd.Venv = f.Venv.Activation()
	}

	if f.Doc.Daemon {
		if e.hooks.StartDaemon == nil {
			return "", orcherr.New(orcherr.KindIllegalState, "shell.run: daemon scripts require Hooks.StartDaemon")
		}
		readiness := ReadinessSpec{Regex: p.Readiness, ReadyAfter: time.Duration(p.ReadyAfterMS) * time.Millisecond}
		return e.hooks.StartDaemon(ctx, f.AppID, cmd, readiness)
	}

	res, err := shell.RunForeground(ctx, cmd)
	if err != nil {
		return "", err
	}
	return res.StdoutTail, nil
}

// shellEnv composes the environment for a shell.run call: the engine's
// base layer (OS env plus any global overrides loaded from the platform's
// .env file) with the frame's own env block applied on top as per-call
// overrides, each value passed through Variable Resolution first since env
// values set in the document can themselves reference other variables.
func (e *Engine) shellEnv(f *Frame) []string {
	perCall := make([]string, 0, len(f.Env))
	for k, v := range f.Env {
		rv, err := e.resolveString(f, v)
		if err != nil {
			rv = v
		}
		perCall = append(perCall, k+"="+rv)
	}
	base := e.baseEnv
	if base == nil {
		base = env.New()
	}
	return base.Merge(perCall)
}
