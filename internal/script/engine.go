package script

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/orchestrator/internal/env"
	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/shell"
	"github.com/loykin/orchestrator/internal/vars"
)

// Hooks are the side-effect collaborators the Engine dispatches into.
// Any field may be nil: AllocatePort (disables {{port}}), Notify and Log
// (the events and log lines are dropped), RecordSharedLink (skips
// shared-path bookkeeping), RequestInput, SubScript, StopApp and HTTPDo
// (input, script.start, script.stop and net.request fail with
// unknown-method), and StartDaemon (a daemon shell.run fails with
// illegal-state).
type Hooks struct {
	AllocatePort     func() (int, error)
	Notify           func(appID, event string, data map[string]string)
	Log              func(level, category, message string)
	RequestInput     func(ctx context.Context, appID string, spec InputSpec) (string, error)
	SubScript        func(uri string) (*Document, error) // resolves script.start's uri/id to a Document
	StartDaemon      func(ctx context.Context, appID string, cmd shell.Command, readiness ReadinessSpec) (daemonResult string, err error)
	StopApp          func(ctx context.Context, appID string) error
	HTTPDo           func(ctx context.Context, method, url string, headers map[string]string, body string) (status int, respBody string, err error)
	RecordSharedLink func(target string) // reports a resolved fs.link shared-root target, for purge bookkeeping
}

// InputSpec describes an `input` step's request to the RPC surface.
type InputSpec struct {
	Kind    string   `json:"kind,omitempty"` // "text", "password", "number", "select"
	Prompt  string   `json:"prompt,omitempty"`
	Options []string `json:"options,omitempty"`
}

// ReadinessSpec is how a daemon shell.run call decides it's ready, passed
// through to the hook that hands the process to the Process Supervisor.
type ReadinessSpec struct {
	Regex      string
	ReadyAfter time.Duration
}

// Engine interprets Documents against Frames. One Engine instance is
// shared by every app; all per-run state lives on the Frame.
type Engine struct {
	hooks *Hooks
	// localVars is the engine-wide persistent bottom layer local.set also
	// writes to, keyed by appID then variable name — the AppRecord.localVars
	// the spec describes surviving across runs of the same app.
	localVars map[string]map[string]string
	// baseEnv is the OS environment plus any global overrides loaded from
	// the platform's .env file (lifecycle.Manager passes it in through
	// WithBaseEnv); every shell.run call's own env block sits on top of it as
	// per-call overrides, the same layering internal/env.Env always uses.
	baseEnv *env.Env
}

func New(hooks *Hooks) *Engine {
	return &Engine{hooks: hooks, localVars: map[string]map[string]string{}, baseEnv: env.New()}
}

// WithBaseEnv replaces the engine's base environment layer (OS env plus
// global overrides) used by every shell.run call. Passing nil resets it to
// an empty (OS-env-only) Env.
func (e *Engine) WithBaseEnv(base *env.Env) *Engine {
	if base == nil {
		base = env.New()
	}
	e.baseEnv = base
	return e
}

// PersistentLocals returns the persistent localVars map for appID,
// creating it if absent — the Registry reads this after Run returns to
// persist it onto the AppRecord.
func (e *Engine) PersistentLocals(appID string) map[string]string {
	m, ok := e.localVars[appID]
	if !ok {
		m = map[string]string{}
		e.localVars[appID] = m
	}
	return m
}

// stepOutcome is the three-valued result of running one step.
type stepOutcome int

const (
	outcomeOK stepOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// Run executes f's script from its current Index until the index moves
// past the end, a script.return executes, or ctx is cancelled. It returns
// the final step output (becomes {{input}} for the caller if this was a
// pushed sub-frame) or an error if the frame aborted unrecovered.
func (e *Engine) Run(ctx context.Context, f *Frame) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", orcherr.Wrap(orcherr.KindCancelled, "script execution cancelled", err)
		}
		step, ok := f.step()
		if !ok {
			return f.Input, nil
		}

		outcome, output, err := e.runStep(ctx, f, step)
		switch outcome {
		case outcomeSkipped:
			f.Input = skipped
			f.Index++
			continue
		case outcomeOK:
			f.Input = output
			if f.returning {
				return output, nil
			}
			if f.jumpTo != nil {
				f.Index = *f.jumpTo
				f.jumpTo = nil
				continue
			}
			f.Index++
			continue
		case outcomeFailed:
			recovered, retErr := e.recover(ctx, f, step, err)
			if retErr != nil {
				return "", retErr
			}
			if recovered {
				continue // recover() already repositioned f.Index
			}
			return "", err
		}
	}
}

// recover applies the step's `on:` handlers to a failure. It returns
// (true, nil) if a handler resolved the failure and repositioned f so the
// caller should continue the loop, (false, nil) if no handler matched
// (the caller should propagate the original error), or (false, err) if a
// handler itself failed irrecoverably.
func (e *Engine) recover(ctx context.Context, f *Frame, step *Step, failure error) (bool, error) {
	msg := failure.Error()
	for _, h := range step.On {
		if h.Event != "error" {
			re, reErr := regexp.Compile(h.Event)
			if reErr != nil || !re.MatchString(msg) {
				continue
			}
		}
		switch {
		case h.Return == "retry":
			return e.retry(ctx, f, step)
		case h.Return == "skip":
			f.Input = skipped
			f.Index++
			return true, nil
		case strings.HasPrefix(h.Return, "jump:"):
			target := strings.TrimPrefix(h.Return, "jump:")
			idx := f.Doc.indexByID(target)
			if idx < 0 {
				return false, orcherr.New(orcherr.KindScriptParse, "on: jump target not found").WithDetail(target)
			}
			f.Input = skipped
			f.Index = idx
			return true, nil
		}
	}
	return false, nil
}

const (
	maxRetries   = 5
	baseBackoff  = 200 * time.Millisecond
	maxBackoff   = 10 * time.Second
)

// retry re-runs step in place with bounded exponential backoff and ±20%
// jitter, styled on the teacher's autorestart backoff loop
// (manager.supervisor.tryAutoStart): immediate first retry, then a growing
// sleep between attempts, giving up after maxRetries.
func (e *Engine) retry(ctx context.Context, f *Frame, step *Step) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := jitter(backoffFor(attempt))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false, orcherr.Wrap(orcherr.KindCancelled, "retry cancelled", ctx.Err())
			}
		}
		outcome, output, err := e.runStep(ctx, f, step)
		switch outcome {
		case outcomeOK:
			f.Input = output
			f.Index++
			return true, nil
		case outcomeSkipped:
			f.Input = skipped
			f.Index++
			return true, nil
		}
		lastErr = err
	}
	return false, lastErr
}

func backoffFor(attempt int) time.Duration {
	d := baseBackoff * time.Duration(1<<uint(attempt-1))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

// runStep evaluates `when:`, resolves every string parameter, and
// dispatches to the method handler.
func (e *Engine) runStep(ctx context.Context, f *Frame, step *Step) (stepOutcome, string, error) {
	if step.When != "" {
		ok, err := evalWhen(stripWhenBraces(step.When), f.varsContext(e.hooks.AllocatePort))
		if err != nil {
			return outcomeFailed, "", err
		}
		if !ok {
			return outcomeSkipped, "", nil
		}
	}

	output, err := e.dispatch(ctx, f, step)
	if err != nil {
		return outcomeFailed, "", err
	}
	return outcomeOK, output, nil
}

func (e *Engine) dispatch(ctx context.Context, f *Frame, step *Step) (string, error) {
	switch step.Method {
	case "shell.run":
		return e.stepShellRun(ctx, f, step)
	case "fs.write":
		return e.stepFSWrite(f, step)
	case "fs.read":
		return e.stepFSRead(f, step)
	case "fs.download":
		return e.stepFSDownload(ctx, f, step)
	case "fs.copy":
		return e.stepFSCopy(f, step)
	case "fs.move":
		return e.stepFSMove(f, step)
	case "fs.remove":
		return e.stepFSRemove(f, step)
	case "fs.exists":
		return e.stepFSExists(f, step)
	case "fs.mkdir":
		return e.stepFSMkdir(f, step)
	case "fs.readdir":
		return e.stepFSReaddir(f, step)
	case "fs.rmdir":
		return e.stepFSRmdir(f, step)
	case "fs.link":
		return e.stepFSLink(f, step)
	case "json.read", "json.write", "json.get", "json.set", "json.merge", "json.rm":
		return e.stepJSON(f, step)
	case "net.request":
		return e.stepNetRequest(ctx, f, step)
	case "input":
		return e.stepInput(ctx, f, step)
	case "local.set":
		return e.stepLocalSet(f, step)
	case "log":
		return e.stepLog(f, step)
	case "notify":
		return e.stepNotify(f, step)
	case "script.start":
		return e.stepScriptStart(ctx, f, step)
	case "script.stop":
		return e.stepScriptStop(ctx, f, step)
	case "script.download":
		return e.stepScriptDownload(ctx, f, step)
	case "script.return":
		return e.stepScriptReturn(f, step)
	case "jump":
		return e.stepJump(f, step)
	case "web.open":
		return e.stepWebOpen(f, step)
	case "hf.download":
		return e.stepHFDownload(ctx, f, step)
	default:
		return "", orcherr.New(orcherr.KindUnknownMethod, fmt.Sprintf("unknown method %q", step.Method))
	}
}

// resolveString runs vars.Resolve against f's context, non-lenient (a
// failure is a real orcherr.KindUnboundVariable).
func (e *Engine) resolveString(f *Frame, s string) (string, error) {
	return vars.Resolve(s, f.varsContext(e.hooks.AllocatePort), false)
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
