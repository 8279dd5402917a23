package lifecycle

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/pathmap"
	"github.com/loykin/orchestrator/internal/registry"
	"github.com/loykin/orchestrator/internal/script"
	"github.com/loykin/orchestrator/internal/serverdetect"
	"github.com/loykin/orchestrator/internal/shell"
	"github.com/loykin/orchestrator/internal/venv"
)

// inputWaiter tracks one outstanding `input` step, keyed by the request id
// embedded in the input-request event so a later input-reply command can
// resolve it.
type inputWaiter struct {
	appID string
	ch    chan string
}

// pendingInputs is the Manager's table of in-flight `input` steps.
type pendingInputs struct {
	mu  sync.Mutex
	reg map[string]*inputWaiter
}

func newPendingInputs() *pendingInputs {
	return &pendingInputs{reg: make(map[string]*inputWaiter)}
}

func (p *pendingInputs) register(appID string) (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 1)
	p.mu.Lock()
	p.reg[id] = &inputWaiter{appID: appID, ch: ch}
	p.mu.Unlock()
	return id, ch
}

func (p *pendingInputs) resolve(id, value string) error {
	p.mu.Lock()
	w, ok := p.reg[id]
	if ok {
		delete(p.reg, id)
	}
	p.mu.Unlock()
	if !ok {
		return orcherr.New(orcherr.KindIllegalState, "no pending input request "+id)
	}
	w.ch <- value
	return nil
}

func (p *pendingInputs) cancel(id string) {
	p.mu.Lock()
	delete(p.reg, id)
	p.mu.Unlock()
}

// hookContext bundles everything one Install/Start call needs to build a
// *script.Hooks bound to a single app run: its frame-level Path Mapper,
// its activated venv (if any), and the Manager collaborators every hook
// closure reaches into.
type hookContext struct {
	m      *Manager
	appID  string
	paths  *pathmap.Mapper
	venv   *venv.Handle
	cmdID  string
	rec    *registry.AppRecord // the live record fs.link bookkeeping writes onto, may be nil
}

func (m *Manager) buildHooks(hc *hookContext) *script.Hooks {
	return &script.Hooks{
		AllocatePort: func() (int, error) { return freePort() },
		Notify: func(appID, event string, data map[string]string) {
			m.bus.publish(Event{Type: eventTypeForNotify(event), AppID: appID, Detail: event, Data: data, At: now(), CommandID: hc.cmdID})
		},
		Log: func(level, category, message string) {
			m.logLine(hc.appID, level, category, message)
		},
		RequestInput: func(ctx context.Context, appID string, spec script.InputSpec) (string, error) {
			return m.requestInput(ctx, appID, spec, hc.cmdID)
		},
		SubScript: func(uri string) (*script.Document, error) {
			return m.resolveSubScript(hc.paths, uri)
		},
		StartDaemon: func(ctx context.Context, appID string, cmd shell.Command, readiness script.ReadinessSpec) (string, error) {
			return m.startDaemon(ctx, appID, cmd, readiness)
		},
		StopApp: func(ctx context.Context, appID string) error {
			return m.Stop(ctx, appID)
		},
		HTTPDo: httpDo,
		RecordSharedLink: func(target string) {
			m.recordSharedLink(hc.rec, target)
		},
	}
}

// recordSharedLink appends target onto rec.SharedLinks if it isn't already
// tracked, so Uninstall can remove this app's own shared-root copies when
// purge is requested. A nil rec (no live record for this hook context) is
// a no-op.
func (m *Manager) recordSharedLink(rec *registry.AppRecord, target string) {
	if rec == nil {
		return
	}
	for _, existing := range rec.SharedLinks {
		if existing == target {
			return
		}
	}
	rec.SharedLinks = append(rec.SharedLinks, target)
}

func now() time.Time { return time.Now().UTC() }

func eventTypeForNotify(event string) EventType {
	switch event {
	case "tunnel-opened":
		return EventTunnelOpened
	case "tunnel-closed":
		return EventTunnelClosed
	default:
		return EventStepProgress
	}
}

func (m *Manager) logLine(appID, level, category, message string) {
	m.slog.Info(message, "app", appID, "level", level, "category", category)
	m.bus.publish(Event{
		Type:   EventLogLine,
		AppID:  appID,
		Detail: level,
		Data:   map[string]string{"category": category, "message": message},
		At:     now(),
	})
}

// requestInput publishes an input-request event carrying a fresh request
// id and blocks until InputReply resolves it or ctx is cancelled; it has
// no timeout of its own.
func (m *Manager) requestInput(ctx context.Context, appID string, spec script.InputSpec, cmdID string) (string, error) {
	id, ch := m.inputs.register(appID)
	m.bus.publish(Event{
		Type:      EventInputRequest,
		AppID:     appID,
		CommandID: cmdID,
		Data: map[string]string{
			"requestId": id,
			"kind":      spec.Kind,
			"prompt":    spec.Prompt,
			"options":   strings.Join(spec.Options, ","),
		},
		At: now(),
	})
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		m.inputs.cancel(id)
		return "", orcherr.New(orcherr.KindInputCancelled, "input request cancelled")
	}
}

// InputReply resolves a pending `input` step with value — the Lifecycle
// Manager's side of the RPC surface's input-reply command.
func (m *Manager) InputReply(requestID, value string) error {
	return m.inputs.resolve(requestID, value)
}

// resolveSubScript implements script.Hooks.SubScript for both script.start
// forms: a bare id (resolved as "<id>.json" under the frame's own install
// root) and a uri (a git-style remote, cloned into a scratch directory
// first). Either way the result is parsed the same way loadScript parses
// the top-level install/start script.
func (m *Manager) resolveSubScript(paths *pathmap.Mapper, ref string) (*script.Document, error) {
	if strings.Contains(ref, "://") {
		dest, err := paths.ResolveShared("sub-scripts/" + uuid.NewString())
		if err != nil {
			dest, err = paths.Resolve("sub-scripts/" + uuid.NewString())
			if err != nil {
				return nil, err
			}
		}
		if err := cloneScriptSource(ref, dest); err != nil {
			return nil, err
		}
		doc, _, err := loadScript(pathmap.New(dest, ""), "", "install.json", "start.json", "pinokio.json")
		return doc, err
	}
	doc, _, err := loadScript(paths, "", scriptDir("", ref))
	return doc, err
}

// startDaemon starts cmd, watches its output for readiness via
// internal/serverdetect, and on success adopts the process into the
// Process Supervisor, returning the detected port as the step's output
// (so a caller script can e.g. notify with {{input}}).
func (m *Manager) startDaemon(ctx context.Context, appID string, cmd shell.Command, readiness script.ReadinessSpec) (string, error) {
	d, err := shell.StartDaemon(ctx, cmd)
	if err != nil {
		return "", err
	}
	timeout := readiness.ReadyAfter
	if timeout <= 0 {
		timeout = defaultReadinessTimeout
	}
	res, err := serverdetect.Detect(ctx, d.Lines(), readiness.Regex, "localhost", serverdetect.DefaultScanRange(), timeout)
	if err != nil {
		_ = d.Terminate(5 * time.Second)
		return "", err
	}
	h := m.sup.Adopt(appID, d, m.logDir())
	m.onDaemonReady(appID, res.Port, h)
	return strconv.Itoa(res.Port), nil
}

// httpDo is net.request's HTTP client, a plain 30s-timeout request with
// no cookie jar or redirect special-casing — the spec treats credential
// injection as the RPC layer's concern, not the Engine's.
func httpDo(ctx context.Context, method, url string, headers map[string]string, body string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(data), nil
}

// freePort asks the kernel for an ephemeral port and releases it
// immediately — good enough for {{port}}'s "next-free TCP port" contract
// since the caller binds it again within the same step.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, orcherr.Wrap(orcherr.KindPortBusy, "failed to allocate a free port", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}
