// Package lifecycle implements the Application Lifecycle Manager: the
// per-app state machine (spec.md §4.2) that drives the Script Engine,
// Process Supervisor, Server Detector, and Tunnel Broker through
// install/start/stop/uninstall, serializing every operation for a given
// app id on its own lock while letting different app ids run fully
// concurrently.
//
// Grounded on the teacher's internal/manager.Manager: a map of per-entry
// state guarded by a coarse mutex, history sinks fired after every
// recorded transition, and a supervisor-style "own a map of live
// children, reap them on exit" discipline — generalized here from
// process restarts to the orchestrator's eight-state app lifecycle.
package lifecycle

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/loykin/orchestrator/internal/env"
	"github.com/loykin/orchestrator/internal/history"
	"github.com/loykin/orchestrator/internal/metrics"
	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/pathmap"
	"github.com/loykin/orchestrator/internal/platform"
	"github.com/loykin/orchestrator/internal/registry"
	"github.com/loykin/orchestrator/internal/script"
	"github.com/loykin/orchestrator/internal/supervisor"
	"github.com/loykin/orchestrator/internal/tunnel"
	"github.com/loykin/orchestrator/internal/vars"
	"github.com/loykin/orchestrator/internal/venv"
)

const (
	defaultReadinessTimeout = 5 * time.Minute
	defaultStopGrace        = 10 * time.Second
)

// Manager is the Application Lifecycle Manager. One Manager instance
// owns every app id in a process; it is safe for concurrent use.
type Manager struct {
	profile *platform.Profile
	reg     *registry.Registry
	sup     *supervisor.Supervisor
	tunnels *tunnel.Broker
	venvMgr *venv.Manager
	hist    history.Sink
	slog    *slog.Logger
	bus     *bus
	inputs  *pendingInputs

	sharedRoot         string
	tunnelPreferences  []string
	stopGrace          time.Duration
	readinessTimeout   time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// baseEnv is OS env plus any overrides loaded from <profile.Root()>/.env,
	// shared by every app's shell.run calls as their bottom environment layer.
	baseEnv *env.Env
}

// Options configures a Manager beyond its required collaborators.
type Options struct {
	SharedRoot        string // shared resource root for fs.link, defaults to <profile.PersistenceDir()>/drive/models
	TunnelPreferences []string
	StopGrace         time.Duration
	ReadinessTimeout  time.Duration
	Logger            *slog.Logger
	History           history.Sink
}

// New builds a Manager. reg must already be Open'd; tunnels may be nil to
// disable the Tunnel Broker entirely (every start then runs without a
// public URL).
func New(profile *platform.Profile, reg *registry.Registry, tunnels *tunnel.Broker, opts Options) *Manager {
	m := &Manager{
		profile:          profile,
		reg:              reg,
		tunnels:          tunnels,
		venvMgr:          venv.New(),
		hist:             opts.History,
		slog:             opts.Logger,
		bus:              newBus(),
		inputs:           newPendingInputs(),
		sharedRoot:       opts.SharedRoot,
		tunnelPreferences: opts.TunnelPreferences,
		stopGrace:        opts.StopGrace,
		readinessTimeout: opts.ReadinessTimeout,
		locks:            make(map[string]*sync.Mutex),
	}
	if m.hist == nil {
		m.hist = history.NopSink{}
	}
	if m.slog == nil {
		m.slog = slog.Default()
	}
	if m.sharedRoot == "" {
		m.sharedRoot = filepath.Join(profile.PersistenceDir(), "drive", "models")
	}
	if m.stopGrace <= 0 {
		m.stopGrace = defaultStopGrace
	}
	if m.readinessTimeout <= 0 {
		m.readinessTimeout = defaultReadinessTimeout
	}
	m.sup = supervisor.New(m.onProcessExit)
	m.baseEnv = loadPlatformEnv(profile)
	if m.tunnels != nil {
		m.tunnels.SetCallbacks(m.onTunnelReopened, m.onTunnelDead)
	}
	return m
}

// onTunnelReopened is the Tunnel Broker's failover callback: it fires from
// the background re-probe loop, outside any app lock, whenever a dead
// tunnel lands on a new provider. It persists the new provider/URL onto
// the AppRecord and republishes tunnel-opened the same way Start does.
func (m *Manager) onTunnelReopened(appID, provider, publicURL string) {
	unlock := m.lockApp(appID)
	defer unlock()

	rec, err := m.reg.Get(appID)
	if err != nil {
		return
	}
	rec.Tunnel = &registry.TunnelRecord{
		Provider:  provider,
		LocalPort: portOf(rec.LocalPort),
		PublicURL: publicURL,
		CreatedAt: now(),
		Health:    "healthy",
	}
	_ = m.reg.Put(context.Background(), rec)
	m.bus.publish(Event{Type: EventTunnelOpened, AppID: appID, Data: map[string]string{"publicUrl": publicURL, "provider": provider}, At: now()})
}

// onTunnelDead is the Tunnel Broker's exhausted-failover callback: every
// preferred provider failed, so the AppRecord's TunnelRecord is dropped
// without touching the app's own running process.
func (m *Manager) onTunnelDead(appID string) {
	unlock := m.lockApp(appID)
	defer unlock()

	rec, err := m.reg.Get(appID)
	if err != nil || rec.Tunnel == nil {
		return
	}
	rec.Tunnel = nil
	_ = m.reg.Put(context.Background(), rec)
	m.bus.publish(Event{Type: EventTunnelClosed, AppID: appID, At: now()})
}

func portOf(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// loadPlatformEnv builds the OS-env base layer every shell.run call
// starts from, folding in a platform-level .env file when the profile's
// root carries one — the operator's way of pinning things like proxy
// settings or a shared HF_TOKEN across every app without editing each
// app's own script.
func loadPlatformEnv(profile *platform.Profile) *env.Env {
	e := env.New()
	e.FromOS()
	envPath := filepath.Join(profile.Root(), ".env")
	if overrides, err := godotenv.Read(envPath); err == nil {
		for k, v := range overrides {
			e.Set(k, v)
		}
	}
	return e
}

func (m *Manager) lockApp(appID string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[appID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[appID] = l
	}
	m.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

// Subscribe returns a live event stream plus a function to stop it.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.bus.subscribe()
}

// Status returns a read-only snapshot of appID's record.
func (m *Manager) Status(appID string) (*registry.AppRecord, error) {
	return m.reg.Get(appID)
}

// List returns a snapshot of every known app record.
func (m *Manager) List() []*registry.AppRecord {
	return m.reg.List()
}

func (m *Manager) gpuContext() []vars.GPU {
	out := make([]vars.GPU, 0, len(m.profile.GPUInfo()))
	for _, g := range m.profile.GPUInfo() {
		out = append(out, vars.GPU{Name: g.Name, CUDAVersion: g.CUDAVersion})
	}
	return out
}

// newFrame builds the top-level ExecutionFrame for running doc against
// rec: Paths bound to rec's install root and the Manager's shared root,
// venv (if one is already known for the app), platform/GPU context, and
// a copy-on-read of the app's persistent local variables.
func (m *Manager) newFrame(doc *script.Document, rec *registry.AppRecord, args map[string]string) *script.Frame {
	paths := pathmap.New(rec.InstallRoot, m.sharedRoot)
	var vh *venv.Handle
	if rec.VenvPath != "" {
		vh = &venv.Handle{Kind: venv.Kind(rec.VenvKind), Root: rec.VenvPath}
	}
	local := make(map[string]string, len(rec.LocalVars))
	for k, v := range rec.LocalVars {
		local[k] = v
	}
	return &script.Frame{
		Doc:         doc,
		AppID:       rec.AppID,
		InstallRoot: rec.InstallRoot,
		Paths:       paths,
		Venv:        vh,
		Args:        args,
		Local:       local,
		Env:         doc.Env,
		GPUs:        m.gpuContext(),
		Platform:    string(m.profile.Class()),
		Arch:        runtime.GOARCH,
	}
}

func (m *Manager) engineFor(hc *hookContext) *script.Engine {
	return script.New(m.buildHooks(hc)).WithBaseEnv(m.baseEnv)
}

// transition validates and commits a state change, records history and
// metrics, and publishes a state-changed event. Callers must already
// hold appID's lock.
func (m *Manager) transition(ctx context.Context, rec *registry.AppRecord, to registry.State, detail string) error {
	from := rec.State
	if err := checkTransition(from, to); err != nil {
		return err
	}
	rec.State = to
	rec.LastTransitionAt = now()
	if to != registry.StateError {
		rec.LastError = nil
	}
	if err := m.reg.Put(ctx, rec); err != nil {
		return err
	}
	metrics.RecordStateTransition(rec.AppID, string(from), string(to))
	metrics.SetCurrentState(rec.AppID, string(to), true)
	_ = m.hist.Send(ctx, history.Event{
		Type:       history.EventStateChanged,
		OccurredAt: now(),
		AppID:      rec.AppID,
		From:       string(from),
		To:         string(to),
		Detail:     detail,
	})
	m.bus.publish(Event{Type: EventStateChanged, AppID: rec.AppID, From: string(from), To: string(to), Detail: detail, At: now()})
	return nil
}

func (m *Manager) fail(ctx context.Context, rec *registry.AppRecord, to registry.State, err error) error {
	rec.LastError = &registry.LastError{Kind: string(orcherr.KindOf(err)), Message: err.Error()}
	if tErr := m.transition(ctx, rec, to, err.Error()); tErr != nil {
		return tErr
	}
	m.bus.publish(Event{Type: EventError, AppID: rec.AppID, Detail: err.Error(), At: now()})
	return nil
}

func pathmapFor(rec *registry.AppRecord, sharedRoot string) *pathmap.Mapper {
	return pathmap.New(rec.InstallRoot, sharedRoot)
}

func portString(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
