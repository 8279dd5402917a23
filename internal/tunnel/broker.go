package tunnel

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/orchestrator/internal/credsource"
	"github.com/loykin/orchestrator/internal/orcherr"
)

// maxConsecutiveFailures is the bound on probe failures before a tunnel
// is marked dead and the broker fails it over to the next provider in
// its original preference list.
const maxConsecutiveFailures = 3

// open tracks one app's live tunnel: which provider opened it, the full
// preference list it was opened with (so a failover has somewhere left to
// go), its handle, and how many consecutive probes have failed.
type open struct {
	appID       string
	provider    string
	preferences []string
	handle      Handle
	publicURL   string
	localPort   int
	failures    int
	reopening   bool
}

// Broker is the Tunnel Broker: it tries providers in the caller's
// preference order, caches the resulting handle per app, and runs a
// periodic re-probe (via robfig/cron/v3, the same scheduling library the
// teacher's internal/cronjob wraps for its own recurring jobs) that
// fails a tunnel over to the next provider in its original preference
// order after repeated probe failures.
type Broker struct {
	providers map[string]Provider
	creds     credsource.Source

	mu   sync.Mutex
	open map[string]*open // keyed by appID

	cron       *cron.Cron
	onReopened func(appID, provider, publicURL string)
	onDead     func(appID string)
}

// New builds a Broker over the given providers (keyed by Provider.Name())
// and credential source. onDead, if non-nil, is called whenever a tunnel
// exhausts every preferred provider — the Lifecycle Manager wires this
// to drop the AppRecord's TunnelRecord without killing the app itself.
// Use SetCallbacks to also install onReopened, or to supply either
// callback when the Broker must be built before its notification target
// exists yet.
func New(providers []Provider, creds credsource.Source, onDead func(appID string)) *Broker {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	b := &Broker{
		providers: byName,
		creds:     creds,
		open:      make(map[string]*open),
		cron:      cron.New(),
		onDead:    onDead,
	}
	_, _ = b.cron.AddFunc("@every 30s", b.reprobeAll)
	b.cron.Start()
	return b
}

// SetCallbacks installs (or replaces) the reopen/dead-tunnel callbacks.
// The Lifecycle Manager calls this right after construction, since the
// Broker itself has to exist before the Manager it notifies does.
func (b *Broker) SetCallbacks(onReopened func(appID, provider, publicURL string), onDead func(appID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReopened = onReopened
	b.onDead = onDead
}

// Stop halts the re-probe scheduler. It does not close any open tunnels.
func (b *Broker) Stop() { b.cron.Stop() }

// Open tries each provider in preferences, in order, skipping any whose
// credential lookup fails for providers that require one (ngrok does;
// cloudflare-quick and localtunnel do not). The first provider to
// succeed wins; its URL, handle, and the full preference list (for a
// later failover) are cached under appID.
func (b *Broker) Open(ctx context.Context, appID string, localPort int, preferences []string) (string, error) {
	var lastErr error
	for _, name := range preferences {
		p, ok := b.providers[name]
		if !ok {
			continue
		}
		token, _ := b.creds.Lookup(name)
		if name == "ngrok" && token == "" {
			continue
		}
		url, handle, err := p.Open(ctx, localPort, token)
		if err != nil {
			lastErr = err
			continue
		}
		b.mu.Lock()
		b.open[appID] = &open{appID: appID, provider: name, preferences: preferences, handle: handle, publicURL: url, localPort: localPort}
		b.mu.Unlock()
		return url, nil
	}
	if lastErr == nil {
		lastErr = orcherr.New(orcherr.KindTunnelOpenFailed, "no tunnel provider available (no credential-less provider succeeded)")
	}
	return "", lastErr
}

// Info reports the provider currently backing appID's tunnel, if any, for
// the Lifecycle Manager to record onto the AppRecord's TunnelRecord.
func (b *Broker) Info(appID string) (provider string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.open[appID]
	if !ok {
		return "", false
	}
	return o.provider, true
}

// Close tears down appID's tunnel, if any.
func (b *Broker) Close(ctx context.Context, appID string) error {
	b.mu.Lock()
	o, ok := b.open[appID]
	if ok {
		delete(b.open, appID)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	p, ok := b.providers[o.provider]
	if !ok {
		return nil
	}
	return p.Close(ctx, o.handle)
}

func (b *Broker) reprobeAll() {
	b.mu.Lock()
	snapshot := make([]*open, 0, len(b.open))
	for _, o := range b.open {
		snapshot = append(snapshot, o)
	}
	b.mu.Unlock()

	for _, o := range snapshot {
		b.reprobeOne(o)
	}
}

func (b *Broker) reprobeOne(o *open) {
	p, ok := b.providers[o.provider]
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	healthy, _ := p.Probe(ctx, o.handle)
	if healthy {
		b.mu.Lock()
		o.failures = 0
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	o.failures++
	dead := o.failures >= maxConsecutiveFailures
	alreadyReopening := o.reopening
	if dead {
		o.reopening = true
	}
	b.mu.Unlock()

	if !dead || alreadyReopening {
		return
	}

	_ = p.Close(ctx, o.handle)
	b.failover(ctx, o)
}

// failover tries every provider still remaining in o's original
// preference list, in order, after the one that just failed — the same
// selection Open runs on a fresh call. The first to succeed becomes o's
// new provider and onReopened fires; once every remaining preference is
// exhausted the tunnel is dropped and onDead fires instead.
func (b *Broker) failover(ctx context.Context, o *open) {
	for _, name := range remainingPreferences(o.preferences, o.provider) {
		p, ok := b.providers[name]
		if !ok {
			continue
		}
		token, _ := b.creds.Lookup(name)
		if name == "ngrok" && token == "" {
			continue
		}
		url, handle, err := p.Open(ctx, o.localPort, token)
		if err != nil {
			continue
		}

		b.mu.Lock()
		o.provider = name
		o.handle = handle
		o.publicURL = url
		o.failures = 0
		o.reopening = false
		onReopened := b.onReopened
		b.mu.Unlock()

		if onReopened != nil {
			onReopened(o.appID, name, url)
		}
		return
	}

	b.mu.Lock()
	delete(b.open, o.appID)
	onDead := b.onDead
	b.mu.Unlock()

	if onDead != nil {
		onDead(o.appID)
	}
}

// remainingPreferences returns the tail of prefs after current, the
// providers a failover hasn't tried yet in this app's original order.
func remainingPreferences(prefs []string, current string) []string {
	for i, name := range prefs {
		if name == current {
			return prefs[i+1:]
		}
	}
	return nil
}
