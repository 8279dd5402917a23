// Package providers implements the Tunnel Broker's three closed-set
// providers, all of which work the same way: spawn the provider's CLI
// as a daemon (grounded on internal/shell.StartDaemon, the same
// subprocess-with-line-streaming primitive shell.run's daemon path
// uses), then watch its stdout/stderr for the public URL the way
// internal/serverdetect watches for a readiness line.
package providers

import (
	"context"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/shell"
	"github.com/loykin/orchestrator/internal/tunnel"
)

// cliProvider is the shared shape behind ngrok, cloudflare-quick, and
// localtunnel: a command line to run, a regex to pull the public URL out
// of its output, and a per-handle registry of the spawned daemons so
// Probe/Close can find them again.
type cliProvider struct {
	name       string
	buildLines func(port int, token string) []string
	urlPattern *regexp.Regexp
	openWait   time.Duration

	mu      sync.Mutex
	daemons map[string]*shell.DaemonProcess
}

func newCLIProvider(name string, urlPattern string, buildLines func(port int, token string) []string) *cliProvider {
	return &cliProvider{
		name:       name,
		buildLines: buildLines,
		urlPattern: regexp.MustCompile(urlPattern),
		openWait:   30 * time.Second,
		daemons:    make(map[string]*shell.DaemonProcess),
	}
}

func (p *cliProvider) Name() string { return p.name }

func (p *cliProvider) Open(ctx context.Context, port int, token string) (string, tunnel.Handle, error) {
	d, err := shell.StartDaemon(ctx, shell.Command{Lines: p.buildLines(port, token)})
	if err != nil {
		return "", tunnel.Handle{}, orcherr.Wrap(orcherr.KindTunnelOpenFailed, "failed to start "+p.name, err)
	}

	opaque := "pid-" + strconv.Itoa(d.PID)
	p.mu.Lock()
	p.daemons[opaque] = d
	p.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, p.openWait)
	defer cancel()

	for {
		select {
		case <-waitCtx.Done():
			_ = d.Terminate(2 * time.Second)
			p.mu.Lock()
			delete(p.daemons, opaque)
			p.mu.Unlock()
			return "", tunnel.Handle{}, orcherr.New(orcherr.KindTunnelOpenFailed, p.name+" did not report a public URL in time")
		case line, ok := <-d.Lines():
			if !ok {
				return "", tunnel.Handle{}, orcherr.New(orcherr.KindTunnelOpenFailed, p.name+" exited before reporting a URL")
			}
			if m := p.urlPattern.FindStringSubmatch(line.Text); m != nil {
				return m[1], tunnel.Handle{Provider: p.name, Opaque: opaque}, nil
			}
		}
	}
}

func (p *cliProvider) Probe(ctx context.Context, h tunnel.Handle) (bool, error) {
	p.mu.Lock()
	d, ok := p.daemons[h.Opaque]
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	select {
	case <-d.Done():
		return false, nil
	default:
		return true, nil
	}
}

func (p *cliProvider) Close(ctx context.Context, h tunnel.Handle) error {
	p.mu.Lock()
	d, ok := p.daemons[h.Opaque]
	delete(p.daemons, h.Opaque)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return d.Terminate(5 * time.Second)
}
