// Package tunnel implements the Tunnel Broker: given a local port and an
// ordered provider preference list, it opens a public URL through the
// first provider that succeeds, re-probes periodically, and fails over
// on repeated probe failures. Grounded on spec.md §4.6 and on the
// teacher's internal/cronjob's use of robfig/cron/v3 for its own
// recurring-schedule needs, reused here for the re-probe loop.
package tunnel

import "context"

// Handle identifies an open tunnel to a single provider.
type Handle struct {
	Provider string
	Opaque   string // provider-specific handle, e.g. a subprocess PID tag
}

// Provider is the closed interface every tunnel backend implements.
// Spec.md names three concrete providers (ngrok, cloudflare-quick,
// localtunnel); Name() must match one of those strings exactly, since
// the broker's preference list and credsource lookups are keyed on it.
type Provider interface {
	Name() string
	// Open starts a tunnel to localhost:port. token is the credential
	// looked up for this provider, empty if the provider requires none
	// (cloudflare-quick, localtunnel) or none was found.
	Open(ctx context.Context, port int, token string) (publicURL string, handle Handle, err error)
	Probe(ctx context.Context, handle Handle) (healthy bool, err error)
	Close(ctx context.Context, handle Handle) error
}
