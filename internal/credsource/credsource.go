// Package credsource is the Tunnel Broker's read-only view of platform
// credentials: a provider name in, a token out, nothing ever written
// back. Grounded on SPEC_FULL.md §4.9 and backed by the OS keychain via
// zalando/go-keyring, the same credential-store library the rest of the
// retrieval pack uses for secrets it never persists itself.
package credsource

import (
	"github.com/zalando/go-keyring"
)

// Source looks up a bearer/auth token for a tunnel provider by name.
// ok is false whenever no credential is available, which the Tunnel
// Broker treats as "skip this provider", never as an error.
type Source interface {
	Lookup(provider string) (token string, ok bool)
}

// keychainSource is the sole implementation: one OS-keychain entry per
// provider, all filed under a single service namespace.
type keychainSource struct {
	service string
}

// New returns a Source reading from the OS keychain under service
// (e.g. "orchestrator-tunnels").
func New(service string) Source {
	return &keychainSource{service: service}
}

func (s *keychainSource) Lookup(provider string) (string, bool) {
	token, err := keyring.Get(s.service, provider)
	if err != nil {
		return "", false
	}
	return token, true
}

// Static is a fixed, in-memory Source for tests and for hosts where no
// OS keychain is reachable (most ephemeral GPU notebook hosts fall into
// this category — the orchestrator still needs to run without one).
type Static map[string]string

func (s Static) Lookup(provider string) (string, bool) {
	tok, ok := s[provider]
	return tok, ok
}
