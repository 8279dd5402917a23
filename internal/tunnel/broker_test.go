package tunnel

import (
	"context"
	"testing"

	"github.com/loykin/orchestrator/internal/credsource"
	"github.com/loykin/orchestrator/internal/orcherr"
)

// fakeProvider is a scriptable tunnel.Provider for exercising the Broker
// without shelling out to a real tunnel CLI.
type fakeProvider struct {
	name    string
	openFn  func(ctx context.Context, port int, token string) (string, Handle, error)
	probeFn func(ctx context.Context, handle Handle) (bool, error)
	closeFn func(ctx context.Context, handle Handle) error
	opens   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Open(ctx context.Context, port int, token string) (string, Handle, error) {
	f.opens++
	if f.openFn != nil {
		return f.openFn(ctx, port, token)
	}
	return "https://" + f.name + ".example", Handle{Provider: f.name}, nil
}

func (f *fakeProvider) Probe(ctx context.Context, handle Handle) (bool, error) {
	if f.probeFn != nil {
		return f.probeFn(ctx, handle)
	}
	return true, nil
}

func (f *fakeProvider) Close(ctx context.Context, handle Handle) error {
	if f.closeFn != nil {
		return f.closeFn(ctx, handle)
	}
	return nil
}

func TestOpenTriesProvidersInPreferenceOrder(t *testing.T) {
	failing := &fakeProvider{name: "a", openFn: func(context.Context, int, string) (string, Handle, error) {
		return "", Handle{}, orcherr.New(orcherr.KindTunnelOpenFailed, "boom")
	}}
	working := &fakeProvider{name: "b"}
	b := New([]Provider{failing, working}, credsource.Static{}, nil)
	defer b.Stop()

	url, err := b.Open(context.Background(), "app-1", 8080, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if url != "https://b.example" {
		t.Fatalf("Open() = %q, want b's URL", url)
	}
	if provider, ok := b.Info("app-1"); !ok || provider != "b" {
		t.Fatalf("Info() = (%q, %v), want (\"b\", true)", provider, ok)
	}
}

func TestOpenSkipsNgrokWithoutCredential(t *testing.T) {
	ngrok := &fakeProvider{name: "ngrok"}
	fallback := &fakeProvider{name: "cloudflare-quick"}
	b := New([]Provider{ngrok, fallback}, credsource.Static{}, nil)
	defer b.Stop()

	if _, err := b.Open(context.Background(), "app-1", 8080, []string{"ngrok", "cloudflare-quick"}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if ngrok.opens != 0 {
		t.Fatalf("ngrok.opens = %d, want 0 (no credential configured)", ngrok.opens)
	}
	if provider, _ := b.Info("app-1"); provider != "cloudflare-quick" {
		t.Fatalf("Info() provider = %q, want cloudflare-quick", provider)
	}
}

func TestReprobeFailsOverToNextProviderOnRepeatedFailure(t *testing.T) {
	primary := &fakeProvider{name: "a", probeFn: func(context.Context, Handle) (bool, error) { return false, nil }}
	secondary := &fakeProvider{name: "b"}
	b := New([]Provider{primary, secondary}, credsource.Static{}, nil)
	defer b.Stop()

	var reopened []string
	var dead []string
	b.SetCallbacks(
		func(appID, provider, publicURL string) { reopened = append(reopened, provider) },
		func(appID string) { dead = append(dead, appID) },
	)

	if _, err := b.Open(context.Background(), "app-1", 8080, []string{"a", "b"}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	b.mu.Lock()
	o := b.open["app-1"]
	b.mu.Unlock()

	for i := 0; i < maxConsecutiveFailures; i++ {
		b.reprobeOne(o)
	}

	if provider, ok := b.Info("app-1"); !ok || provider != "b" {
		t.Fatalf("Info() after failover = (%q, %v), want (\"b\", true)", provider, ok)
	}
	if len(reopened) != 1 || reopened[0] != "b" {
		t.Fatalf("onReopened calls = %v, want [b]", reopened)
	}
	if len(dead) != 0 {
		t.Fatalf("onDead calls = %v, want none", dead)
	}
}

func TestReprobeCallsOnDeadWhenEveryProviderExhausted(t *testing.T) {
	onlyProvider := &fakeProvider{name: "a", probeFn: func(context.Context, Handle) (bool, error) { return false, nil }}
	b := New([]Provider{onlyProvider}, credsource.Static{}, nil)
	defer b.Stop()

	var dead []string
	b.SetCallbacks(nil, func(appID string) { dead = append(dead, appID) })

	if _, err := b.Open(context.Background(), "app-1", 8080, []string{"a"}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	b.mu.Lock()
	o := b.open["app-1"]
	b.mu.Unlock()

	for i := 0; i < maxConsecutiveFailures; i++ {
		b.reprobeOne(o)
	}

	if _, ok := b.Info("app-1"); ok {
		t.Fatal("Info() still reports a tunnel after every provider was exhausted")
	}
	if len(dead) != 1 || dead[0] != "app-1" {
		t.Fatalf("onDead calls = %v, want [app-1]", dead)
	}
}

func TestRemainingPreferences(t *testing.T) {
	prefs := []string{"a", "b", "c"}
	if got := remainingPreferences(prefs, "a"); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("remainingPreferences(prefs, a) = %v, want [b c]", got)
	}
	if got := remainingPreferences(prefs, "c"); len(got) != 0 {
		t.Fatalf("remainingPreferences(prefs, c) = %v, want []", got)
	}
	if got := remainingPreferences(prefs, "z"); got != nil {
		t.Fatalf("remainingPreferences(prefs, z) = %v, want nil", got)
	}
}
