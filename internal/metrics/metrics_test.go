package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
}

func TestRegisterDefaultsToDefaultRegisterer(t *testing.T) {
	regOK.Store(false)
	if err := Register(nil); err != nil {
		t.Fatalf("Register(nil) error = %v", err)
	}
	regOK.Store(true)
}

func TestCountersIncrementAfterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	regOK.Store(false)
	if err := Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	IncInstall("demo-app", "ok")
	IncStart("demo-app", "ok")
	IncStop("demo-app")
	RecordStateTransition("demo-app", "installed", "starting")
	SetCurrentState("demo-app", "running", true)
	IncTunnelOpen("cloudflare-quick")
	IncTunnelFailure("ngrok")
	IncScriptStepOutcome("shell.run", "ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected at least one gathered metric family")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("Handler() status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_") {
		t.Fatalf("expected default Go collector output, got: %s", rec.Body.String())
	}
}
