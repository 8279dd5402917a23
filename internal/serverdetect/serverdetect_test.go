package serverdetect

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/shell"
)

func TestDetect_EventDriven(t *testing.T) {
	lines := make(chan shell.Line, 4)
	lines <- shell.Line{Stream: "stdout", Text: "starting up"}
	lines <- shell.Line{Stream: "stdout", Text: "Running on http://0.0.0.0:7861"}
	close(lines)

	res, err := Detect(context.Background(), lines, `:(\d+)`, "127.0.0.1", DefaultScanRange(), 2*time.Second)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if res.Port != 7861 {
		t.Errorf("Detect() port = %d, want 7861", res.Port)
	}
	if res.Method != "event" {
		t.Errorf("Detect() method = %q, want %q", res.Method, "event")
	}
}

func TestDetect_ScanFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi() error = %v", err)
	}

	scan := ScanRange{Low: port, High: port, Interval: 20 * time.Millisecond}
	lines := make(chan shell.Line)
	defer close(lines)

	res, err := Detect(context.Background(), lines, "", "127.0.0.1", scan, 2*time.Second)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if res.Port != port {
		t.Errorf("Detect() port = %d, want %d", res.Port, port)
	}
	if res.Method != "scan" {
		t.Errorf("Detect() method = %q, want %q", res.Method, "scan")
	}
}

func TestDetect_TimeoutSurfacesReadinessTimeout(t *testing.T) {
	lines := make(chan shell.Line)
	defer close(lines)

	scan := ScanRange{Low: 1, High: 1, Interval: 10 * time.Millisecond}
	_, err := Detect(context.Background(), lines, "", "127.0.0.1", scan, 100*time.Millisecond)
	if err == nil {
		t.Fatal("Detect() error = nil, want readiness timeout")
	}
	if orcherr.KindOf(err) != orcherr.KindReadinessTimeout {
		t.Errorf("Detect() kind = %v, want %v", orcherr.KindOf(err), orcherr.KindReadinessTimeout)
	}
}

func TestDefaultScanRange(t *testing.T) {
	r := DefaultScanRange()
	if r.Low >= r.High {
		t.Errorf("DefaultScanRange() Low=%d High=%d, want Low < High", r.Low, r.High)
	}
	if len(r.AllowList) == 0 {
		t.Error("DefaultScanRange() AllowList is empty")
	}
}
