package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/orchestrator/internal/lifecycle"
	"github.com/loykin/orchestrator/internal/platform"
	"github.com/loykin/orchestrator/internal/registry"
)

func setupRouter(t *testing.T, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	t.Setenv("PLATFORM_OVERRIDE", "generic-linux")
	t.Setenv("PINOKIO_ROOT", root)
	profile := platform.Probe()

	backend, err := registry.OpenStore(registry.Config{Type: "json", Path: filepath.Join(root, "registry.json")})
	if err != nil {
		t.Fatalf("registry.OpenStore() error = %v", err)
	}
	reg, err := registry.Open(context.Background(), backend)
	if err != nil {
		t.Fatalf("registry.Open() error = %v", err)
	}
	mgr := lifecycle.New(profile, reg, nil, lifecycle.Options{StopGrace: time.Second})

	r := NewRouter(mgr, base)
	return r.Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInstallMissingAppID(t *testing.T) {
	h := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/install", registry.AppDescriptor{SourceLocator: "/tmp/whatever"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInstallAndList(t *testing.T) {
	h := setupRouter(t, "/api")
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "install.json"), []byte(`{"version":"1","run":[]}`), 0o640); err != nil {
		t.Fatalf("write install.json: %v", err)
	}

	rec := doReq(t, h, http.MethodPost, "/api/install", registry.AppDescriptor{AppID: "web-app", SourceLocator: src})
	if rec.Code != http.StatusOK {
		t.Fatalf("install expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doReq(t, h, http.MethodGet, "/api/list", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Apps []registry.AppRecord `json:"apps"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal list response: %v", err)
	}
	if len(body.Apps) != 1 || body.Apps[0].AppID != "web-app" {
		t.Fatalf("unexpected list response: %+v", body.Apps)
	}
}

func TestStatusRequiresAppID(t *testing.T) {
	h := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStopUnknownApp(t *testing.T) {
	h := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/stop", appIDReq{AppID: "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
