package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateInstallCommandRequiresFlags(t *testing.T) {
	cmd := createInstallCommand(&GlobalFlags{})
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error when --app-id/--source are missing")
	}
}

func TestCreateInstallCommandPosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/install" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"app":{"appId":"sd-webui","state":"Installed"}}`))
	}))
	defer server.Close()

	g := &GlobalFlags{APIUrl: server.URL}
	cmd := createInstallCommand(g)
	cmd.SetArgs([]string{"--app-id", "sd-webui", "--source", "https://example.com/sd-webui"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestCreateStartCommandRequiresAppID(t *testing.T) {
	cmd := createStartCommand(&GlobalFlags{})
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error when --app-id is missing")
	}
}

func TestCreateStopCommandPosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stop" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	g := &GlobalFlags{APIUrl: server.URL}
	cmd := createStopCommand(g)
	cmd.SetArgs([]string{"--app-id", "sd-webui"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestCreateUninstallCommandPurgeFlag(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uninstall" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	g := &GlobalFlags{APIUrl: server.URL}
	cmd := createUninstallCommand(g)
	cmd.SetArgs([]string{"--app-id", "sd-webui", "--purge"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotBody["purge"] != true {
		t.Errorf("expected purge=true in request body, got %+v", gotBody)
	}
}

func TestCreateStatusCommandGets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" || r.URL.Query().Get("appId") != "sd-webui" {
			t.Errorf("unexpected request: %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"app":{"appId":"sd-webui"}}`))
	}))
	defer server.Close()

	g := &GlobalFlags{APIUrl: server.URL}
	cmd := createStatusCommand(g)
	cmd.SetArgs([]string{"--app-id", "sd-webui"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestCreateListCommandGets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"apps":[]}`))
	}))
	defer server.Close()

	g := &GlobalFlags{APIUrl: server.URL}
	cmd := createListCommand(g)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}
