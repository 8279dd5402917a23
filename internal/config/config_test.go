package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "orchestratord.toml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	p := writeTOML(t, `platform_root = "/srv/pinokio"`)
	fc, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fc.PlatformRootOverride != "/srv/pinokio" {
		t.Fatalf("PlatformRootOverride = %q", fc.PlatformRootOverride)
	}
	if fc.Server.Listen != ":8080" {
		t.Fatalf("Server.Listen default = %q, want :8080", fc.Server.Listen)
	}
	if fc.Registry.Type != "json" {
		t.Fatalf("Registry.Type default = %q, want json", fc.Registry.Type)
	}
}

func TestLoadFull(t *testing.T) {
	p := writeTOML(t, `
platform_root = "/srv/pinokio"

[registry]
type = "postgres"
host = "db.internal"
port = 5432
database = "orchestrator"
username = "orch"
password = "secret"
sslmode = "require"

[tunnel]
preferences = ["cloudflared", "ngrok"]

[server]
listen = ":9443"
base_path = "/api/v1"
tls_min_version = "1.2"

[server.tls]
enabled = true
auto_generate = true

[server.tls.auto_gen]
common_name = "orchestrator.local"
organization = "orchestrator"
dns_names = ["orchestrator.local"]
valid_days = 365

[history]
enabled = true
in_store = false
opensearch_url = "http://localhost:9200"
opensearch_index = "orchestrator-history"
`)
	fc, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fc.Registry.Type != "postgres" || fc.Registry.Host != "db.internal" || fc.Registry.Port != 5432 {
		t.Fatalf("unexpected registry config: %+v", fc.Registry)
	}
	if len(fc.Tunnel.Preferences) != 2 || fc.Tunnel.Preferences[0] != "cloudflared" {
		t.Fatalf("unexpected tunnel preferences: %+v", fc.Tunnel.Preferences)
	}
	if fc.Server.Listen != ":9443" || fc.Server.BasePath != "/api/v1" {
		t.Fatalf("unexpected server config: %+v", fc.Server)
	}
	if fc.Server.TLS == nil || !fc.Server.TLS.Enabled || !fc.Server.TLS.AutoGenerate {
		t.Fatalf("unexpected tls config: %+v", fc.Server.TLS)
	}
	if fc.Server.TLS.AutoGen == nil || fc.Server.TLS.AutoGen.CommonName != "orchestrator.local" || fc.Server.TLS.AutoGen.ValidDays != 365 {
		t.Fatalf("unexpected auto-gen config: %+v", fc.Server.TLS.AutoGen)
	}
	if fc.History == nil || !fc.History.Enabled || fc.History.InStore == nil || *fc.History.InStore {
		t.Fatalf("unexpected history config: %+v", fc.History)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load() on missing file expected error, got nil")
	}
}

func TestLoadHistoryFromTOML(t *testing.T) {
	p := writeTOML(t, `
[history]
enabled = true
in_store = false
opensearch_url = "http://localhost:9200"
opensearch_index = "orchestrator-history"
clickhouse_url = "http://localhost:8123"
clickhouse_table = "default.orchestrator_history"
`)
	hc, err := LoadHistoryFromTOML(p)
	if err != nil {
		t.Fatalf("LoadHistoryFromTOML() error = %v", err)
	}
	if hc == nil || !hc.Enabled || hc.InStore == nil || *hc.InStore {
		t.Fatalf("unexpected history config: %+v", hc)
	}
	if hc.OpenSearchURL == "" || hc.OpenSearchIndex == "" || hc.ClickHouseURL == "" || hc.ClickHouseTable == "" {
		t.Fatalf("missing history fields: %+v", hc)
	}
}

func TestLoadHistoryFromTOMLAbsent(t *testing.T) {
	p := writeTOML(t, `platform_root = "/srv/pinokio"`)
	hc, err := LoadHistoryFromTOML(p)
	if err != nil {
		t.Fatalf("LoadHistoryFromTOML() error = %v", err)
	}
	if hc != nil {
		t.Fatalf("expected nil history config, got %+v", hc)
	}
}
