// Package config loads orchestratord's daemon-level settings from TOML,
// grounded on the teacher's viper.New/SetConfigFile/SetConfigType/
// ReadInConfig/Unmarshal loading sequence, generalized from per-process
// specs to the orchestrator's platform/registry/tunnel/server/history
// settings. Per-app installs are never controlled from here — only the
// AppDescriptor and the app's own script drive those.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileConfig is the top-level TOML structure for orchestratord serve.
type FileConfig struct {
	Env                  []string       `toml:"env" mapstructure:"env"`
	EnvFiles             []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv             bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	PlatformRootOverride string         `toml:"platform_root" mapstructure:"platform_root"`
	Registry             RegistryConfig `toml:"registry" mapstructure:"registry"`
	Tunnel               TunnelConfig   `toml:"tunnel" mapstructure:"tunnel"`
	Server               ServerConfig   `toml:"server" mapstructure:"server"`
	History              *HistoryConfig `toml:"history" mapstructure:"history"`
}

// RegistryConfig selects and parameterizes the App Registry's Store
// backend, mirroring internal/registry.Config's field set so the daemon
// config can be unmarshaled straight into one.
type RegistryConfig struct {
	Type     string `toml:"type" mapstructure:"type"` // "json", "sqlite", "postgres", "dynamo"
	Path     string `toml:"path" mapstructure:"path"`
	Host     string `toml:"host" mapstructure:"host"`
	Port     int    `toml:"port" mapstructure:"port"`
	Database string `toml:"database" mapstructure:"database"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	SSLMode  string `toml:"sslmode" mapstructure:"sslmode"`
	Table    string `toml:"table" mapstructure:"table"`
	Region   string `toml:"region" mapstructure:"region"`
}

// TunnelConfig orders the Tunnel Broker's provider preference list.
type TunnelConfig struct {
	Preferences []string `toml:"preferences" mapstructure:"preferences"`
}

// ServerConfig configures the RPC surface's HTTP(S) listener, consumed
// by internal/rpc.NewServer and internal/tls.SetupTLS.
type ServerConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
}

// TLSConfig configures internal/tls.SetupTLS: either a cert/key pair on
// disk, or a self-signed pair generated on startup via AutoGen.
type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

// AutoGenTLS parameterizes internal/tls's self-signed certificate
// generation when no cert/key pair is supplied.
type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// HistoryConfig names the audit-trail sink that mirrors state-changed
// events for later query, keyed the same way the teacher keys its own
// optional export sinks (enabled flag plus one URL per backend).
type HistoryConfig struct {
	Enabled         bool   `toml:"enabled" mapstructure:"enabled"`
	InStore         *bool  `toml:"in_store" mapstructure:"in_store"`
	OpenSearchURL   string `toml:"opensearch_url" mapstructure:"opensearch_url"`
	OpenSearchIndex string `toml:"opensearch_index" mapstructure:"opensearch_index"`
	ClickHouseURL   string `toml:"clickhouse_url" mapstructure:"clickhouse_url"`
	ClickHouseTable string `toml:"clickhouse_table" mapstructure:"clickhouse_table"`
}

// Load reads and unmarshals a TOML daemon config file at path.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("registry.type", "json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	return &fc, nil
}

// LoadHistoryFromTOML parses only the [history] table, for callers that
// wire audit export independently of the rest of the daemon config.
func LoadHistoryFromTOML(path string) (*HistoryConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return fc.History, nil
}

// LoadEnvFromTOML parses only the top-level env list from TOML.
func LoadEnvFromTOML(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return fc.Env, nil
}

// LoadGlobalEnv merges env from config: top-level env, env_files contents, and optionally OS env when UseOSEnv is true.
// Precedence: OS env (when enabled) provides base; then apply file vars; then top-level env list overrides last.
func LoadGlobalEnv(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	m := make(map[string]string)
	// base: optional OS env
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				k := kv[:i]
				v := kv[i+1:]
				m[k] = v
			}
		}
	}
	// load files in order
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	// apply top-level env overrides
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			m[k] = v
		}
	}
	// build slice
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
