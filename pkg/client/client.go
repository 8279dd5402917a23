// Package client is the embeddable Go client, SPEC_FULL.md's counterpart
// to cmd/orchestratord's own unexported apiClient: a thin wrapper over
// internal/rpc's install/start/stop/uninstall/status/list/input-reply
// surface plus a websocket Watch for the event stream, for host
// applications that want to drive an orchestratord without shelling out
// to the CLI.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loykin/orchestrator/internal/lifecycle"
	"github.com/loykin/orchestrator/internal/registry"
)

// Client talks to a running orchestratord's internal/rpc HTTP and
// websocket surface.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds mutual-TLS configuration for the client, per
// SPEC_FULL.md's "mutual TLS for pkg/client" — ClientCert/ClientKey
// present the client's own identity to a daemon whose internal/tls
// listener requires one.
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 30 * time.Second,
	}
}

// DefaultTLSConfig returns default client configuration for an
// orchestratord listening on HTTPS.
func DefaultTLSConfig() Config {
	return Config{
		BaseURL: "https://127.0.0.1:8080/api",
		Timeout: 30 * time.Second,
		TLS: &TLSClientConfig{
			Enabled: true,
		},
	}
}

// InsecureConfig returns a client configuration that skips TLS
// verification, for talking to a self-signed development daemon.
func InsecureConfig() Config {
	return Config{
		BaseURL:  "https://127.0.0.1:8080/api",
		Timeout:  30 * time.Second,
		Insecure: true,
	}
}

// New creates a Client for the orchestratord at config.BaseURL.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks whether the daemon answers /list at all.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/list", nil)
	if err != nil {
		c.logger.Debug("failed to build reachability request", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Install registers appID against the daemon and runs its installer.
func (c *Client) Install(ctx context.Context, desc registry.AppDescriptor) (*registry.AppRecord, error) {
	c.logger.Debug("installing app", "appId", desc.AppID)
	var resp appResp
	if err := c.postJSON(ctx, "/install", desc, &resp); err != nil {
		return nil, err
	}
	return resp.App, nil
}

// Start runs appID's start script.
func (c *Client) Start(ctx context.Context, req StartRequest) (*registry.AppRecord, error) {
	c.logger.Debug("starting app", "appId", req.AppID)
	var resp appResp
	if err := c.postJSON(ctx, "/start", req, &resp); err != nil {
		return nil, err
	}
	return resp.App, nil
}

// Stop terminates appID's supervised process, if any.
func (c *Client) Stop(ctx context.Context, req StopRequest) error {
	c.logger.Debug("stopping app", "appId", req.AppID)
	var resp appResp
	return c.postJSON(ctx, "/stop", req, &resp)
}

// Uninstall removes appID's install root and registry entry.
func (c *Client) Uninstall(ctx context.Context, req UninstallRequest) error {
	c.logger.Debug("uninstalling app", "appId", req.AppID, "purge", req.Purge)
	var resp appResp
	return c.postJSON(ctx, "/uninstall", req, &resp)
}

// Status fetches appID's current record.
func (c *Client) Status(ctx context.Context, appID string) (*registry.AppRecord, error) {
	var resp appResp
	if err := c.getJSON(ctx, "/status?appId="+url.QueryEscape(appID), &resp); err != nil {
		return nil, err
	}
	return resp.App, nil
}

// List fetches every known app record.
func (c *Client) List(ctx context.Context) ([]*registry.AppRecord, error) {
	var resp listResp
	if err := c.getJSON(ctx, "/list", &resp); err != nil {
		return nil, err
	}
	return resp.Apps, nil
}

// InputReply answers a pending input-request event.
func (c *Client) InputReply(ctx context.Context, req InputReplyRequest) error {
	var resp appResp
	return c.postJSON(ctx, "/input-reply", req, &resp)
}

// Watch opens the daemon's event stream and delivers every lifecycle.Event
// on the returned channel until ctx is canceled or the connection drops,
// at which point the channel is closed. The dial reuses c's TLS transport
// so a mutual-TLS daemon sees the same client certificate on the
// websocket upgrade as on every other call.
func (c *Client) Watch(ctx context.Context) (<-chan lifecycle.Event, error) {
	wsURL, err := c.websocketURL("/events")
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		TLSClientConfig:  c.tlsClientConfig(),
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial events stream: %w", err)
	}

	events := make(chan lifecycle.Event)
	go func() {
		defer close(events)
		defer func() { _ = conn.Close() }()
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
		for {
			var ev lifecycle.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *Client) tlsClientConfig() *tls.Config {
	if t, ok := c.client.Transport.(*http.Transport); ok {
		return t.TLSClientConfig
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("orchestratord request failed", "error", err, "url", req.URL.String())
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("orchestratord returned %s", resp.Status)
		}
		c.logger.Error("orchestratord command failed", "kind", errResp.Kind, "error", errResp.Error)
		return fmt.Errorf("%s: %s", errResp.Kind, errResp.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// setupClientTLS configures TLS settings for the HTTP client.
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}
