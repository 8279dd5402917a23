package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/orchestrator/internal/config"
	"github.com/loykin/orchestrator/internal/credsource"
	"github.com/loykin/orchestrator/internal/history"
	"github.com/loykin/orchestrator/internal/history/clickhouse"
	"github.com/loykin/orchestrator/internal/history/opensearch"
	"github.com/loykin/orchestrator/internal/lifecycle"
	"github.com/loykin/orchestrator/internal/metrics"
	"github.com/loykin/orchestrator/internal/platform"
	"github.com/loykin/orchestrator/internal/registry"
	"github.com/loykin/orchestrator/internal/rpc"
	tlssetup "github.com/loykin/orchestrator/internal/tls"
	"github.com/loykin/orchestrator/internal/tunnel"
	"github.com/loykin/orchestrator/internal/tunnel/providers"
)

func createServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the orchestrator daemon in the foreground",
		Long: `serve loads a TOML config, opens the App Registry, starts the
Tunnel Broker, and exposes the RPC/Event surface until interrupted.

Examples:
  orchestratord serve --config orchestratord.toml
  orchestratord serve orchestratord.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("config file required: use --config or pass it as an argument")
			}
			return runServe(path)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to TOML daemon config file")
	return cmd
}

func runServe(configPath string) error {
	fc, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if fc.PlatformRootOverride != "" {
		if err := os.Setenv("PINOKIO_ROOT", fc.PlatformRootOverride); err != nil {
			return fmt.Errorf("setting platform root override: %w", err)
		}
	}
	profile := platform.Probe()

	backend, err := registry.OpenStore(registry.Config{
		Type:     fc.Registry.Type,
		Path:     fc.Registry.Path,
		Host:     fc.Registry.Host,
		Port:     fc.Registry.Port,
		Database: fc.Registry.Database,
		Username: fc.Registry.Username,
		Password: fc.Registry.Password,
		SSLMode:  fc.Registry.SSLMode,
		Table:    fc.Registry.Table,
		Region:   fc.Registry.Region,
	})
	if err != nil {
		return fmt.Errorf("opening registry backend %s: %w", fc.Registry.Type, err)
	}
	reg, err := registry.Open(context.Background(), backend)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	broker := buildTunnelBroker()
	defer broker.Stop()

	if err := metrics.Register(nil); err != nil {
		fmt.Printf("warning: failed to register metrics: %v\n", err)
	}

	hist, err := buildHistorySink(fc.History)
	if err != nil {
		return fmt.Errorf("configuring history sink: %w", err)
	}

	mgr := lifecycle.New(profile, reg, broker, lifecycle.Options{
		TunnelPreferences: fc.Tunnel.Preferences,
		StopGrace:         5 * time.Second,
		ReadinessTimeout:  5 * time.Minute,
		History:           hist,
	})

	var server *http.Server
	if fc.Server.TLS != nil && fc.Server.TLS.Enabled {
		tlsCfg, err := tlssetup.SetupTLS(fc.Server)
		if err != nil {
			return fmt.Errorf("setting up TLS: %w", err)
		}
		r := rpc.NewRouter(mgr, fc.Server.BasePath)
		server = &http.Server{
			Addr:              fc.Server.Listen,
			Handler:           r.Handler(),
			TLSConfig:         tlsCfg,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				fmt.Printf("HTTPS server error: %v\n", err)
			}
		}()
		fmt.Printf("orchestratord listening (HTTPS) on %s%s\n", fc.Server.Listen, fc.Server.BasePath)
	} else {
		server = rpc.NewServer(fc.Server.Listen, fc.Server.BasePath, mgr)
		fmt.Printf("orchestratord listening (HTTP) on %s%s\n", fc.Server.Listen, fc.Server.BasePath)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// buildHistorySink turns the daemon's [history] settings into a
// history.Sink. ClickHouse takes priority over OpenSearch when both are
// set, since a warehouse export usually replaces a search-index one
// rather than running alongside it. History is off (NopSink) when
// [history] is absent or not enabled, and also when it is enabled but
// names no backend URL.
func buildHistorySink(hc *config.HistoryConfig) (history.Sink, error) {
	if hc == nil || !hc.Enabled {
		return history.NopSink{}, nil
	}
	switch {
	case hc.ClickHouseURL != "":
		table := hc.ClickHouseTable
		if table == "" {
			table = "state_history"
		}
		return clickhouse.New(hc.ClickHouseURL, table)
	case hc.OpenSearchURL != "":
		index := hc.OpenSearchIndex
		if index == "" {
			index = "state-history"
		}
		return opensearch.New(hc.OpenSearchURL, index), nil
	default:
		return history.NopSink{}, nil
	}
}

// buildTunnelBroker wires every known Tunnel Broker provider; the
// preference order that decides which one actually gets tried for a
// given app comes from fc.Tunnel.Preferences at Start time, not from
// which providers are registered here. The broker's failover/dead
// callbacks are left unset here since the Lifecycle Manager they'd
// notify doesn't exist yet; lifecycle.New installs them via
// Broker.SetCallbacks once it does.
func buildTunnelBroker() *tunnel.Broker {
	provs := []tunnel.Provider{
		providers.NewCloudflareQuick(),
		providers.NewNgrok(),
		providers.NewLocalTunnel(),
	}
	creds := credsource.New("orchestrator-tunnel")
	return tunnel.New(provs, creds, nil)
}
