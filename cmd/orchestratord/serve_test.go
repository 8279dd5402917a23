package main

import (
	"testing"

	"github.com/loykin/orchestrator/internal/config"
	"github.com/loykin/orchestrator/internal/history"
)

func TestBuildHistorySinkNilConfig(t *testing.T) {
	sink, err := buildHistorySink(nil)
	if err != nil {
		t.Fatalf("buildHistorySink(nil) error = %v", err)
	}
	if _, ok := sink.(history.NopSink); !ok {
		t.Errorf("expected NopSink, got %T", sink)
	}
}

func TestBuildHistorySinkDisabled(t *testing.T) {
	sink, err := buildHistorySink(&config.HistoryConfig{Enabled: false, OpenSearchURL: "http://localhost:9200"})
	if err != nil {
		t.Fatalf("buildHistorySink() error = %v", err)
	}
	if _, ok := sink.(history.NopSink); !ok {
		t.Errorf("expected NopSink when disabled, got %T", sink)
	}
}

func TestBuildHistorySinkNoBackendConfigured(t *testing.T) {
	sink, err := buildHistorySink(&config.HistoryConfig{Enabled: true})
	if err != nil {
		t.Fatalf("buildHistorySink() error = %v", err)
	}
	if _, ok := sink.(history.NopSink); !ok {
		t.Errorf("expected NopSink when no backend URL set, got %T", sink)
	}
}

func TestBuildHistorySinkOpenSearch(t *testing.T) {
	sink, err := buildHistorySink(&config.HistoryConfig{
		Enabled:       true,
		OpenSearchURL: "http://localhost:9200",
	})
	if err != nil {
		t.Fatalf("buildHistorySink() error = %v", err)
	}
	if sink == nil {
		t.Fatal("expected non-nil sink")
	}
	if _, ok := sink.(history.NopSink); ok {
		t.Error("expected an OpenSearch sink, got NopSink")
	}
}

func TestBuildHistorySinkClickHousePreferredOverOpenSearch(t *testing.T) {
	// ClickHouse.New dials eagerly, so point it at an address nothing is
	// listening on and only assert it was the branch actually taken.
	_, err := buildHistorySink(&config.HistoryConfig{
		Enabled:       true,
		ClickHouseURL: "127.0.0.1:1",
		OpenSearchURL: "http://localhost:9200",
	})
	if err == nil {
		t.Fatal("expected a connection error from the unreachable ClickHouse address")
	}
}

func TestBuildTunnelBrokerReturnsNonNil(t *testing.T) {
	broker := buildTunnelBroker()
	if broker == nil {
		t.Fatal("expected non-nil broker")
	}
	broker.Stop()
}
