package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/orchestrator/internal/history"
)

func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start clickhouse container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	return container, host + ":" + port.Port()
}

func setupSinkWithTable(ctx context.Context, t *testing.T, dsn, table string) *Sink {
	t.Helper()

	sink, err := New(dsn, table)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	err = sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+table+` (
			type String,
			occurred_at DateTime64(6),
			app_id String,
			state_from String,
			state_to String,
			detail String
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, app_id)
	`)
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	return sink
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, dsn := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate clickhouse container: %v", err)
		}
	}()

	sink := setupSinkWithTable(ctx, t, dsn, "state_history")
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("failed to close sink: %v", err)
		}
	}()

	if err := sink.Send(ctx, history.Event{
		Type:       history.EventStateChanged,
		OccurredAt: time.Now().UTC(),
		AppID:      "test-app",
		From:       "Installing",
		To:         "Installed",
	}); err != nil {
		t.Fatalf("failed to send event: %v", err)
	}

	stopTime := time.Now().UTC()
	if err := sink.Send(ctx, history.Event{
		Type:       history.EventStateChanged,
		OccurredAt: stopTime,
		AppID:      "test-app",
		From:       "Running",
		To:         "Stopped",
	}); err != nil {
		t.Fatalf("failed to send event: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	row := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM state_history WHERE app_id = ?", "test-app")
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to query count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	_, err := New("invalid-host:9000", "state_history")
	if err == nil {
		t.Error("expected error with invalid connection, got nil")
	}
}
