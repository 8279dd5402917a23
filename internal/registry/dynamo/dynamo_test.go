package dynamo

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/orchestrator/internal/registry"
)

func startDynamoLocal(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "amazon/dynamodb-local:2.5.2",
		ExposedPorts: []string{"8000/tcp"},
		Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
		WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start dynamodb-local container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate dynamodb-local container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "8000/tcp", "http")
	if err != nil {
		t.Fatalf("failed to resolve dynamodb-local endpoint: %v", err)
	}
	t.Setenv("AWS_ACCESS_KEY_ID", "dummy")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "dummy")
	return endpoint
}

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	endpoint := startDynamoLocal(t)
	ctx := context.Background()

	s, err := Open(registry.Config{
		Type:   "dynamo",
		Host:   endpoint,
		Table:  "orchestrator_test_records",
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	rec := &registry.AppRecord{
		AppID: "test-app",
		Descriptor: registry.AppDescriptor{
			AppID:         "test-app",
			SourceLocator: "/tmp/test-app",
		},
		State: registry.StateInstalled,
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, "test-app")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.State != registry.StateInstalled {
		t.Errorf("loaded.State = %q, want %q", loaded.State, registry.StateInstalled)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List() length = %d, want 1", len(list))
	}

	if err := s.Delete(ctx, "test-app"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "test-app"); err == nil {
		t.Fatal("Load() after Delete() expected an error, got nil")
	}
}

func TestOpenDefaultsTableName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	endpoint := startDynamoLocal(t)
	s, err := Open(registry.Config{Type: "dynamo", Host: endpoint, Region: "us-east-1"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = s.Close() }()
	st, ok := s.(*store)
	if !ok {
		t.Fatalf("Open() returned %T, want *store", s)
	}
	if st.table != defaultTable {
		t.Errorf("table = %q, want %q", st.table, defaultTable)
	}
}
