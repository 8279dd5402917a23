package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/loykin/orchestrator/internal/orcherr"
)

// Store is the persistence contract every registry backend implements.
// Load returns orcherr.KindIllegalState when appID has no record.
type Store interface {
	Load(ctx context.Context, appID string) (*AppRecord, error)
	Save(ctx context.Context, record *AppRecord) error
	Delete(ctx context.Context, appID string) error
	List(ctx context.Context) ([]*AppRecord, error)
	Close() error
}

// Config selects and parameterizes a Store backend, generalized from the
// teacher's store.Config to the registry's own backend set.
type Config struct {
	Type string // "json", "sqlite", "postgres", "dynamo"

	Path string // json, sqlite

	Host     string // postgres
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	Table  string // dynamo table name, or sqlite/postgres table name override
	Region string // dynamo
}

// Builder constructs a Store from Config, the same shape as the teacher's
// store.Builder.
type Builder func(Config) (Store, error)

var (
	buildersMu sync.RWMutex
	builders   = map[string]Builder{}
)

func init() {
	RegisterBackend("json", func(cfg Config) (Store, error) { return newJSONFileStore(cfg.Path) })
}

// RegisterBackend registers a Store constructor under name, mirroring the
// teacher's store.RegisterStoreType global-factory pattern so
// internal/registry/sqlite, /postgres, /dynamo each self-register via their
// own init() without the core registry package importing their drivers.
func RegisterBackend(name string, b Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[name] = b
}

// OpenStore builds the Store named by cfg.Type.
func OpenStore(cfg Config) (Store, error) {
	buildersMu.RLock()
	b, ok := builders[cfg.Type]
	buildersMu.RUnlock()
	if !ok {
		return nil, orcherr.New(orcherr.KindIllegalState, fmt.Sprintf("unsupported registry backend %q", cfg.Type))
	}
	return b(cfg)
}

// jsonFileStore is the default backend: the whole AppRecord map
// serialized to <platformRoot>/registry.json, written atomically on every
// save (write to .tmp, rename), per spec.md §6.2.
type jsonFileStore struct {
	mu   sync.Mutex
	path string
}

func newJSONFileStore(path string) (*jsonFileStore, error) {
	if path == "" {
		return nil, orcherr.New(orcherr.KindIllegalState, "json registry backend requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to create registry directory", err)
	}
	return &jsonFileStore{path: path}, nil
}

func (s *jsonFileStore) readAll() (map[string]*AppRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*AppRecord{}, nil
	}
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to read registry file", err)
	}
	if len(data) == 0 {
		return map[string]*AppRecord{}, nil
	}
	var m map[string]*AppRecord
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to decode registry file", err)
	}
	return m, nil
}

func (s *jsonFileStore) writeAll(m map[string]*AppRecord) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to encode registry file", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to write registry temp file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return orcherr.Wrap(orcherr.KindInternal, "failed to rename registry file into place", err)
	}
	return nil
}

func (s *jsonFileStore) Load(_ context.Context, appID string) (*AppRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readAll()
	if err != nil {
		return nil, err
	}
	rec, ok := m[appID]
	if !ok {
		return nil, orcherr.New(orcherr.KindIllegalState, "no app record for "+appID)
	}
	return rec, nil
}

func (s *jsonFileStore) Save(_ context.Context, record *AppRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readAll()
	if err != nil {
		return err
	}
	m[record.AppID] = record
	return s.writeAll(m)
}

func (s *jsonFileStore) Delete(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readAll()
	if err != nil {
		return err
	}
	delete(m, appID)
	return s.writeAll(m)
}

func (s *jsonFileStore) List(_ context.Context) ([]*AppRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readAll()
	if err != nil {
		return nil, err
	}
	out := make([]*AppRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	return out, nil
}

func (s *jsonFileStore) Close() error { return nil }
