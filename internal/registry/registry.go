package registry

import (
	"context"
	"sync"

	"github.com/loykin/orchestrator/internal/orcherr"
)

// Registry is the in-process front for a Store: it holds every AppRecord
// in memory for fast reads, and serializes every write through a single
// mutex so the Lifecycle Manager's "writes are serialized through a
// single writer" invariant holds regardless of which backend is behind
// it. Readers always see a consistent snapshot — a fresh Clone(), never a
// pointer into the live map.
type Registry struct {
	store Store
	mu    sync.Mutex
	cache map[string]*AppRecord
}

// Open loads every record from store into memory and returns a ready
// Registry.
func Open(ctx context.Context, store Store) (*Registry, error) {
	records, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]*AppRecord, len(records))
	for _, r := range records {
		cache[r.AppID] = r
	}
	return &Registry{store: store, cache: cache}, nil
}

// Get returns a clone of the record for appID, or an illegal-state error
// if absent.
func (r *Registry) Get(appID string) (*AppRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.cache[appID]
	if !ok {
		return nil, orcherr.New(orcherr.KindIllegalState, "no app record for "+appID)
	}
	return rec.Clone(), nil
}

// Exists reports whether a record for appID exists without erroring.
func (r *Registry) Exists(appID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cache[appID]
	return ok
}

// List returns a clone of every record currently known.
func (r *Registry) List() []*AppRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*AppRecord, 0, len(r.cache))
	for _, rec := range r.cache {
		out = append(out, rec.Clone())
	}
	return out
}

// Put persists record (the Lifecycle Manager's sole write path for state
// transitions) and updates the in-memory cache only after the backend
// write succeeds, so a crash mid-write never leaves the cache ahead of
// disk.
func (r *Registry) Put(ctx context.Context, record *AppRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Save(ctx, record); err != nil {
		return err
	}
	r.cache[record.AppID] = record.Clone()
	return nil
}

// Remove deletes appID from both backend and cache, the uninstall path's
// final step.
func (r *Registry) Remove(ctx context.Context, appID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Delete(ctx, appID); err != nil {
		return err
	}
	delete(r.cache, appID)
	return nil
}

func (r *Registry) Close() error { return r.store.Close() }
