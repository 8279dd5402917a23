// Package fleet provides best-effort batch operations across a named set
// of app ids, grounded on the teacher's internal/process_group.Group: the
// same start-with-rollback and stop/status-are-best-effort split, lifted
// from a set of process.Spec members to a set of app ids driven through
// the Lifecycle Manager.
package fleet

import (
	"context"
	"fmt"

	"github.com/loykin/orchestrator/internal/lifecycle"
	"github.com/loykin/orchestrator/internal/registry"
)

// Group names a set of app ids that are operated on together, e.g. every
// app sharing a venv or drawing from the same GPU budget.
type Group struct {
	Name   string
	AppIDs []string
}

// Fleet runs Group operations against a single Lifecycle Manager.
type Fleet struct {
	mgr *lifecycle.Manager
}

func New(mgr *lifecycle.Manager) *Fleet { return &Fleet{mgr: mgr} }

// Start starts every member in order. If any Start call fails, Start
// rolls back by stopping the members it already started in this call, in
// reverse order, and returns the first error — the same rollback
// discipline the Lifecycle Manager applies within a single app's
// install.
func (f *Fleet) Start(ctx context.Context, g Group, args map[string]string) ([]*registry.AppRecord, error) {
	started := make([]string, 0, len(g.AppIDs))
	records := make([]*registry.AppRecord, 0, len(g.AppIDs))
	for _, appID := range g.AppIDs {
		rec, err := f.mgr.Start(ctx, appID, args)
		if err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				_ = f.mgr.Stop(context.Background(), started[i])
			}
			return nil, fmt.Errorf("fleet %s start failed on %s: %w", g.Name, appID, err)
		}
		started = append(started, appID)
		records = append(records, rec)
	}
	return records, nil
}

// Stop stops every member regardless of its current state, best-effort,
// and returns the first error encountered (if any) after attempting all
// of them.
func (f *Fleet) Stop(ctx context.Context, g Group) error {
	var firstErr error
	for _, appID := range g.AppIDs {
		if err := f.mgr.Stop(ctx, appID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status returns each member's current AppRecord, keyed by app id.
// Status stops at the first lookup failure — unlike Stop, a missing
// registry entry usually means the caller passed the wrong id, not that
// one app in an otherwise-healthy fleet is unreachable.
func (f *Fleet) Status(g Group) (map[string]*registry.AppRecord, error) {
	out := make(map[string]*registry.AppRecord, len(g.AppIDs))
	for _, appID := range g.AppIDs {
		rec, err := f.mgr.Status(appID)
		if err != nil {
			return nil, fmt.Errorf("fleet %s status failed on %s: %w", g.Name, appID, err)
		}
		out[appID] = rec
	}
	return out, nil
}
