// Package sqlite registers the "sqlite" registry.Store backend: the
// AppRecord map kept in a single table, one row per app id, the record
// itself stored as a JSON blob — the same "whole-document" persistence
// style as the default JSON file backend, just behind a SQL connection
// instead of a bare file, for deployments that already run a sidecar
// database rather than a bind-mounted data directory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
)

func init() {
	registry.RegisterBackend("sqlite", func(cfg registry.Config) (registry.Store, error) {
		return Open(cfg)
	})
}

type store struct {
	db    *sql.DB
	table string
}

// Open connects to cfg.Path (":memory:" if empty, matching the teacher's
// SQLite store default) and ensures the app_records table exists.
func Open(cfg registry.Config) (registry.Store, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	table := cfg.Table
	if table == "" {
		table = "app_records"
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to open sqlite registry database", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to ping sqlite registry database", err)
	}
	s := &store{db: db, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		app_id TEXT PRIMARY KEY,
		record TEXT NOT NULL
	)`)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to create registry table", err)
	}
	return nil
}

func (s *store) Load(ctx context.Context, appID string) (*registry.AppRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM `+s.table+` WHERE app_id = ?`, appID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, orcherr.New(orcherr.KindIllegalState, "no app record for "+appID)
		}
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to load app record", err)
	}
	var rec registry.AppRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to decode app record", err)
	}
	return &rec, nil
}

func (s *store) Save(ctx context.Context, record *registry.AppRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to encode app record", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO `+s.table+` (app_id, record) VALUES (?, ?)
		ON CONFLICT(app_id) DO UPDATE SET record = excluded.record`, record.AppID, string(raw))
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to save app record", err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, appID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE app_id = ?`, appID)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to delete app record", err)
	}
	return nil
}

func (s *store) List(ctx context.Context) ([]*registry.AppRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM `+s.table)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to list app records", err)
	}
	defer rows.Close()
	var out []*registry.AppRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, orcherr.Wrap(orcherr.KindInternal, "failed to scan app record", err)
		}
		var rec registry.AppRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, orcherr.Wrap(orcherr.KindInternal, "failed to decode app record", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *store) Close() error { return s.db.Close() }
