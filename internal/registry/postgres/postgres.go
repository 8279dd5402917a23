// Package postgres registers the "postgres" registry.Store backend,
// storing each AppRecord as a JSONB column keyed by app id, via
// jackc/pgx/v5's stdlib-compatible driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
)

func init() {
	registry.RegisterBackend("postgres", func(cfg registry.Config) (registry.Store, error) {
		return Open(cfg)
	})
	registry.RegisterBackend("postgresql", func(cfg registry.Config) (registry.Store, error) {
		return Open(cfg)
	})
}

type store struct {
	db    *sql.DB
	table string
}

func Open(cfg registry.Config) (registry.Store, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, sslMode)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to open postgres registry database", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to ping postgres registry database", err)
	}
	table := cfg.Table
	if table == "" {
		table = "app_records"
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
		record JSONB NOT NULL
	)`)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to create registry table", err)
	}
	return nil
}

func (s *store) Load(ctx context.Context, appID string) (*registry.AppRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM `+s.table+` WHERE app_id = $1`, appID)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, orcherr.New(orcherr.KindIllegalState, "no app record for "+appID)
		}
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to load app record", err)
	}
	var rec registry.AppRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to decode app record", err)
	}
	return &rec, nil
}

func (s *store) Save(ctx context.Context, record *registry.AppRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to encode app record", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO `+s.table+` (app_id, record) VALUES ($1, $2)
		ON CONFLICT (app_id) DO UPDATE SET record = excluded.record`, record.AppID, raw)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to save app record", err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, appID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE app_id = $1`, appID)
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
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, orcherr.Wrap(orcherr.KindInternal, "failed to scan app record", err)
		}
		var rec registry.AppRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, orcherr.Wrap(orcherr.KindInternal, "failed to decode app record", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *store) Close() error { return s.db.Close() }
