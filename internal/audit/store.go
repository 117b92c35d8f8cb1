// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package audit records plugin lifecycle results in PostgreSQL.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/modreload/internal/reload"
)

// CodeSchemaMissing is returned when the audit table does not exist.
const CodeSchemaMissing = "AUDIT_SCHEMA_MISSING"

// poolIface is the subset of pgxpool.Pool the store uses.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Event is one recorded lifecycle result.
type Event struct {
	ID        ulid.ULID
	Plugin    string
	Action    string
	Status    string
	Code      string
	Message   string
	PluginID  string
	CreatedAt time.Time
}

// Store persists lifecycle events. It implements reload.Recorder.
type Store struct {
	pool poolIface
	now  func() time.Time
}

// NewStore creates a store over pool.
func NewStore(pool poolIface) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Connect opens a connection pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.In("audit").With("operation", "connect").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.In("audit").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// Record stores r.
func (s *Store) Record(ctx context.Context, r reload.Result) error {
	e := Event{
		ID:        ulid.Make(),
		Plugin:    r.Name,
		Action:    string(r.Action),
		Status:    string(r.Outcome.Status),
		Code:      reload.Code(r.Err),
		Message:   r.Message,
		PluginID:  r.Outcome.PluginID,
		CreatedAt: s.now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO lifecycle_events (id, plugin, action, status, code, message, plugin_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID.String(), e.Plugin, e.Action, e.Status, e.Code, e.Message, e.PluginID, e.CreatedAt)
	if err != nil {
		return wrapErr(err, "record lifecycle event", e.Plugin)
	}
	return nil
}

// Recent returns up to limit events, newest first. A non-empty plugin
// restricts the events to that plugin name, matched case-insensitively.
func (s *Store) Recent(ctx context.Context, plugin string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, oops.In("audit").With("limit", limit).Errorf("limit must be positive")
	}

	var rows pgx.Rows
	var err error
	if plugin == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT id, plugin, action, status, code, message, plugin_id, created_at
			 FROM lifecycle_events ORDER BY id DESC LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, plugin, action, status, code, message, plugin_id, created_at
			 FROM lifecycle_events WHERE lower(plugin) = $1 ORDER BY id DESC LIMIT $2`,
			strings.ToLower(plugin), limit)
	}
	if err != nil {
		return nil, wrapErr(err, "query lifecycle events", plugin)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var id string
		if err := rows.Scan(&id, &e.Plugin, &e.Action, &e.Status, &e.Code, &e.Message, &e.PluginID, &e.CreatedAt); err != nil {
			return nil, oops.In("audit").With("operation", "scan lifecycle event").Wrap(err)
		}
		e.ID, err = ulid.Parse(id)
		if err != nil {
			return nil, oops.In("audit").With("operation", "parse event id").With("id", id).Wrap(err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("audit").With("operation", "iterate lifecycle events").Wrap(err)
	}
	return events, nil
}

func wrapErr(err error, operation, plugin string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return oops.Code(CodeSchemaMissing).
			In("audit").
			With("operation", operation).
			Hint("run 'modreload migrate up'").
			Wrap(err)
	}
	return oops.In("audit").With("operation", operation).With("plugin", plugin).Wrap(err)
}
