package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zen-systems/finroute/pkg/health"
	"github.com/zen-systems/finroute/pkg/responder"
)

const schema = `
CREATE TABLE IF NOT EXISTS responders (
	id             TEXT PRIMARY KEY,
	position       INTEGER NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	kind           TEXT NOT NULL DEFAULT 'general',
	active         INTEGER NOT NULL DEFAULT 1,
	is_local       INTEGER NOT NULL DEFAULT 1,
	priority       INTEGER NOT NULL DEFAULT 5,
	jurisdictions  TEXT NOT NULL DEFAULT '[]',
	adapter        TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	endpoint       TEXT NOT NULL DEFAULT '',
	system_prompt  TEXT NOT NULL DEFAULT '',
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS invocations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	responder_id  TEXT NOT NULL,
	request_id    TEXT,
	success       INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	error         TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invocations_responder ON invocations(responder_id, id);
`

// ErrNotFound is returned when a responder id is not stored.
var ErrNotFound = errors.New("responder not found")

// Store persists responder descriptors and invocation history in SQLite. It
// implements responder.Provider and health.Observer.
type Store struct {
	db   *sql.DB
	logf func(format string, args ...any)
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, logf: log.Printf}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetLogger replaces the logger used for write failures in ObserveInvocation.
func (s *Store) SetLogger(logf func(format string, args ...any)) {
	if logf != nil {
		s.logf = logf
	}
}

// UpsertResponder inserts or updates d. New responders are appended to the
// registry order; existing ones keep their position.
func (s *Store) UpsertResponder(ctx context.Context, d responder.Descriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := upsert(ctx, tx, d); err != nil {
		return err
	}
	return tx.Commit()
}

// ImportResponders upserts every descriptor in order within one transaction.
func (s *Store) ImportResponders(ctx context.Context, descriptors []responder.Descriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, d := range descriptors {
		if err := upsert(ctx, tx, d); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, d responder.Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("responder descriptor without id")
	}
	juris, err := json.Marshal(nonNil(d.JurisdictionAffinity))
	if err != nil {
		return fmt.Errorf("marshal jurisdictions: %w", err)
	}
	kind := string(d.Kind)
	if kind == "" {
		kind = string(responder.KindGeneral)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO responders (id, position, name, kind, active, is_local, priority, jurisdictions,
		                        adapter, model, endpoint, system_prompt, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM responders), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			active = excluded.active,
			is_local = excluded.is_local,
			priority = excluded.priority,
			jurisdictions = excluded.jurisdictions,
			adapter = excluded.adapter,
			model = excluded.model,
			endpoint = excluded.endpoint,
			system_prompt = excluded.system_prompt,
			updated_at = excluded.updated_at`,
		d.ID, d.Name, kind, boolInt(d.Active), boolInt(d.IsLocal), d.StaticPriority, string(juris),
		d.Adapter, d.Model, d.Endpoint, d.SystemPrompt, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert responder %s: %w", d.ID, err)
	}
	return nil
}

// SetActive toggles a responder. Takes effect on the next registry reload.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE responders SET active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update responder %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteResponder removes a responder. Its invocation history is kept.
func (s *Store) DeleteResponder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete responder %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ListResponders returns every stored descriptor in registry order.
func (s *Store) ListResponders(ctx context.Context) ([]responder.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, active, is_local, priority, jurisdictions, adapter, model, endpoint, system_prompt
		FROM responders ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query responders: %w", err)
	}
	defer rows.Close()

	var out []responder.Descriptor
	for rows.Next() {
		var (
			d             responder.Descriptor
			kind, juris   string
			active, local int
		)
		if err := rows.Scan(&d.ID, &d.Name, &kind, &active, &local, &d.StaticPriority, &juris,
			&d.Adapter, &d.Model, &d.Endpoint, &d.SystemPrompt); err != nil {
			return nil, fmt.Errorf("scan responder: %w", err)
		}
		d.Kind = responder.Kind(kind)
		d.Active = active != 0
		d.IsLocal = local != 0
		if err := json.Unmarshal([]byte(juris), &d.JurisdictionAffinity); err != nil {
			return nil, fmt.Errorf("decode jurisdictions of %s: %w", d.ID, err)
		}
		if len(d.JurisdictionAffinity) == 0 {
			d.JurisdictionAffinity = nil
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ObserveInvocation records inv, logging rather than returning write failures.
func (s *Store) ObserveInvocation(inv health.Invocation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.RecordInvocation(ctx, inv); err != nil {
		s.logf("[store] failed to record invocation of %s: %v", inv.ResponderID, err)
	}
}

// RecordInvocation appends one invocation to the history.
func (s *Store) RecordInvocation(ctx context.Context, inv health.Invocation) error {
	at := inv.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (responder_id, request_id, success, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ResponderID, nullString(inv.RequestID), boolInt(inv.Success), inv.Duration.Milliseconds(),
		nullString(inv.Error), at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// RecentInvocations returns up to limit invocations, newest first.
func (s *Store) RecentInvocations(ctx context.Context, limit int) ([]health.Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT responder_id, request_id, success, duration_ms, error, created_at
		FROM invocations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var out []health.Invocation
	for rows.Next() {
		var (
			inv        health.Invocation
			requestID  sql.NullString
			errText    sql.NullString
			success    int
			durationMs int64
			createdAt  string
		)
		if err := rows.Scan(&inv.ResponderID, &requestID, &success, &durationMs, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.RequestID = requestID.String
		inv.Error = errText.String
		inv.Success = success != 0
		inv.Duration = time.Duration(durationMs) * time.Millisecond
		inv.At, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Replay feeds up to limit past invocations, oldest first, into obs. Used to
// warm the health monitor on startup.
func (s *Store) Replay(ctx context.Context, obs health.Observer, limit int) (int, error) {
	recent, err := s.RecentInvocations(ctx, limit)
	if err != nil {
		return 0, err
	}
	for i := len(recent) - 1; i >= 0; i-- {
		obs.ObserveInvocation(recent[i])
	}
	return len(recent), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
