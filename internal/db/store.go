package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

// Query caps for a center load.
const (
	MaxTaxpayers = 2000
	MaxActions   = 5000
)

const schema = `
	CREATE TABLE IF NOT EXISTS taxpayers (
		center_id TEXT NOT NULL,
		external_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		company_type TEXT NOT NULL DEFAULT '',
		ca REAL NOT NULL DEFAULT 0,
		debt REAL NOT NULL DEFAULT 0,
		age_days INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'Normal',
		ifu TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		last_action_at INTEGER,
		updated_at INTEGER NOT NULL,
		UNIQUE(center_id, external_id)
	);

	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		center_id TEXT NOT NULL,
		type TEXT NOT NULL,
		taxpayer_external_id TEXT NOT NULL,
		at INTEGER NOT NULL,
		meta TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS actions_center_at ON actions(center_id, at);

	CREATE TABLE IF NOT EXISTS week_plans (
		center_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL DEFAULT '{}',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
`

// Store provides access to the FiscOps relational store.
type Store struct {
	db *sql.DB
}

// DSN turns a configured remote URL into a modernc sqlite DSN. Plain paths
// get WAL and a busy timeout; file: URIs and :memory: pass through.
func DSN(url string) string {
	url = strings.TrimPrefix(url, "sqlite://")
	if url == ":memory:" || strings.HasPrefix(url, "file:") {
		return url
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", url)
}

// Open opens the store at url and creates the schema if needed.
func Open(url string) (*Store, error) {
	dsn := DSN(url)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// Every pooled connection to :memory: would be a new database.
		db.SetMaxOpenConns(1)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Taxpayers returns the center's taxpayers, most recently updated first.
func (s *Store) Taxpayers(ctx context.Context, centerID string, limit int) ([]Taxpayer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, name, sector, company_type, ca, debt, age_days,
			status, ifu, notes, last_action_at
		FROM taxpayers
		WHERE center_id = ?
		ORDER BY updated_at DESC, external_id ASC
		LIMIT ?
	`, centerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query taxpayers: %w", err)
	}
	defer rows.Close()

	taxpayers := []Taxpayer{}
	for rows.Next() {
		var t Taxpayer
		var lastAction sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Name, &t.Sector, &t.Type, &t.Revenue, &t.Debt,
			&t.AgeDays, &t.Status, &t.Segment, &t.Notes, &lastAction); err != nil {
			return nil, fmt.Errorf("scan taxpayer: %w", err)
		}
		if lastAction.Valid {
			at := timeFromUnix(lastAction.Int64)
			t.LastActionAt = &at
		}
		taxpayers = append(taxpayers, t)
	}
	return taxpayers, rows.Err()
}

// Actions returns the center's action log, most recent first.
func (s *Store) Actions(ctx context.Context, centerID string, limit int) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, taxpayer_external_id, at, meta
		FROM actions
		WHERE center_id = ?
		ORDER BY at DESC
		LIMIT ?
	`, centerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := []Action{}
	for rows.Next() {
		var a Action
		var at int64
		var meta string
		if err := rows.Scan(&a.ID, &a.Type, &a.TaxpayerID, &at, &meta); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.At = timeFromUnix(at)
		a.Meta = map[string]any{}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &a.Meta); err != nil {
				return nil, fmt.Errorf("decode action %s meta: %w", a.ID, err)
			}
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// WeekPlan returns the center's week plan payload, or nil when the center
// has none yet.
func (s *Store) WeekPlan(ctx context.Context, centerID string) (json.RawMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM week_plans WHERE center_id = ?
	`, centerID)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan week plan: %w", err)
	}
	return json.RawMessage(payload), nil
}

// UpsertTaxpayers inserts or updates taxpayers keyed by (center, external id)
// in a single transaction.
func (s *Store) UpsertTaxpayers(ctx context.Context, centerID string, taxpayers []Taxpayer, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO taxpayers (center_id, external_id, name, sector, company_type,
			ca, debt, age_days, status, ifu, notes, last_action_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(center_id, external_id) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			company_type = excluded.company_type,
			ca = excluded.ca,
			debt = excluded.debt,
			age_days = excluded.age_days,
			status = excluded.status,
			ifu = excluded.ifu,
			notes = excluded.notes,
			last_action_at = excluded.last_action_at,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	updatedAt := unixFromTime(now)
	for _, t := range taxpayers {
		var lastAction sql.NullInt64
		if t.LastActionAt != nil {
			lastAction = sql.NullInt64{Int64: unixFromTime(*t.LastActionAt), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, centerID, t.ID, t.Name, t.Sector, t.Type,
			t.Revenue, t.Debt, t.AgeDays, t.StatusOrDefault(), t.Segment, t.Notes,
			lastAction, updatedAt); err != nil {
			return fmt.Errorf("upsert taxpayer %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// UpsertWeekPlan stores the center's week plan payload unchanged.
func (s *Store) UpsertWeekPlan(ctx context.Context, centerID string, payload json.RawMessage, now time.Time) error {
	if len(payload) == 0 {
		payload = EmptyWeekPlan
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO week_plans (center_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(center_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, centerID, string(payload), unixFromTime(now))
	if err != nil {
		return fmt.Errorf("upsert week plan: %w", err)
	}
	return nil
}

// InsertActions appends actions to the log. Actions already stored are left
// untouched.
func (s *Store) InsertActions(ctx context.Context, centerID string, actions []Action) error {
	if len(actions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, a := range actions {
		meta := a.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode action %s meta: %w", a.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO actions (id, center_id, type, taxpayer_external_id, at, meta)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, a.ID, centerID, a.Type, a.TaxpayerID, unixFromTime(a.At), string(b)); err != nil {
			return fmt.Errorf("insert action %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// Timestamps are stored as Unix nanoseconds.
func timeFromUnix(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func unixFromTime(t time.Time) int64 {
	return t.UnixNano()
}
