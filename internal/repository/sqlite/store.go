// Package sqlite — локальное хранилище по умолчанию: один файл рядом с
// пользовательским конфигом, без внешних сервисов.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS last_alert (
	slot        INTEGER PRIMARY KEY CHECK (slot = 1),
	payload     TEXT NOT NULL,
	received_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS journal (
	id        TEXT PRIMARY KEY,
	trace_id  TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL,
	subject   TEXT NOT NULL DEFAULT '',
	verdict   TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL DEFAULT '',
	payload   TEXT,
	error     TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_timestamp_idx ON journal (timestamp DESC);`

type Store struct {
	db *sql.DB
}

// Open открывает (и создает) базу по path: WAL и busy_timeout 5s.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Один писатель: sqlite все равно сериализует запись
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveLastAlert(ctx context.Context, alert domain.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_alert (slot, payload, received_at) VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET payload = excluded.payload, received_at = excluded.received_at`,
		string(alert.RawPayload), alert.ReceivedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save last alert: %w", err)
	}
	return nil
}

func (s *Store) LastAlert(ctx context.Context) (*domain.Alert, error) {
	var (
		payload string
		nanos   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, received_at FROM last_alert WHERE slot = 1`).Scan(&payload, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last alert: %w", err)
	}
	alert := domain.NewAlert(json.RawMessage(payload), time.Unix(0, nanos).UTC())
	return &alert, nil
}

func (s *Store) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	const row = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
	rows := make([]string, 0, len(events))
	vals := make([]interface{}, 0, len(events)*9)
	for _, e := range events {
		rows = append(rows, row)
		var payload interface{}
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		vals = append(vals,
			e.ID, e.TraceID, string(e.Kind), e.Subject, e.Verdict,
			e.Status, payload, e.Error, e.Timestamp.UnixNano(),
		)
	}

	query := "INSERT OR IGNORE INTO journal (id, trace_id, kind, subject, verdict, status, payload, error, timestamp) VALUES " +
		strings.Join(rows, ",")
	if _, err := s.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("write journal batch: %w", err)
	}
	return nil
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace_id, kind, subject, verdict, status, payload, error, timestamp
		FROM journal ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e       audit.Event
			kind    string
			payload sql.NullString
			nanos   int64
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &kind, &e.Subject, &e.Verdict, &e.Status, &payload, &e.Error, &nanos); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.Timestamp = time.Unix(0, nanos).UTC()
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
