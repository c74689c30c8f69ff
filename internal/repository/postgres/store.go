package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS last_alert (
	slot        SMALLINT PRIMARY KEY CHECK (slot = 1),
	payload     TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS journal (
	id        UUID PRIMARY KEY,
	trace_id  TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL,
	subject   TEXT NOT NULL DEFAULT '',
	verdict   TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL DEFAULT '',
	payload   TEXT,
	error     TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_timestamp_idx ON journal (timestamp DESC);`

// Store — слот последней тревоги и журнал в PostgreSQL.
type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveLastAlert перезаписывает единственный слот (last-write-wins).
func (s *Store) SaveLastAlert(ctx context.Context, alert domain.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_alert (slot, payload, received_at) VALUES (1, $1, $2)
		ON CONFLICT (slot) DO UPDATE SET payload = EXCLUDED.payload, received_at = EXCLUDED.received_at`,
		string(alert.RawPayload), alert.ReceivedAt)
	if err != nil {
		return fmt.Errorf("save last alert: %w", err)
	}
	return nil
}

func (s *Store) LastAlert(ctx context.Context) (*domain.Alert, error) {
	var (
		payload    string
		receivedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, received_at FROM last_alert WHERE slot = 1`).Scan(&payload, &receivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last alert: %w", err)
	}
	alert := domain.NewAlert(json.RawMessage(payload), receivedAt)
	return &alert, nil
}

func (s *Store) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице journal
	numFields := 9
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		if i > 0 {
			placeholders.WriteByte(',')
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		vals = append(vals,
			e.ID, e.TraceID, string(e.Kind), e.Subject, e.Verdict,
			e.Status, nullablePayload(e), e.Error, e.Timestamp,
		)
	}

	query := "INSERT INTO journal (id, trace_id, kind, subject, verdict, status, payload, error, timestamp) VALUES " +
		placeholders.String() + " ON CONFLICT (id) DO NOTHING"

	if _, err := s.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("write journal batch: %w", err)
	}
	return nil
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace_id, kind, subject, verdict, status, payload, error, timestamp
		FROM journal ORDER BY timestamp DESC LIMIT $1`, limit)
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
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &kind, &e.Subject, &e.Verdict, &e.Status, &payload, &e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Kind = audit.Kind(kind)
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullablePayload(e audit.Event) sql.NullString {
	if len(e.Payload) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(e.Payload), Valid: true}
}
