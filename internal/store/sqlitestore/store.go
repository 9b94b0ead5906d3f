// Package sqlitestore is a single-file event store and webhook registry for
// local development and tests. It mirrors the Postgres store's behaviour,
// including atomic delivery counters.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/syncops/eventhooks/internal/domain"
)

const defaultListLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS funcionario_eventos (
	id TEXT PRIMARY KEY,
	funcionario_id TEXT NOT NULL,
	tipo_evento TEXT NOT NULL,
	dados_anteriores TEXT,
	dados_novos TEXT NOT NULL,
	usuario_id TEXT,
	descricao TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_funcionario_eventos_funcionario ON funcionario_eventos (funcionario_id, created_at);

CREATE TABLE IF NOT EXISTS webhooks (
	id TEXT PRIMARY KEY,
	nome TEXT NOT NULL,
	url TEXT NOT NULL,
	eventos TEXT NOT NULL DEFAULT '[]',
	secret_key TEXT,
	headers TEXT NOT NULL DEFAULT '{}',
	ativo INTEGER NOT NULL DEFAULT 1,
	ultimo_envio TEXT,
	total_envios INTEGER NOT NULL DEFAULT 0,
	total_erros INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store implements the event store and webhook registry on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases
	// shared across callers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}

	return &Store{
		db: db,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(timeLayout, raw)
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

const eventColumns = `id, funcionario_id, tipo_evento, dados_anteriores, dados_novos, usuario_id, descricao, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		e                  domain.Event
		eventType, created string
		previous           sql.NullString
		newData            string
		actor, description sql.NullString
	)
	if err := row.Scan(&e.ID, &e.EmployeeID, &eventType, &previous, &newData, &actor, &description, &created); err != nil {
		return nil, err
	}

	e.EventType = domain.EventType(eventType)
	e.NewData = json.RawMessage(newData)
	if previous.Valid {
		e.PreviousData = json.RawMessage(previous.String)
	}
	if actor.Valid {
		e.ActorID = &actor.String
	}
	if description.Valid {
		e.Description = &description.String
	}

	createdAt, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	e.CreatedAt = createdAt
	return &e, nil
}

func (s *Store) CreateEvent(ctx context.Context, req domain.CreateEventRequest) (*domain.Event, error) {
	var previous sql.NullString
	if len(req.PreviousData) > 0 && string(req.PreviousData) != "null" {
		previous = sql.NullString{String: string(req.PreviousData), Valid: true}
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO funcionario_eventos (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, req.EmployeeID, string(req.EventType), previous, string(req.NewData),
		req.ActorID, req.Description, formatTime(s.now()))
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}

	return s.GetEvent(ctx, id)
}

// GetEvent returns the event with the given id, or nil if there is none.
func (s *Store) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM funcionario_eventos WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return e, nil
}

func (s *Store) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM funcionario_eventos`
	args := []any{}
	conditions := []string{}

	if filter.EmployeeID != "" {
		conditions = append(conditions, "funcionario_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.EventType != "" {
		conditions = append(conditions, "tipo_evento = ?")
		args = append(args, string(filter.EventType))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
