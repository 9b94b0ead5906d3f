package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/syncops/eventhooks/internal/domain"
)

const defaultListLimit = 50

const eventColumns = `id::text, funcionario_id, tipo_evento, dados_anteriores, dados_novos, usuario_id, descricao, created_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	var eventType string
	err := row.Scan(
		&e.ID, &e.EmployeeID, &eventType, &e.PreviousData, &e.NewData,
		&e.ActorID, &e.Description, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.EventType = domain.EventType(eventType)
	return &e, nil
}

// CreateEvent appends an employee lifecycle event to the log.
func (s *PostgresStore) CreateEvent(ctx context.Context, req domain.CreateEventRequest) (*domain.Event, error) {
	var previous []byte
	if len(req.PreviousData) > 0 && string(req.PreviousData) != "null" {
		previous = req.PreviousData
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO funcionario_eventos (funcionario_id, tipo_evento, dados_anteriores, dados_novos, usuario_id, descricao)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+eventColumns,
		req.EmployeeID, string(req.EventType), previous, []byte(req.NewData), req.ActorID, req.Description,
	)
	event, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return event, nil
}

// GetEvent returns the event with the given id, or nil if there is none.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	key, ok := rowID(id)
	if !ok {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM funcionario_eventos WHERE id = $1`, key)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return event, nil
}

// ListEvents returns events newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM funcionario_eventos`
	args := []any{}
	conditions := []string{}

	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conditions = append(conditions, fmt.Sprintf("funcionario_id = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, string(filter.EventType))
		conditions = append(conditions, fmt.Sprintf("tipo_evento = $%d", len(args)))
	}

	for i, c := range conditions {
		if i == 0 {
			query += " WHERE "
		} else {
			query += " AND "
		}
		query += c
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}
