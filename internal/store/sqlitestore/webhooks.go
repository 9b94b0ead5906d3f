package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/syncops/eventhooks/internal/domain"
)

const webhookColumns = `id, nome, url, eventos, COALESCE(secret_key, ''), headers, ativo,
	ultimo_envio, total_envios, total_erros, created_at, updated_at`

func scanWebhook(row rowScanner) (*domain.Webhook, error) {
	var (
		w                    domain.Webhook
		eventTypes, headers  string
		lastDelivery         sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&w.ID, &w.Name, &w.URL, &eventTypes, &w.SecretKey, &headers, &w.IsActive,
		&lastDelivery, &w.TotalDeliveries, &w.TotalFailures, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(eventTypes), &w.EventTypes); err != nil {
		return nil, fmt.Errorf("decoding event types: %w", err)
	}
	if w.EventTypes == nil {
		w.EventTypes = []domain.EventType{}
	}
	if err := json.Unmarshal([]byte(headers), &w.Headers); err != nil {
		return nil, fmt.Errorf("decoding headers: %w", err)
	}
	if w.Headers == nil {
		w.Headers = map[string]string{}
	}

	if lastDelivery.Valid {
		t, err := parseTime(lastDelivery.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ultimo_envio: %w", err)
		}
		w.LastDeliveryAt = &t
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &w, nil
}

func encodeWebhookFields(w *domain.Webhook) (eventTypes, headers string, err error) {
	types := w.EventTypes
	if types == nil {
		types = []domain.EventType{}
	}
	et, err := json.Marshal(types)
	if err != nil {
		return "", "", fmt.Errorf("encoding event types: %w", err)
	}
	h := w.Headers
	if h == nil {
		h = map[string]string{}
	}
	hb, err := json.Marshal(h)
	if err != nil {
		return "", "", fmt.Errorf("encoding headers: %w", err)
	}
	return string(et), string(hb), nil
}

func nullableSecret(secret string) sql.NullString {
	return sql.NullString{String: secret, Valid: secret != ""}
}

func (s *Store) CreateWebhook(ctx context.Context, req domain.CreateWebhookRequest) (*domain.Webhook, error) {
	w := &domain.Webhook{
		ID:         uuid.NewString(),
		Name:       req.Name,
		URL:        req.URL,
		EventTypes: req.EventTypes,
		SecretKey:  req.SecretKey,
		Headers:    req.Headers,
		IsActive:   req.Active(),
	}
	eventTypes, headers, err := encodeWebhookFields(w)
	if err != nil {
		return nil, err
	}

	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, nome, url, eventos, secret_key, headers, ativo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.Name, w.URL, eventTypes, nullableSecret(w.SecretKey), headers, w.IsActive, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting webhook: %w", err)
	}

	return s.GetWebhook(ctx, w.ID)
}

// GetWebhook returns the webhook with the given id, or nil if there is none.
func (s *Store) GetWebhook(ctx context.Context, id string) (*domain.Webhook, error) {
	w, err := scanWebhook(s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying webhook: %w", err)
	}
	return w, nil
}

func (s *Store) ListWebhooks(ctx context.Context) ([]domain.Webhook, error) {
	return s.queryWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhooks ORDER BY created_at DESC, rowid DESC`)
}

// ListActiveWebhooksForEventType filters subscriptions in Go: the event type
// set is stored as a JSON array.
func (s *Store) ListActiveWebhooksForEventType(ctx context.Context, eventType domain.EventType) ([]domain.Webhook, error) {
	active, err := s.queryWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE ativo = 1`)
	if err != nil {
		return nil, err
	}

	matched := []domain.Webhook{}
	for i := range active {
		if active[i].Subscribes(eventType) {
			matched = append(matched, active[i])
		}
	}
	return matched, nil
}

func (s *Store) queryWebhooks(ctx context.Context, query string, args ...any) ([]domain.Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying webhooks: %w", err)
	}
	defer rows.Close()

	webhooks := []domain.Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook: %w", err)
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}

// UpdateWebhook applies a partial update and returns nil if the webhook does
// not exist. Counters are left untouched.
func (s *Store) UpdateWebhook(ctx context.Context, id string, req domain.UpdateWebhookRequest) (*domain.Webhook, error) {
	w, err := s.GetWebhook(ctx, id)
	if err != nil || w == nil {
		return w, err
	}
	if req.Empty() {
		return w, nil
	}
	req.Apply(w)

	eventTypes, headers, err := encodeWebhookFields(w)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE webhooks SET nome = ?, url = ?, eventos = ?, secret_key = ?, headers = ?, ativo = ?, updated_at = ?
		WHERE id = ?
	`, w.Name, w.URL, eventTypes, nullableSecret(w.SecretKey), headers, w.IsActive, formatTime(s.now()), id)
	if err != nil {
		return nil, fmt.Errorf("updating webhook: %w", err)
	}

	return s.GetWebhook(ctx, id)
}

func (s *Store) DeleteWebhook(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting webhook: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting webhook: %w", err)
	}
	return n > 0, nil
}

// RecordDeliveryAttempt increments the counters in one UPDATE statement.
func (s *Store) RecordDeliveryAttempt(ctx context.Context, webhookID string, attempt domain.AttemptRecord) error {
	failed := 1
	if attempt.Succeeded {
		failed = 0
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET
			total_envios = total_envios + 1,
			total_erros = total_erros + ?,
			ultimo_envio = ?
		WHERE id = ?
	`, failed, formatTime(attempt.AttemptedAt), webhookID)
	if err != nil {
		return fmt.Errorf("recording delivery attempt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording delivery attempt: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recording delivery attempt for %s: %w", webhookID, domain.ErrWebhookNotFound)
	}
	return nil
}

func (s *Store) GetDeliveryMetrics(ctx context.Context) (*domain.DeliveryMetrics, error) {
	var m domain.DeliveryMetrics

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_envios), 0),
			COALESCE(SUM(total_erros), 0),
			COALESCE(SUM(CASE WHEN ativo = 1 THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM webhooks
	`).Scan(&m.TotalDeliveries, &m.TotalFailures, &m.ActiveWebhooks, &m.TotalWebhooks)
	if err != nil {
		return nil, fmt.Errorf("querying webhook metrics: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM funcionario_eventos`).Scan(&m.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("querying total events: %w", err)
	}

	m.ComputeSuccessRate()
	return &m, nil
}
