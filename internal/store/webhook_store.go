package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/syncops/eventhooks/internal/domain"
)

const webhookColumns = `id::text, nome, url, eventos, COALESCE(secret_key, ''), headers, ativo,
	ultimo_envio, total_envios, total_erros, created_at, updated_at`

func scanWebhook(row pgx.Row) (*domain.Webhook, error) {
	var w domain.Webhook
	var eventTypes []string
	var headers []byte
	err := row.Scan(
		&w.ID, &w.Name, &w.URL, &eventTypes, &w.SecretKey, &headers, &w.IsActive,
		&w.LastDeliveryAt, &w.TotalDeliveries, &w.TotalFailures, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.EventTypes = make([]domain.EventType, 0, len(eventTypes))
	for _, et := range eventTypes {
		w.EventTypes = append(w.EventTypes, domain.EventType(et))
	}

	w.Headers = map[string]string{}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &w.Headers); err != nil {
			return nil, fmt.Errorf("decoding headers: %w", err)
		}
	}
	return &w, nil
}

func eventTypeStrings(types []domain.EventType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

func encodeHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	return json.Marshal(headers)
}

func nullableSecret(secret string) *string {
	if secret == "" {
		return nil
	}
	return &secret
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, req domain.CreateWebhookRequest) (*domain.Webhook, error) {
	headers, err := encodeHeaders(req.Headers)
	if err != nil {
		return nil, fmt.Errorf("encoding headers: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO webhooks (nome, url, eventos, secret_key, headers, ativo)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+webhookColumns,
		req.Name, req.URL, eventTypeStrings(req.EventTypes), nullableSecret(req.SecretKey), headers, req.Active(),
	)
	w, err := scanWebhook(row)
	if err != nil {
		return nil, fmt.Errorf("inserting webhook: %w", err)
	}
	return w, nil
}

// GetWebhook returns the webhook with the given id, or nil if there is none.
func (s *PostgresStore) GetWebhook(ctx context.Context, id string) (*domain.Webhook, error) {
	key, ok := rowID(id)
	if !ok {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, key)
	w, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying webhook: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) ListWebhooks(ctx context.Context) ([]domain.Webhook, error) {
	return s.queryWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhooks ORDER BY created_at DESC`)
}

// ListActiveWebhooksForEventType returns every active webhook subscribed to
// eventType. Order is unspecified.
func (s *PostgresStore) ListActiveWebhooksForEventType(ctx context.Context, eventType domain.EventType) ([]domain.Webhook, error) {
	return s.queryWebhooks(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE ativo = true AND eventos @> ARRAY[$1]::text[]`,
		string(eventType),
	)
}

func (s *PostgresStore) queryWebhooks(ctx context.Context, query string, args ...any) ([]domain.Webhook, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhooks: %w", err)
	}

	return webhooks, nil
}

// UpdateWebhook applies a partial update. It returns nil if the webhook does
// not exist. Delivery counters are not writable here.
func (s *PostgresStore) UpdateWebhook(ctx context.Context, id string, req domain.UpdateWebhookRequest) (*domain.Webhook, error) {
	current, err := s.GetWebhook(ctx, id)
	if err != nil || current == nil {
		return current, err
	}
	if req.Empty() {
		return current, nil
	}
	req.Apply(current)

	setClauses := []string{}
	args := []any{}
	set := func(column string, value any) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.Name != nil {
		set("nome", *req.Name)
	}
	if req.URL != nil {
		set("url", *req.URL)
	}
	if req.EventTypes != nil {
		set("eventos", eventTypeStrings(*req.EventTypes))
	}
	if req.SecretKey != nil {
		set("secret_key", nullableSecret(*req.SecretKey))
	}
	if req.Headers != nil {
		headers, err := encodeHeaders(*req.Headers)
		if err != nil {
			return nil, fmt.Errorf("encoding headers: %w", err)
		}
		set("headers", headers)
	}
	if req.IsActive != nil {
		set("ativo", *req.IsActive)
	}
	setClauses = append(setClauses, "updated_at = NOW()")

	args = append(args, current.ID)
	query := fmt.Sprintf(`UPDATE webhooks SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), len(args), webhookColumns)

	w, err := scanWebhook(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating webhook: %w", err)
	}
	return w, nil
}

// DeleteWebhook removes a webhook and reports whether it existed.
func (s *PostgresStore) DeleteWebhook(ctx context.Context, id string) (bool, error) {
	key, ok := rowID(id)
	if !ok {
		return false, nil
	}
	result, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, key)
	if err != nil {
		return false, fmt.Errorf("deleting webhook: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// RecordDeliveryAttempt accounts for one delivery in a single statement so
// concurrent dispatches never lose an increment.
func (s *PostgresStore) RecordDeliveryAttempt(ctx context.Context, webhookID string, attempt domain.AttemptRecord) error {
	key, ok := rowID(webhookID)
	if !ok {
		return fmt.Errorf("recording delivery attempt for %s: %w", webhookID, domain.ErrWebhookNotFound)
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE webhooks SET
			total_envios = total_envios + 1,
			total_erros = total_erros + CASE WHEN $2 THEN 0 ELSE 1 END,
			ultimo_envio = $3
		WHERE id = $1
	`, key, attempt.Succeeded, attempt.AttemptedAt)
	if err != nil {
		return fmt.Errorf("recording delivery attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recording delivery attempt for %s: %w", webhookID, domain.ErrWebhookNotFound)
	}
	return nil
}
