package store

import (
	"context"
	"fmt"

	"github.com/syncops/eventhooks/internal/domain"
)

// GetDeliveryMetrics aggregates the webhook counters and event log size.
func (s *PostgresStore) GetDeliveryMetrics(ctx context.Context) (*domain.DeliveryMetrics, error) {
	var m domain.DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_envios), 0)::bigint,
			COALESCE(SUM(total_erros), 0)::bigint,
			COUNT(*) FILTER (WHERE ativo),
			COUNT(*)
		FROM webhooks
	`).Scan(&m.TotalDeliveries, &m.TotalFailures, &m.ActiveWebhooks, &m.TotalWebhooks)
	if err != nil {
		return nil, fmt.Errorf("querying webhook metrics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM funcionario_eventos`).Scan(&m.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("querying total events: %w", err)
	}

	m.ComputeSuccessRate()
	return &m, nil
}
