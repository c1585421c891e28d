package db

import (
	"context"
	"fmt"
)

// MarkWebhookProcessed records a payment-webhook event id. Returns true when
// this call was the first to see the id; duplicates (at-least-once delivery)
// return false and must be skipped by the caller.
func (s *Store) MarkWebhookProcessed(ctx context.Context, eventID string) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO processed_webhook_events (event_id)
		VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID)
	if err != nil {
		return false, fmt.Errorf("mark webhook processed failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
