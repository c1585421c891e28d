package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lmendes/licitahub/internal/models"
)

func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, type, title, message, reference_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, n.UserID, n.Type, n.Title, n.Message, n.ReferenceID).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification failed: %w", err)
	}
	return nil
}

// InsertNotifications bulk-inserts one notice per target in a single
// transaction, used by the organization and admin fan-outs.
func (s *Store) InsertNotifications(ctx context.Context, ns []models.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, n := range ns {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notifications (user_id, type, title, message, reference_id)
			VALUES ($1, $2, $3, $4, $5)
		`, n.UserID, n.Type, n.Title, n.Message, n.ReferenceID); err != nil {
			return fmt.Errorf("bulk insert notification failed: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	sql := `
		SELECT id, user_id, type, title, message, reference_id, read, created_at
		FROM notifications
		WHERE user_id = $1`
	if unreadOnly {
		sql += " AND read = false"
	}
	sql += " ORDER BY created_at DESC LIMIT $2"

	rows, err := s.pool.Query(ctx, sql, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.ReferenceID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if out == nil {
		out = []models.Notification{}
	}
	return out, nil
}

// MarkReadByReference flips every unread notice for (user, reference) in one
// statement. Running it again matches nothing, which is what makes the
// operation idempotent.
func (s *Store) MarkReadByReference(ctx context.Context, userID, referenceID uuid.UUID) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read = true
		WHERE user_id = $1 AND reference_id = $2 AND read = false
	`, userID, referenceID)
	if err != nil {
		return 0, fmt.Errorf("mark read by reference failed: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx,
		"UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("mark read failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UnreadNotificationCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false", userID).Scan(&n)
	return n, err
}
