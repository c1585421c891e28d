package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lmendes/licitahub/internal/models"
)

const roomCols = `id, kind, member_id, opportunity_id, is_active, created_at`

func scanRoom(scan func(dest ...interface{}) error) (models.ChatRoom, error) {
	var r models.ChatRoom
	var kind string
	err := scan(&r.ID, &kind, &r.MemberID, &r.OpportunityID, &r.IsActive, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.Kind = models.RoomKind(kind)
	return r, nil
}

func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM chat_rooms WHERE id = $1", roomCols), id)
	r, err := scanRoom(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &r, nil
}

// Find-active-or-create for the three room kinds. The INSERT targets the
// partial unique index for the kind, so concurrent first contacts collapse
// onto a single active row: whoever loses the conflict falls through to the
// SELECT and picks up the winner's room.

func (s *Store) FindOrCreateLobby(ctx context.Context) (*models.ChatRoom, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO chat_rooms (kind) VALUES ('lobby')
		ON CONFLICT (kind) WHERE kind = 'lobby' AND is_active DO NOTHING
		RETURNING %s
	`, roomCols))
	if r, err := scanRoom(row.Scan); err == nil {
		return &r, nil
	}

	row = s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM chat_rooms WHERE kind = 'lobby' AND is_active", roomCols))
	r, err := scanRoom(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &r, nil
}

func (s *Store) FindOrCreateSupportRoom(ctx context.Context, memberID uuid.UUID) (*models.ChatRoom, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO chat_rooms (kind, member_id) VALUES ('support', $1)
		ON CONFLICT (member_id) WHERE kind = 'support' AND is_active DO NOTHING
		RETURNING %s
	`, roomCols), memberID)
	if r, err := scanRoom(row.Scan); err == nil {
		return &r, nil
	}

	row = s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM chat_rooms WHERE kind = 'support' AND member_id = $1 AND is_active", roomCols), memberID)
	r, err := scanRoom(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &r, nil
}

func (s *Store) FindOrCreateOpportunityRoom(ctx context.Context, oppID uuid.UUID) (*models.ChatRoom, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO chat_rooms (kind, opportunity_id) VALUES ('opportunity', $1)
		ON CONFLICT (opportunity_id) WHERE kind = 'opportunity' AND is_active DO NOTHING
		RETURNING %s
	`, roomCols), oppID)
	if r, err := scanRoom(row.Scan); err == nil {
		return &r, nil
	}

	row = s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM chat_rooms WHERE kind = 'opportunity' AND opportunity_id = $1 AND is_active", roomCols), oppID)
	r, err := scanRoom(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &r, nil
}

func (s *Store) CloseRoom(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, "UPDATE chat_rooms SET is_active = false WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("close room failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) InsertChatMessage(ctx context.Context, m *models.ChatMessage) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (room_id, author_id, body, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, m.RoomID, m.AuthorID, m.Body, m.IsAdmin).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message failed: %w", err)
	}
	return nil
}

func (s *Store) GetChatMessage(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	var m models.ChatMessage
	err := s.pool.QueryRow(ctx, `
		SELECT id, room_id, author_id, body, is_admin, deleted, created_at
		FROM chat_messages WHERE id = $1
	`, id).Scan(&m.ID, &m.RoomID, &m.AuthorID, &m.Body, &m.IsAdmin, &m.Deleted, &m.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &m, nil
}

// SoftDeleteChatMessage overwrites the body with the deletion marker while
// keeping authorship and created_at intact.
func (s *Store) SoftDeleteChatMessage(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx,
		"UPDATE chat_messages SET body = $1, deleted = true WHERE id = $2",
		models.DeletedMarker, id)
	if err != nil {
		return fmt.Errorf("soft delete failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) HardDeleteChatMessage(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, "DELETE FROM chat_messages WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("hard delete failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessagesWithAuthors joins each message against the author's current
// profile. Tier badges are computed from that live row at read time, so a
// member's displayed category in old history shifts when their subscription
// state does. Deliberate; do not cache tier at insert.
func (s *Store) ListMessagesWithAuthors(ctx context.Context, roomID uuid.UUID, limit int, now time.Time) ([]models.ChatMessageView, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.room_id, m.author_id, m.body, m.is_admin, m.deleted, m.created_at,
		       p.full_name, p.is_admin, p.subscription_active, p.trial_active, p.trial_expires_at
		FROM chat_messages m
		JOIN profiles p ON p.id = m.author_id
		WHERE m.room_id = $1
		ORDER BY m.created_at ASC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessageView
	for rows.Next() {
		var v models.ChatMessageView
		var author models.Profile
		if err := rows.Scan(
			&v.ID, &v.RoomID, &v.AuthorID, &v.Body, &v.IsAdmin, &v.Deleted, &v.CreatedAt,
			&author.FullName, &author.IsAdmin, &author.SubscriptionActive, &author.TrialActive, &author.TrialExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		v.AuthorName = author.FullName
		v.AuthorTier = author.Tier(now)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if out == nil {
		out = []models.ChatMessageView{}
	}
	return out, nil
}

func (s *Store) UpsertReadCursor(ctx context.Context, userID, roomID uuid.UUID, readAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_read_cursors (user_id, room_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, room_id) DO UPDATE SET last_read_at = GREATEST(chat_read_cursors.last_read_at, EXCLUDED.last_read_at)
	`, userID, roomID, readAt)
	if err != nil {
		return fmt.Errorf("upsert read cursor failed: %w", err)
	}
	return nil
}

func (s *Store) UnreadCount(ctx context.Context, userID, roomID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM chat_messages m
		WHERE m.room_id = $1
		  AND m.author_id <> $2
		  AND m.created_at > COALESCE(
			(SELECT last_read_at FROM chat_read_cursors WHERE user_id = $2 AND room_id = $1),
			'epoch'::timestamptz)
	`, roomID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread count failed: %w", err)
	}
	return n, nil
}
