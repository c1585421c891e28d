package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lmendes/licitahub/internal/models"
)

const ticketCols = `id, member_id, title, description, status, priority, deadline,
	category, price_quote, opportunity_id, is_archived, created_at, updated_at`

func scanTicket(scan func(dest ...interface{}) error) (models.Ticket, error) {
	var t models.Ticket
	var status, category string

	err := scan(
		&t.ID, &t.MemberID, &t.Title, &t.Description, &status, &t.Priority, &t.Deadline,
		&category, &t.PriceQuote, &t.OpportunityID, &t.IsArchived, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}

	t.Status = models.TicketStatus(status)
	t.Category = models.ServiceCategory(category)
	return t, nil
}

func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	sql := fmt.Sprintf("SELECT %s FROM tickets WHERE id = $1", ticketCols)
	row := s.pool.QueryRow(ctx, sql, id)

	t, err := scanTicket(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &t, nil
}

func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tickets (member_id, title, description, status, priority, deadline, category, price_quote, opportunity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`,
		t.MemberID, t.Title, t.Description, string(t.Status), t.Priority,
		t.Deadline, string(t.Category), t.PriceQuote, t.OpportunityID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket failed: %w", err)
	}
	return nil
}

func (s *Store) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE tickets SET
			title = $1, description = $2, status = $3, priority = $4,
			deadline = $5, category = $6, price_quote = $7, is_archived = $8,
			updated_at = NOW()
		WHERE id = $9
	`,
		t.Title, t.Description, string(t.Status), t.Priority,
		t.Deadline, string(t.Category), t.PriceQuote, t.IsArchived,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update ticket failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTicket removes the ticket and everything hanging off it. Messages
// and events cascade via foreign keys; notifications reference tickets only
// through reference_id, so they are cleared explicitly in the same
// transaction.
func (s *Store) DeleteTicket(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM notifications WHERE reference_id = $1", id); err != nil {
		return fmt.Errorf("delete ticket notifications failed: %w", err)
	}

	ct, err := tx.Exec(ctx, "DELETE FROM tickets WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete ticket failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *Store) ListTicketsByMember(ctx context.Context, memberID uuid.UUID, includeArchived bool) ([]models.Ticket, error) {
	conds := []string{"member_id = $1"}
	if !includeArchived {
		conds = append(conds, "is_archived = false")
	}
	sql := fmt.Sprintf("SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC",
		ticketCols, strings.Join(conds, " AND "))

	return s.queryTickets(ctx, sql, memberID)
}

func (s *Store) ListTicketsByOpportunity(ctx context.Context, oppID uuid.UUID) ([]models.Ticket, error) {
	sql := fmt.Sprintf("SELECT %s FROM tickets WHERE opportunity_id = $1 ORDER BY created_at ASC", ticketCols)
	return s.queryTickets(ctx, sql, oppID)
}

func (s *Store) ListTickets(ctx context.Context, status string, limit, offset int) ([]models.Ticket, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	args := []interface{}{}
	where := "WHERE 1=1"
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit, offset)

	sql := fmt.Sprintf("SELECT %s FROM tickets %s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d",
		ticketCols, where, len(args)-1, len(args))

	return s.queryTickets(ctx, sql, args...)
}

func (s *Store) queryTickets(ctx context.Context, sql string, args ...interface{}) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

func (s *Store) AppendTicketEvent(ctx context.Context, e *models.TicketEvent) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ticket_events (ticket_id, event_type, old_status, new_status, actor_id, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, e.TicketID, e.EventType, e.OldStatus, e.NewStatus, e.ActorID, e.Note).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket event failed: %w", err)
	}
	return nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticket_id, event_type, old_status, new_status, actor_id, note, created_at
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY created_at ASC
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var events []models.TicketEvent
	for rows.Next() {
		var e models.TicketEvent
		if err := rows.Scan(&e.ID, &e.TicketID, &e.EventType, &e.OldStatus, &e.NewStatus, &e.ActorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) InsertTicketMessage(ctx context.Context, m *models.TicketMessage) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ticket_messages (ticket_id, author_id, body, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, m.TicketID, m.AuthorID, m.Body, m.IsAdmin).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket message failed: %w", err)
	}
	return nil
}

func (s *Store) ListTicketMessages(ctx context.Context, ticketID uuid.UUID) ([]models.TicketMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticket_id, author_id, body, is_admin, created_at
		FROM ticket_messages
		WHERE ticket_id = $1
		ORDER BY created_at ASC
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var msgs []models.TicketMessage
	for rows.Next() {
		var m models.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.Body, &m.IsAdmin, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
