package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketOpen        TicketStatus = "open"
	TicketInProgress  TicketStatus = "in_progress"
	TicketUnderReview TicketStatus = "under_review"
	TicketResolved    TicketStatus = "resolved"
	TicketClosed      TicketStatus = "closed"
)

var AllTicketStatuses = []TicketStatus{
	TicketOpen, TicketInProgress, TicketUnderReview, TicketResolved, TicketClosed,
}

func (s TicketStatus) Valid() bool {
	for _, known := range AllTicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the normal workflow. Closed is
// terminal too, but stays reopenable for a window (see internal/workflow).
func (s TicketStatus) Terminal() bool {
	return s == TicketResolved || s == TicketClosed
}

// ServiceCategory is a compound tag: a base category with an optional
// "+upgrade" suffix ("recurso_administrativo+upgrade"). The suffix marks a
// priority upsell and never changes workflow semantics, so comparisons go
// through Base().
type ServiceCategory string

const (
	CategoryRecursoAdministrativo = "recurso_administrativo"
	CategoryImpugnacao            = "impugnacao"
	CategoryProposta              = "proposta"
	CategoryHabilitacao           = "habilitacao"

	UpgradeSuffix = "+upgrade"
)

func (c ServiceCategory) Base() string {
	return strings.TrimSuffix(string(c), UpgradeSuffix)
}

func (c ServiceCategory) HasUpgrade() bool {
	return strings.HasSuffix(string(c), UpgradeSuffix)
}

// Ticket is a unit of client-requested work, optionally bound to one
// opportunity.
type Ticket struct {
	ID            uuid.UUID       `json:"id"`
	MemberID      uuid.UUID       `json:"member_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Status        TicketStatus    `json:"status"`
	Priority      string          `json:"priority"` // low, normal, high
	Deadline      *time.Time      `json:"deadline"`
	Category      ServiceCategory `json:"category"`
	PriceQuote    string          `json:"price_quote"`
	OpportunityID *uuid.UUID      `json:"opportunity_id"`
	IsArchived    bool            `json:"is_archived"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TicketEvent is one row of the append-only per-ticket audit log.
type TicketEvent struct {
	ID        uuid.UUID  `json:"id"`
	TicketID  uuid.UUID  `json:"ticket_id"`
	EventType string     `json:"event_type"` // status_changed, created, auto_resolved
	OldStatus *string    `json:"old_status"`
	NewStatus *string    `json:"new_status"`
	ActorID   *uuid.UUID `json:"actor_id"` // nil for system-triggered events
	Note      string     `json:"note"`
	CreatedAt time.Time  `json:"created_at"`
}

// TicketMessage is a comment on a ticket thread, distinct from chat rooms.
type TicketMessage struct {
	ID        uuid.UUID `json:"id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}
