package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a durable one-way notice consumed by the bell/badge
// reader. It is independent of the realtime relay: the relay serves open
// sessions, the notice serves users who reconnect later.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	ReferenceID *uuid.UUID `json:"reference_id"` // ticket, opportunity or room id
	Read        bool       `json:"read"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Notification type tags.
const (
	NoticeOpportunityStatus = "opportunity_status"
	NoticeTicketStatus      = "ticket_status"
	NoticeTicketCreated     = "ticket_created"
	NoticeChatModeration    = "chat_moderation"
	NoticeSubscription      = "subscription"
)
