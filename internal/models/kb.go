package models

import (
	"time"

	"github.com/google/uuid"
)

type KBCategory struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// KBArticle is a knowledge-base entry. BodyHTML is sanitized on write;
// Excerpt is derived plain text for listings and search results. Attachment
// delivery goes through a subscription-gated signed URL, never a raw path.
type KBArticle struct {
	ID             uuid.UUID  `json:"id"`
	CategoryID     uuid.UUID  `json:"category_id"`
	Title          string     `json:"title"`
	BodyHTML       string     `json:"body_html"`
	Excerpt        string     `json:"excerpt"`
	AttachmentPath *string    `json:"attachment_path,omitempty"`
	PublishedAt    *time.Time `json:"published_at"`
	CreatedAt      time.Time  `json:"created_at"`
}
