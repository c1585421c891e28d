package models

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CNPJ      string    `json:"cnpj"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the stored identity record. Access tier is never stored; it is
// derived per check from these flags plus the clock (internal/access).
type Profile struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	FullName           string     `json:"full_name"`
	PasswordHash       string     `json:"-"`
	OrganizationID     *uuid.UUID `json:"organization_id"`
	IsAdmin            bool       `json:"is_admin"`
	SubscriptionActive bool       `json:"subscription_active"`
	TrialActive        bool       `json:"trial_active"`
	TrialExpiresAt     *time.Time `json:"trial_expires_at"`
	AccessAuthorized   bool       `json:"access_authorized"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Tier is the member category rendered next to chat messages. It is always
// computed from the author's current profile at read time, never snapshotted
// at send time, so a history badge can change retroactively when the
// author's subscription changes. That is intentional.
func (p Profile) Tier(now time.Time) string {
	switch {
	case p.IsAdmin:
		return "support"
	case p.SubscriptionActive:
		return "subscriber"
	case p.TrialActive && p.TrialExpiresAt != nil && p.TrialExpiresAt.After(now):
		return "trial"
	default:
		return "free"
	}
}
