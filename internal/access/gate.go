package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/models"
)

// ErrProfileGone marks a stale identity: the session resolves to no profile.
// Callers must force a sign-out instead of rendering an authenticated view.
var ErrProfileGone = errors.New("profile no longer exists")

// Access is the effective tier derived from a profile snapshot and the
// clock. It is recomputed on every check and never cached beyond one check.
type Access struct {
	IsAdmin          bool `json:"is_admin"`
	IsPaidSubscriber bool `json:"is_paid_subscriber"`
	HasFullAccess    bool `json:"has_full_access"`
	IsFreeAuthorized bool `json:"is_free_authorized"`
}

func trialValid(p models.Profile, now time.Time) bool {
	return p.TrialActive && p.TrialExpiresAt != nil && p.TrialExpiresAt.After(now)
}

// Evaluate computes the tier from a profile snapshot. Pure; the corrective
// trial write lives in Gate.Check.
func Evaluate(p models.Profile, now time.Time) Access {
	a := Access{
		IsAdmin:          p.IsAdmin,
		IsPaidSubscriber: p.SubscriptionActive,
	}
	a.HasFullAccess = a.IsAdmin || a.IsPaidSubscriber || trialValid(p, now)
	if a.HasFullAccess {
		a.IsFreeAuthorized = true
	} else {
		a.IsFreeAuthorized = p.AccessAuthorized
	}
	return a
}

type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	DeactivateTrial(ctx context.Context, userID uuid.UUID) error
}

type Gate struct {
	store ProfileStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewGate(store ProfileStore, log zerolog.Logger) *Gate {
	return &Gate{store: store, log: log, now: time.Now}
}

// WithClock replaces the gate's clock. Tests only.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Check loads the profile and computes its effective tier. Trial expiry is
// enforced lazily: when a check observes an expired trial it issues the
// corrective write here, on the read path, so there is no background sweep
// to race against. The computed result treats the trial as expired whether
// or not the write lands.
func (g *Gate) Check(ctx context.Context, userID uuid.UUID) (Access, *models.Profile, error) {
	p, err := g.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Access{}, nil, ErrProfileGone
		}
		return Access{}, nil, err
	}

	now := g.now()
	if p.TrialActive && p.TrialExpiresAt != nil && !p.TrialExpiresAt.After(now) {
		if err := g.store.DeactivateTrial(ctx, p.ID); err != nil {
			g.log.Error().Err(err).Str("user_id", p.ID.String()).Msg("lazy trial deactivation failed")
		}
		p.TrialActive = false
	}

	return Evaluate(*p, now), p, nil
}
