package access

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestEvaluate_Admin(t *testing.T) {
	a := Evaluate(models.Profile{IsAdmin: true}, testNow)
	if !a.IsAdmin || !a.HasFullAccess || !a.IsFreeAuthorized {
		t.Fatalf("admin should hold every flag except subscriber, got %+v", a)
	}
	if a.IsPaidSubscriber {
		t.Fatal("admin without subscription must not report as paid subscriber")
	}
}

func TestEvaluate_Subscriber(t *testing.T) {
	a := Evaluate(models.Profile{SubscriptionActive: true}, testNow)
	if !a.IsPaidSubscriber || !a.HasFullAccess || !a.IsFreeAuthorized {
		t.Fatalf("subscriber flags wrong: %+v", a)
	}
}

func TestEvaluate_ValidTrial(t *testing.T) {
	exp := testNow.Add(24 * time.Hour)
	a := Evaluate(models.Profile{TrialActive: true, TrialExpiresAt: &exp}, testNow)
	if !a.HasFullAccess {
		t.Fatal("unexpired trial must grant full access")
	}
	if a.IsPaidSubscriber {
		t.Fatal("trial must not report as paid subscriber")
	}
}

func TestEvaluate_ExpiredTrialFallsBackToStoredFlag(t *testing.T) {
	exp := testNow.Add(-time.Hour)

	a := Evaluate(models.Profile{TrialActive: true, TrialExpiresAt: &exp}, testNow)
	if a.HasFullAccess {
		t.Fatal("expired trial must not grant full access")
	}
	if a.IsFreeAuthorized {
		t.Fatal("expired trial without access_authorized must not be free-authorized")
	}

	a = Evaluate(models.Profile{TrialActive: true, TrialExpiresAt: &exp, AccessAuthorized: true}, testNow)
	if !a.IsFreeAuthorized {
		t.Fatal("stored access_authorized flag must survive trial expiry")
	}
}

type fakeProfileStore struct {
	profile     *models.Profile
	deactivated []uuid.UUID
}

func (f *fakeProfileStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if f.profile == nil || f.profile.ID != id {
		return nil, db.ErrNotFound
	}
	cp := *f.profile
	return &cp, nil
}

func (f *fakeProfileStore) DeactivateTrial(ctx context.Context, userID uuid.UUID) error {
	f.deactivated = append(f.deactivated, userID)
	f.profile.TrialActive = false
	return nil
}

func TestGateCheck_LazyTrialDeactivation(t *testing.T) {
	exp := testNow.Add(-time.Minute)
	store := &fakeProfileStore{profile: &models.Profile{
		ID:             uuid.New(),
		TrialActive:    true,
		TrialExpiresAt: &exp,
	}}

	gate := NewGate(store, zerolog.Nop()).WithClock(func() time.Time { return testNow })

	a, p, err := gate.Check(context.Background(), store.profile.ID)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if a.HasFullAccess {
		t.Fatal("expired trial granted access")
	}
	if p.TrialActive {
		t.Fatal("returned profile should reflect the corrective write")
	}
	if len(store.deactivated) != 1 {
		t.Fatalf("expected exactly one corrective write, got %d", len(store.deactivated))
	}

	// Second check: trial already off, no further corrective write.
	if _, _, err := gate.Check(context.Background(), store.profile.ID); err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if len(store.deactivated) != 1 {
		t.Fatalf("corrective write must not repeat, got %d", len(store.deactivated))
	}
}

func TestGateCheck_StaleIdentity(t *testing.T) {
	gate := NewGate(&fakeProfileStore{}, zerolog.Nop()).WithClock(func() time.Time { return testNow })

	_, _, err := gate.Check(context.Background(), uuid.New())
	if err != ErrProfileGone {
		t.Fatalf("expected ErrProfileGone, got %v", err)
	}
}
