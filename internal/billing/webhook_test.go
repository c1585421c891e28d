package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeBillingStore struct {
	seen     map[string]bool
	active   map[uuid.UUID]bool
	writeErr error
}

func newFakeBillingStore() *fakeBillingStore {
	return &fakeBillingStore{seen: make(map[string]bool), active: make(map[uuid.UUID]bool)}
}

func (f *fakeBillingStore) MarkWebhookProcessed(ctx context.Context, eventID string) (bool, error) {
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

func (f *fakeBillingStore) SetSubscriptionActive(ctx context.Context, userID uuid.UUID, active bool) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.active[userID] = active
	return nil
}

type fakeUserNotifier struct {
	sent int
}

func (f *fakeUserNotifier) Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, ref *uuid.UUID) {
	f.sent++
}

func TestProcess_ActivationIsIdempotent(t *testing.T) {
	store := newFakeBillingStore()
	notifier := &fakeUserNotifier{}
	p := NewProcessor(store, notifier, zerolog.Nop())

	userID := uuid.New()
	payload := []byte(`{"id":"evt_1","type":"subscription.activated","user_id":"` + userID.String() + `"}`)

	if err := p.Process(context.Background(), payload); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if !store.active[userID] {
		t.Fatal("subscription not activated")
	}
	if notifier.sent != 1 {
		t.Fatalf("expected one notice, got %d", notifier.sent)
	}

	// At-least-once redelivery: acknowledged, no second notice.
	if err := p.Process(context.Background(), payload); err != nil {
		t.Fatalf("redelivery must be acknowledged: %v", err)
	}
	if notifier.sent != 1 {
		t.Fatalf("redelivery must not re-notify, got %d", notifier.sent)
	}
}

func TestProcess_Cancellation(t *testing.T) {
	store := newFakeBillingStore()
	p := NewProcessor(store, &fakeUserNotifier{}, zerolog.Nop())

	userID := uuid.New()
	store.active[userID] = true
	payload := []byte(`{"id":"evt_2","type":"subscription.canceled","user_id":"` + userID.String() + `"}`)

	if err := p.Process(context.Background(), payload); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if store.active[userID] {
		t.Fatal("subscription still active after cancellation")
	}
}

func TestProcess_BadPayloads(t *testing.T) {
	p := NewProcessor(newFakeBillingStore(), &fakeUserNotifier{}, zerolog.Nop())

	for _, payload := range []string{
		`not json`,
		`{"type":"subscription.activated"}`,
		`{"id":"evt_3","type":"subscription.activated"}`,
	} {
		if err := p.Process(context.Background(), []byte(payload)); !errors.Is(err, ErrBadPayload) {
			t.Fatalf("payload %q: expected ErrBadPayload, got %v", payload, err)
		}
	}
}

func TestProcess_UnknownTypeAcknowledged(t *testing.T) {
	store := newFakeBillingStore()
	p := NewProcessor(store, &fakeUserNotifier{}, zerolog.Nop())

	payload := []byte(`{"id":"evt_4","type":"invoice.paid","user_id":"` + uuid.New().String() + `"}`)
	if err := p.Process(context.Background(), payload); err != nil {
		t.Fatalf("unknown type must be acknowledged: %v", err)
	}
	if !store.seen["evt_4"] {
		t.Fatal("unknown type must still land in the ledger")
	}
}

func TestProcess_TransientFailureLeavesRetryOpen(t *testing.T) {
	store := newFakeBillingStore()
	store.writeErr = errors.New("db down")
	p := NewProcessor(store, &fakeUserNotifier{}, zerolog.Nop())

	payload := []byte(`{"id":"evt_5","type":"subscription.activated","user_id":"` + uuid.New().String() + `"}`)
	if err := p.Process(context.Background(), payload); err == nil {
		t.Fatal("store failure must surface so the provider retries")
	}
}
