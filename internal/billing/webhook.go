package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/models"
)

var (
	ErrBadPayload   = errors.New("malformed webhook payload")
	ErrUnknownEvent = errors.New("unhandled webhook event type")
)

const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCanceled  = "subscription.canceled"
)

type Store interface {
	MarkWebhookProcessed(ctx context.Context, eventID string) (bool, error)
	SetSubscriptionActive(ctx context.Context, userID uuid.UUID, active bool) error
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, referenceID *uuid.UUID)
}

// WebhookEvent is the payment provider's envelope. UserID carries our
// profile id, set as metadata when the checkout session is created.
type WebhookEvent struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
}

// Processor applies payment events to profiles. Providers deliver
// at-least-once; the processed-event ledger collapses retries so a replayed
// activation cannot fire a second notice.
type Processor struct {
	store    Store
	notifier Notifier
	log      zerolog.Logger
}

func NewProcessor(store Store, notifier Notifier, log zerolog.Logger) *Processor {
	return &Processor{store: store, notifier: notifier, log: log}
}

// Process handles one webhook delivery. Returning nil acknowledges the
// event; transient store failures return an error so the provider retries.
func (p *Processor) Process(ctx context.Context, payload []byte) error {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if ev.ID == "" || ev.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing id or user_id", ErrBadPayload)
	}

	first, err := p.store.MarkWebhookProcessed(ctx, ev.ID)
	if err != nil {
		return err
	}
	if !first {
		p.log.Debug().Str("event_id", ev.ID).Msg("duplicate webhook delivery skipped")
		return nil
	}

	switch ev.Type {
	case EventSubscriptionActivated:
		if err := p.store.SetSubscriptionActive(ctx, ev.UserID, true); err != nil {
			return err
		}
		p.notifier.Notify(ctx, ev.UserID, models.NoticeSubscription,
			"Assinatura ativa", "Sua assinatura foi ativada. Bom proveito!", nil)
	case EventSubscriptionCanceled:
		if err := p.store.SetSubscriptionActive(ctx, ev.UserID, false); err != nil {
			return err
		}
		p.notifier.Notify(ctx, ev.UserID, models.NoticeSubscription,
			"Assinatura encerrada", "Sua assinatura foi encerrada.", nil)
	default:
		// Acknowledged but ignored; the ledger entry stops replays of event
		// types we add handling for later.
		p.log.Info().Str("event_id", ev.ID).Str("type", ev.Type).Msg("webhook event type ignored")
	}
	return nil
}
