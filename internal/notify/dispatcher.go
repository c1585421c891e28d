package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/models"
)

type Store interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	InsertNotifications(ctx context.Context, ns []models.Notification) error
	ListOrganizationMemberIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
	MarkReadByReference(ctx context.Context, userID, referenceID uuid.UUID) (int64, error)
}

// Dispatcher fans out durable notices. The dispatch methods deliberately
// return nothing: a notice failure is logged and swallowed so it can never
// roll back or block the state transition that triggered it.
type Dispatcher struct {
	store Store
	log   zerolog.Logger
}

func NewDispatcher(store Store, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: store, log: log}
}

func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, referenceID *uuid.UUID) {
	n := models.Notification{
		UserID:      userID,
		Type:        typ,
		Title:       title,
		Message:     message,
		ReferenceID: referenceID,
	}
	if err := d.store.InsertNotification(ctx, &n); err != nil {
		d.log.Error().Err(err).Str("user_id", userID.String()).Str("type", typ).Msg("notification dispatch failed")
	}
}

// NotifyOrganization inserts one notice per member of the organization.
// Fan-out happens at write time so the bell reader stays a plain per-user
// query.
func (d *Dispatcher) NotifyOrganization(ctx context.Context, orgID uuid.UUID, typ, title, message string, referenceID *uuid.UUID) {
	members, err := d.store.ListOrganizationMemberIDs(ctx, orgID)
	if err != nil {
		d.log.Error().Err(err).Str("org_id", orgID.String()).Msg("organization fan-out lookup failed")
		return
	}
	d.bulk(ctx, members, typ, title, message, referenceID)
}

func (d *Dispatcher) NotifyAdmins(ctx context.Context, typ, title, message string, referenceID *uuid.UUID) {
	admins, err := d.store.ListAdminIDs(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("admin fan-out lookup failed")
		return
	}
	d.bulk(ctx, admins, typ, title, message, referenceID)
}

func (d *Dispatcher) bulk(ctx context.Context, targets []uuid.UUID, typ, title, message string, referenceID *uuid.UUID) {
	if len(targets) == 0 {
		return
	}
	ns := make([]models.Notification, 0, len(targets))
	for _, target := range targets {
		ns = append(ns, models.Notification{
			UserID:      target,
			Type:        typ,
			Title:       title,
			Message:     message,
			ReferenceID: referenceID,
		})
	}
	if err := d.store.InsertNotifications(ctx, ns); err != nil {
		d.log.Error().Err(err).Int("targets", len(targets)).Str("type", typ).Msg("bulk notification dispatch failed")
	}
}

// ClearByReference marks every unread notice the user holds against the
// reference as read. Bulk and idempotent; called on entering a room, ticket
// or opportunity detail view.
func (d *Dispatcher) ClearByReference(ctx context.Context, userID, referenceID uuid.UUID) error {
	_, err := d.store.MarkReadByReference(ctx, userID, referenceID)
	return err
}
