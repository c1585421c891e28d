package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/models"
	"github.com/lmendes/licitahub/internal/realtime"
)

var (
	ErrNotParticipant = errors.New("not a participant of this room")
	ErrEmptyMessage   = errors.New("empty message")
	ErrUploadFailed   = errors.New("attachment upload failed")
)

type Store interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error)
	FindOrCreateLobby(ctx context.Context) (*models.ChatRoom, error)
	FindOrCreateSupportRoom(ctx context.Context, memberID uuid.UUID) (*models.ChatRoom, error)
	FindOrCreateOpportunityRoom(ctx context.Context, oppID uuid.UUID) (*models.ChatRoom, error)
	InsertChatMessage(ctx context.Context, m *models.ChatMessage) error
	GetChatMessage(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)
	SoftDeleteChatMessage(ctx context.Context, id uuid.UUID) error
	HardDeleteChatMessage(ctx context.Context, id uuid.UUID) error
	ListMessagesWithAuthors(ctx context.Context, roomID uuid.UUID, limit int, now time.Time) ([]models.ChatMessageView, error)
	UpsertReadCursor(ctx context.Context, userID, roomID uuid.UUID, readAt time.Time) error
	UnreadCount(ctx context.Context, userID, roomID uuid.UUID) (int, error)
	GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)
}

// Uploader stores attachment bytes and returns the object key. Satisfied by
// storage.Client.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Notifier interface {
	NotifyAdmins(ctx context.Context, typ, title, message string, referenceID *uuid.UUID)
}

type Publisher interface {
	Publish(ev realtime.Event)
}

// Service owns room access and the message lifecycle. Message bodies pass
// through a strict sanitizer: chat renders text only, markup is stripped at
// the door rather than at display time.
type Service struct {
	store    Store
	uploads  Uploader
	notifier Notifier
	bus      Publisher
	policy   *bluemonday.Policy
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(store Store, uploads Uploader, notifier Notifier, bus Publisher, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		uploads:  uploads,
		notifier: notifier,
		bus:      bus,
		policy:   bluemonday.StrictPolicy(),
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OpenLobby returns the single active lobby, creating it on first contact.
func (s *Service) OpenLobby(ctx context.Context, user *models.Profile) (*models.ChatRoom, error) {
	return s.store.FindOrCreateLobby(ctx)
}

// OpenSupportRoom returns the member's private line to staff. Members reach
// only their own; staff may open any member's room.
func (s *Service) OpenSupportRoom(ctx context.Context, user *models.Profile, memberID uuid.UUID) (*models.ChatRoom, error) {
	if !user.IsAdmin && memberID != user.ID {
		return nil, ErrNotParticipant
	}
	return s.store.FindOrCreateSupportRoom(ctx, memberID)
}

// OpenOpportunityRoom returns the room bound to one opportunity, open to
// staff and to members of the opportunity's organization.
func (s *Service) OpenOpportunityRoom(ctx context.Context, user *models.Profile, oppID uuid.UUID) (*models.ChatRoom, error) {
	if !user.IsAdmin {
		opp, err := s.store.GetOpportunity(ctx, oppID)
		if err != nil {
			return nil, err
		}
		if user.OrganizationID == nil || *user.OrganizationID != opp.OrganizationID {
			return nil, ErrNotParticipant
		}
	}
	return s.store.FindOrCreateOpportunityRoom(ctx, oppID)
}

// canAccess re-applies the per-kind rule against an already-loaded room.
func (s *Service) canAccess(ctx context.Context, user *models.Profile, room *models.ChatRoom) error {
	if user.IsAdmin {
		return nil
	}
	switch room.Kind {
	case models.RoomLobby:
		return nil
	case models.RoomSupport:
		if room.MemberID != nil && *room.MemberID == user.ID {
			return nil
		}
	case models.RoomOpportunity:
		if room.OpportunityID == nil {
			break
		}
		opp, err := s.store.GetOpportunity(ctx, *room.OpportunityID)
		if err != nil {
			return err
		}
		if user.OrganizationID != nil && *user.OrganizationID == opp.OrganizationID {
			return nil
		}
	}
	return ErrNotParticipant
}

// CanSubscribe reports whether the user may stream a room's events: the same
// per-kind rule as reading its history.
func (s *Service) CanSubscribe(ctx context.Context, user *models.Profile, roomID uuid.UUID) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	return s.canAccess(ctx, user, room)
}

// Attachment is an optional file riding along with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Send posts a message to a room. When an attachment is present it is
// uploaded first; an upload failure aborts the whole send so a message never
// references a file that does not exist. The stored object key is appended
// to the body before insert.
func (s *Service) Send(ctx context.Context, user *models.Profile, roomID uuid.UUID, body string, att *Attachment) (*models.ChatMessage, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrNotParticipant
	}
	if err := s.canAccess(ctx, user, room); err != nil {
		return nil, err
	}

	body = strings.TrimSpace(s.policy.Sanitize(body))
	if body == "" && att == nil {
		return nil, ErrEmptyMessage
	}

	if att != nil {
		key := fmt.Sprintf("chat/%s/%s_%s", roomID, uuid.New(), att.Name)
		stored, err := s.uploads.Upload(ctx, key, att.Data, att.ContentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		body = strings.TrimSpace(body + "\n[anexo] " + stored)
	}

	m := &models.ChatMessage{
		RoomID:   roomID,
		AuthorID: user.ID,
		Body:     body,
		IsAdmin:  user.IsAdmin,
	}
	if err := s.store.InsertChatMessage(ctx, m); err != nil {
		return nil, err
	}

	s.bus.Publish(realtime.Event{
		Table:   "chat_messages",
		Key:     roomID.String(),
		Type:    realtime.EventInsert,
		Payload: *m,
	})
	return m, nil
}

// Delete removes a message. Lobby messages may be pulled by their author or
// by staff: they are soft-deleted to a marker so public history keeps its
// shape, and staff get a moderation notice carrying the original text.
// Messages in private rooms are removed outright, and only at staff
// discretion.
func (s *Service) Delete(ctx context.Context, user *models.Profile, messageID uuid.UUID) error {
	m, err := s.store.GetChatMessage(ctx, messageID)
	if err != nil {
		return err
	}
	room, err := s.store.GetRoom(ctx, m.RoomID)
	if err != nil {
		return err
	}

	if room.Kind == models.RoomLobby {
		if !user.IsAdmin && m.AuthorID != user.ID {
			return ErrNotParticipant
		}
		if m.Deleted {
			return nil
		}
		if err := s.store.SoftDeleteChatMessage(ctx, messageID); err != nil {
			return err
		}
		s.notifier.NotifyAdmins(ctx, models.NoticeChatModeration, "Mensagem removida do lobby",
			fmt.Sprintf("Texto original: %s", m.Body), &m.RoomID)
		s.bus.Publish(realtime.Event{
			Table: "chat_messages", Key: m.RoomID.String(), Type: realtime.EventUpdate,
			Payload: messageID,
		})
		return nil
	}

	if !user.IsAdmin {
		return ErrNotParticipant
	}
	if err := s.store.HardDeleteChatMessage(ctx, messageID); err != nil {
		return err
	}
	s.bus.Publish(realtime.Event{
		Table: "chat_messages", Key: m.RoomID.String(), Type: realtime.EventDelete,
		Payload: messageID,
	})
	return nil
}

// History returns the room's messages joined with live author profiles.
func (s *Service) History(ctx context.Context, user *models.Profile, roomID uuid.UUID, limit int) ([]models.ChatMessageView, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.canAccess(ctx, user, room); err != nil {
		return nil, err
	}
	return s.store.ListMessagesWithAuthors(ctx, roomID, limit, s.now())
}

// MarkRead advances the user's durable read cursor. Monotonic in the store:
// a stale timestamp from a lagging device never moves the cursor backwards.
func (s *Service) MarkRead(ctx context.Context, user *models.Profile, roomID uuid.UUID) error {
	return s.store.UpsertReadCursor(ctx, user.ID, roomID, s.now())
}

func (s *Service) Unread(ctx context.Context, user *models.Profile, roomID uuid.UUID) (int, error) {
	return s.store.UnreadCount(ctx, user.ID, roomID)
}
