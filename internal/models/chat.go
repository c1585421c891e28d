package models

import (
	"time"

	"github.com/google/uuid"
)

type RoomKind string

const (
	RoomLobby       RoomKind = "lobby"
	RoomSupport     RoomKind = "support"
	RoomOpportunity RoomKind = "opportunity"
)

func (k RoomKind) Valid() bool {
	return k == RoomLobby || k == RoomSupport || k == RoomOpportunity
}

// ChatRoom is a conversation container. At most one active room exists per
// scope: globally for the lobby, per member for support, per opportunity for
// opportunity rooms. The store enforces this with partial unique indexes.
type ChatRoom struct {
	ID            uuid.UUID  `json:"id"`
	Kind          RoomKind   `json:"kind"`
	MemberID      *uuid.UUID `json:"member_id"`      // support rooms only
	OpportunityID *uuid.UUID `json:"opportunity_id"` // opportunity rooms only
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DeletedMarker replaces the body of a soft-deleted lobby message. The row
// itself is kept so history ordering and authorship survive moderation.
const DeletedMarker = "[mensagem removida]"

type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	IsAdmin   bool      `json:"is_admin"` // authorship flag, immutable once written
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessageView is a message joined with its author's live profile, used
// by history listings so tier badges reflect the current subscription state.
type ChatMessageView struct {
	ChatMessage
	AuthorName string `json:"author_name"`
	AuthorTier string `json:"author_tier"`
}

// ReadCursor is the durable per-(user, room) read position backing unread
// counts across devices and sessions.
type ReadCursor struct {
	UserID     uuid.UUID `json:"user_id"`
	RoomID     uuid.UUID `json:"room_id"`
	LastReadAt time.Time `json:"last_read_at"`
}
