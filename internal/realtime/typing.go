package realtime

import (
	"sync"
	"time"
)

// TypingWindow is how long a participant counts as typing after their last
// keystroke.
const TypingWindow = 4 * time.Second

// TypingIndicator holds the ephemeral typing state per room. Nothing here
// is persisted; state is keystroke timestamps with a fixed expiry window,
// broadcast through the hub and cleared on blur or send.
type TypingIndicator struct {
	hub *Hub
	now func() time.Time

	mu    sync.Mutex
	rooms map[string]map[string]time.Time // roomID -> userID -> last keystroke
}

func NewTypingIndicator(hub *Hub) *TypingIndicator {
	return &TypingIndicator{
		hub:   hub,
		now:   time.Now,
		rooms: make(map[string]map[string]time.Time),
	}
}

// WithClock replaces the indicator's clock. Tests only.
func (t *TypingIndicator) WithClock(now func() time.Time) *TypingIndicator {
	t.now = now
	return t
}

// Touch registers a keystroke and broadcasts the typing state.
func (t *TypingIndicator) Touch(roomID, userID string) {
	t.mu.Lock()
	if t.rooms[roomID] == nil {
		t.rooms[roomID] = make(map[string]time.Time)
	}
	t.rooms[roomID][userID] = t.now()
	t.mu.Unlock()

	t.broadcast(roomID)
}

// Stop clears a participant immediately (blur or message send).
func (t *TypingIndicator) Stop(roomID, userID string) {
	t.mu.Lock()
	if users := t.rooms[roomID]; users != nil {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
	}
	t.mu.Unlock()

	t.broadcast(roomID)
}

// Active returns the participants still inside the typing window, pruning
// expired entries as it goes.
func (t *TypingIndicator) Active(roomID string) []string {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.rooms[roomID]
	var active []string
	for userID, last := range users {
		if now.Sub(last) <= TypingWindow {
			active = append(active, userID)
		} else {
			delete(users, userID)
		}
	}
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	return active
}

func (t *TypingIndicator) broadcast(roomID string) {
	t.hub.Publish(Event{
		Table:   "typing",
		Key:     roomID,
		Type:    EventUpdate,
		Payload: t.Active(roomID),
	})
}
