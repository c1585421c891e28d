package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/models"
	"github.com/lmendes/licitahub/internal/realtime"
)

type fakeChatStore struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*models.ChatRoom
	messages map[uuid.UUID]*models.ChatMessage
	opps     map[uuid.UUID]*models.Opportunity
	cursors  map[string]time.Time
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		rooms:    make(map[uuid.UUID]*models.ChatRoom),
		messages: make(map[uuid.UUID]*models.ChatMessage),
		opps:     make(map[uuid.UUID]*models.Opportunity),
		cursors:  make(map[string]time.Time),
	}
}

func (f *fakeChatStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeChatStore) findOrCreate(match func(*models.ChatRoom) bool, make func() *models.ChatRoom) (*models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.IsActive && match(r) {
			cp := *r
			return &cp, nil
		}
	}
	r := make()
	r.ID = uuid.New()
	r.IsActive = true
	f.rooms[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f *fakeChatStore) FindOrCreateLobby(ctx context.Context) (*models.ChatRoom, error) {
	return f.findOrCreate(
		func(r *models.ChatRoom) bool { return r.Kind == models.RoomLobby },
		func() *models.ChatRoom { return &models.ChatRoom{Kind: models.RoomLobby} },
	)
}

func (f *fakeChatStore) FindOrCreateSupportRoom(ctx context.Context, memberID uuid.UUID) (*models.ChatRoom, error) {
	return f.findOrCreate(
		func(r *models.ChatRoom) bool {
			return r.Kind == models.RoomSupport && r.MemberID != nil && *r.MemberID == memberID
		},
		func() *models.ChatRoom { return &models.ChatRoom{Kind: models.RoomSupport, MemberID: &memberID} },
	)
}

func (f *fakeChatStore) FindOrCreateOpportunityRoom(ctx context.Context, oppID uuid.UUID) (*models.ChatRoom, error) {
	return f.findOrCreate(
		func(r *models.ChatRoom) bool {
			return r.Kind == models.RoomOpportunity && r.OpportunityID != nil && *r.OpportunityID == oppID
		},
		func() *models.ChatRoom { return &models.ChatRoom{Kind: models.RoomOpportunity, OpportunityID: &oppID} },
	)
}

func (f *fakeChatStore) InsertChatMessage(ctx context.Context, m *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	cp := *m
	f.messages[m.ID] = &cp
	return nil
}

func (f *fakeChatStore) GetChatMessage(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeChatStore) SoftDeleteChatMessage(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return db.ErrNotFound
	}
	m.Body = models.DeletedMarker
	m.Deleted = true
	return nil
}

func (f *fakeChatStore) HardDeleteChatMessage(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[id]; !ok {
		return db.ErrNotFound
	}
	delete(f.messages, id)
	return nil
}

func (f *fakeChatStore) ListMessagesWithAuthors(ctx context.Context, roomID uuid.UUID, limit int, now time.Time) ([]models.ChatMessageView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessageView
	for _, m := range f.messages {
		if m.RoomID == roomID {
			out = append(out, models.ChatMessageView{ChatMessage: *m})
		}
	}
	return out, nil
}

func (f *fakeChatStore) UpsertReadCursor(ctx context.Context, userID, roomID uuid.UUID, readAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID.String() + "|" + roomID.String()
	if readAt.After(f.cursors[key]) {
		f.cursors[key] = readAt
	}
	return nil
}

func (f *fakeChatStore) UnreadCount(ctx context.Context, userID, roomID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID.String() + "|" + roomID.String()
	cursor := f.cursors[key]
	n := 0
	for _, m := range f.messages {
		if m.RoomID == roomID && m.AuthorID != userID && m.CreatedAt.After(cursor) {
			n++
		}
	}
	return n, nil
}

func (f *fakeChatStore) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.opps[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type fakeUploader struct {
	fail bool
	keys []string
}

func (f *fakeUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.fail {
		return "", errors.New("s3 unavailable")
	}
	f.keys = append(f.keys, key)
	return key, nil
}

type fakeModNotifier struct {
	sent []string // messages
}

func (f *fakeModNotifier) NotifyAdmins(ctx context.Context, typ, title, message string, ref *uuid.UUID) {
	f.sent = append(f.sent, message)
}

type fakeBus struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (f *fakeBus) Publish(ev realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func member(orgID *uuid.UUID) *models.Profile {
	return &models.Profile{ID: uuid.New(), OrganizationID: orgID}
}

func admin() *models.Profile {
	return &models.Profile{ID: uuid.New(), IsAdmin: true}
}

func newChatService(store *fakeChatStore) (*Service, *fakeUploader, *fakeModNotifier, *fakeBus) {
	up := &fakeUploader{}
	notifier := &fakeModNotifier{}
	bus := &fakeBus{}
	return NewService(store, up, notifier, bus, zerolog.Nop()), up, notifier, bus
}

func TestOpenSupportRoom_Access(t *testing.T) {
	store := newFakeChatStore()
	svc, _, _, _ := newChatService(store)

	me := member(nil)
	mine, err := svc.OpenSupportRoom(context.Background(), me, me.ID)
	if err != nil {
		t.Fatalf("open own support room failed: %v", err)
	}
	if mine.Kind != models.RoomSupport || *mine.MemberID != me.ID {
		t.Fatalf("unexpected room: %+v", mine)
	}

	// Same member again: same room, not a second one.
	again, err := svc.OpenSupportRoom(context.Background(), me, me.ID)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if again.ID != mine.ID {
		t.Fatal("support room must be stable per member")
	}

	// A stranger cannot open someone else's line; staff can.
	if _, err := svc.OpenSupportRoom(context.Background(), member(nil), me.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := svc.OpenSupportRoom(context.Background(), admin(), me.ID); err != nil {
		t.Fatalf("staff open failed: %v", err)
	}
}

func TestOpenOpportunityRoom_OrgMembership(t *testing.T) {
	store := newFakeChatStore()
	svc, _, _, _ := newChatService(store)

	orgID := uuid.New()
	oppID := uuid.New()
	store.opps[oppID] = &models.Opportunity{ID: oppID, OrganizationID: orgID}

	if _, err := svc.OpenOpportunityRoom(context.Background(), member(&orgID), oppID); err != nil {
		t.Fatalf("org member open failed: %v", err)
	}
	otherOrg := uuid.New()
	if _, err := svc.OpenOpportunityRoom(context.Background(), member(&otherOrg), oppID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestConcurrentRoomRequests_OneRoom(t *testing.T) {
	store := newFakeChatStore()
	svc, _, _, _ := newChatService(store)

	me := member(nil)
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.OpenSupportRoom(context.Background(), me, me.ID)
			if err != nil {
				t.Errorf("open failed: %v", err)
				return
			}
			ids[i] = r.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent opens diverged: %v", ids)
		}
	}
}

func TestSend_SanitizesMarkup(t *testing.T) {
	store := newFakeChatStore()
	svc, _, _, bus := newChatService(store)

	lobby, _ := store.FindOrCreateLobby(context.Background())
	m, err := svc.Send(context.Background(), member(nil), lobby.ID, `<script>alert(1)</script>olá <b>equipe</b>`, nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if strings.Contains(m.Body, "<") {
		t.Fatalf("markup survived sanitization: %q", m.Body)
	}
	if !strings.Contains(m.Body, "olá") {
		t.Fatalf("text content lost: %q", m.Body)
	}
	if len(bus.events) != 1 || bus.events[0].Key != lobby.ID.String() {
		t.Fatalf("expected one room broadcast, got %+v", bus.events)
	}
}

func TestSend_EmptyAfterSanitizationRejected(t *testing.T) {
	store := newFakeChatStore()
	svc, _, _, _ := newChatService(store)

	lobby, _ := store.FindOrCreateLobby(context.Background())
	if _, err := svc.Send(context.Background(), member(nil), lobby.ID, "<script>x</script>", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSend_AttachmentUploadFirst(t *testing.T) {
	store := newFakeChatStore()
	svc, up, _, _ := newChatService(store)

	lobby, _ := store.FindOrCreateLobby(context.Background())
	att := &Attachment{Name: "edital.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}

	// Upload failure aborts the send entirely: no stored message.
	up.fail = true
	if _, err := svc.Send(context.Background(), member(nil), lobby.ID, "segue o edital", att); !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
	if len(store.messages) != 0 {
		t.Fatal("failed upload must not leave a message behind")
	}

	up.fail = false
	m, err := svc.Send(context.Background(), member(nil), lobby.ID, "segue o edital", att)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(up.keys) != 1 || !strings.Contains(m.Body, up.keys[0]) {
		t.Fatalf("stored key must be referenced in the body: %q / %v", m.Body, up.keys)
	}
}

func TestDelete_LobbyIsSoftWithModerationNotice(t *testing.T) {
	store := newFakeChatStore()
	svc, _, notifier, _ := newChatService(store)

	lobby, _ := store.FindOrCreateLobby(context.Background())
	author := member(nil)
	m, err := svc.Send(context.Background(), author, lobby.ID, "preço combinado no grupo", nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// A third member cannot moderate.
	if err := svc.Delete(context.Background(), member(nil), m.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}

	if err := svc.Delete(context.Background(), admin(), m.ID); err != nil {
		t.Fatalf("moderation delete failed: %v", err)
	}
	kept := store.messages[m.ID]
	if kept == nil || !kept.Deleted || kept.Body != models.DeletedMarker {
		t.Fatalf("lobby delete must keep a marker row: %+v", kept)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0], "preço combinado no grupo") {
		t.Fatalf("moderation notice must carry the original text, got %v", notifier.sent)
	}

	// Second delete is a no-op, no duplicate notice.
	if err := svc.Delete(context.Background(), admin(), m.ID); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("repeat delete must not re-notify, got %d notices", len(notifier.sent))
	}
}

func TestDelete_SupportRoomIsHardAndStaffOnly(t *testing.T) {
	store := newFakeChatStore()
	svc, _, notifier, _ := newChatService(store)

	me := member(nil)
	room, _ := store.FindOrCreateSupportRoom(context.Background(), me.ID)
	m, err := svc.Send(context.Background(), me, room.ID, "dados sensíveis", nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// Outside the lobby not even the author may remove a message.
	if err := svc.Delete(context.Background(), me, m.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant for author delete, got %v", err)
	}
	if _, ok := store.messages[m.ID]; !ok {
		t.Fatal("rejected delete must leave the row in place")
	}

	if err := svc.Delete(context.Background(), admin(), m.ID); err != nil {
		t.Fatalf("staff delete failed: %v", err)
	}
	if _, ok := store.messages[m.ID]; ok {
		t.Fatal("support-room delete must remove the row")
	}
	if len(notifier.sent) != 0 {
		t.Fatal("private-room deletes are not moderation events")
	}
}

func TestCanSubscribe_RoomIsolation(t *testing.T) {
	store := newFakeChatStore()
	svc, _, _, _ := newChatService(store)

	me := member(nil)
	room, _ := store.FindOrCreateSupportRoom(context.Background(), me.ID)
	if _, err := svc.Send(context.Background(), me, room.ID, "conversa confidencial com o suporte", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if err := svc.CanSubscribe(context.Background(), me, room.ID); err != nil {
		t.Fatalf("owner must stream their own support room: %v", err)
	}
	if err := svc.CanSubscribe(context.Background(), admin(), room.ID); err != nil {
		t.Fatalf("staff must stream any room: %v", err)
	}
	if err := svc.CanSubscribe(context.Background(), member(nil), room.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant for an outsider, got %v", err)
	}

	orgID := uuid.New()
	oppID := uuid.New()
	store.opps[oppID] = &models.Opportunity{ID: oppID, OrganizationID: orgID}
	oppRoom, _ := store.FindOrCreateOpportunityRoom(context.Background(), oppID)

	if err := svc.CanSubscribe(context.Background(), member(&orgID), oppRoom.ID); err != nil {
		t.Fatalf("org member must stream the opportunity room: %v", err)
	}
	otherOrg := uuid.New()
	if err := svc.CanSubscribe(context.Background(), member(&otherOrg), oppRoom.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant for a foreign org, got %v", err)
	}
}

func TestMarkRead_CursorDrivesUnread(t *testing.T) {
	store := newFakeChatStore()
	svc, _, _, _ := newChatService(store)

	lobby, _ := store.FindOrCreateLobby(context.Background())
	reader := member(nil)
	author := member(nil)

	if _, err := svc.Send(context.Background(), author, lobby.ID, "um", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if n, _ := svc.Unread(context.Background(), reader, lobby.ID); n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}

	svc.WithClock(func() time.Time { return time.Now().Add(time.Second) })
	if err := svc.MarkRead(context.Background(), reader, lobby.ID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if n, _ := svc.Unread(context.Background(), reader, lobby.ID); n != 0 {
		t.Fatalf("expected 0 unread after mark, got %d", n)
	}

	// Own messages never count as unread.
	if _, err := svc.Send(context.Background(), reader, lobby.ID, "dois", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if n, _ := svc.Unread(context.Background(), reader, lobby.ID); n != 0 {
		t.Fatalf("own message counted as unread: %d", n)
	}
}
