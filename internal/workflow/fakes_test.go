package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/models"
	"github.com/lmendes/licitahub/internal/realtime"
)

type fakeOppStore struct {
	opps    map[uuid.UUID]*models.Opportunity
	tickets map[uuid.UUID][]models.Ticket
	updates int
}

func newFakeOppStore() *fakeOppStore {
	return &fakeOppStore{
		opps:    make(map[uuid.UUID]*models.Opportunity),
		tickets: make(map[uuid.UUID][]models.Ticket),
	}
}

func (f *fakeOppStore) put(o models.Opportunity) *models.Opportunity {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	f.opps[o.ID] = &o
	return &o
}

func (f *fakeOppStore) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	o, ok := f.opps[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOppStore) UpdateOpportunity(ctx context.Context, o *models.Opportunity) error {
	if _, ok := f.opps[o.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *o
	f.opps[o.ID] = &cp
	f.updates++
	return nil
}

func (f *fakeOppStore) DeleteOpportunity(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.opps[id]; !ok {
		return db.ErrNotFound
	}
	delete(f.opps, id)
	return nil
}

func (f *fakeOppStore) CountTicketsForOpportunity(ctx context.Context, oppID uuid.UUID) (int, error) {
	return len(f.tickets[oppID]), nil
}

func (f *fakeOppStore) ListTicketsByOpportunity(ctx context.Context, oppID uuid.UUID) ([]models.Ticket, error) {
	return f.tickets[oppID], nil
}

type fakeTicketStore struct {
	tickets  map[uuid.UUID]*models.Ticket
	events   []models.TicketEvent
	messages []models.TicketMessage
	deleted  []uuid.UUID
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{tickets: make(map[uuid.UUID]*models.Ticket)}
}

func (f *fakeTicketStore) put(t models.Ticket) *models.Ticket {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	f.tickets[t.ID] = &t
	return &t
}

func (f *fakeTicketStore) GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTicketStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	f.tickets[t.ID] = &cp
	return nil
}

func (f *fakeTicketStore) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	if _, ok := f.tickets[t.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *t
	f.tickets[t.ID] = &cp
	return nil
}

func (f *fakeTicketStore) DeleteTicket(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.tickets[id]; !ok {
		return db.ErrNotFound
	}
	delete(f.tickets, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTicketStore) AppendTicketEvent(ctx context.Context, e *models.TicketEvent) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeTicketStore) ListTicketsByOpportunity(ctx context.Context, oppID uuid.UUID) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range f.tickets {
		if t.OpportunityID != nil && *t.OpportunityID == oppID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTicketStore) InsertTicketMessage(ctx context.Context, m *models.TicketMessage) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeTicketStore) eventsOf(typ string) []models.TicketEvent {
	var out []models.TicketEvent
	for _, e := range f.events {
		if e.EventType == typ {
			out = append(out, e)
		}
	}
	return out
}

type sentNotice struct {
	scope  string // user, org, admins
	target uuid.UUID
	typ    string
	title  string
	ref    *uuid.UUID
}

type fakeNotifier struct {
	sent []sentNotice
}

func (f *fakeNotifier) Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, ref *uuid.UUID) {
	f.sent = append(f.sent, sentNotice{scope: "user", target: userID, typ: typ, title: title, ref: ref})
}

func (f *fakeNotifier) NotifyOrganization(ctx context.Context, orgID uuid.UUID, typ, title, message string, ref *uuid.UUID) {
	f.sent = append(f.sent, sentNotice{scope: "org", target: orgID, typ: typ, title: title, ref: ref})
}

func (f *fakeNotifier) NotifyAdmins(ctx context.Context, typ, title, message string, ref *uuid.UUID) {
	f.sent = append(f.sent, sentNotice{scope: "admins", typ: typ, title: title, ref: ref})
}

func (f *fakeNotifier) byScope(scope string) []sentNotice {
	var out []sentNotice
	for _, n := range f.sent {
		if n.scope == scope {
			out = append(out, n)
		}
	}
	return out
}

type fakeBus struct {
	events []realtime.Event
}

func (f *fakeBus) Publish(ev realtime.Event) {
	f.events = append(f.events, ev)
}

func staff() Actor {
	return Actor{ID: uuid.New(), IsAdmin: true}
}

func memberOf(orgID uuid.UUID) Actor {
	return Actor{ID: uuid.New(), OrganizationID: &orgID}
}
