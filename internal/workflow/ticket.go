package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/models"
	"github.com/lmendes/licitahub/internal/realtime"
)

const (
	eventCreated       = "created"
	eventStatusChanged = "status_changed"
	eventReopened      = "reopened"
	eventAutoResolved  = "auto_resolved"
)

type TicketStore interface {
	GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	CreateTicket(ctx context.Context, t *models.Ticket) error
	UpdateTicket(ctx context.Context, t *models.Ticket) error
	DeleteTicket(ctx context.Context, id uuid.UUID) error
	AppendTicketEvent(ctx context.Context, e *models.TicketEvent) error
	ListTicketsByOpportunity(ctx context.Context, oppID uuid.UUID) ([]models.Ticket, error)
	InsertTicketMessage(ctx context.Context, m *models.TicketMessage) error
}

// TicketService drives the ticket workflow. Every status change lands one
// row in the append-only event log; the log write is best-effort after the
// status write and never rolls it back.
type TicketService struct {
	store    TicketStore
	notifier Notifier
	bus      Publisher
	log      zerolog.Logger
	now      func() time.Time
}

func NewTicketService(store TicketStore, notifier Notifier, bus Publisher, log zerolog.Logger) *TicketService {
	return &TicketService{
		store:    store,
		notifier: notifier,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the service clock. Tests only.
func (s *TicketService) WithClock(now func() time.Time) *TicketService {
	s.now = now
	return s
}

// CreateTicketInput carries the member-supplied fields. Staff may create on
// a member's behalf by setting MemberID to the client's ID.
type CreateTicketInput struct {
	MemberID      uuid.UUID
	Title         string
	Description   string
	Priority      string
	Deadline      *time.Time
	Category      models.ServiceCategory
	PriceQuote    string
	OpportunityID *uuid.UUID
}

func (s *TicketService) Create(ctx context.Context, actor Actor, in CreateTicketInput) (*models.Ticket, error) {
	if !actor.IsAdmin && in.MemberID != actor.ID {
		return nil, ErrForbidden
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidTransition)
	}
	if in.Priority == "" {
		in.Priority = "normal"
	}

	t := &models.Ticket{
		MemberID:      in.MemberID,
		Title:         in.Title,
		Description:   in.Description,
		Status:        models.TicketOpen,
		Priority:      in.Priority,
		Deadline:      in.Deadline,
		Category:      in.Category,
		PriceQuote:    in.PriceQuote,
		OpportunityID: in.OpportunityID,
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, t.ID, eventCreated, nil, statusPtr(t.Status), &actor.ID, "")
	s.broadcast(t)
	s.notifier.NotifyAdmins(ctx, models.NoticeTicketCreated, "Novo chamado",
		fmt.Sprintf("Chamado aberto: %q.", t.Title), &t.ID)
	if actor.IsAdmin && in.MemberID != actor.ID {
		s.notifier.Notify(ctx, t.MemberID, models.NoticeTicketCreated, "Chamado aberto",
			fmt.Sprintf("Um chamado foi aberto em seu nome: %q.", t.Title), &t.ID)
	}
	return t, nil
}

// ChangeStatus moves a ticket along the forward workflow or cancels it.
// Staff only; members drive their tickets through messages and reopening.
func (s *TicketService) ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, to models.TicketStatus, note string) (*models.Ticket, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTicketTransition(t.Status, to); err != nil {
		return nil, err
	}

	from := t.Status
	t.Status = to
	if err := s.store.UpdateTicket(ctx, t); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, t.ID, eventStatusChanged, statusPtr(from), statusPtr(to), &actor.ID, note)
	s.broadcast(t)
	s.notifier.Notify(ctx, t.MemberID, models.NoticeTicketStatus, "Chamado atualizado",
		fmt.Sprintf("%q: %s.", t.Title, to), &t.ID)
	return t, nil
}

// Reopen puts a ticket back to open. The owner or staff may reopen; closed
// tickets only within the window, resolved tickets never.
func (s *TicketService) Reopen(ctx context.Context, actor Actor, id uuid.UUID) (*models.Ticket, error) {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && t.MemberID != actor.ID {
		return nil, ErrForbidden
	}
	if err := CanReopenTicket(*t, s.now()); err != nil {
		return nil, err
	}

	from := t.Status
	t.Status = models.TicketOpen
	if err := s.store.UpdateTicket(ctx, t); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, t.ID, eventReopened, statusPtr(from), statusPtr(models.TicketOpen), &actor.ID, "")
	s.broadcast(t)
	s.notifier.NotifyAdmins(ctx, models.NoticeTicketStatus, "Chamado reaberto",
		fmt.Sprintf("%q foi reaberto.", t.Title), &t.ID)
	return t, nil
}

// Archive tucks a resolved ticket away from the default listing. The status
// is untouched; archiving is presentation, not workflow.
func (s *TicketService) Archive(ctx context.Context, actor Actor, id uuid.UUID, archived bool) (*models.Ticket, error) {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && t.MemberID != actor.ID {
		return nil, ErrForbidden
	}
	if archived {
		if err := CanArchiveTicket(*t); err != nil {
			return nil, err
		}
	}

	t.IsArchived = archived
	if err := s.store.UpdateTicket(ctx, t); err != nil {
		return nil, err
	}
	s.broadcast(t)
	return t, nil
}

// Delete removes a closed ticket after the cooling-off period, cascading
// its events, messages and notices.
func (s *TicketService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := CanDeleteTicket(*t, s.now()); err != nil {
		return err
	}
	if err := s.store.DeleteTicket(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(realtime.Event{Table: "tickets", Key: id.String(), Type: realtime.EventDelete})
	return nil
}

// PostMessage appends to the ticket thread and pings the other side.
func (s *TicketService) PostMessage(ctx context.Context, actor Actor, ticketID uuid.UUID, body string) (*models.TicketMessage, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidTransition)
	}
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && t.MemberID != actor.ID {
		return nil, ErrForbidden
	}

	m := &models.TicketMessage{
		TicketID: ticketID,
		AuthorID: actor.ID,
		Body:     body,
		IsAdmin:  actor.IsAdmin,
	}
	if err := s.store.InsertTicketMessage(ctx, m); err != nil {
		return nil, err
	}

	s.bus.Publish(realtime.Event{
		Table:   "ticket_messages",
		Key:     ticketID.String(),
		Type:    realtime.EventInsert,
		Payload: *m,
	})
	if actor.IsAdmin {
		s.notifier.Notify(ctx, t.MemberID, models.NoticeTicketStatus, "Nova resposta",
			fmt.Sprintf("Resposta da equipe em %q.", t.Title), &t.ID)
	} else {
		s.notifier.NotifyAdmins(ctx, models.NoticeTicketStatus, "Nova mensagem",
			fmt.Sprintf("Mensagem do cliente em %q.", t.Title), &t.ID)
	}
	return m, nil
}

// AutoResolveForPetition completes every in-flight appeal or impugnation
// ticket linked to the opportunity after its petition lands. System-actor
// events, errors logged and swallowed: the petition attachment already
// committed.
func (s *TicketService) AutoResolveForPetition(ctx context.Context, opp *models.Opportunity) {
	linked, err := s.store.ListTicketsByOpportunity(ctx, opp.ID)
	if err != nil {
		s.log.Error().Err(err).Str("opportunity_id", opp.ID.String()).Msg("auto-resolve lookup failed")
		return
	}

	for i := range linked {
		t := linked[i]
		if !autoResolvable(t) {
			continue
		}

		from := t.Status
		t.Status = models.TicketResolved
		if err := s.store.UpdateTicket(ctx, &t); err != nil {
			s.log.Error().Err(err).Str("ticket_id", t.ID.String()).Msg("auto-resolve update failed")
			continue
		}

		s.appendEvent(ctx, t.ID, eventAutoResolved, statusPtr(from), statusPtr(models.TicketResolved), nil,
			fmt.Sprintf("petição anexada em %q", opp.Title))
		s.broadcast(&t)
		s.notifier.Notify(ctx, t.MemberID, models.NoticeTicketStatus, "Chamado resolvido",
			fmt.Sprintf("%q foi resolvido: a petição está disponível.", t.Title), &t.ID)
	}
}

func (s *TicketService) appendEvent(ctx context.Context, ticketID uuid.UUID, typ string, old, new *string, actorID *uuid.UUID, note string) {
	e := &models.TicketEvent{
		TicketID:  ticketID,
		EventType: typ,
		OldStatus: old,
		NewStatus: new,
		ActorID:   actorID,
		Note:      note,
	}
	if err := s.store.AppendTicketEvent(ctx, e); err != nil {
		s.log.Error().Err(err).Str("ticket_id", ticketID.String()).Str("event", typ).Msg("ticket event append failed")
	}
}

func (s *TicketService) broadcast(t *models.Ticket) {
	s.bus.Publish(realtime.Event{
		Table:   "tickets",
		Key:     t.ID.String(),
		Type:    realtime.EventUpdate,
		Payload: *t,
	})
}

func statusPtr(s models.TicketStatus) *string {
	v := string(s)
	return &v
}
