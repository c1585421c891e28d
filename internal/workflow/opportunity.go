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

// OpportunityStore is the slice of the database the opportunity engine
// needs. *db.Store satisfies it; tests use an in-memory fake.
type OpportunityStore interface {
	GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)
	UpdateOpportunity(ctx context.Context, o *models.Opportunity) error
	DeleteOpportunity(ctx context.Context, id uuid.UUID) error
	CountTicketsForOpportunity(ctx context.Context, oppID uuid.UUID) (int, error)
	ListTicketsByOpportunity(ctx context.Context, oppID uuid.UUID) ([]models.Ticket, error)
}

// Notifier is the durable-notice surface. Dispatch methods return nothing;
// see internal/notify.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, referenceID *uuid.UUID)
	NotifyOrganization(ctx context.Context, orgID uuid.UUID, typ, title, message string, referenceID *uuid.UUID)
	NotifyAdmins(ctx context.Context, typ, title, message string, referenceID *uuid.UUID)
}

type Publisher interface {
	Publish(ev realtime.Event)
}

// PetitionResolver breaks the cycle between the two engines: attaching a
// petition to an opportunity auto-resolves its appeal tickets.
type PetitionResolver interface {
	AutoResolveForPetition(ctx context.Context, opp *models.Opportunity)
}

// OpportunityService drives the opportunity lifecycle: load, authorize,
// validate against the rules, persist, then broadcast and notify. Side
// effects come strictly after the write; their failures never roll back a
// committed transition.
type OpportunityService struct {
	store    OpportunityStore
	notifier Notifier
	bus      Publisher
	tickets  PetitionResolver
	log      zerolog.Logger
	now      func() time.Time
}

func NewOpportunityService(store OpportunityStore, notifier Notifier, bus Publisher, log zerolog.Logger) *OpportunityService {
	return &OpportunityService{
		store:    store,
		notifier: notifier,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// SetPetitionResolver wires the ticket engine in after both services exist.
func (s *OpportunityService) SetPetitionResolver(r PetitionResolver) {
	s.tickets = r
}

// WithClock replaces the service clock. Tests only.
func (s *OpportunityService) WithClock(now func() time.Time) *OpportunityService {
	s.now = now
	return s
}

func (s *OpportunityService) load(ctx context.Context, actor Actor, id uuid.UUID) (*models.Opportunity, error) {
	o, err := s.store.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !actor.memberOf(o.OrganizationID) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *OpportunityService) commit(ctx context.Context, o *models.Opportunity, prev models.OpportunityStatus, title, message string) error {
	if err := s.store.UpdateOpportunity(ctx, o); err != nil {
		return err
	}
	s.broadcast(o)
	if o.Status != prev {
		s.notifier.NotifyOrganization(ctx, o.OrganizationID, models.NoticeOpportunityStatus, title, message, &o.ID)
	}
	return nil
}

func (s *OpportunityService) broadcast(o *models.Opportunity) {
	s.bus.Publish(realtime.Event{
		Table:   "opportunities",
		Key:     o.ID.String(),
		Type:    realtime.EventUpdate,
		Payload: *o,
	})
}

// RequestReport is the member asking for a technical report. Moves the
// record to Solicitada and alerts the staff pool.
func (s *OpportunityService) RequestReport(ctx context.Context, actor Actor, id uuid.UUID) (*models.Opportunity, error) {
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := CanRequestReport(*o); err != nil {
		return nil, err
	}

	prev := o.Status
	now := s.now()
	o.Status = models.StatusSolicitada
	o.ReportRequestedAt = &now

	if err := s.commit(ctx, o, prev, "Parecer solicitado", fmt.Sprintf("Parecer técnico solicitado para %q.", o.Title)); err != nil {
		return nil, err
	}
	s.notifier.NotifyAdmins(ctx, models.NoticeOpportunityStatus, "Parecer solicitado",
		fmt.Sprintf("Um cliente solicitou parecer para %q.", o.Title), &o.ID)
	return o, nil
}

// AttachReport stores the report file reference. Staff only. When the member
// was waiting on the report and no explicit target status accompanies the
// upload, the record flips back to review so the client sees it is ready.
func (s *OpportunityService) AttachReport(ctx context.Context, actor Actor, id uuid.UUID, path string, explicit *models.OpportunityStatus) (*models.Opportunity, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	if explicit != nil && !explicit.Valid() {
		return nil, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, *explicit)
	}
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	prev := o.Status
	hadReport := o.ReportPath != nil
	o.ReportPath = &path
	o.Status, _ = ReportAttachStatus(*o, hadReport, explicit)

	return o, s.commit(ctx, o, prev, "Relatório disponível",
		fmt.Sprintf("O relatório de %q foi publicado.", o.Title))
}

// IssueOpinion is the staff Go/No-Go verdict, with the opinion document.
func (s *OpportunityService) IssueOpinion(ctx context.Context, actor Actor, id uuid.UUID, decision models.OpportunityStatus, parecerPath *string) (*models.Opportunity, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := CanIssueOpinion(*o, decision); err != nil {
		return nil, err
	}

	prev := o.Status
	o.Status = decision
	if parecerPath != nil {
		o.ParecerPath = parecerPath
	}

	label := "Go"
	if decision == models.StatusNoGo {
		label = "No-Go"
	}
	return o, s.commit(ctx, o, prev, "Parecer emitido",
		fmt.Sprintf("Parecer para %q: %s.", o.Title, label))
}

// Participate is the member committing to the bid. Any petition from an
// earlier round is stale once the org re-engages, so it is cleared here.
func (s *OpportunityService) Participate(ctx context.Context, actor Actor, id uuid.UUID) (*models.Opportunity, error) {
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := CanParticipate(*o); err != nil {
		return nil, err
	}

	prev := o.Status
	o.Status = models.StatusParticipando
	o.PetitionPath = nil

	return o, s.commit(ctx, o, prev, "Participação registrada",
		fmt.Sprintf("Sua organização está participando de %q.", o.Title))
}

// Reject drops the opportunity from any pre-engagement state.
func (s *OpportunityService) Reject(ctx context.Context, actor Actor, id uuid.UUID) (*models.Opportunity, error) {
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := CanReject(*o); err != nil {
		return nil, err
	}

	prev := o.Status
	o.Status = models.StatusRejeitada

	return o, s.commit(ctx, o, prev, "Oportunidade rejeitada",
		fmt.Sprintf("%q foi marcada como rejeitada.", o.Title))
}

// RecordOutcome registers a win or a loss after the closing-date gate
// passes. finalValue applies to wins only.
func (s *OpportunityService) RecordOutcome(ctx context.Context, actor Actor, id uuid.UUID, won bool, finalValue *float64) (*models.Opportunity, error) {
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := CanRecordOutcome(*o, s.now()); err != nil {
		return nil, err
	}

	prev := o.Status
	if won {
		o.Status = models.StatusVencida
		if finalValue != nil {
			o.FinalValue = finalValue
		}
		return o, s.commit(ctx, o, prev, "Licitação vencida",
			fmt.Sprintf("Resultado de %q: vitória.", o.Title))
	}

	o.Status = models.StatusPerdida
	if err := s.commit(ctx, o, prev, "Licitação perdida",
		fmt.Sprintf("Resultado de %q: derrota. Um recurso administrativo pode reverter o resultado.", o.Title)); err != nil {
		return nil, err
	}
	s.notifier.NotifyAdmins(ctx, models.NoticeOpportunityStatus, "Derrota registrada",
		fmt.Sprintf("%q foi marcada como perdida.", o.Title), &o.ID)
	return o, nil
}

// ReverseDefeat turns a loss into a win on the strength of a completed
// administrative appeal. Without such a ticket the defeat stands.
func (s *OpportunityService) ReverseDefeat(ctx context.Context, actor Actor, id uuid.UUID) (*models.Opportunity, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	linked, err := s.store.ListTicketsByOpportunity(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if err := CanReverseDefeat(*o, linked); err != nil {
		return nil, err
	}

	prev := o.Status
	o.Status = models.StatusVencida
	o.DefeatConfirmed = false

	return o, s.commit(ctx, o, prev, "Derrota revertida",
		fmt.Sprintf("O recurso administrativo reverteu o resultado de %q: vitória.", o.Title))
}

// ConfirmDefeat accepts the loss as final.
func (s *OpportunityService) ConfirmDefeat(ctx context.Context, actor Actor, id uuid.UUID) (*models.Opportunity, error) {
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := CanConfirmDefeat(*o); err != nil {
		return nil, err
	}

	prev := o.Status
	o.Status = models.StatusConfirmada
	o.DefeatConfirmed = true

	return o, s.commit(ctx, o, prev, "Derrota confirmada",
		fmt.Sprintf("A derrota em %q foi confirmada.", o.Title))
}

// AttachContract stores the contract file and moves a won bid into
// execution.
func (s *OpportunityService) AttachContract(ctx context.Context, actor Actor, id uuid.UUID, path string) (*models.Opportunity, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := CanAttachContract(*o); err != nil {
		return nil, err
	}

	prev := o.Status
	o.ContractPath = &path
	o.Status = models.StatusEmExecucao

	return o, s.commit(ctx, o, prev, "Contrato em execução",
		fmt.Sprintf("O contrato de %q está em execução.", o.Title))
}

// Reopen sends the record back to analysis. Staff only.
func (s *OpportunityService) Reopen(ctx context.Context, actor Actor, id uuid.UUID) (*models.Opportunity, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := CanReopen(*o); err != nil {
		return nil, err
	}

	prev := o.Status
	o.Status = models.StatusReviewRequired
	o.DefeatConfirmed = false

	return o, s.commit(ctx, o, prev, "Oportunidade reaberta",
		fmt.Sprintf("%q voltou para análise.", o.Title))
}

// AttachPetition stores a petition document. Staff only. The first petition
// on a record completes any in-flight appeal or impugnation ticket linked to
// it; a replacement upload does not fire the auto-resolve again.
func (s *OpportunityService) AttachPetition(ctx context.Context, actor Actor, id uuid.UUID, path string) (*models.Opportunity, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	first := o.PetitionPath == nil
	o.PetitionPath = &path

	if err := s.store.UpdateOpportunity(ctx, o); err != nil {
		return nil, err
	}
	s.broadcast(o)
	s.notifier.NotifyOrganization(ctx, o.OrganizationID, models.NoticeOpportunityStatus,
		"Petição disponível", fmt.Sprintf("A petição de %q foi publicada.", o.Title), &o.ID)

	if first && s.tickets != nil {
		s.tickets.AutoResolveForPetition(ctx, o)
	}
	return o, nil
}

// SetPublished toggles client visibility of a draft. Staff only.
func (s *OpportunityService) SetPublished(ctx context.Context, actor Actor, id uuid.UUID, published bool) (*models.Opportunity, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	o, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	wasPublished := o.Published
	o.Published = published
	if err := s.store.UpdateOpportunity(ctx, o); err != nil {
		return nil, err
	}
	s.broadcast(o)
	if published && !wasPublished {
		s.notifier.NotifyOrganization(ctx, o.OrganizationID, models.NoticeOpportunityStatus,
			"Nova oportunidade", fmt.Sprintf("%q está disponível para análise.", o.Title), &o.ID)
	}
	return o, nil
}

// Delete removes an opportunity. Records with linked tickets are protected
// unless force is set; the caller owns that confirmation.
func (s *OpportunityService) Delete(ctx context.Context, actor Actor, id uuid.UUID, force bool) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	if !force {
		n, err := s.store.CountTicketsForOpportunity(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d linked", ErrHasLinkedTickets, n)
		}
	}
	if err := s.store.DeleteOpportunity(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(realtime.Event{Table: "opportunities", Key: id.String(), Type: realtime.EventDelete})
	return nil
}
