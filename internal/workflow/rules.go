package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lmendes/licitahub/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrOutcomeTooEarly   = errors.New("outcome cannot be recorded before closing date + 1 day")
	ErrNoGroundsForWin   = errors.New("no resolved administrative-appeal ticket linked")
	ErrHasLinkedTickets  = errors.New("opportunity has linked tickets")
)

// Actor identifies who is driving a transition. Members act only on their
// own organization's records; staff act anywhere.
type Actor struct {
	ID             uuid.UUID
	OrganizationID *uuid.UUID
	IsAdmin        bool
}

func (a Actor) memberOf(orgID uuid.UUID) bool {
	return a.OrganizationID != nil && *a.OrganizationID == orgID
}

// ---------------------------------------------------------------------------
// Opportunity rules. Pure functions over the record and the clock; the
// service layer loads, checks, mutates and commits.
// ---------------------------------------------------------------------------

func CanRequestReport(o models.Opportunity) error {
	if o.Status != models.StatusReviewRequired {
		return fmt.Errorf("%w: request report from %s", ErrInvalidTransition, o.Status)
	}
	return nil
}

// ReportAttachStatus decides the status after staff attach a report.
// Explicit staff intent always wins over the automatic rule; the auto flip
// back to review only fires for a still-pending request that had no report
// yet.
func ReportAttachStatus(o models.Opportunity, hadReport bool, explicit *models.OpportunityStatus) (models.OpportunityStatus, bool) {
	if explicit != nil {
		return *explicit, false
	}
	if o.Status == models.StatusSolicitada && !hadReport {
		return models.StatusReviewRequired, true
	}
	return o.Status, false
}

func CanIssueOpinion(o models.Opportunity, decision models.OpportunityStatus) error {
	if decision != models.StatusGo && decision != models.StatusNoGo {
		return fmt.Errorf("%w: opinion must be go or no_go, got %s", ErrInvalidTransition, decision)
	}
	if o.Status != models.StatusReviewRequired && o.Status != models.StatusSolicitada {
		return fmt.Errorf("%w: opinion from %s", ErrInvalidTransition, o.Status)
	}
	return nil
}

// CanParticipate allows engagement only after a Go. A No-Go is not
// overridable by participating; the member's paths out are impugnation (a
// ticket) or rejection.
func CanParticipate(o models.Opportunity) error {
	if o.Status != models.StatusGo {
		return fmt.Errorf("%w: participate from %s", ErrInvalidTransition, o.Status)
	}
	return nil
}

func CanReject(o models.Opportunity) error {
	switch o.Status {
	case models.StatusReviewRequired, models.StatusSolicitada, models.StatusGo, models.StatusNoGo:
		return nil
	}
	return fmt.Errorf("%w: reject from %s", ErrInvalidTransition, o.Status)
}

// CanRecordOutcome gates win/loss on the bid's own closing date plus one
// day; sessions cannot record an outcome the portal has not published yet.
func CanRecordOutcome(o models.Opportunity, now time.Time) error {
	if o.Status != models.StatusParticipando {
		return fmt.Errorf("%w: record outcome from %s", ErrInvalidTransition, o.Status)
	}
	if o.ClosingDate == nil {
		return fmt.Errorf("%w: no closing date on record", ErrOutcomeTooEarly)
	}
	if now.Before(o.ClosingDate.Add(24 * time.Hour)) {
		return ErrOutcomeTooEarly
	}
	return nil
}

// CanReverseDefeat permits Perdida -> Vencida only when a linked
// administrative-appeal ticket has run to completion. The "+upgrade" suffix
// never participates in the category comparison.
func CanReverseDefeat(o models.Opportunity, linked []models.Ticket) error {
	if o.Status != models.StatusPerdida {
		return fmt.Errorf("%w: reverse defeat from %s", ErrInvalidTransition, o.Status)
	}
	for _, t := range linked {
		if t.Category.Base() != models.CategoryRecursoAdministrativo {
			continue
		}
		if t.Status == models.TicketResolved || t.Status == models.TicketClosed {
			return nil
		}
	}
	return ErrNoGroundsForWin
}

func CanConfirmDefeat(o models.Opportunity) error {
	if o.Status != models.StatusPerdida {
		return fmt.Errorf("%w: confirm defeat from %s", ErrInvalidTransition, o.Status)
	}
	return nil
}

func CanAttachContract(o models.Opportunity) error {
	if o.Status != models.StatusVencida && o.Status != models.StatusEmExecucao {
		return fmt.Errorf("%w: attach contract from %s", ErrInvalidTransition, o.Status)
	}
	return nil
}

// CanReopen is the staff escape hatch back to analysis. Unconditional for
// the listed states.
func CanReopen(o models.Opportunity) error {
	switch o.Status {
	case models.StatusRejeitada, models.StatusParticipando, models.StatusVencida, models.StatusPerdida:
		return nil
	}
	return fmt.Errorf("%w: reopen from %s", ErrInvalidTransition, o.Status)
}

// ---------------------------------------------------------------------------
// Ticket rules.
// ---------------------------------------------------------------------------

const (
	// TicketReopenWindow bounds how long a closed ticket stays reopenable.
	TicketReopenWindow = 30 * 24 * time.Hour
	// TicketDeleteDelay is the cooling-off period before a closed ticket may
	// be deleted.
	TicketDeleteDelay = 5 * 24 * time.Hour
)

var ticketNext = map[models.TicketStatus][]models.TicketStatus{
	models.TicketOpen:        {models.TicketInProgress, models.TicketClosed},
	models.TicketInProgress:  {models.TicketUnderReview, models.TicketClosed},
	models.TicketUnderReview: {models.TicketResolved, models.TicketClosed},
	models.TicketResolved:    {},
	models.TicketClosed:      {},
}

// ValidateTicketTransition covers the forward workflow and cancellation.
// Reopening is a distinct operation with its own window (CanReopenTicket).
func ValidateTicketTransition(from, to models.TicketStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, to)
	}
	for _, allowed := range ticketNext[from] {
		if to == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CanReopenTicket returns nil when the ticket may go back to open: any
// non-terminal status, or closed within the 30-day window. Resolved tickets
// never reopen.
func CanReopenTicket(t models.Ticket, now time.Time) error {
	switch t.Status {
	case models.TicketResolved:
		return fmt.Errorf("%w: resolved tickets cannot be reopened", ErrInvalidTransition)
	case models.TicketClosed:
		if now.Sub(t.UpdatedAt) > TicketReopenWindow {
			return fmt.Errorf("%w: reopen window of %d days elapsed", ErrInvalidTransition, int(TicketReopenWindow.Hours()/24))
		}
		return nil
	case models.TicketOpen:
		return fmt.Errorf("%w: ticket is already open", ErrInvalidTransition)
	default:
		return nil
	}
}

func CanDeleteTicket(t models.Ticket, now time.Time) error {
	if t.Status != models.TicketClosed {
		return fmt.Errorf("%w: only closed tickets can be deleted", ErrInvalidTransition)
	}
	if now.Sub(t.UpdatedAt) < TicketDeleteDelay {
		return fmt.Errorf("%w: closed less than %d days ago", ErrInvalidTransition, int(TicketDeleteDelay.Hours()/24))
	}
	return nil
}

func CanArchiveTicket(t models.Ticket) error {
	if t.Status != models.TicketResolved {
		return fmt.Errorf("%w: only resolved tickets can be archived", ErrInvalidTransition)
	}
	return nil
}

// autoResolvable reports whether a petition attachment completes this
// ticket's work: appeal and impugnation tickets, suffix ignored, still in
// flight.
func autoResolvable(t models.Ticket) bool {
	if t.Status.Terminal() {
		return false
	}
	base := t.Category.Base()
	return base == models.CategoryRecursoAdministrativo || base == models.CategoryImpugnacao
}
