package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OpportunityStatus is the review-to-execution lifecycle of a procurement
// opportunity. Transitions are validated in internal/workflow; nothing
// outside that package should write a status directly.
type OpportunityStatus string

const (
	StatusReviewRequired OpportunityStatus = "review_required"
	StatusSolicitada     OpportunityStatus = "solicitada"
	StatusGo             OpportunityStatus = "go"
	StatusNoGo           OpportunityStatus = "no_go"
	StatusParticipando   OpportunityStatus = "participando"
	StatusVencida        OpportunityStatus = "vencida"
	StatusPerdida        OpportunityStatus = "perdida"
	StatusConfirmada     OpportunityStatus = "confirmada"
	StatusEmExecucao     OpportunityStatus = "em_execucao"
	StatusRejeitada      OpportunityStatus = "rejeitada"
)

// AllOpportunityStatuses enumerates every status so exhaustiveness can be
// asserted in tests whenever a new status is added.
var AllOpportunityStatuses = []OpportunityStatus{
	StatusReviewRequired, StatusSolicitada, StatusGo, StatusNoGo,
	StatusParticipando, StatusVencida, StatusPerdida, StatusConfirmada,
	StatusEmExecucao, StatusRejeitada,
}

func (s OpportunityStatus) Valid() bool {
	for _, known := range AllOpportunityStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// StatusBadge is the presentation mapping for a status. Kept next to the
// enum so the switch below stays the single source of truth for rendering.
type StatusBadge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"` // neutral, info, success, warning, danger
}

func (s OpportunityStatus) Badge() (StatusBadge, error) {
	switch s {
	case StatusReviewRequired:
		return StatusBadge{Label: "Análise necessária", Tone: "neutral"}, nil
	case StatusSolicitada:
		return StatusBadge{Label: "Parecer solicitado", Tone: "info"}, nil
	case StatusGo:
		return StatusBadge{Label: "Go", Tone: "success"}, nil
	case StatusNoGo:
		return StatusBadge{Label: "No-Go", Tone: "warning"}, nil
	case StatusParticipando:
		return StatusBadge{Label: "Participando", Tone: "info"}, nil
	case StatusVencida:
		return StatusBadge{Label: "Vencida", Tone: "success"}, nil
	case StatusPerdida:
		return StatusBadge{Label: "Perdida", Tone: "danger"}, nil
	case StatusConfirmada:
		return StatusBadge{Label: "Derrota confirmada", Tone: "danger"}, nil
	case StatusEmExecucao:
		return StatusBadge{Label: "Em execução", Tone: "success"}, nil
	case StatusRejeitada:
		return StatusBadge{Label: "Rejeitada", Tone: "neutral"}, nil
	}
	return StatusBadge{}, fmt.Errorf("no badge for status %q", string(s))
}

// Opportunity is one procurement notice under the firm's monitoring service.
type Opportunity struct {
	ID                uuid.UUID         `json:"id"`
	OrganizationID    uuid.UUID         `json:"organization_id"`
	Title             string            `json:"title"`
	Portal            string            `json:"portal"`
	SourceURL         string            `json:"source_url"`
	ClosingDate       *time.Time        `json:"closing_date"`
	Status            OpportunityStatus `json:"status"`
	ReportPath        *string           `json:"report_path"`
	ParecerPath       *string           `json:"parecer_path"`
	PetitionPath      *string           `json:"petition_path"`
	ContractPath      *string           `json:"contract_path"`
	EstimatedValue    *float64          `json:"estimated_value"`
	FinalValue        *float64          `json:"final_value"`
	Published         bool              `json:"published"`
	ReportRequestedAt *time.Time        `json:"report_requested_at"`
	DefeatConfirmed   bool              `json:"defeat_confirmed"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
