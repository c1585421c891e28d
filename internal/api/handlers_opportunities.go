package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lmendes/licitahub/internal/auth"
	"github.com/lmendes/licitahub/internal/models"
	"github.com/lmendes/licitahub/internal/workflow"
)

func (s *Server) handleListOpportunities(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}

	// Staff see the whole pipeline, drafts included.
	if p.IsAdmin {
		opps, err := s.store.ListOpportunities(c.Request().Context(), c.QueryParam("status"))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, opps)
	}

	if p.OrganizationID == nil {
		return c.JSON(http.StatusOK, []models.Opportunity{})
	}
	opps, err := s.store.ListOpportunitiesByOrg(c.Request().Context(), *p.OrganizationID, false)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, opps)
}

type createOpportunityRequest struct {
	OrganizationID uuid.UUID  `json:"organization_id"`
	Title          string     `json:"title"`
	Portal         string     `json:"portal"`
	SourceURL      string     `json:"source_url"`
	ClosingDate    *time.Time `json:"closing_date"`
	EstimatedValue *float64   `json:"estimated_value"`
}

// draftFromCreateRequest shapes the unpublished draft every staff-created
// opportunity starts as.
func draftFromCreateRequest(req createOpportunityRequest) (*models.Opportunity, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	if req.OrganizationID == uuid.Nil {
		return nil, errors.New("organization_id is required")
	}
	return &models.Opportunity{
		OrganizationID: req.OrganizationID,
		Title:          title,
		Portal:         req.Portal,
		SourceURL:      req.SourceURL,
		ClosingDate:    req.ClosingDate,
		EstimatedValue: req.EstimatedValue,
		Status:         models.StatusReviewRequired,
		Published:      false,
	}, nil
}

func (s *Server) handleCreateOpportunity(c echo.Context) error {
	var req createOpportunityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	draft, err := draftFromCreateRequest(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := s.store.GetOrganization(c.Request().Context(), req.OrganizationID); err != nil {
		return mapError(err)
	}
	if err := s.store.CreateOpportunity(c.Request().Context(), draft); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, draft)
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	o, err := s.store.GetOpportunity(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if !p.IsAdmin && (p.OrganizationID == nil || *p.OrganizationID != o.OrganizationID) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	// Opening the detail view clears its pending notices.
	if err := s.notifier.ClearByReference(c.Request().Context(), p.ID, o.ID); err != nil {
		s.log.Warn().Err(err).Msg("notification clear failed")
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) transition(c echo.Context, run func(workflow.Actor) (*models.Opportunity, error)) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	o, err := run(actorFrom(p))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) handleRequestReport(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.RequestReport(c.Request().Context(), a, id)
	})
}

func (s *Server) handleParticipate(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.Participate(c.Request().Context(), a, id)
	})
}

func (s *Server) handleReject(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.Reject(c.Request().Context(), a, id)
	})
}

func (s *Server) handleRecordOutcome(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Won        bool     `json:"won"`
		FinalValue *float64 `json:"final_value"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.RecordOutcome(c.Request().Context(), a, id, req.Won, req.FinalValue)
	})
}

func (s *Server) handleConfirmDefeat(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.ConfirmDefeat(c.Request().Context(), a, id)
	})
}

func (s *Server) handleReverseDefeat(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.ReverseDefeat(c.Request().Context(), a, id)
	})
}

func (s *Server) handleReopenOpportunity(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.Reopen(c.Request().Context(), a, id)
	})
}

// attachUpload stores the posted file and returns its object key.
func (s *Server) attachUpload(c echo.Context, prefix string) (string, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}

	key := prefix + "/" + c.Param("id") + "/" + file.Filename
	stored, err := s.files.Upload(c.Request().Context(), key, data, file.Header.Get("Content-Type"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadGateway, "file storage unavailable")
	}
	return stored, nil
}

func (s *Server) handleAttachReport(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	key, err := s.attachUpload(c, "reports")
	if err != nil {
		return err
	}

	var explicit *models.OpportunityStatus
	if v := c.FormValue("status"); v != "" {
		st := models.OpportunityStatus(v)
		explicit = &st
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.AttachReport(c.Request().Context(), a, id, key, explicit)
	})
}

func (s *Server) handleIssueOpinion(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Decision    models.OpportunityStatus `json:"decision"`
		ParecerPath *string                  `json:"parecer_path"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.IssueOpinion(c.Request().Context(), a, id, req.Decision, req.ParecerPath)
	})
}

func (s *Server) handleAttachContract(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	key, err := s.attachUpload(c, "contracts")
	if err != nil {
		return err
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.AttachContract(c.Request().Context(), a, id, key)
	})
}

func (s *Server) handleAttachPetition(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	key, err := s.attachUpload(c, "petitions")
	if err != nil {
		return err
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.AttachPetition(c.Request().Context(), a, id, key)
	})
}

func (s *Server) handlePublishOpportunity(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Published bool `json:"published"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return s.transition(c, func(a workflow.Actor) (*models.Opportunity, error) {
		return s.opps.SetPublished(c.Request().Context(), a, id, req.Published)
	})
}

func (s *Server) handleDeleteOpportunity(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	force := c.QueryParam("force") == "true"
	if err := s.opps.Delete(c.Request().Context(), actorFrom(p), id, force); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleOpportunityDocument mints a signed URL for one of the record's
// stored documents.
func (s *Server) handleOpportunityDocument(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	o, err := s.store.GetOpportunity(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if !p.IsAdmin && (p.OrganizationID == nil || *p.OrganizationID != o.OrganizationID) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	var key *string
	switch c.Param("doc") {
	case "report":
		key = o.ReportPath
	case "parecer":
		key = o.ParecerPath
	case "petition":
		key = o.PetitionPath
	case "contract":
		key = o.ContractPath
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown document")
	}
	if key == nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not attached")
	}

	url, err := s.files.SignedURL(*key)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "file storage unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}
