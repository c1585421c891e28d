package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lmendes/licitahub/internal/auth"
	"github.com/lmendes/licitahub/internal/models"
	"github.com/lmendes/licitahub/internal/workflow"
)

func (s *Server) handleListTickets(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	ctx := c.Request().Context()
	includeArchived := c.QueryParam("archived") == "true"

	if p.IsAdmin {
		tickets, err := s.store.ListTickets(ctx, c.QueryParam("status"), 0, 0)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, tickets)
	}

	tickets, err := s.store.ListTicketsByMember(ctx, p.ID, includeArchived)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, tickets)
}

func (s *Server) loadTicketChecked(c echo.Context) (*models.Ticket, *models.Profile, error) {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return nil, nil, mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return nil, nil, err
	}
	t, err := s.store.GetTicket(c.Request().Context(), id)
	if err != nil {
		return nil, nil, mapError(err)
	}
	if !p.IsAdmin && t.MemberID != p.ID {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return t, p, nil
}

func (s *Server) handleGetTicket(c echo.Context) error {
	t, p, err := s.loadTicketChecked(c)
	if err != nil {
		return err
	}
	if err := s.notifier.ClearByReference(c.Request().Context(), p.ID, t.ID); err != nil {
		s.log.Warn().Err(err).Msg("notification clear failed")
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleCreateTicket(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	var req struct {
		MemberID      *uuid.UUID `json:"member_id"`
		Title         string     `json:"title"`
		Description   string     `json:"description"`
		Priority      string     `json:"priority"`
		Deadline      *time.Time `json:"deadline"`
		Category      string     `json:"category"`
		PriceQuote    string     `json:"price_quote"`
		OpportunityID *uuid.UUID `json:"opportunity_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	memberID := p.ID
	if req.MemberID != nil {
		memberID = *req.MemberID
	}

	t, err := s.tickets.Create(c.Request().Context(), actorFrom(p), workflow.CreateTicketInput{
		MemberID:      memberID,
		Title:         req.Title,
		Description:   req.Description,
		Priority:      req.Priority,
		Deadline:      req.Deadline,
		Category:      models.ServiceCategory(req.Category),
		PriceQuote:    req.PriceQuote,
		OpportunityID: req.OpportunityID,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) handleChangeTicketStatus(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Status models.TicketStatus `json:"status"`
		Note   string              `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	t, err := s.tickets.ChangeStatus(c.Request().Context(), actorFrom(p), id, req.Status, req.Note)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleReopenTicket(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	t, err := s.tickets.Reopen(c.Request().Context(), actorFrom(p), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleArchiveTicket(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	t, err := s.tickets.Archive(c.Request().Context(), actorFrom(p), id, req.Archived)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTicket(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(c.Request().Context(), actorFrom(p), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTicketEvents(c echo.Context) error {
	t, _, err := s.loadTicketChecked(c)
	if err != nil {
		return err
	}
	events, err := s.store.ListTicketEvents(c.Request().Context(), t.ID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleTicketMessages(c echo.Context) error {
	t, _, err := s.loadTicketChecked(c)
	if err != nil {
		return err
	}
	msgs, err := s.store.ListTicketMessages(c.Request().Context(), t.ID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) handlePostTicketMessage(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	m, err := s.tickets.PostMessage(c.Request().Context(), actorFrom(p), id, req.Body)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, m)
}
