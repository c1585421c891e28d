package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lmendes/licitahub/internal/auth"
	"github.com/lmendes/licitahub/internal/models"
)

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	resp, err := s.authSvc.Signup(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	resp, err := s.authSvc.Login(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleBillingWebhook accepts provider deliveries. A non-2xx answer makes
// the provider retry, so only transient failures may error out.
func (s *Server) handleBillingWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable payload")
	}
	if err := s.billing.Process(c.Request().Context(), payload); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleListNotifications(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	unreadOnly := c.QueryParam("unread") == "true"
	list, err := s.store.ListNotifications(c.Request().Context(), p.ID, unreadOnly, intQuery(c, "limit", 50))
	if err != nil {
		return mapError(err)
	}
	count, err := s.store.UnreadNotificationCount(c.Request().Context(), p.ID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": list,
		"unread_count":  count,
	})
}

func (s *Server) handleMarkNotificationRead(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(c.Request().Context(), p.ID, id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearByReference(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	ref, err := pathID(c, "reference")
	if err != nil {
		return err
	}
	if err := s.notifier.ClearByReference(c.Request().Context(), p.ID, ref); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCreateOrganization(c echo.Context) error {
	var o models.Organization
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if o.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if err := s.store.CreateOrganization(c.Request().Context(), &o); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (s *Server) handleGetOrganization(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	o, err := s.store.GetOrganization(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, o)
}

// handleAssignOrganization places a member in an organization. Opportunity
// visibility and opportunity-room access follow from this binding.
func (s *Server) handleAssignOrganization(c echo.Context) error {
	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		OrganizationID uuid.UUID `json:"organization_id"`
	}
	if err := c.Bind(&req); err != nil || req.OrganizationID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "organization_id is required")
	}
	if _, err := s.store.GetOrganization(c.Request().Context(), req.OrganizationID); err != nil {
		return mapError(err)
	}
	if err := s.store.SetProfileOrganization(c.Request().Context(), userID, req.OrganizationID); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleAuthorizeProfile toggles the free-tier authorization flag. Paid and
// trial members are unaffected; the flag only matters once both lapse.
func (s *Server) handleAuthorizeProfile(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Authorized bool `json:"authorized"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := s.store.SetAccessAuthorized(c.Request().Context(), id, req.Authorized); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleKBCategories(c echo.Context) error {
	cats, err := s.kb.Categories(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (s *Server) handleKBList(c echo.Context) error {
	var categoryID uuid.UUID
	if v := c.QueryParam("category_id"); v != "" {
		id, err := pathIDValue(v)
		if err != nil {
			return err
		}
		categoryID = id
	}
	articles, err := s.kb.List(c.Request().Context(), categoryID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, articles)
}

func (s *Server) handleKBArticle(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := s.kb.Article(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleKBAttachment(c echo.Context) error {
	acc, err := auth.AccessFromContext(c)
	if err != nil {
		return mapError(err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	url, err := s.kb.AttachmentURL(c.Request().Context(), acc, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleKBSearch(c echo.Context) error {
	articles, err := s.kb.Search(c.Request().Context(), c.QueryParam("q"), intQuery(c, "limit", 10))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, articles)
}

func (s *Server) handleKBPublish(c echo.Context) error {
	var a models.KBArticle
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := s.kb.Publish(c.Request().Context(), &a); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

// streamStore loads the records a realtime key can point at.
type streamStore interface {
	GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)
}

// roomGuard re-applies chat room membership for a subscribing session.
type roomGuard interface {
	CanSubscribe(ctx context.Context, user *models.Profile, roomID uuid.UUID) error
}

// authorizeStream applies the same visibility rules as the REST reads before
// a session may stream a (table, key): chat and typing follow the per-kind
// room rule, tickets are owner-or-staff, opportunities follow the org check.
func authorizeStream(ctx context.Context, store streamStore, rooms roomGuard, p *models.Profile, table, key string) error {
	id, err := uuid.Parse(key)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid key")
	}

	switch table {
	case "chat_messages", "typing":
		if err := rooms.CanSubscribe(ctx, p, id); err != nil {
			return mapError(err)
		}
	case "tickets", "ticket_messages":
		t, err := store.GetTicket(ctx, id)
		if err != nil {
			return mapError(err)
		}
		if !p.IsAdmin && t.MemberID != p.ID {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
	case "opportunities":
		o, err := store.GetOpportunity(ctx, id)
		if err != nil {
			return mapError(err)
		}
		if !p.IsAdmin && (p.OrganizationID == nil || *p.OrganizationID != o.OrganizationID) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown table")
	}
	return nil
}

// handleRealtime streams hub events for one (table, key) over SSE. When the
// hub drops the session for lagging, a final "lagged" event tells the client
// to re-fetch history and reconnect.
func (s *Server) handleRealtime(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	table := c.QueryParam("table")
	key := c.QueryParam("key")
	if table == "" || key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "table and key are required")
	}
	if err := authorizeStream(c.Request().Context(), s.store, s.chat, p, table, key); err != nil {
		return err
	}

	sub := s.hub.Subscribe(table, key)
	defer sub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				if sub.Lagged() {
					fmt.Fprint(res, "event: lagged\ndata: {}\n\n")
					res.Flush()
				}
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(res, "data: %s\n\n", data)
			res.Flush()
		}
	}
}
