package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/access"
	"github.com/lmendes/licitahub/internal/auth"
	"github.com/lmendes/licitahub/internal/billing"
	"github.com/lmendes/licitahub/internal/chat"
	"github.com/lmendes/licitahub/internal/config"
	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/kb"
	"github.com/lmendes/licitahub/internal/models"
	"github.com/lmendes/licitahub/internal/notify"
	"github.com/lmendes/licitahub/internal/realtime"
	"github.com/lmendes/licitahub/internal/storage"
	"github.com/lmendes/licitahub/internal/workflow"
)

type Server struct {
	Echo *echo.Echo

	store    *db.Store
	authSvc  *auth.Service
	gate     *access.Gate
	opps     *workflow.OpportunityService
	tickets  *workflow.TicketService
	chat     *chat.Service
	kb       *kb.Service
	billing  *billing.Processor
	notifier *notify.Dispatcher
	hub      *realtime.Hub
	typing   *realtime.TypingIndicator
	files    *storage.Client
	log      zerolog.Logger
}

// NewServer wires the service graph. The hub and the dispatcher are shared
// by every engine so one committed write fans out to sessions and bells
// alike.
func NewServer(cfg config.Config, pool *pgxpool.Pool, files *storage.Client, embedder kb.Embedder, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	allowedOrigins := []string{"http://localhost:4200"}
	for _, o := range strings.Split(cfg.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowedOrigins = append(allowedOrigins, o)
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	store := db.NewStore(pool)
	hub := realtime.NewHub()
	notifier := notify.NewDispatcher(store, log)

	oppSvc := workflow.NewOpportunityService(store, notifier, hub, log)
	ticketSvc := workflow.NewTicketService(store, notifier, hub, log)
	oppSvc.SetPetitionResolver(ticketSvc)

	s := &Server{
		Echo:     e,
		store:    store,
		authSvc:  auth.NewService(store),
		gate:     access.NewGate(store, log),
		opps:     oppSvc,
		tickets:  ticketSvc,
		chat:     chat.NewService(store, files, notifier, hub, log),
		kb:       kb.NewService(store, embedder, files, log),
		billing:  billing.NewProcessor(store, notifier, log),
		notifier: notifier,
		hub:      hub,
		typing:   realtime.NewTypingIndicator(hub),
		files:    files,
		log:      log,
	}
	s.routes()
	return s
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.POST("/api/v1/auth/signup", s.handleSignup)
	s.Echo.POST("/api/v1/auth/login", s.handleLogin)
	s.Echo.POST("/api/v1/billing/webhook", s.handleBillingWebhook)

	api := s.Echo.Group("/api/v1", auth.Middleware(s.gate), auth.RequireAuthorized)

	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
	api.POST("/opportunities/:id/request-report", s.handleRequestReport)
	api.POST("/opportunities/:id/participate", s.handleParticipate)
	api.POST("/opportunities/:id/reject", s.handleReject)
	api.POST("/opportunities/:id/outcome", s.handleRecordOutcome)
	api.POST("/opportunities/:id/confirm-defeat", s.handleConfirmDefeat)
	api.GET("/opportunities/:id/documents/:doc", s.handleOpportunityDocument)

	staff := api.Group("", auth.RequireAdmin)
	staff.POST("/opportunities", s.handleCreateOpportunity)
	staff.POST("/opportunities/:id/report", s.handleAttachReport)
	staff.POST("/opportunities/:id/opinion", s.handleIssueOpinion)
	staff.POST("/opportunities/:id/reverse-defeat", s.handleReverseDefeat)
	staff.POST("/opportunities/:id/contract", s.handleAttachContract)
	staff.POST("/opportunities/:id/petition", s.handleAttachPetition)
	staff.POST("/opportunities/:id/reopen", s.handleReopenOpportunity)
	staff.POST("/opportunities/:id/publish", s.handlePublishOpportunity)
	staff.DELETE("/opportunities/:id", s.handleDeleteOpportunity)

	api.GET("/tickets", s.handleListTickets)
	api.GET("/tickets/:id", s.handleGetTicket)
	api.POST("/tickets", s.handleCreateTicket)
	api.POST("/tickets/:id/reopen", s.handleReopenTicket)
	api.POST("/tickets/:id/archive", s.handleArchiveTicket)
	api.GET("/tickets/:id/events", s.handleTicketEvents)
	api.GET("/tickets/:id/messages", s.handleTicketMessages)
	api.POST("/tickets/:id/messages", s.handlePostTicketMessage)
	staff.POST("/tickets/:id/status", s.handleChangeTicketStatus)
	staff.DELETE("/tickets/:id", s.handleDeleteTicket)

	api.POST("/chat/lobby", s.handleOpenLobby)
	api.POST("/chat/support", s.handleOpenSupportRoom)
	api.POST("/chat/opportunity/:id", s.handleOpenOpportunityRoom)
	api.GET("/chat/rooms/:id/messages", s.handleChatHistory)
	api.POST("/chat/rooms/:id/messages", s.handleSendChatMessage)
	api.DELETE("/chat/messages/:id", s.handleDeleteChatMessage)
	api.POST("/chat/rooms/:id/read", s.handleMarkRead)
	api.GET("/chat/rooms/:id/unread", s.handleUnreadCount)
	api.POST("/chat/rooms/:id/typing", s.handleTyping)

	staff.POST("/organizations", s.handleCreateOrganization)
	staff.GET("/organizations/:id", s.handleGetOrganization)
	staff.POST("/profiles/:id/organization", s.handleAssignOrganization)
	staff.POST("/profiles/:id/authorize", s.handleAuthorizeProfile)

	api.GET("/notifications", s.handleListNotifications)
	api.POST("/notifications/:id/read", s.handleMarkNotificationRead)
	api.POST("/notifications/clear/:reference", s.handleClearByReference)

	api.GET("/kb/categories", s.handleKBCategories)
	api.GET("/kb/articles", s.handleKBList)
	api.GET("/kb/articles/:id", s.handleKBArticle)
	api.GET("/kb/articles/:id/attachment", s.handleKBAttachment)
	api.GET("/kb/search", s.handleKBSearch)
	staff.POST("/kb/articles", s.handleKBPublish)

	api.GET("/realtime", s.handleRealtime)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// mapError translates domain errors onto the HTTP taxonomy: rule violations
// are the caller's fault (400), authorization walls are 403, missing rows
// 404, upstream trouble 502/503.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, workflow.ErrForbidden), errors.Is(err, chat.ErrNotParticipant):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, kb.ErrUpgradeRequired):
		return echo.NewHTTPError(http.StatusForbidden, map[string]interface{}{
			"error":            "subscription required",
			"upgrade_required": true,
		})
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrOutcomeTooEarly),
		errors.Is(err, workflow.ErrNoGroundsForWin),
		errors.Is(err, workflow.ErrHasLinkedTickets),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, billing.ErrBadPayload),
		errors.Is(err, auth.ErrUserExists):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCreds):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, chat.ErrUploadFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "file storage unavailable")
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
	}
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	return pathIDValue(c.Param(name))
}

func pathIDValue(v string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func intQuery(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func actorFrom(p *models.Profile) workflow.Actor {
	return workflow.Actor{ID: p.ID, OrganizationID: p.OrganizationID, IsAdmin: p.IsAdmin}
}
