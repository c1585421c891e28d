package ingest

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/models"
)

type DraftStore interface {
	UpsertDraftOpportunity(ctx context.Context, o *models.Opportunity) (bool, error)
}

type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, typ, title, message string, referenceID *uuid.UUID)
}

// Watcher scans the configured portals and files every new notice as an
// unpublished draft for staff triage. Drafts are keyed by source URL, so a
// rescan is a cheap no-op for notices already on file.
type Watcher struct {
	registry *Registry
	store    DraftStore
	notifier AdminNotifier
	orgID    uuid.UUID // holding organization for untriaged drafts
	log      zerolog.Logger
}

func NewWatcher(registry *Registry, store DraftStore, notifier AdminNotifier, orgID uuid.UUID, log zerolog.Logger) *Watcher {
	return &Watcher{
		registry: registry,
		store:    store,
		notifier: notifier,
		orgID:    orgID,
		log:      log,
	}
}

// Run scans every portal once. Portal failures are logged and skipped; one
// broken portal never blocks the rest of the sweep.
func (w *Watcher) Run(ctx context.Context) {
	for _, portal := range w.registry.Portals {
		discovered := w.scanPortal(ctx, portal)
		w.log.Info().Str("portal", portal.ID).Int("new_drafts", discovered).Msg("portal sweep done")
		if discovered > 0 {
			w.notifier.NotifyAdmins(ctx, models.NoticeOpportunityStatus, "Novas oportunidades",
				portal.Name+": novos avisos aguardando triagem.", nil)
		}
	}
}

func (w *Watcher) scanPortal(ctx context.Context, portal PortalConfig) int {
	timeout := 30 * time.Second
	if portal.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(portal.Fetch.TimeoutSeconds) * time.Second
	}
	delay := time.Duration(float64(time.Second) * portal.Fetch.DelaySeconds)

	c := colly.NewCollector(
		colly.MaxDepth(portal.MaxPages),
		colly.AllowURLRevisit(),
	)
	if portal.Fetch.UserAgent != "" {
		c.UserAgent = portal.Fetch.UserAgent
	}
	c.SetRequestTimeout(timeout)
	if delay > 0 {
		c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: delay})
	}

	discovered := 0

	c.OnHTML(portal.Selectors.Container, func(e *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}

		title := strings.TrimSpace(e.ChildText(portal.Selectors.Title))
		link := e.ChildAttr(portal.Selectors.Link, portal.Selectors.LinkAttr)
		if title == "" || link == "" {
			return
		}
		sourceURL := e.Request.AbsoluteURL(link)
		if _, err := url.ParseRequestURI(sourceURL); err != nil {
			return
		}

		draft := &models.Opportunity{
			OrganizationID: w.orgID,
			Title:          title,
			Portal:         portal.ID,
			SourceURL:      sourceURL,
			Status:         models.StatusReviewRequired,
		}
		if portal.Selectors.Closing != "" {
			if closing, err := ParseDateBR(e.ChildText(portal.Selectors.Closing)); err == nil {
				draft.ClosingDate = &closing
			}
		}

		inserted, err := w.store.UpsertDraftOpportunity(ctx, draft)
		if err != nil {
			w.log.Error().Err(err).Str("source_url", sourceURL).Msg("draft upsert failed")
			return
		}
		if inserted {
			discovered++
		}
	})

	if next := portal.Pagination.Next; next != "" {
		c.OnHTML(next, func(e *colly.HTMLElement) {
			if href := e.Attr("href"); href != "" {
				e.Request.Visit(href)
			}
		})
	}

	c.OnError(func(r *colly.Response, err error) {
		w.log.Warn().Err(err).Str("portal", portal.ID).Str("url", r.Request.URL.String()).Msg("portal fetch failed")
	})

	for _, seed := range portal.Seeds {
		if err := c.Visit(seed); err != nil {
			w.log.Warn().Err(err).Str("portal", portal.ID).Str("seed", seed).Msg("seed visit failed")
		}
	}
	c.Wait()

	return discovered
}
