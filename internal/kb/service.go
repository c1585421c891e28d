package kb

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/access"
	"github.com/lmendes/licitahub/internal/models"
)

// ErrUpgradeRequired gates premium material behind an active subscription or
// valid trial.
var ErrUpgradeRequired = errors.New("subscription required")

const excerptLen = 280

type Store interface {
	ListKBCategories(ctx context.Context) ([]models.KBCategory, error)
	GetKBArticle(ctx context.Context, id uuid.UUID) (*models.KBArticle, error)
	ListKBArticles(ctx context.Context, categoryID uuid.UUID) ([]models.KBArticle, error)
	InsertKBArticle(ctx context.Context, a *models.KBArticle, embedding []float32) error
	SearchKBArticlesByEmbedding(ctx context.Context, embedding []float32, limit int) ([]models.KBArticle, error)
	SearchKBArticlesKeyword(ctx context.Context, query string, limit int) ([]models.KBArticle, error)
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Signer interface {
	SignedURL(key string) (string, error)
}

// Service owns the knowledge base: sanitized article bodies, derived
// excerpts, vector search with keyword fallback, and gated attachment
// delivery.
type Service struct {
	store    Store
	embedder Embedder
	signer   Signer
	policy   *bluemonday.Policy
	log      zerolog.Logger
}

func NewService(store Store, embedder Embedder, signer Signer, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		signer:   signer,
		policy:   bluemonday.UGCPolicy(),
		log:      log,
	}
}

func (s *Service) Categories(ctx context.Context) ([]models.KBCategory, error) {
	return s.store.ListKBCategories(ctx)
}

func (s *Service) Article(ctx context.Context, id uuid.UUID) (*models.KBArticle, error) {
	return s.store.GetKBArticle(ctx, id)
}

func (s *Service) List(ctx context.Context, categoryID uuid.UUID) ([]models.KBArticle, error) {
	return s.store.ListKBArticles(ctx, categoryID)
}

// Publish sanitizes and stores a new article. The embedding is best-effort:
// an unreachable embedder costs semantic ranking for this article, not the
// publish.
func (s *Service) Publish(ctx context.Context, a *models.KBArticle) error {
	a.BodyHTML = s.policy.Sanitize(a.BodyHTML)
	a.Excerpt = Excerpt(a.BodyHTML, excerptLen)
	if a.PublishedAt == nil {
		now := time.Now()
		a.PublishedAt = &now
	}

	var embedding []float32
	if s.embedder != nil {
		var err error
		embedding, err = s.embedder.GenerateEmbedding(ctx, a.Title+"\n"+a.Excerpt)
		if err != nil {
			s.log.Warn().Err(err).Str("title", a.Title).Msg("article embedding skipped")
			embedding = nil
		}
	}
	return s.store.InsertKBArticle(ctx, a, embedding)
}

// Search ranks articles by vector similarity to the query, falling back to
// keyword matching when the embedder is unavailable.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.KBArticle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.KBArticle{}, nil
	}

	if s.embedder != nil {
		embedding, err := s.embedder.GenerateEmbedding(ctx, query)
		if err == nil && len(embedding) > 0 {
			return s.store.SearchKBArticlesByEmbedding(ctx, embedding, limit)
		}
		s.log.Warn().Err(err).Msg("semantic search degraded to keyword matching")
	}
	return s.store.SearchKBArticlesKeyword(ctx, query, limit)
}

// AttachmentURL mints a signed link for the article's attachment. Premium
// material: full access only.
func (s *Service) AttachmentURL(ctx context.Context, a access.Access, articleID uuid.UUID) (string, error) {
	if !a.HasFullAccess {
		return "", ErrUpgradeRequired
	}
	article, err := s.store.GetKBArticle(ctx, articleID)
	if err != nil {
		return "", err
	}
	if article.AttachmentPath == nil {
		return "", errors.New("article has no attachment")
	}
	return s.signer.SignedURL(*article.AttachmentPath)
}

// Excerpt reduces sanitized HTML to plain text for listings, cut at a rune
// boundary.
func Excerpt(bodyHTML string, max int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
