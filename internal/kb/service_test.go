package kb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/access"
	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/models"
)

type fakeKBStore struct {
	articles       map[uuid.UUID]*models.KBArticle
	lastEmbedding  []float32
	vectorSearches int
	keywordQueries []string
}

func newFakeKBStore() *fakeKBStore {
	return &fakeKBStore{articles: make(map[uuid.UUID]*models.KBArticle)}
}

func (f *fakeKBStore) ListKBCategories(ctx context.Context) ([]models.KBCategory, error) {
	return nil, nil
}

func (f *fakeKBStore) GetKBArticle(ctx context.Context, id uuid.UUID) (*models.KBArticle, error) {
	a, ok := f.articles[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeKBStore) ListKBArticles(ctx context.Context, categoryID uuid.UUID) ([]models.KBArticle, error) {
	return nil, nil
}

func (f *fakeKBStore) InsertKBArticle(ctx context.Context, a *models.KBArticle, embedding []float32) error {
	a.ID = uuid.New()
	f.lastEmbedding = embedding
	cp := *a
	f.articles[a.ID] = &cp
	return nil
}

func (f *fakeKBStore) SearchKBArticlesByEmbedding(ctx context.Context, embedding []float32, limit int) ([]models.KBArticle, error) {
	f.vectorSearches++
	return []models.KBArticle{}, nil
}

func (f *fakeKBStore) SearchKBArticlesKeyword(ctx context.Context, query string, limit int) ([]models.KBArticle, error) {
	f.keywordQueries = append(f.keywordQueries, query)
	return []models.KBArticle{}, nil
}

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("ollama down")
	}
	return []float32{0.1, 0.2}, nil
}

type fakeSigner struct{}

func (fakeSigner) SignedURL(key string) (string, error) {
	return "https://signed.example/" + key, nil
}

func newKBService(store *fakeKBStore, emb *fakeEmbedder) *Service {
	return NewService(store, emb, fakeSigner{}, zerolog.Nop())
}

func TestPublish_SanitizesAndDerivesExcerpt(t *testing.T) {
	store := newFakeKBStore()
	svc := newKBService(store, &fakeEmbedder{})

	a := &models.KBArticle{
		CategoryID: uuid.New(),
		Title:      "Como impugnar um edital",
		BodyHTML:   `<p>Prazo de <b>três dias úteis</b>.</p><script>steal()</script>`,
	}
	if err := svc.Publish(context.Background(), a); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if strings.Contains(a.BodyHTML, "script") {
		t.Fatalf("script survived sanitization: %q", a.BodyHTML)
	}
	if !strings.Contains(a.BodyHTML, "<b>") {
		t.Fatalf("benign formatting must survive: %q", a.BodyHTML)
	}
	if strings.Contains(a.Excerpt, "<") || !strings.Contains(a.Excerpt, "três dias") {
		t.Fatalf("excerpt must be plain text: %q", a.Excerpt)
	}
	if a.PublishedAt == nil {
		t.Fatal("publish must stamp published_at")
	}
	if len(store.lastEmbedding) == 0 {
		t.Fatal("embedding not stored")
	}
}

func TestPublish_EmbedderDownIsNotFatal(t *testing.T) {
	store := newFakeKBStore()
	svc := newKBService(store, &fakeEmbedder{fail: true})

	a := &models.KBArticle{CategoryID: uuid.New(), Title: "t", BodyHTML: "<p>x</p>"}
	if err := svc.Publish(context.Background(), a); err != nil {
		t.Fatalf("publish must survive embedder outage: %v", err)
	}
	if store.lastEmbedding != nil {
		t.Fatal("no embedding expected when the embedder is down")
	}
}

func TestSearch_FallsBackToKeyword(t *testing.T) {
	store := newFakeKBStore()
	emb := &fakeEmbedder{}
	svc := newKBService(store, emb)

	if _, err := svc.Search(context.Background(), "recurso", 10); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if store.vectorSearches != 1 {
		t.Fatalf("expected vector search, got %d", store.vectorSearches)
	}

	emb.fail = true
	if _, err := svc.Search(context.Background(), "recurso", 10); err != nil {
		t.Fatalf("degraded search failed: %v", err)
	}
	if len(store.keywordQueries) != 1 || store.keywordQueries[0] != "recurso" {
		t.Fatalf("expected keyword fallback, got %v", store.keywordQueries)
	}
}

func TestAttachmentURL_Gated(t *testing.T) {
	store := newFakeKBStore()
	svc := newKBService(store, &fakeEmbedder{})

	path := "kb/modelo-recurso.docx"
	id := uuid.New()
	store.articles[id] = &models.KBArticle{ID: id, AttachmentPath: &path}

	if _, err := svc.AttachmentURL(context.Background(), access.Access{}, id); !errors.Is(err, ErrUpgradeRequired) {
		t.Fatalf("expected ErrUpgradeRequired, got %v", err)
	}

	url, err := svc.AttachmentURL(context.Background(), access.Access{HasFullAccess: true}, id)
	if err != nil {
		t.Fatalf("signed url failed: %v", err)
	}
	if !strings.Contains(url, path) {
		t.Fatalf("unexpected url: %q", url)
	}
}

func TestExcerpt_TruncatesOnRuneBoundary(t *testing.T) {
	long := "<p>" + strings.Repeat("ação ", 100) + "</p>"
	got := Excerpt(long, 50)
	if utf8OK := strings.ToValidUTF8(got, "") == got; !utf8OK {
		t.Fatalf("excerpt broke a rune: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("long excerpt must be marked truncated: %q", got)
	}
}
