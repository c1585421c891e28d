package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/kb"
	"github.com/lmendes/licitahub/internal/models"
)

type fakeKBArticles struct {
	articles []models.KBArticle
}

func (f *fakeKBArticles) ListKBCategories(ctx context.Context) ([]models.KBCategory, error) {
	return nil, nil
}

func (f *fakeKBArticles) GetKBArticle(ctx context.Context, id uuid.UUID) (*models.KBArticle, error) {
	return nil, db.ErrNotFound
}

func (f *fakeKBArticles) ListKBArticles(ctx context.Context, categoryID uuid.UUID) ([]models.KBArticle, error) {
	if categoryID == uuid.Nil {
		return f.articles, nil
	}
	var out []models.KBArticle
	for _, a := range f.articles {
		if a.CategoryID == categoryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeKBArticles) InsertKBArticle(ctx context.Context, a *models.KBArticle, embedding []float32) error {
	return nil
}

func (f *fakeKBArticles) SearchKBArticlesByEmbedding(ctx context.Context, embedding []float32, limit int) ([]models.KBArticle, error) {
	return nil, nil
}

func (f *fakeKBArticles) SearchKBArticlesKeyword(ctx context.Context, query string, limit int) ([]models.KBArticle, error) {
	return nil, nil
}

func kbListContext(query string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/kb/articles"+query, nil)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestHandleKBList_CategoryFilterIsOptional(t *testing.T) {
	catA := uuid.New()
	catB := uuid.New()
	store := &fakeKBArticles{articles: []models.KBArticle{
		{ID: uuid.New(), CategoryID: catA, Title: "Como impugnar um edital"},
		{ID: uuid.New(), CategoryID: catB, Title: "Prazos de recurso"},
	}}
	s := &Server{kb: kb.NewService(store, nil, nil, zerolog.Nop())}

	// No filter: every published article.
	c, rec := kbListContext("")
	if err := s.handleKBList(c); err != nil {
		t.Fatalf("bare list failed: %v", err)
	}
	var all []models.KBArticle
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 articles without a filter, got %d", len(all))
	}

	// Filtered: only the category's articles.
	c, rec = kbListContext("?category_id=" + catA.String())
	if err := s.handleKBList(c); err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	var filtered []models.KBArticle
	if err := json.Unmarshal(rec.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(filtered) != 1 || filtered[0].CategoryID != catA {
		t.Fatalf("expected only category A articles, got %+v", filtered)
	}

	// A malformed filter still 400s.
	c, _ = kbListContext("?category_id=not-a-uuid")
	err := s.handleKBList(c)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed category, got %d", code)
	}
}
