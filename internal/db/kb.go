package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/lmendes/licitahub/internal/models"
)

const articleCols = `id, category_id, title, body_html, excerpt, attachment_path, published_at, created_at`

func scanArticle(scan func(dest ...interface{}) error) (models.KBArticle, error) {
	var a models.KBArticle
	err := scan(&a.ID, &a.CategoryID, &a.Title, &a.BodyHTML, &a.Excerpt,
		&a.AttachmentPath, &a.PublishedAt, &a.CreatedAt)
	return a, err
}

func (s *Store) ListKBCategories(ctx context.Context) ([]models.KBCategory, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, slug FROM kb_categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.KBCategory
	for rows.Next() {
		var c models.KBCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetKBArticle(ctx context.Context, id uuid.UUID) (*models.KBArticle, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM kb_articles WHERE id = $1 AND published_at IS NOT NULL", articleCols), id)
	a, err := scanArticle(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &a, nil
}

// ListKBArticles returns published articles; uuid.Nil means no category
// filter.
func (s *Store) ListKBArticles(ctx context.Context, categoryID uuid.UUID) ([]models.KBArticle, error) {
	if categoryID == uuid.Nil {
		sql := fmt.Sprintf(`
			SELECT %s FROM kb_articles
			WHERE published_at IS NOT NULL
			ORDER BY published_at DESC
		`, articleCols)
		return s.queryArticles(ctx, sql)
	}
	sql := fmt.Sprintf(`
		SELECT %s FROM kb_articles
		WHERE category_id = $1 AND published_at IS NOT NULL
		ORDER BY published_at DESC
	`, articleCols)
	return s.queryArticles(ctx, sql, categoryID)
}

func (s *Store) InsertKBArticle(ctx context.Context, a *models.KBArticle, embedding []float32) error {
	var vec interface{}
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = v
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO kb_articles (category_id, title, body_html, excerpt, attachment_path, embedding, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, a.CategoryID, a.Title, a.BodyHTML, a.Excerpt, a.AttachmentPath, vec, a.PublishedAt).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert article failed: %w", err)
	}
	return nil
}

// SearchKBArticlesByEmbedding orders published articles by vector distance.
// Articles with no embedding sort last rather than being excluded.
func (s *Store) SearchKBArticlesByEmbedding(ctx context.Context, embedding []float32, limit int) ([]models.KBArticle, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	sql := fmt.Sprintf(`
		SELECT %s FROM kb_articles
		WHERE published_at IS NOT NULL
		ORDER BY
			CASE WHEN embedding IS NULL THEN 1 ELSE 0 END ASC,
			COALESCE(1 - (embedding <=> $1), -1) DESC,
			published_at DESC
		LIMIT $2
	`, articleCols)
	return s.queryArticles(ctx, sql, pgvector.NewVector(embedding), limit)
}

func (s *Store) SearchKBArticlesKeyword(ctx context.Context, query string, limit int) ([]models.KBArticle, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	sql := fmt.Sprintf(`
		SELECT %s FROM kb_articles
		WHERE published_at IS NOT NULL
		  AND (title ILIKE '%%' || $1 || '%%' OR excerpt ILIKE '%%' || $1 || '%%')
		ORDER BY published_at DESC
		LIMIT $2
	`, articleCols)
	return s.queryArticles(ctx, sql, query, limit)
}

func (s *Store) queryArticles(ctx context.Context, sql string, args ...interface{}) ([]models.KBArticle, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.KBArticle
	for rows.Next() {
		a, err := scanArticle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if out == nil {
		out = []models.KBArticle{}
	}
	return out, nil
}
