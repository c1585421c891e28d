package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lmendes/licitahub/internal/models"
)

const opportunityCols = `id, organization_id, title, portal, source_url, closing_date,
	status, report_path, parecer_path, petition_path, contract_path,
	estimated_value, final_value, published, report_requested_at,
	defeat_confirmed, created_at, updated_at`

func scanOpportunity(scan func(dest ...interface{}) error) (models.Opportunity, error) {
	var o models.Opportunity
	var status string

	err := scan(
		&o.ID, &o.OrganizationID, &o.Title, &o.Portal, &o.SourceURL, &o.ClosingDate,
		&status, &o.ReportPath, &o.ParecerPath, &o.PetitionPath, &o.ContractPath,
		&o.EstimatedValue, &o.FinalValue, &o.Published, &o.ReportRequestedAt,
		&o.DefeatConfirmed, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Status = models.OpportunityStatus(status)
	return o, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	sql := fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", opportunityCols)
	row := s.pool.QueryRow(ctx, sql, id)

	o, err := scanOpportunity(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &o, nil
}

func (s *Store) CreateOpportunity(ctx context.Context, o *models.Opportunity) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO opportunities (
			organization_id, title, portal, source_url, closing_date, status,
			estimated_value, published
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		o.OrganizationID, o.Title, o.Portal, o.SourceURL, o.ClosingDate,
		string(o.Status), o.EstimatedValue, o.Published,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert opportunity failed: %w", err)
	}
	return nil
}

// UpdateOpportunity writes the full mutable row. Conflict resolution is
// last-write-wins; there is no version token (see DESIGN.md).
func (s *Store) UpdateOpportunity(ctx context.Context, o *models.Opportunity) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE opportunities SET
			title = $1, portal = $2, closing_date = $3, status = $4,
			report_path = $5, parecer_path = $6, petition_path = $7,
			contract_path = $8, estimated_value = $9, final_value = $10,
			published = $11, report_requested_at = $12, defeat_confirmed = $13,
			updated_at = NOW()
		WHERE id = $14
	`,
		o.Title, o.Portal, o.ClosingDate, string(o.Status),
		o.ReportPath, o.ParecerPath, o.PetitionPath,
		o.ContractPath, o.EstimatedValue, o.FinalValue,
		o.Published, o.ReportRequestedAt, o.DefeatConfirmed,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("update opportunity failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListOpportunitiesByOrg(ctx context.Context, orgID uuid.UUID, includeUnpublished bool) ([]models.Opportunity, error) {
	sql := fmt.Sprintf("SELECT %s FROM opportunities WHERE organization_id = $1", opportunityCols)
	if !includeUnpublished {
		sql += " AND published = true"
	}
	sql += " ORDER BY closing_date ASC NULLS LAST, created_at DESC"
	return s.queryOpportunities(ctx, sql, orgID)
}

// ListOpportunities is the staff view: every record, drafts included,
// optionally filtered by status.
func (s *Store) ListOpportunities(ctx context.Context, status string) ([]models.Opportunity, error) {
	sql := fmt.Sprintf("SELECT %s FROM opportunities", opportunityCols)
	var args []interface{}
	if status != "" {
		sql += " WHERE status = $1"
		args = append(args, status)
	}
	sql += " ORDER BY closing_date ASC NULLS LAST, created_at DESC"
	return s.queryOpportunities(ctx, sql, args...)
}

func (s *Store) queryOpportunities(ctx context.Context, sql string, args ...interface{}) ([]models.Opportunity, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if opps == nil {
		opps = []models.Opportunity{}
	}
	return opps, nil
}

// UpsertDraftOpportunity inserts a watcher-discovered draft, keyed by source
// URL. Returns false when the notice was already known.
func (s *Store) UpsertDraftOpportunity(ctx context.Context, o *models.Opportunity) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities (organization_id, title, portal, source_url, closing_date, status, published)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		ON CONFLICT (source_url) WHERE source_url <> '' DO NOTHING
	`, o.OrganizationID, o.Title, o.Portal, o.SourceURL, o.ClosingDate, string(models.StatusReviewRequired))
	if err != nil {
		return false, fmt.Errorf("upsert draft failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// CountOpportunitiesByStatus feeds the ops report.
func (s *Store) CountOpportunitiesByStatus(ctx context.Context) (map[models.OpportunityStatus]int, error) {
	rows, err := s.pool.Query(ctx, "SELECT status, COUNT(*) FROM opportunities GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OpportunityStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		counts[models.OpportunityStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *Store) CountTicketsForOpportunity(ctx context.Context, oppID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tickets WHERE opportunity_id = $1", oppID).Scan(&n)
	return n, err
}

func (s *Store) DeleteOpportunity(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, "DELETE FROM opportunities WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete opportunity failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
