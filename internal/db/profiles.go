package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lmendes/licitahub/internal/models"
)

const profileCols = `id, email, full_name, password_hash, organization_id, is_admin,
	subscription_active, trial_active, trial_expires_at, access_authorized, created_at`

func scanProfile(scan func(dest ...interface{}) error) (models.Profile, error) {
	var p models.Profile
	err := scan(
		&p.ID, &p.Email, &p.FullName, &p.PasswordHash, &p.OrganizationID, &p.IsAdmin,
		&p.SubscriptionActive, &p.TrialActive, &p.TrialExpiresAt, &p.AccessAuthorized, &p.CreatedAt,
	)
	return p, err
}

func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM profiles WHERE id = $1", profileCols), id)
	p, err := scanProfile(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &p, nil
}

func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM profiles WHERE email = $1", profileCols), email)
	p, err := scanProfile(row.Scan)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *models.Profile) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (email, full_name, password_hash, organization_id, is_admin, trial_active, trial_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, p.Email, p.FullName, p.PasswordHash, p.OrganizationID, p.IsAdmin, p.TrialActive, p.TrialExpiresAt).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert profile failed: %w", err)
	}
	return nil
}

func (s *Store) ListOrganizationMemberIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	return s.queryIDs(ctx, "SELECT id FROM profiles WHERE organization_id = $1", orgID)
}

func (s *Store) ListAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.queryIDs(ctx, "SELECT id FROM profiles WHERE is_admin = true")
}

func (s *Store) queryIDs(ctx context.Context, sql string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeactivateTrial is the corrective write issued by the access gate when a
// check observes an expired trial.
func (s *Store) DeactivateTrial(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "UPDATE profiles SET trial_active = false WHERE id = $1", userID)
	if err != nil {
		return fmt.Errorf("deactivate trial failed: %w", err)
	}
	return nil
}

func (s *Store) SetSubscriptionActive(ctx context.Context, userID uuid.UUID, active bool) error {
	ct, err := s.pool.Exec(ctx, "UPDATE profiles SET subscription_active = $1 WHERE id = $2", active, userID)
	if err != nil {
		return fmt.Errorf("set subscription failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetAccessAuthorized(ctx context.Context, userID uuid.UUID, authorized bool) error {
	ct, err := s.pool.Exec(ctx, "UPDATE profiles SET access_authorized = $1 WHERE id = $2", authorized, userID)
	if err != nil {
		return fmt.Errorf("set access authorized failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetProfileOrganization(ctx context.Context, userID uuid.UUID, orgID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, "UPDATE profiles SET organization_id = $1 WHERE id = $2", orgID, userID)
	if err != nil {
		return fmt.Errorf("update profile organization failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var o models.Organization
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, cnpj, created_at FROM organizations WHERE id = $1", id).
		Scan(&o.ID, &o.Name, &o.CNPJ, &o.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &o, nil
}

func (s *Store) CreateOrganization(ctx context.Context, o *models.Organization) error {
	err := s.pool.QueryRow(ctx,
		"INSERT INTO organizations (name, cnpj) VALUES ($1, $2) RETURNING id, created_at",
		o.Name, o.CNPJ).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert organization failed: %w", err)
	}
	return nil
}
