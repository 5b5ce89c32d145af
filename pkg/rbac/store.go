package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cacchoeira/FinanceProject/pkg/auth"
)

// Store reads business role assignments from PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new role store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetBusinessRole returns the user's role on a business, or ErrRoleNotFound
func (s *Store) GetBusinessRole(ctx context.Context, userID, businessID string) (auth.Role, error) {
	query := `
		SELECT role
		FROM user_business_roles
		WHERE user_id = $1 AND business_id = $2
	`

	var role string
	err := s.db.QueryRowContext(ctx, query, userID, businessID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRoleNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get business role: %w", err)
	}

	return auth.ParseRole(role), nil
}

// FirstBusinessForUser returns the user's earliest role assignment, or ErrRoleNotFound
func (s *Store) FirstBusinessForUser(ctx context.Context, userID string) (*BusinessRole, error) {
	query := `
		SELECT user_id, business_id, role
		FROM user_business_roles
		WHERE user_id = $1
		ORDER BY created_at ASC, business_id ASC
		LIMIT 1
	`

	var br BusinessRole
	var role string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&br.UserID, &br.BusinessID, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first business for user: %w", err)
	}

	br.Role = auth.ParseRole(role)
	return &br, nil
}
