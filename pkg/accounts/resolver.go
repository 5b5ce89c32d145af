package accounts

import (
	"context"
	"errors"

	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
	"github.com/cacchoeira/FinanceProject/pkg/rbac"
)

// FirstBusinessLookup finds the business a user is attached to
type FirstBusinessLookup interface {
	FirstBusinessForUser(ctx context.Context, userID string) (*rbac.BusinessRole, error)
}

// Resolver maps a caller to their billing account
type Resolver struct {
	roles FirstBusinessLookup
	store Store
}

// NewResolver creates a new account resolver
func NewResolver(roles FirstBusinessLookup, store Store) *Resolver {
	return &Resolver{roles: roles, store: store}
}

// ResolveForUser walks user → first business role → business → account.
// Errors are *apperrors.Error.
func (r *Resolver) ResolveForUser(ctx context.Context, userID string) (*Account, error) {
	role, err := r.roles.FirstBusinessForUser(ctx, userID)
	if errors.Is(err, rbac.ErrRoleNotFound) {
		return nil, apperrors.NotFound("business role not found for user")
	}
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("failed to look up business role")
		return nil, apperrors.Internal("internal server error", err)
	}

	return r.ResolveForBusiness(ctx, role.BusinessID)
}

// ResolveForBusiness walks business → account
func (r *Resolver) ResolveForBusiness(ctx context.Context, businessID string) (*Account, error) {
	if businessID == "" {
		return nil, apperrors.BadRequest("business ID required")
	}
	logger := observability.FromContext(ctx).WithField("business_id", businessID)

	business, err := r.store.GetBusiness(ctx, businessID)
	if errors.Is(err, ErrBusinessNotFound) {
		return nil, apperrors.NotFound("business not found or has no associated account")
	}
	if err != nil {
		logger.WithError(err).Error("failed to look up business")
		return nil, apperrors.Internal("internal server error", err)
	}
	if business.AccountID == nil || *business.AccountID == "" {
		return nil, apperrors.NotFound("business not found or has no associated account")
	}

	account, err := r.store.GetAccount(ctx, *business.AccountID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, apperrors.NotFound("account not found")
	}
	if err != nil {
		logger.WithError(err).Error("failed to look up account")
		return nil, apperrors.Internal("internal server error", err)
	}

	return account, nil
}
