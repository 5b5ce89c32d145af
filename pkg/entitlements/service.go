package entitlements

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// BusinessResolver maps a business to its account
type BusinessResolver interface {
	ResolveForBusiness(ctx context.Context, businessID string) (*accounts.Account, error)
}

// UsageCounter counts what an account and business consume
type UsageCounter interface {
	CountBusinesses(ctx context.Context, accountID string) (int, error)
	CountTransactions(ctx context.Context, businessID string) (int, error)
}

// PostgresUsage implements UsageCounter using PostgreSQL
type PostgresUsage struct {
	db *sql.DB
}

// NewPostgresUsage creates a new PostgresUsage
func NewPostgresUsage(db *sql.DB) *PostgresUsage {
	return &PostgresUsage{db: db}
}

// CountBusinesses counts the businesses linked to an account
func (u *PostgresUsage) CountBusinesses(ctx context.Context, accountID string) (int, error) {
	var count int
	if err := u.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM businesses WHERE account_id = $1`, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count businesses: %w", err)
	}
	return count, nil
}

// CountTransactions counts the transactions recorded for a business
func (u *PostgresUsage) CountTransactions(ctx context.Context, businessID string) (int, error) {
	var count int
	if err := u.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE business_id = $1`, businessID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// Service computes the entitlements of a business
type Service struct {
	resolver BusinessResolver
	catalog  *Catalog
	usage    UsageCounter
}

// NewService creates a new entitlements service
func NewService(resolver BusinessResolver, catalog *Catalog, usage UsageCounter) *Service {
	return &Service{resolver: resolver, catalog: catalog, usage: usage}
}

// ForBusiness returns the plan and current usage of a business
func (s *Service) ForBusiness(ctx context.Context, businessID string) (*Entitlements, error) {
	account, err := s.resolver.ResolveForBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	ent := &Entitlements{
		BusinessID: businessID,
		AccountID:  account.ID,
		Status:     string(account.SubscriptionStatus),
		Plan:       s.catalog.ForAccount(account),
	}

	logger := observability.FromContext(ctx).WithField("business_id", businessID)
	if ent.Usage.Businesses, err = s.usage.CountBusinesses(ctx, account.ID); err != nil {
		logger.WithError(err).Error("failed to count businesses")
		return nil, apperrors.Internal("internal server error", err)
	}
	if ent.Usage.Transactions, err = s.usage.CountTransactions(ctx, businessID); err != nil {
		logger.WithError(err).Error("failed to count transactions")
		return nil, apperrors.Internal("internal server error", err)
	}

	ent.applyLimits()
	if len(ent.Exceeded) > 0 {
		logger.WithFields(map[string]interface{}{
			"tier":     string(ent.Plan.Tier),
			"exceeded": ent.Exceeded,
		}).Debug("plan limits reached")
	}
	return ent, nil
}
