package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, stripe_customer_id, subscription_status, stripe_price_id, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		account    Account
		customerID sql.NullString
		priceID    sql.NullString
		status     string
	)
	if err := row.Scan(&account.ID, &customerID, &status, &priceID, &account.UpdatedAt); err != nil {
		return nil, err
	}
	if customerID.Valid {
		account.StripeCustomerID = &customerID.String
	}
	if priceID.Valid {
		account.StripePriceID = &priceID.String
	}
	account.SubscriptionStatus = SubscriptionStatus(status)
	return &account, nil
}

// GetBusiness retrieves a business by id
func (s *PostgresStore) GetBusiness(ctx context.Context, businessID string) (*Business, error) {
	query := `SELECT id, name, account_id FROM businesses WHERE id = $1`

	var (
		business  Business
		accountID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, businessID).Scan(&business.ID, &business.Name, &accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	if accountID.Valid {
		business.AccountID = &accountID.String
	}

	return &business, nil
}

// GetAccount retrieves an account by id
func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// SetStripeCustomerIDIfAbsent links a customer id without ever replacing one
// that is already stored.
func (s *PostgresStore) SetStripeCustomerIDIfAbsent(ctx context.Context, accountID, customerID string) (string, error) {
	query := `
		UPDATE accounts
		SET stripe_customer_id = $1, updated_at = NOW()
		WHERE id = $2 AND stripe_customer_id IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, customerID, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to set stripe customer id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return customerID, nil
	}

	// Either the account is gone or another request linked a customer first.
	var stored sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT stripe_customer_id FROM accounts WHERE id = $1`, accountID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read stripe customer id: %w", err)
	}
	if !stored.Valid {
		return "", fmt.Errorf("stripe customer id was not stored for account %s", accountID)
	}

	return stored.String, nil
}

// UpdateSubscriptionByCustomerID overwrites the subscription status of the
// accounts linked to customerID and returns how many rows changed.
func (s *PostgresStore) UpdateSubscriptionByCustomerID(ctx context.Context, customerID string, status SubscriptionStatus, priceID *string) (int64, error) {
	query := `
		UPDATE accounts
		SET subscription_status = $1,
		    stripe_price_id = COALESCE($2, stripe_price_id),
		    updated_at = NOW()
		WHERE stripe_customer_id = $3
	`
	var price sql.NullString
	if priceID != nil {
		price = sql.NullString{String: *priceID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query, string(status), price, customerID)
	if err != nil {
		return 0, fmt.Errorf("failed to update subscription status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// ListLinkedAccounts returns up to limit accounts with a customer id
func (s *PostgresStore) ListLinkedAccounts(ctx context.Context, afterID string, limit int) ([]*Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE stripe_customer_id IS NOT NULL AND id::text > $1
		ORDER BY id ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}
