package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func accountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "stripe_customer_id", "subscription_status", "stripe_price_id", "updated_at"})
}

func TestPostgresStore_GetBusiness(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(`SELECT id, name, account_id FROM businesses WHERE id = \$1`).
		WithArgs("biz-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "account_id"}).AddRow("biz-1", "Acme", "acc-1"))
	mock.ExpectQuery(`FROM businesses`).
		WithArgs("biz-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "account_id"}).AddRow("biz-2", "Unlinked", nil))
	mock.ExpectQuery(`FROM businesses`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "account_id"}))

	business, err := store.GetBusiness(context.Background(), "biz-1")
	require.NoError(t, err)
	require.NotNil(t, business.AccountID)
	assert.Equal(t, "acc-1", *business.AccountID)

	business, err = store.GetBusiness(context.Background(), "biz-2")
	require.NoError(t, err)
	assert.Nil(t, business.AccountID)

	_, err = store.GetBusiness(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBusinessNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAccount(t *testing.T) {
	store, mock := setupStore(t)
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, stripe_customer_id, subscription_status, stripe_price_id, updated_at FROM accounts WHERE id = \$1`).
		WithArgs("acc-1").
		WillReturnRows(accountRows().AddRow("acc-1", "cus_123", "ACTIVE", "price_pro", updated))
	mock.ExpectQuery(`FROM accounts`).
		WithArgs("acc-2").
		WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(`FROM accounts`).
		WithArgs("acc-3").
		WillReturnRows(accountRows())

	account, err := store.GetAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "cus_123", account.CustomerID())
	assert.Equal(t, SubscriptionStatusActive, account.SubscriptionStatus)
	require.NotNil(t, account.StripePriceID)
	assert.Equal(t, "price_pro", *account.StripePriceID)
	assert.Equal(t, updated, account.UpdatedAt)

	_, err = store.GetAccount(context.Background(), "acc-2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccountNotFound)

	_, err = store.GetAccount(context.Background(), "acc-3")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetStripeCustomerIDIfAbsent(t *testing.T) {
	update := `UPDATE accounts\s+SET stripe_customer_id = \$1, updated_at = NOW\(\)\s+WHERE id = \$2 AND stripe_customer_id IS NULL`

	t.Run("links when empty", func(t *testing.T) {
		store, mock := setupStore(t)
		mock.ExpectExec(update).
			WithArgs("cus_new", "acc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		stored, err := store.SetStripeCustomerIDIfAbsent(context.Background(), "acc-1", "cus_new")
		require.NoError(t, err)
		assert.Equal(t, "cus_new", stored)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keeps existing id", func(t *testing.T) {
		store, mock := setupStore(t)
		mock.ExpectExec(update).
			WithArgs("cus_new", "acc-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT stripe_customer_id FROM accounts WHERE id = \$1`).
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"stripe_customer_id"}).AddRow("cus_first"))

		stored, err := store.SetStripeCustomerIDIfAbsent(context.Background(), "acc-1", "cus_new")
		require.NoError(t, err)
		assert.Equal(t, "cus_first", stored)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account missing", func(t *testing.T) {
		store, mock := setupStore(t)
		mock.ExpectExec(update).
			WithArgs("cus_new", "gone").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT stripe_customer_id FROM accounts`).
			WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"stripe_customer_id"}))

		_, err := store.SetStripeCustomerIDIfAbsent(context.Background(), "gone", "cus_new")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec error", func(t *testing.T) {
		store, mock := setupStore(t)
		mock.ExpectExec(update).
			WithArgs("cus_new", "acc-1").
			WillReturnError(errors.New("deadlock detected"))

		_, err := store.SetStripeCustomerIDIfAbsent(context.Background(), "acc-1", "cus_new")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to set stripe customer id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_UpdateSubscriptionByCustomerID(t *testing.T) {
	store, mock := setupStore(t)
	update := `UPDATE accounts\s+SET subscription_status = \$1,\s+stripe_price_id = COALESCE\(\$2, stripe_price_id\),\s+updated_at = NOW\(\)\s+WHERE stripe_customer_id = \$3`
	price := "price_pro"

	mock.ExpectExec(update).
		WithArgs("ACTIVE", "price_pro", "cus_123").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).
		WithArgs("PAST_DUE", nil, "cus_unknown").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := store.UpdateSubscriptionByCustomerID(context.Background(), "cus_123", SubscriptionStatusActive, &price)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.UpdateSubscriptionByCustomerID(context.Background(), "cus_unknown", SubscriptionStatusPastDue, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLinkedAccounts(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM accounts\s+WHERE stripe_customer_id IS NOT NULL AND id::text > \$1\s+ORDER BY id ASC\s+LIMIT \$2`).
		WithArgs("", 2).
		WillReturnRows(accountRows().
			AddRow("acc-1", "cus_1", "ACTIVE", nil, now).
			AddRow("acc-2", "cus_2", "CANCELED", "price_pro", now))

	accounts, err := store.ListLinkedAccounts(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Nil(t, accounts[0].StripePriceID)
	assert.Equal(t, SubscriptionStatusCanceled, accounts[1].SubscriptionStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusFromProvider(t *testing.T) {
	assert.Equal(t, SubscriptionStatusActive, StatusFromProvider("active"))
	assert.Equal(t, SubscriptionStatusIncompleteExpired, StatusFromProvider("incomplete_expired"))
	assert.True(t, SubscriptionStatusTrialing.IsPaying())
	assert.False(t, SubscriptionStatusPastDue.IsPaying())
}
