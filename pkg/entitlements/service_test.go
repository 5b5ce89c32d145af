package entitlements

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
)

type mockResolver struct {
	account *accounts.Account
	err     error
}

func (m *mockResolver) ResolveForBusiness(context.Context, string) (*accounts.Account, error) {
	return m.account, m.err
}

func TestService_ForBusiness(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	catalog, err := NewCatalog([]Plan{
		{Tier: TierFree, Limits: Limits{Businesses: 1, Transactions: 100}},
		{Tier: TierPro, Limits: Limits{Businesses: 5, Transactions: Unlimited}, PriceIDs: []string{"price_pro"}},
	})
	require.NoError(t, err)

	resolver := &mockResolver{account: &accounts.Account{
		ID:                 "acc-1",
		SubscriptionStatus: accounts.SubscriptionStatusActive,
		StripePriceID:      strPtr("price_pro"),
	}}
	svc := NewService(resolver, catalog, NewPostgresUsage(db))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM businesses WHERE account_id = \$1`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions WHERE business_id = \$1`).
		WithArgs("biz-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(340))

	ent, err := svc.ForBusiness(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, TierPro, ent.Plan.Tier)
	assert.Equal(t, "ACTIVE", ent.Status)
	assert.Equal(t, Usage{Businesses: 2, Transactions: 340}, ent.Usage)
	assert.Equal(t, Remaining{Businesses: 3, Transactions: Unlimited}, ent.Remaining)
	assert.Empty(t, ent.Exceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ForBusinessLimits(t *testing.T) {
	catalog, err := NewCatalog(DefaultPlans())
	require.NoError(t, err)

	tests := []struct {
		name          string
		businesses    int
		transactions  int
		wantRemaining Remaining
		wantExceeded  []string
	}{
		{"under both limits", 0, 10, Remaining{Businesses: 1, Transactions: 90}, []string{}},
		{"business cap reached", 1, 99, Remaining{Businesses: 0, Transactions: 1}, []string{"businesses"}},
		{"both over", 3, 250, Remaining{Businesses: 0, Transactions: 0}, []string{"businesses", "transactions"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery(`FROM businesses`).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.businesses))
			mock.ExpectQuery(`FROM transactions`).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.transactions))

			account := &accounts.Account{ID: "acc-1", SubscriptionStatus: accounts.SubscriptionStatusCanceled}
			svc := NewService(&mockResolver{account: account}, catalog, NewPostgresUsage(db))

			ent, err := svc.ForBusiness(context.Background(), "biz-1")
			require.NoError(t, err)
			assert.Equal(t, TierFree, ent.Plan.Tier)
			assert.Equal(t, tt.wantRemaining, ent.Remaining)
			assert.Equal(t, tt.wantExceeded, ent.Exceeded)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestService_ForBusinessErrors(t *testing.T) {
	catalog, err := NewCatalog(DefaultPlans())
	require.NoError(t, err)

	t.Run("resolver error passes through", func(t *testing.T) {
		svc := NewService(&mockResolver{err: apperrors.NotFound("account not found")}, catalog, nil)
		_, err := svc.ForBusiness(context.Background(), "biz-1")
		assert.Equal(t, http.StatusNotFound, apperrors.As(err).StatusCode())
	})

	t.Run("usage query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`FROM businesses`).WillReturnError(errors.New("connection reset"))

		svc := NewService(&mockResolver{account: &accounts.Account{ID: "acc-1"}}, catalog, NewPostgresUsage(db))
		_, err = svc.ForBusiness(context.Background(), "biz-1")
		assert.True(t, apperrors.IsKind(err, apperrors.KindInternal))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
