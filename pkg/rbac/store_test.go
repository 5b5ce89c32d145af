package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacchoeira/FinanceProject/pkg/auth"
)

func TestStore_GetBusinessRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	query := `SELECT role\s+FROM user_business_roles\s+WHERE user_id = \$1 AND business_id = \$2`

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("user-1", "biz-1").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("Owner"))

		role, err := store.GetBusinessRole(context.Background(), "user-1", "biz-1")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleOwner, role)
	})

	t.Run("no row", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("user-1", "biz-2").
			WillReturnRows(sqlmock.NewRows([]string{"role"}))

		_, err := store.GetBusinessRole(context.Background(), "user-1", "biz-2")
		assert.True(t, errors.Is(err, ErrRoleNotFound))
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("user-1", "biz-3").
			WillReturnError(errors.New("connection reset"))

		_, err := store.GetBusinessRole(context.Background(), "user-1", "biz-3")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrRoleNotFound))
		assert.Contains(t, err.Error(), "connection reset")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FirstBusinessForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	t.Run("first assignment", func(t *testing.T) {
		mock.ExpectQuery(`SELECT user_id, business_id, role\s+FROM user_business_roles\s+WHERE user_id = \$1\s+ORDER BY created_at ASC, business_id ASC\s+LIMIT 1`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "business_id", "role"}).AddRow("user-1", "biz-1", "admin"))

		br, err := store.FirstBusinessForUser(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, &BusinessRole{UserID: "user-1", BusinessID: "biz-1", Role: auth.RoleAdmin}, br)
	})

	t.Run("none", func(t *testing.T) {
		mock.ExpectQuery(`FROM user_business_roles`).
			WithArgs("user-2").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "business_id", "role"}))

		_, err := store.FirstBusinessForUser(context.Background(), "user-2")
		assert.True(t, errors.Is(err, ErrRoleNotFound))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
