package rbac

import (
	"errors"

	"github.com/cacchoeira/FinanceProject/pkg/auth"
)

// ErrRoleNotFound means the user holds no role on the business
var ErrRoleNotFound = errors.New("business role not found")

// BusinessRole is one row of user_business_roles. A user has at most one
// role per business.
type BusinessRole struct {
	UserID     string
	BusinessID string
	Role       auth.Role
}
