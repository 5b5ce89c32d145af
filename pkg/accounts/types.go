package accounts

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrBusinessNotFound means no business row exists for the id
	ErrBusinessNotFound = errors.New("business not found")
	// ErrAccountNotFound means no account row exists for the id
	ErrAccountNotFound = errors.New("account not found")
)

// SubscriptionStatus is the locally cached subscription state of an account.
// The payment provider is the source of truth.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "ACTIVE"
	SubscriptionStatusTrialing          SubscriptionStatus = "TRIALING"
	SubscriptionStatusIncomplete        SubscriptionStatus = "INCOMPLETE"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "INCOMPLETE_EXPIRED"
	SubscriptionStatusPastDue           SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusUnpaid            SubscriptionStatus = "UNPAID"
	SubscriptionStatusPaused            SubscriptionStatus = "PAUSED"
	SubscriptionStatusCanceled          SubscriptionStatus = "CANCELED"
)

// StatusFromProvider uppercases a provider status verbatim
func StatusFromProvider(status string) SubscriptionStatus {
	return SubscriptionStatus(strings.ToUpper(status))
}

// IsPaying reports whether the status grants a paid plan
func (s SubscriptionStatus) IsPaying() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Business is a tenant. AccountID is nil until onboarding links an account.
type Business struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	AccountID *string `json:"account_id,omitempty"`
}

// Account is the billing entity of a business
type Account struct {
	ID                 string             `json:"id"`
	StripeCustomerID   *string            `json:"stripe_customer_id"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	StripePriceID      *string            `json:"stripe_price_id"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// CustomerID returns the provider customer id, or "" when none is linked
func (a *Account) CustomerID() string {
	if a.StripeCustomerID == nil {
		return ""
	}
	return *a.StripeCustomerID
}

// Store persists businesses and accounts
type Store interface {
	GetBusiness(ctx context.Context, businessID string) (*Business, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)

	// SetStripeCustomerIDIfAbsent links customerID only if the account has
	// no customer yet and returns the id stored afterwards.
	SetStripeCustomerIDIfAbsent(ctx context.Context, accountID, customerID string) (string, error)

	// UpdateSubscriptionByCustomerID overwrites the status of every account
	// linked to customerID. A nil priceID keeps the stored price.
	UpdateSubscriptionByCustomerID(ctx context.Context, customerID string, status SubscriptionStatus, priceID *string) (int64, error)

	// ListLinkedAccounts pages through accounts that have a customer id,
	// ordered by id and starting after afterID.
	ListLinkedAccounts(ctx context.Context, afterID string, limit int) ([]*Account, error)
}
