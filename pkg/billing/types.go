package billing

import (
	"context"
	"errors"
	"time"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
)

// ErrInvalidSignature is returned by Gateway.ParseWebhook when the payload
// cannot be authenticated
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Webhook event types acted upon
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Customer is a provider-side customer
type Customer struct {
	ID string `json:"id"`
}

// Session is a provider-hosted checkout or portal session
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Subscription is the provider's view of a customer's subscription
type Subscription struct {
	ID                string     `json:"id"`
	CustomerID        string     `json:"customer"`
	Status            string     `json:"status"`
	PriceID           string     `json:"price_id,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	Created           time.Time  `json:"created"`
}

// WebhookEvent is a verified provider event reduced to what the service acts on
type WebhookEvent struct {
	ID           string
	Type         string
	CustomerID   string
	Subscription *Subscription
	InvoiceID    string
	Created      time.Time
}

// CreateCustomerParams describes a new provider customer
type CreateCustomerParams struct {
	Email    string
	Metadata map[string]string
}

// CheckoutSessionParams describes a subscription checkout session
type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Gateway is the payment provider
type Gateway interface {
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error)

	// LatestSubscription returns the customer's newest subscription in any
	// status, or nil when the customer has none.
	LatestSubscription(ctx context.Context, customerID string) (*Subscription, error)

	// ParseWebhook authenticates a delivery against its signature header.
	// Authentication failures wrap ErrInvalidSignature.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// AccountResolver maps a user to the account that pays for their business
type AccountResolver interface {
	ResolveForUser(ctx context.Context, userID string) (*accounts.Account, error)
}

// CheckoutRequest is the body of a checkout request
type CheckoutRequest struct {
	PriceID    string `json:"priceId" validate:"required"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

// PortalRequest is the body of a billing portal request
type PortalRequest struct {
	ReturnURL string `json:"returnUrl" validate:"required,url"`
}

// SubscriptionView is the caller's account with its newest provider subscription
type SubscriptionView struct {
	Account      *accounts.Account `json:"account"`
	Subscription *Subscription     `json:"subscription"`
}
