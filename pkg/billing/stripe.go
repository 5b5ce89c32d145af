package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// StripeConfig configures the Stripe gateway
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// APIURL overrides the Stripe API base URL
	APIURL string
}

// StripeGateway implements Gateway with the Stripe API
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	metrics       *observability.Metrics
}

// NewStripeGateway creates a Stripe-backed gateway. Requests are not retried.
func NewStripeGateway(cfg StripeConfig, logger *observability.Logger, metrics *observability.Metrics) *StripeGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if logger != nil {
		backendConfig.LeveledLogger = logger
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.APIURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	return &StripeGateway{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		metrics:       metrics,
	}
}

func (g *StripeGateway) startCall(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := observability.Tracer().Start(ctx, "stripe."+operation, trace.WithSpanKind(trace.SpanKindClient))
	started := time.Now()
	return ctx, func(err error) {
		g.metrics.RecordProviderCall(operation, started, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, operation+" failed")
		}
		span.End()
	}
}

// CreateCustomer creates a Stripe customer
func (g *StripeGateway) CreateCustomer(ctx context.Context, params CreateCustomerParams) (customer *Customer, err error) {
	ctx, done := g.startCall(ctx, "create_customer")
	defer func() { done(err) }()

	p := &stripe.CustomerParams{Email: stripe.String(params.Email)}
	p.Context = ctx
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}

	c, err := g.api.Customers.New(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe customer: %w", err)
	}

	return &Customer{ID: c.ID}, nil
}

// CreateCheckoutSession creates a subscription-mode Checkout session for one unit of the price
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (session *Session, err error) {
	ctx, done := g.startCall(ctx, "create_checkout_session")
	defer func() { done(err) }()

	p := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(params.CustomerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	p.Context = ctx
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &Session{ID: s.ID, URL: s.URL}, nil
}

// CreatePortalSession creates a customer billing portal session
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (session *Session, err error) {
	ctx, done := g.startCall(ctx, "create_portal_session")
	defer func() { done(err) }()

	p := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	p.Context = ctx

	s, err := g.api.BillingPortalSessions.New(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}

	return &Session{ID: s.ID, URL: s.URL}, nil
}

// LatestSubscription lists the customer's subscriptions in any status and
// returns the newest
func (g *StripeGateway) LatestSubscription(ctx context.Context, customerID string) (sub *Subscription, err error) {
	ctx, done := g.startCall(ctx, "list_subscriptions")
	defer func() { done(err) }()

	p := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	p.Context = ctx
	p.Limit = stripe.Int64(1)

	iter := g.api.Subscriptions.List(p)
	if iter.Next() {
		return subscriptionFromStripe(iter.Subscription()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return nil, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// Only signature failures wrap ErrInvalidSignature.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" || signature == "" {
		return nil, ErrInvalidSignature
	}

	if err := webhook.ValidatePayload(payload, signature, g.webhookSecret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook event: %w", err)
	}

	ev := &WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return ev, nil
	}

	switch {
	case strings.HasPrefix(ev.Type, "customer.subscription."):
		var s stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode subscription in event %s: %w", event.ID, err)
		}
		ev.Subscription = subscriptionFromStripe(&s)
		ev.CustomerID = ev.Subscription.CustomerID
	case strings.HasPrefix(ev.Type, "invoice."):
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to decode invoice in event %s: %w", event.ID, err)
		}
		ev.InvoiceID = inv.ID
		if inv.Customer != nil {
			ev.CustomerID = inv.Customer.ID
		}
	}

	return ev, nil
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	sub := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Created:           time.Unix(s.Created, 0).UTC(),
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		sub.PriceID = s.Items.Data[0].Price.ID
	}
	if s.CurrentPeriodEnd > 0 {
		end := time.Unix(s.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &end
	}
	return sub
}
