package billing

import (
	"context"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/auth"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

const providerFailureMessage = "payment provider request failed"

// Service synchronizes local accounts with the payment provider
type Service struct {
	resolver AccountResolver
	store    accounts.Store
	gateway  Gateway
	metrics  *observability.Metrics
}

// NewService creates a new billing service
func NewService(resolver AccountResolver, store accounts.Store, gateway Gateway, metrics *observability.Metrics) *Service {
	return &Service{
		resolver: resolver,
		store:    store,
		gateway:  gateway,
		metrics:  metrics,
	}
}

// CreateCheckoutSession starts a subscription checkout for the caller's account
func (s *Service) CreateCheckoutSession(ctx context.Context, identity *auth.Identity, req CheckoutRequest) (*Session, error) {
	account, err := s.resolver.ResolveForUser(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.EnsureCustomer(ctx, identity, account)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   sessionMetadata(identity, account),
	})
	if err != nil {
		observability.FromContext(ctx).
			WithField("account_id", account.ID).
			WithError(err).
			Error("failed to create checkout session")
		return nil, apperrors.Upstream(providerFailureMessage, err)
	}

	return session, nil
}

// CreatePortalSession opens the billing portal for an account that already has a customer
func (s *Service) CreatePortalSession(ctx context.Context, identity *auth.Identity, req PortalRequest) (*Session, error) {
	account, err := s.resolver.ResolveForUser(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	customerID := account.CustomerID()
	if customerID == "" {
		return nil, apperrors.NotFound("no billing account found")
	}

	session, err := s.gateway.CreatePortalSession(ctx, customerID, req.ReturnURL)
	if err != nil {
		observability.FromContext(ctx).
			WithField("account_id", account.ID).
			WithError(err).
			Error("failed to create portal session")
		return nil, apperrors.Upstream(providerFailureMessage, err)
	}

	return session, nil
}

// GetSubscription returns the caller's account and newest provider
// subscription. A provider failure yields a nil subscription.
func (s *Service) GetSubscription(ctx context.Context, identity *auth.Identity) (*SubscriptionView, error) {
	account, err := s.resolver.ResolveForUser(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	view := &SubscriptionView{Account: account}
	if customerID := account.CustomerID(); customerID != "" {
		sub, err := s.gateway.LatestSubscription(ctx, customerID)
		if err != nil {
			observability.FromContext(ctx).
				WithField("account_id", account.ID).
				WithError(err).
				Warn("failed to fetch subscription from payment provider")
		} else {
			view.Subscription = sub
		}
	}

	return view, nil
}

// EnsureCustomer returns the account's provider customer, creating and
// linking one on first use. If another request links a customer first, the
// stored id is returned and the customer created here is left orphaned.
func (s *Service) EnsureCustomer(ctx context.Context, identity *auth.Identity, account *accounts.Account) (string, error) {
	if id := account.CustomerID(); id != "" {
		return id, nil
	}

	logger := observability.FromContext(ctx).WithField("account_id", account.ID)

	customer, err := s.gateway.CreateCustomer(ctx, CreateCustomerParams{
		Email:    identity.Email,
		Metadata: sessionMetadata(identity, account),
	})
	if err != nil {
		logger.WithError(err).Error("failed to create payment provider customer")
		return "", apperrors.Upstream(providerFailureMessage, err)
	}
	s.metrics.RecordCustomerCreated()

	stored, err := s.store.SetStripeCustomerIDIfAbsent(ctx, account.ID, customer.ID)
	if err != nil {
		logger.WithField("customer_id", customer.ID).WithError(err).Error("failed to link payment provider customer")
		return "", apperrors.Internal("internal server error", err)
	}
	if stored != customer.ID {
		logger.WithFields(map[string]interface{}{
			"customer_id":          stored,
			"orphaned_customer_id": customer.ID,
		}).Warn("account was linked concurrently; new provider customer is orphaned")
	}

	account.StripeCustomerID = &stored
	return stored, nil
}

func sessionMetadata(identity *auth.Identity, account *accounts.Account) map[string]string {
	return map[string]string{
		"user_id":    identity.ID,
		"account_id": account.ID,
	}
}
