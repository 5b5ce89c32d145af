package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
)

// mockGateway is a mock implementation of Gateway
type mockGateway struct {
	mu sync.Mutex

	createCustomerFunc  func(params CreateCustomerParams) (*Customer, error)
	createCheckoutFunc  func(params CheckoutSessionParams) (*Session, error)
	createPortalFunc    func(customerID, returnURL string) (*Session, error)
	latestSubFunc       func(customerID string) (*Subscription, error)
	parseWebhookFunc    func(payload []byte, signature string) (*WebhookEvent, error)
	createCustomerCalls int
	checkoutCalls       []CheckoutSessionParams
}

func (m *mockGateway) CreateCustomer(_ context.Context, params CreateCustomerParams) (*Customer, error) {
	m.mu.Lock()
	m.createCustomerCalls++
	n := m.createCustomerCalls
	m.mu.Unlock()
	if m.createCustomerFunc != nil {
		return m.createCustomerFunc(params)
	}
	return &Customer{ID: fmt.Sprintf("cus_%d", n)}, nil
}

func (m *mockGateway) CreateCheckoutSession(_ context.Context, params CheckoutSessionParams) (*Session, error) {
	m.mu.Lock()
	m.checkoutCalls = append(m.checkoutCalls, params)
	m.mu.Unlock()
	if m.createCheckoutFunc != nil {
		return m.createCheckoutFunc(params)
	}
	return &Session{ID: "cs_test", URL: "https://checkout.example.com/cs_test"}, nil
}

func (m *mockGateway) CreatePortalSession(_ context.Context, customerID, returnURL string) (*Session, error) {
	if m.createPortalFunc != nil {
		return m.createPortalFunc(customerID, returnURL)
	}
	return &Session{ID: "bps_test", URL: "https://portal.example.com/bps_test"}, nil
}

func (m *mockGateway) LatestSubscription(_ context.Context, customerID string) (*Subscription, error) {
	if m.latestSubFunc != nil {
		return m.latestSubFunc(customerID)
	}
	return nil, nil
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if m.parseWebhookFunc != nil {
		return m.parseWebhookFunc(payload, signature)
	}
	return nil, ErrInvalidSignature
}

// memoryStore is an in-memory accounts.Store
type memoryStore struct {
	mu       sync.Mutex
	accounts map[string]*accounts.Account
	updates  int
	setErr   error
	// linkedBefore simulates a concurrent request linking a customer first
	linkedBefore string
}

func newMemoryStore(accts ...*accounts.Account) *memoryStore {
	s := &memoryStore{accounts: make(map[string]*accounts.Account)}
	for _, a := range accts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memoryStore) GetBusiness(context.Context, string) (*accounts.Business, error) {
	return nil, accounts.ErrBusinessNotFound
}

func (s *memoryStore) GetAccount(_ context.Context, id string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) SetStripeCustomerIDIfAbsent(_ context.Context, accountID, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return "", s.setErr
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return "", accounts.ErrAccountNotFound
	}
	if s.linkedBefore != "" && a.StripeCustomerID == nil {
		id := s.linkedBefore
		a.StripeCustomerID = &id
	}
	if a.StripeCustomerID == nil {
		id := customerID
		a.StripeCustomerID = &id
	}
	return *a.StripeCustomerID, nil
}

func (s *memoryStore) UpdateSubscriptionByCustomerID(_ context.Context, customerID string, status accounts.SubscriptionStatus, priceID *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.accounts {
		if a.CustomerID() != customerID {
			continue
		}
		a.SubscriptionStatus = status
		if priceID != nil {
			p := *priceID
			a.StripePriceID = &p
		}
		n++
	}
	s.updates++
	return n, nil
}

func (s *memoryStore) ListLinkedAccounts(_ context.Context, afterID string, limit int) ([]*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, a := range s.accounts {
		if a.StripeCustomerID != nil && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	var out []*accounts.Account
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		cp := *s.accounts[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memoryStore) status(id string) accounts.SubscriptionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].SubscriptionStatus
}

// staticResolver resolves every user to one account held in the store
type staticResolver struct {
	store     *memoryStore
	accountID string
	err       error
}

func (r *staticResolver) ResolveForUser(ctx context.Context, _ string) (*accounts.Account, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.store.GetAccount(ctx, r.accountID)
}

func strPtr(s string) *string { return &s }

// signPayload builds a Stripe-Signature header for payload
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
