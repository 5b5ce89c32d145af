package entitlements

import (
	"errors"
	"fmt"
)

// Tier names a plan
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// Unlimited marks a limit that is never reached
const Unlimited = -1

// Limits caps what an account may create
type Limits struct {
	Businesses   int `yaml:"businesses" json:"businesses"`
	Transactions int `yaml:"transactions" json:"transactions"`
}

// Plan is one entry of the catalog
type Plan struct {
	Tier        Tier     `yaml:"tier" json:"tier"`
	Limits      Limits   `yaml:",inline" json:"limits"`
	Forecasting bool     `yaml:"forecasting" json:"forecasting"`
	Support     string   `yaml:"support" json:"support"`
	PriceIDs    []string `yaml:"price_ids" json:"-"`
}

// Usage is what a business currently consumes
type Usage struct {
	Businesses   int `json:"businesses"`
	Transactions int `json:"transactions"`
}

// Remaining is the headroom under each limit, Unlimited when uncapped
type Remaining struct {
	Businesses   int `json:"businesses"`
	Transactions int `json:"transactions"`
}

// Entitlements is the effective plan of a business
type Entitlements struct {
	BusinessID string    `json:"business_id"`
	AccountID  string    `json:"account_id"`
	Status     string    `json:"subscription_status"`
	Plan       Plan      `json:"plan"`
	Usage      Usage     `json:"usage"`
	Remaining  Remaining `json:"remaining"`
	// Exceeded lists the resources that admit no further creation
	Exceeded []string `json:"exceeded"`
}

func (e *Entitlements) applyLimits() {
	e.Remaining = Remaining{
		Businesses:   remaining(e.Usage.Businesses, e.Plan.Limits.Businesses),
		Transactions: remaining(e.Usage.Transactions, e.Plan.Limits.Transactions),
	}

	e.Exceeded = []string{}
	if IsLimitExceeded(e.Plan.CheckBusinesses(e.Usage.Businesses)) {
		e.Exceeded = append(e.Exceeded, "businesses")
	}
	if IsLimitExceeded(e.Plan.CheckTransactions(e.Usage.Transactions)) {
		e.Exceeded = append(e.Exceeded, "transactions")
	}
}

func remaining(current, limit int) int {
	if limit == Unlimited {
		return Unlimited
	}
	if current >= limit {
		return 0
	}
	return limit - current
}

// LimitExceededError reports a resource at or over its plan limit
type LimitExceededError struct {
	Resource string
	Current  int
	Limit    int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %d/%d", e.Resource, e.Current, e.Limit)
}

// IsLimitExceeded checks if an error is a limit exceeded error
func IsLimitExceeded(err error) bool {
	var limitErr *LimitExceededError
	return errors.As(err, &limitErr)
}

func checkLimit(resource string, current, limit int) error {
	if limit == Unlimited || current < limit {
		return nil
	}
	return &LimitExceededError{Resource: resource, Current: current, Limit: limit}
}

// CheckBusinesses reports whether one more business fits the plan
func (p Plan) CheckBusinesses(current int) error {
	return checkLimit("businesses", current, p.Limits.Businesses)
}

// CheckTransactions reports whether one more transaction fits the plan
func (p Plan) CheckTransactions(current int) error {
	return checkLimit("transactions", current, p.Limits.Transactions)
}
