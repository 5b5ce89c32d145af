package entitlements

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
)

// DefaultPlans returns the built-in catalog
func DefaultPlans() []Plan {
	return []Plan{
		{
			Tier:     TierFree,
			Limits:   Limits{Businesses: 1, Transactions: 100},
			Support:  "email",
			PriceIDs: []string{"prod_T0CfBGKatoyRxx"},
		},
		{
			Tier:        TierPro,
			Limits:      Limits{Businesses: 5, Transactions: Unlimited},
			Forecasting: true,
			Support:     "priority",
			PriceIDs:    []string{"prod_T0CXuskYTb24vt"},
		},
		{
			Tier:        TierEnterprise,
			Limits:      Limits{Businesses: Unlimited, Transactions: Unlimited},
			Forecasting: true,
			Support:     "dedicated",
			PriceIDs:    []string{"prod_T0CdvIcteXTmlU"},
		},
	}
}

// Catalog holds the current plans. Safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	plans   []Plan
	byPrice map[string]Plan
	free    Plan
}

// NewCatalog creates a catalog from plans, which must include FREE
func NewCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(plans); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the plan set atomically
func (c *Catalog) Replace(plans []Plan) error {
	byPrice := make(map[string]Plan)
	seen := make(map[Tier]bool)
	var free *Plan

	for i := range plans {
		p := plans[i]
		if p.Tier == "" {
			return fmt.Errorf("plan %d has no tier", i)
		}
		if seen[p.Tier] {
			return fmt.Errorf("duplicate plan tier %s", p.Tier)
		}
		seen[p.Tier] = true
		if p.Tier == TierFree {
			free = &plans[i]
		}
		for _, price := range p.PriceIDs {
			if other, ok := byPrice[price]; ok {
				return fmt.Errorf("price %s is mapped to both %s and %s", price, other.Tier, p.Tier)
			}
			byPrice[price] = p
		}
	}
	if free == nil {
		return fmt.Errorf("catalog must define the %s plan", TierFree)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans = append([]Plan(nil), plans...)
	c.byPrice = byPrice
	c.free = *free
	return nil
}

// Plans returns the plans in catalog order
func (c *Catalog) Plans() []Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Plan(nil), c.plans...)
}

// ForAccount returns the plan an account is entitled to
func (c *Catalog) ForAccount(account *accounts.Account) Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if account == nil || !account.SubscriptionStatus.IsPaying() || account.StripePriceID == nil {
		return c.free
	}
	if plan, ok := c.byPrice[*account.StripePriceID]; ok {
		return plan
	}
	return c.free
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadFile reads a YAML plan catalog
func LoadFile(path string) ([]Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog %s defines no plans", path)
	}

	return file.Plans, nil
}

// ReloadFile replaces the catalog with the contents of path. On error the
// current plans are kept.
func (c *Catalog) ReloadFile(path string) error {
	plans, err := LoadFile(path)
	if err != nil {
		return err
	}
	return c.Replace(plans)
}
