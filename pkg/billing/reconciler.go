package billing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
	"github.com/cacchoeira/FinanceProject/pkg/async"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

const (
	defaultReconcileBatchSize = 100
	reconcileWorkers          = 4
)

// Reconciler overwrites cached subscription statuses with the provider's
type Reconciler struct {
	store       accounts.Store
	gateway     Gateway
	batchSize   int
	workers     int
	timeout     time.Duration
	callTimeout time.Duration
	logger      *observability.Logger
	metrics     *observability.Metrics
	cron        *cron.Cron
}

// NewReconciler creates a new reconciler
func NewReconciler(store accounts.Store, gateway Gateway, batchSize int, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	if batchSize <= 0 {
		batchSize = defaultReconcileBatchSize
	}
	return &Reconciler{
		store:       store,
		gateway:     gateway,
		batchSize:   batchSize,
		workers:     reconcileWorkers,
		timeout:     10 * time.Minute,
		callTimeout: 30 * time.Second,
		logger:      logger,
		metrics:     metrics,
	}
}

// Start schedules RunOnce with a standard five-field cron expression
func (r *Reconciler) Start(schedule string) error {
	cl := cronLogger{logger: r.logger}
	r.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		updated, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.WithError(err).WithField("updated", updated).Error("subscription reconciliation failed")
			return
		}
		r.logger.WithField("updated", updated).Info("subscription reconciliation completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	r.cron.Start()
	r.logger.WithField("schedule", schedule).Info("subscription reconciler started")
	return nil
}

// Stop waits for a running job to finish or ctx to expire
func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce walks every linked account and returns how many were updated.
// Accounts whose customer has no subscription are left alone.
func (r *Reconciler) RunOnce(ctx context.Context) (updated int, err error) {
	defer func() { r.metrics.RecordReconcileRun(err) }()

	failures := 0
	after := ""
	for {
		batch, err := r.store.ListLinkedAccounts(ctx, after, r.batchSize)
		if err != nil {
			return updated, err
		}

		var changed atomic.Int64
		errs := async.Batch(ctx, batch, r.workers, r.callTimeout, func(ctx context.Context, account *accounts.Account) error {
			ok, err := r.reconcile(ctx, account)
			if err != nil {
				r.logger.WithField("account_id", account.ID).WithError(err).Warn("failed to reconcile account")
				return err
			}
			if ok {
				changed.Add(1)
			}
			return nil
		})
		failures += len(errs)
		updated += int(changed.Load())

		if len(batch) < r.batchSize {
			break
		}
		after = batch[len(batch)-1].ID
	}

	if failures > 0 {
		return updated, fmt.Errorf("failed to reconcile %d accounts", failures)
	}
	return updated, nil
}

func (r *Reconciler) reconcile(ctx context.Context, account *accounts.Account) (bool, error) {
	sub, err := r.gateway.LatestSubscription(ctx, account.CustomerID())
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}

	status := accounts.StatusFromProvider(sub.Status)
	var priceID *string
	if sub.PriceID != "" {
		priceID = &sub.PriceID
	}
	if status == account.SubscriptionStatus && samePrice(account.StripePriceID, priceID) {
		return false, nil
	}

	if _, err := r.store.UpdateSubscriptionByCustomerID(ctx, account.CustomerID(), status, priceID); err != nil {
		return false, err
	}
	r.metrics.RecordSubscriptionUpdate(string(status), "reconcile")
	return true, nil
}

func samePrice(stored, latest *string) bool {
	if latest == nil {
		return true
	}
	return stored != nil && *stored == *latest
}

// cronLogger adapts Logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
