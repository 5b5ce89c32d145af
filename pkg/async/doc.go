// Package async provides bounded concurrent execution for background work.
//
// Batch fans a slice out over a fixed number of workers, gives every call
// its own timeout and turns panics into errors:
//
//	errs := async.Batch(ctx, accounts, 4, time.Minute, func(ctx context.Context, a *accounts.Account) error {
//		return reconcile(ctx, a)
//	})
//
// The subscription reconciler in pkg/billing is the main caller.
package async
