// Package billing keeps local account state in step with the payment
// provider.
//
// Two directions are covered. Checkout and portal requests go out to the
// provider synchronously: the caller's account is resolved, a provider
// customer is created on first use and linked with a set-if-absent update,
// and the provider's hosted session URL is returned unchanged. Webhook
// deliveries come back asynchronously: the signature is verified against
// the raw body, then the event overwrites the subscription status of the
// account linked to the event's customer.
//
//	session, err := service.CreateCheckoutSession(ctx, identity, billing.CheckoutRequest{
//		PriceID:    "price_pro_monthly",
//		SuccessURL: "https://app.example.com/billing/success",
//		CancelURL:  "https://app.example.com/billing",
//	})
//
// # Webhook semantics
//
// A bad or missing signature is rejected before anything is read or
// written. Once the signature is valid the delivery is always acknowledged;
// processing failures are logged and counted, not retried. Every mutation is
// an overwrite, so replays are harmless. Deliveries are not ordered: the last
// one processed wins.
//
// # Reconciliation
//
// Reconciler optionally runs on a cron schedule and overwrites each linked
// account's status with the provider's newest subscription.
package billing
