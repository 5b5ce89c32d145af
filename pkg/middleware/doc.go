// Package middleware provides the request admission layer: per-IP rate
// limiting and bearer token authentication.
//
// Rate limiting runs two independent budgets keyed by client IP:
//
//	limits := middleware.NewInMemoryRateLimitMiddleware(
//		middleware.GeneralRateLimitConfig(), // 100 / minute
//		middleware.AuthRateLimitConfig(),    // 5 / 15 minutes
//		metrics, false)
//	router.Use(limits.Handler(middleware.PolicyGeneral))
//
// A Redis fixed window backend (DistributedRateLimiter) can replace the
// in-memory buckets through NewRateLimitMiddleware.
//
// Authentication resolves "Authorization: Bearer <token>" through an
// auth.Verifier and stores the *auth.Identity in the request context:
//
//	authn := middleware.NewAuthMiddleware(verifier, metrics)
//	api.Use(authn.Handler)
//	identity := middleware.GetIdentity(r.Context())
package middleware
