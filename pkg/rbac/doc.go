// Package rbac authorizes requests against per-business role assignments
// stored in user_business_roles.
//
//	authz := rbac.NewAuthorizer(rbac.NewStore(db), metrics)
//	router.Handle("/api/businesses/{businessId}/entitlements",
//		authz.RequireRole(auth.RoleOwner, auth.RoleAdmin)(handler))
//
// RequireRole must run after middleware.AuthMiddleware. On success the
// caller's role is available through rbac.GetRole.
package rbac
