// Package accounts owns the businesses and accounts tables and resolves a
// caller to the billing account that pays for their business.
//
// Resolution follows user → first business role → business.account_id →
// account. Each missing link is reported as a 404; persistence failures are
// logged and reported as a 500 without detail.
//
//	account, err := resolver.ResolveForUser(ctx, identity.ID)
//	if err != nil {
//		httputil.WriteAPIError(w, err)
//		return
//	}
package accounts
