// Package entitlements maps an account's subscription to plan limits.
//
// The catalog ships with FREE, PRO and ENTERPRISE plans and can be replaced
// by a YAML file that is reloaded when it changes on disk:
//
//	plans:
//	  - tier: PRO
//	    businesses: 5
//	    transactions: -1
//	    forecasting: true
//	    support: priority
//	    price_ids: [price_1Pro]
//
// A limit of -1 means unlimited. Accounts without an active or trialing
// subscription on a known price get FREE.
package entitlements
