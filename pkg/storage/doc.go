// Package storage groups the persistence plumbing shared by the domain
// packages.
//
//   - storage/postgres opens the PostgreSQL pool and the optional Redis client.
//   - storage/migrations embeds the schema and applies it with golang-migrate.
//
// Domain stores (rbac.Store, accounts.PostgresStore, entitlements.PostgresUsage)
// take the *sql.DB returned here.
package storage
