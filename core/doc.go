// Package core holds the identity sync domain: canonical events, user
// records, the store and ledger contracts, error codes, and configuration.
// Provider, transport, and storage adapters depend on core; core depends on
// none of them.
package core
