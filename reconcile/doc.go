// Package reconcile applies canonical identity events to a user store.
//
// Each external id moves through absent -> active -> tombstoned. Events are
// ordered by their occurred-at time, never by arrival, and every transition
// is idempotent: a redelivered event id is ignored as a duplicate and an
// event no newer than the stored version is ignored as stale.
package reconcile
