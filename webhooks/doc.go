// Package webhooks authenticates inbound deliveries signed with the Standard
// Webhooks (svix) scheme. Verification is pure: it performs no I/O and never
// logs or echoes the signing secret.
package webhooks
