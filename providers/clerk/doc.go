// Package clerk adapts Clerk user webhooks (delivered through svix) to the
// canonical identity sync event.
package clerk
