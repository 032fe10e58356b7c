// Package inbound is the delivery surface for provider webhooks.
//
// A delivery runs verify -> normalize -> reconcile. The resulting status
// tells the sender whether to retry: 400 for permanent rejections, 200 for
// anything acknowledged (applied or deliberately ignored), 500 for transient
// failures.
package inbound
