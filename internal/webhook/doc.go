// Package webhook delivers task lifecycle events to an HTTP callback.
//
// Delivery is asynchronous and best effort. HandleEvent only enqueues the
// event into a bounded buffer; a fixed set of sender goroutines sign each
// payload with HMAC-SHA256 and POST it, retrying server errors on a
// configured backoff schedule. Events that cannot be delivered are logged
// and dropped. Nothing in this package changes task state.
package webhook
