// Package coordinator drives the loan lifecycle: it validates and scopes
// caller input, delegates the transactional state changes to the store, and
// fans the resulting chat messages out to both chat participants.
//
// The coordinator depends on narrow local interfaces so it can be exercised
// against in-memory fakes; the postgres package provides the production
// implementations of Store and Items, the realtime package provides the
// Notifier.
package coordinator
