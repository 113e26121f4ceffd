// Package realtime fans chat events out to connected users.
//
// Events are published to a Broker once per affected user and delivered
// at most once: a user with no live subscription misses the event and is
// expected to reconcile by re-reading the chat log. Per-recipient publish
// order is preserved. MemoryBroker serves single-process deployments,
// RedisBroker spans processes over Redis pub/sub.
package realtime
