// Package replication pushes locally committed mutations to peer shards and
// recovers the ones that could not be delivered.
//
// # Overview
//
// A shard that commits a cart or order mutation fans it out to every peer as
// a "sync" request over the wire protocol. Delivery is best effort: a peer
// that acknowledges is done, a peer that does not gets a durable entry in
// the failure queue. The queue is replayed later by the drainer, so peers
// converge without a coordinator or a cross-shard transaction.
//
// # Components
//
// Replicator: the per-target push state machine
//   - skips the source shard itself
//   - records a failure immediately for roster-offline targets, no network
//   - otherwise performs one bounded request/response exchange
//   - classifies every connect error, timeout, malformed or non-success
//     response identically: durable failure record, local write stands
//
// Queue: the durable failure log
//   - upsert keyed by (user, action, target) over *pending* rows only
//   - repeated failures merge: progress rises to the max, the timestamp
//     refreshes, the attempt counter grows
//   - completed and abandoned rows are never rewritten (audit trail)
//
// Drainer: opportunistic and scheduled replay
//   - triggered inline by a login on the shard, and by a background ticker
//   - skips targets still marked offline
//   - success moves the record to completed; failure leaves it pending
//     until the attempt cap moves it to abandoned
//
// # Delivery Guarantees
//
// At-least-once, not exactly-once: a peer may see the same mutation again
// after a lost acknowledgement or a drain replay. Every replicated payload
// therefore carries a source-minted mutation id, and the peer-side apply
// path is an insert-if-absent on that id.
package replication
