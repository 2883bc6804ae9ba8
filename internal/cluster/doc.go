// Package cluster defines the shared vocabulary of the distributed store:
// shard identity, cluster topology, request routing, and the wire protocol
// every process speaks.
//
// # Overview
//
// The cluster is a fixed set of symmetric shard processes. Each shard owns a
// private relational database with the full schema; no shard is authoritative
// and there is no central coordinator. This package holds everything the
// shards need to agree on:
//
//	Topology  - the static shard id -> address map, loaded from YAML
//	ShardFor  - deterministic username -> home shard routing (FNV-1a mod N)
//	Roster    - a per-request belief about which shards are reachable
//	Request / Response - the framed JSON messages exchanged over TCP
//
// # Wire Protocol
//
// Messages are JSON objects carried in length-prefixed frames: a 4-byte
// big-endian length followed by the payload, capped at MaxFrameSize. Each
// connection carries exactly one request/response exchange and is then
// closed. Client requests name an action (login, list_products, add_to_cart,
// view_cart, remove_from_cart, checkout); shard-to-shard replication reuses
// the same protocol with action "sync" plus the original action under
// sync_action and the originating shard under source_server.
//
// # Routing
//
// ShardFor hashes a username with FNV-1a and reduces it modulo the sorted
// shard id list, so the mapping is stable across process restarts and
// approximately uniform. It is only consulted for username-addressed lookups
// such as login; every mutation operates against the shard the client
// connected to.
//
// # See Also
//
// Related packages:
//   - internal/health: probe-based peer liveness feeding Roster
//   - internal/replication: pushes committed mutations to peers
package cluster
