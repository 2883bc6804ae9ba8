package cluster

import "hash/fnv"

// ShardFor maps a username to its home shard using consistent hashing,
// so username-addressed lookups (login) land on the same shard every time.
//
// Hashing algorithm:
//   - FNV-1a over the username bytes
//   - Reduced modulo the sorted shard id list
//   - Deterministic: no per-process randomness, stable across restarts
//   - Uniform: usernames distribute roughly evenly across shards
//
// Mutating requests never consult this mapping; they operate against the
// shard the client explicitly connected to.
func (t *Topology) ShardFor(username string) ShardID {
	ids := t.IDs()
	h := fnv.New32a()
	h.Write([]byte(username))
	return ids[int(h.Sum32())%len(ids)]
}
