package cluster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopology() *Topology {
	return &Topology{
		Shards: map[ShardID]Member{
			"A": {Addr: "127.0.0.1:9001"},
			"B": {Addr: "127.0.0.1:9002"},
			"C": {Addr: "127.0.0.1:9003"},
		},
	}
}

// TestShardForDeterminism verifies the same username always routes to the
// same shard, including across freshly constructed topologies.
func TestShardForDeterminism(t *testing.T) {
	topo := testTopology()

	for _, username := range []string{"alice", "bob", "carol", "dave", ""} {
		first := topo.ShardFor(username)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, topo.ShardFor(username))
		}
		// A rebuilt topology must agree: no per-process randomness.
		assert.Equal(t, first, testTopology().ShardFor(username))
	}
}

// TestShardForDistribution verifies usernames spread roughly evenly across
// the shards over a large random sample.
func TestShardForDistribution(t *testing.T) {
	topo := testTopology()
	rng := rand.New(rand.NewSource(1))

	const samples = 30000
	counts := make(map[ShardID]int)
	for i := 0; i < samples; i++ {
		username := fmt.Sprintf("user-%d-%d", rng.Int63(), i)
		counts[topo.ShardFor(username)]++
	}

	require.Len(t, counts, 3, "all shards should receive users")
	for id, n := range counts {
		share := float64(n) / samples
		assert.InDelta(t, 1.0/3.0, share, 0.05, "shard %s share %.3f is far from uniform", id, share)
	}
}

// TestShardForValidTarget verifies the routed shard is always a member of
// the topology.
func TestShardForValidTarget(t *testing.T) {
	topo := testTopology()
	for i := 0; i < 1000; i++ {
		id := topo.ShardFor(fmt.Sprintf("user%d", i))
		_, ok := topo.Addr(id)
		require.True(t, ok)
	}
}
