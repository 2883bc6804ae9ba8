package cluster

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Member describes one shard's network location in the topology file.
type Member struct {
	Addr string `yaml:"addr"` // host:port the shard listens on
}

// Topology is the static cluster layout every process loads at startup.
// All shards read the same file, so each knows every peer's address.
//
// File format:
//
//	shards:
//	  A: {addr: "127.0.0.1:9001"}
//	  B: {addr: "127.0.0.1:9002"}
//	  C: {addr: "127.0.0.1:9003"}
type Topology struct {
	Shards map[ShardID]Member `yaml:"shards"`
}

// LoadTopology reads and validates a topology file.
func LoadTopology(path string) (*Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	var t Topology
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Topology) validate() error {
	if len(t.Shards) == 0 {
		return fmt.Errorf("topology has no shards")
	}
	for id, m := range t.Shards {
		if id == "" {
			return fmt.Errorf("topology has a shard with an empty id")
		}
		if m.Addr == "" {
			return fmt.Errorf("shard %s has no address", id)
		}
	}
	return nil
}

// IDs returns all shard ids in sorted order. Sorting keeps the hash routing
// in ShardFor stable regardless of map iteration order.
func (t *Topology) IDs() []ShardID {
	ids := make([]ShardID, 0, len(t.Shards))
	for id := range t.Shards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Peers returns every shard id except self, in sorted order.
func (t *Topology) Peers(self ShardID) []ShardID {
	peers := make([]ShardID, 0, len(t.Shards)-1)
	for _, id := range t.IDs() {
		if id != self {
			peers = append(peers, id)
		}
	}
	return peers
}

// Addr returns the network address of a shard.
func (t *Topology) Addr(id ShardID) (string, bool) {
	m, ok := t.Shards[id]
	return m.Addr, ok
}
