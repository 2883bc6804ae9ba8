package cluster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTopologyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTopology(t *testing.T) {
	path := writeTopologyFile(t, `
shards:
  A: {addr: "127.0.0.1:9001"}
  B: {addr: "127.0.0.1:9002"}
  C: {addr: "127.0.0.1:9003"}
`)

	topo, err := LoadTopology(path)
	require.NoError(t, err)

	assert.Equal(t, []ShardID{"A", "B", "C"}, topo.IDs())
	assert.Equal(t, []ShardID{"A", "C"}, topo.Peers("B"))

	addr, ok := topo.Addr("C")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:9003", addr)

	_, ok = topo.Addr("Z")
	assert.False(t, ok)
}

func TestLoadTopologyErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTopology(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadTopology(writeTopologyFile(t, "shards: ["))
		assert.Error(t, err)
	})

	t.Run("no shards", func(t *testing.T) {
		_, err := LoadTopology(writeTopologyFile(t, "shards: {}"))
		assert.Error(t, err)
	})

	t.Run("shard without address", func(t *testing.T) {
		_, err := LoadTopology(writeTopologyFile(t, "shards:\n  A: {addr: \"\"}\n"))
		assert.Error(t, err)
	})
}

func TestRosterOverlay(t *testing.T) {
	probed := Roster{"A": true, "B": true, "C": false}

	t.Run("caller offline mark wins", func(t *testing.T) {
		r := probed.Overlay(nil, map[ShardID]bool{"B": true})
		assert.True(t, r.MarkedOffline("B"))
		assert.False(t, r.MarkedOffline("A"))
	})

	t.Run("caller online mark wins", func(t *testing.T) {
		r := probed.Overlay(map[ShardID]bool{"C": true}, nil)
		assert.False(t, r.MarkedOffline("C"))
	})

	t.Run("unknown peers are not offline", func(t *testing.T) {
		r := Roster{}.Overlay(nil, nil)
		assert.False(t, r.MarkedOffline("A"))
	})

	t.Run("overlay does not mutate the probed view", func(t *testing.T) {
		probed.Overlay(nil, map[ShardID]bool{"A": true})
		assert.False(t, probed.MarkedOffline("A"))
	})
}
