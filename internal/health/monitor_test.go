package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
)

func testTopology() *cluster.Topology {
	return &cluster.Topology{
		Shards: map[cluster.ShardID]cluster.Member{
			"A": {Addr: "127.0.0.1:9001"},
			"B": {Addr: "127.0.0.1:9002"},
			"C": {Addr: "127.0.0.1:9003"},
		},
	}
}

// TestMonitorProbesPeers verifies the probe loop covers every peer but
// never the shard itself.
func TestMonitorProbesPeers(t *testing.T) {
	monitor := NewMonitor("B", testTopology(), 50*time.Millisecond)
	defer monitor.Stop()

	var mu sync.Mutex
	probed := map[string]int{}
	monitor.SetCheckFunction(func(ctx context.Context, addr string) error {
		mu.Lock()
		probed[addr]++
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, probed["127.0.0.1:9001"], 1)
	assert.GreaterOrEqual(t, probed["127.0.0.1:9003"], 1)
	assert.Zero(t, probed["127.0.0.1:9002"], "a shard never probes itself")
}

// TestMonitorOfflineAfterConsecutiveFailures verifies the failure
// threshold and recovery transitions.
func TestMonitorOfflineAfterConsecutiveFailures(t *testing.T) {
	monitor := NewMonitor("B", testTopology(), 30*time.Millisecond)
	defer monitor.Stop()

	var mu sync.Mutex
	cDown := true
	monitor.SetCheckFunction(func(ctx context.Context, addr string) error {
		mu.Lock()
		defer mu.Unlock()
		if addr == "127.0.0.1:9003" && cDown {
			return errors.New("connection refused")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)

	// Wait for C to pass the 3-failure threshold while A stays online.
	require.Eventually(t, func() bool {
		return monitor.Roster().MarkedOffline("C")
	}, 2*time.Second, 10*time.Millisecond)

	roster := monitor.Roster()
	assert.False(t, roster.MarkedOffline("A"))
	assert.True(t, roster["A"])

	status := monitor.PeerStatus("C")
	require.NotNil(t, status)
	assert.Equal(t, StatusOffline, status.Status)
	assert.GreaterOrEqual(t, status.ConsecutiveFails, 3)

	// Recovery flips the peer back online on the next successful probe.
	mu.Lock()
	cDown = false
	mu.Unlock()
	require.Eventually(t, func() bool {
		return monitor.Roster()["C"]
	}, 2*time.Second, 10*time.Millisecond)
}

// TestMonitorSingleFailureStaysUnknown verifies one failed probe does not
// mark a peer offline.
func TestMonitorSingleFailureStaysUnknown(t *testing.T) {
	monitor := NewMonitor("B", testTopology(), time.Hour)
	defer monitor.Stop()

	monitor.SetCheckFunction(func(ctx context.Context, addr string) error {
		return errors.New("connection refused")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)

	// Only the initial probe pass runs with the huge interval.
	require.Eventually(t, func() bool {
		return monitor.PeerStatus("C") != nil && monitor.PeerStatus("C").ConsecutiveFails == 1
	}, 2*time.Second, 10*time.Millisecond)

	roster := monitor.Roster()
	assert.False(t, roster.MarkedOffline("C"), "one failure is below the threshold")
	_, known := roster["C"]
	assert.False(t, known, "unknown peers are omitted from the roster")
}

// TestMonitorRosterEmptyBeforeStart verifies an unstarted monitor reports
// nothing rather than guessing.
func TestMonitorRosterEmptyBeforeStart(t *testing.T) {
	monitor := NewMonitor("B", testTopology(), time.Hour)
	defer monitor.Stop()
	assert.Empty(t, monitor.Roster())
	assert.Nil(t, monitor.PeerStatus("A"))
}
