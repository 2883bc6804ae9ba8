// Package health maintains a shard's own view of peer reachability, so the
// replicator and drainer act on probed liveness instead of trusting only
// the roster a client chose to send.
package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
)

// PeerHealth tracks the probe state of a single peer shard.
// Protected by the Monitor's mutex when accessed.
type PeerHealth struct {
	LastCheck        time.Time       // Timestamp of the last probe attempt
	LastHealthy      time.Time       // Timestamp of the last successful probe
	Peer             cluster.ShardID // Which peer this record describes
	Status           string          // "online", "offline", "unknown"
	ConsecutiveFails int             // Probes failed in a row
}

// Probe statuses. A peer starts unknown, goes online on any successful
// probe, and goes offline after maxFailures consecutive failed probes.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusUnknown = "unknown"
)

// CheckFunc probes one peer address, returning nil when it is reachable.
type CheckFunc func(ctx context.Context, addr string) error

// Monitor periodically probes every peer shard over the wire protocol's
// ping action and keeps a per-peer status. All methods are safe for
// concurrent use.
type Monitor struct {
	peers       map[cluster.ShardID]*PeerHealth
	topology    *cluster.Topology
	self        cluster.ShardID
	checkFunc   CheckFunc
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewMonitor creates a monitor probing every shard in the topology except
// self. Peers are marked offline after 3 consecutive failed probes.
func NewMonitor(self cluster.ShardID, topo *cluster.Topology, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Monitor{
		peers:       make(map[cluster.ShardID]*PeerHealth),
		topology:    topo,
		self:        self,
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		ctx:         ctx,
		cancel:      cancel,
	}
	m.checkFunc = m.pingPeer
	return m
}

// SetCheckFunction overrides the probe, for tests.
func (m *Monitor) SetCheckFunction(check CheckFunc) { m.checkFunc = check }

// Start runs the probe loop in the current goroutine until the context or
// the monitor itself is canceled. An initial probe pass runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	if ctx == nil {
		ctx = m.ctx
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Printf("shard[%s] health monitor started with interval %v", m.self, m.interval)

	m.checkAllPeers(ctx)
	for {
		select {
		case <-ticker.C:
			m.checkAllPeers(ctx)
		case <-ctx.Done():
			log.Printf("shard[%s] health monitor stopping", m.self)
			return
		case <-m.ctx.Done():
			log.Printf("shard[%s] health monitor stopping", m.self)
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) checkAllPeers(ctx context.Context) {
	for _, peer := range m.topology.Peers(m.self) {
		m.checkPeer(ctx, peer)
	}
}

func (m *Monitor) checkPeer(ctx context.Context, peer cluster.ShardID) {
	m.mu.Lock()
	health, exists := m.peers[peer]
	if !exists {
		health = &PeerHealth{
			Peer:        peer,
			Status:      StatusUnknown,
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		m.peers[peer] = health
	}
	m.mu.Unlock()

	addr, ok := m.topology.Addr(peer)
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.checkFunc(probeCtx, addr)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	health.LastCheck = time.Now()
	if err != nil {
		health.ConsecutiveFails++
		if health.ConsecutiveFails >= m.maxFailures && health.Status != StatusOffline {
			health.Status = StatusOffline
			log.Printf("shard[%s] peer %s marked offline after %d failed probes",
				m.self, peer, health.ConsecutiveFails)
		}
		return
	}
	if health.Status == StatusOffline {
		log.Printf("shard[%s] peer %s recovered", m.self, peer)
	}
	health.Status = StatusOnline
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

// pingPeer performs one wire-protocol ping exchange with a peer.
func (m *Monitor) pingPeer(ctx context.Context, addr string) error {
	resp, err := cluster.Call(ctx, addr, &cluster.Request{Action: cluster.ActionPing})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("ping returned status %q", resp.Status)
	}
	return nil
}

// Roster snapshots the current probed view: online peers map to true,
// offline peers to false, and unknown peers are omitted so the replicator
// attempts them and lets the connection outcome decide.
func (m *Monitor) Roster() cluster.Roster {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roster := make(cluster.Roster, len(m.peers))
	for peer, health := range m.peers {
		switch health.Status {
		case StatusOnline:
			roster[peer] = true
		case StatusOffline:
			roster[peer] = false
		}
	}
	return roster
}

// PeerStatus returns a copy of one peer's probe record, or nil when the
// peer has never been probed.
func (m *Monitor) PeerStatus(peer cluster.ShardID) *PeerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health, exists := m.peers[peer]
	if !exists {
		return nil
	}
	copied := *health
	return &copied
}
