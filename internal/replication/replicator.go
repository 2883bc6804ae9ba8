package replication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
)

// Progress markers tagged onto failure records, identifying the logical
// replication stage a task belongs to. Kept stable because drained records
// replay with their stored marker.
const (
	StepAddToCart      = 2
	StepCheckout       = 3
	StepRemoveFromCart = 7
)

// Replication failure classes. All of them leave a durable failure record
// and none of them overturns the committed local write.
var (
	ErrPeerOffline     = errors.New("peer marked offline")
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrPeerRejected    = errors.New("peer rejected sync")
	ErrUnknownPeer     = errors.New("peer not in topology")
)

// CallFunc performs one wire exchange with a peer. It exists as a seam so
// tests can substitute the network.
type CallFunc func(ctx context.Context, addr string, req *cluster.Request) (*cluster.Response, error)

// Replicator pushes committed local mutations to peer shards and records
// the ones that could not be acknowledged.
type Replicator struct {
	topology *cluster.Topology
	source   cluster.ShardID
	queue    *Queue
	call     CallFunc
	timeout  time.Duration
	limit    int
}

// NewReplicator creates a replicator for the given source shard.
// Peer attempts use DefaultCallTimeout and fan out at most four at a time.
func NewReplicator(source cluster.ShardID, topo *cluster.Topology, queue *Queue) *Replicator {
	return &Replicator{
		topology: topo,
		source:   source,
		queue:    queue,
		call:     cluster.Call,
		timeout:  cluster.DefaultCallTimeout,
		limit:    4,
	}
}

// SetCallFunc overrides the wire exchange, for tests.
func (r *Replicator) SetCallFunc(call CallFunc) { r.call = call }

// SetTimeout overrides the per-attempt timeout.
func (r *Replicator) SetTimeout(d time.Duration) { r.timeout = d }

// Replicate pushes one task to its target shard.
//
// Per-target state machine:
//  1. Target is the source itself: skip, terminal, no record.
//  2. Target marked offline in the roster: record the failure immediately,
//     no network attempt.
//  3. Otherwise one bounded connect-and-send of the mutation wrapped as a
//     sync request tagged with the originating shard and action.
//  4. A success response ends the task. No record is written, and any stale
//     pending record is left for the drainer: drain is the single place
//     that marks completion.
//  5. Everything else — connect failure, timeout, malformed response,
//     explicit peer error — is classified identically: durable failure
//     record carrying the task's step, error returned.
func (r *Replicator) Replicate(ctx context.Context, t Task, roster cluster.Roster) error {
	if t.Target == t.Source {
		return nil
	}
	if roster.MarkedOffline(t.Target) {
		if err := r.queue.LogFailure(ctx, t); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrPeerOffline, t.Target)
	}

	addr, ok := r.topology.Addr(t.Target)
	if !ok {
		if err := r.queue.LogFailure(ctx, t); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrUnknownPeer, t.Target)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := &cluster.Request{
		Action:      cluster.ActionSync,
		SyncAction:  t.Action,
		Data:        t.Payload,
		SourceShard: t.Source,
	}
	resp, err := r.call(callCtx, addr, req)
	if err != nil {
		if logErr := r.queue.LogFailure(ctx, t); logErr != nil {
			return logErr
		}
		return fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, t.Target, err)
	}
	if !resp.OK() {
		if logErr := r.queue.LogFailure(ctx, t); logErr != nil {
			return logErr
		}
		return fmt.Errorf("%w: %s: %s", ErrPeerRejected, t.Target, resp.Message)
	}
	return nil
}

// PeerOutcome reports one peer's replication result after a fan-out.
type PeerOutcome struct {
	Target cluster.ShardID
	Err    error
}

// FanOut pushes a committed mutation to every peer shard as bounded-
// concurrency tasks joined before returning, so handler latency does not
// grow linearly with peer count. Each attempt keeps its own timeout and
// failure classification from Replicate. Outcomes come back in sorted peer
// order regardless of completion order.
//
// FanOut never returns an error: replication failure degrades to a logged
// warning and a failure record, it does not overturn the local write.
func (r *Replicator) FanOut(ctx context.Context, t Task, roster cluster.Roster) []PeerOutcome {
	peers := r.topology.Peers(r.source)
	outcomes := make([]PeerOutcome, len(peers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			task := t
			task.Source = r.source
			task.Target = peer
			err := r.Replicate(gctx, task, roster)
			if err != nil {
				log.Printf("shard[%s] replication of %s for user %d to %s failed: %v",
					r.source, t.Action, t.UserID, peer, err)
			}
			outcomes[i] = PeerOutcome{Target: peer, Err: err}
			return nil
		})
	}
	g.Wait()
	return outcomes
}
