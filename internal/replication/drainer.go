package replication

import (
	"context"
	"log"
	"time"

	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
)

// DefaultMaxAttempts is how many delivery failures a record accumulates
// before the drainer abandons it.
const DefaultMaxAttempts = 10

// Drainer replays pending failure records against their intended targets.
// It runs inline during login handling and from a background ticker; both
// paths are best effort and never escalate replay failures to the caller
// that triggered them.
type Drainer struct {
	queue       *Queue
	replicator  *Replicator
	maxAttempts int
}

// NewDrainer creates a drainer over the given queue and replicator.
func NewDrainer(queue *Queue, replicator *Replicator) *Drainer {
	return &Drainer{
		queue:       queue,
		replicator:  replicator,
		maxAttempts: DefaultMaxAttempts,
	}
}

// SetMaxAttempts overrides the abandonment cap.
func (d *Drainer) SetMaxAttempts(n int) { d.maxAttempts = n }

// DrainPending scans all pending records and replays each one whose target
// is not marked offline in the roster, using the record's stored step,
// source, and target.
//
// Per record: a successful replay transitions it to completed and stamps
// the attempt time. A failed replay leaves it pending — the replicator's
// failure logging has already merged the attempt into the record — unless
// the attempt counter has reached the cap, in which case the record moves
// to the terminal abandoned status.
//
// Only a queue scan failure is returned; individual replay failures are
// logged and absorbed.
func (d *Drainer) DrainPending(ctx context.Context, roster cluster.Roster) error {
	records, err := d.queue.Pending(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if roster.MarkedOffline(rec.Target) {
			log.Printf("shard[%s] drain: skipping record %d, target %s still offline",
				rec.Source, rec.SyncID, rec.Target)
			continue
		}
		if err := d.replicator.Replicate(ctx, rec.Task, roster); err != nil {
			log.Printf("shard[%s] drain: record %d replay to %s failed (attempt %d): %v",
				rec.Source, rec.SyncID, rec.Target, rec.Attempts+1, err)
			if rec.Attempts+1 >= d.maxAttempts {
				if err := d.queue.MarkAbandoned(ctx, rec.SyncID); err != nil {
					log.Printf("shard[%s] drain: abandoning record %d failed: %v", rec.Source, rec.SyncID, err)
				} else {
					log.Printf("shard[%s] drain: record %d abandoned after %d attempts",
						rec.Source, rec.SyncID, rec.Attempts+1)
				}
			}
			continue
		}
		if err := d.queue.MarkCompleted(ctx, rec.SyncID); err != nil {
			log.Printf("shard[%s] drain: completing record %d failed: %v", rec.Source, rec.SyncID, err)
			continue
		}
		log.Printf("shard[%s] drain: record %d replayed to %s", rec.Source, rec.SyncID, rec.Target)
	}
	return nil
}

// Run drains on a fixed interval until the context is canceled, so a shard
// with no login traffic still converges. rosterFn supplies the current
// reachability view on every tick.
func (d *Drainer) Run(ctx context.Context, interval time.Duration, rosterFn func() cluster.Roster) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("background drain started with interval %v", interval)
	for {
		select {
		case <-ticker.C:
			if err := d.DrainPending(ctx, rosterFn()); err != nil {
				log.Printf("background drain: %v", err)
			}
		case <-ctx.Done():
			log.Println("background drain stopping")
			return
		}
	}
}
