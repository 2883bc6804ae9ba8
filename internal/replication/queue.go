package replication

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
	"github.com/AranBhambra/E-Commerce-DS/internal/store"
)

// Failure record lifecycle. Status only ever moves forward:
// pending -> completed on a successful replay, or pending -> abandoned once
// the attempt cap is reached. Nothing moves a record back to pending; a new
// failure for the same task after completion opens a fresh record.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// Task is one replication unit: a serialized mutation bound for one target
// shard. Step is the progress marker identifying which logical replication
// stage the task belongs to; drained records replay with their stored step.
type Task struct {
	UserID  int64
	Action  string
	Payload json.RawMessage
	Source  cluster.ShardID
	Target  cluster.ShardID
	Step    int
	Extra   string
}

// Record is a Task as persisted in the failure queue.
type Record struct {
	Task
	SyncID      int64
	Attempts    int
	LastAttempt string
	Status      string
}

// Queue is the durable failure log backed by the shard's store. Its upsert
// is the only concurrency-safety mechanism in the system: two handlers
// racing on the same failed task merge into one pending row instead of
// duplicating it.
type Queue struct {
	store *store.Store
}

// NewQueue creates a failure queue backed by the given store.
func NewQueue(s *store.Store) *Queue {
	return &Queue{store: s}
}

// LogFailure records that a task could not be delivered. Keyed by
// (user, action, target) over pending rows: a first failure inserts a new
// pending record; a repeat failure merges into it, raising progress to the
// maximum of the two attempts, refreshing the timestamp, replacing the extra
// context, and bumping the attempt counter.
func (q *Queue) LogFailure(ctx context.Context, t Task) error {
	_, err := q.store.DB().ExecContext(ctx, `
		INSERT INTO sync_failures
			(user_id, action, data, source_server, target_server, progress, additional_data, status)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), 'pending')
		ON CONFLICT (user_id, action, target_server) WHERE status = 'pending'
		DO UPDATE SET
			progress        = MAX(progress, excluded.progress),
			additional_data = excluded.additional_data,
			attempts        = attempts + 1,
			last_attempt    = CURRENT_TIMESTAMP`,
		t.UserID, t.Action, string(t.Payload), string(t.Source), string(t.Target), t.Step, t.Extra)
	if err != nil {
		return fmt.Errorf("log sync failure: %w", err)
	}
	return nil
}

// Pending returns every pending record, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]Record, error) {
	rows, err := q.store.DB().QueryContext(ctx, `
		SELECT sync_id, user_id, action, data, source_server, target_server,
		       progress, additional_data, attempts, last_attempt, status
		FROM sync_failures
		WHERE status = 'pending'
		ORDER BY sync_id`)
	if err != nil {
		return nil, fmt.Errorf("scan pending failures: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			payload string
			source  string
			target  string
			extra   sql.NullString
		)
		if err := rows.Scan(&rec.SyncID, &rec.UserID, &rec.Action, &payload, &source, &target,
			&rec.Step, &extra, &rec.Attempts, &rec.LastAttempt, &rec.Status); err != nil {
			return nil, fmt.Errorf("scan failure record: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		rec.Source = cluster.ShardID(source)
		rec.Target = cluster.ShardID(target)
		rec.Extra = extra.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan pending failures: %w", err)
	}
	return records, nil
}

// MarkCompleted transitions a pending record to completed and stamps the
// attempt time. A record in any other status is left untouched.
func (q *Queue) MarkCompleted(ctx context.Context, syncID int64) error {
	return q.markTerminal(ctx, syncID, StatusCompleted)
}

// MarkAbandoned transitions a pending record to the terminal abandoned
// status once its attempt cap is reached, so a permanently unreachable
// target stops being retried on every drain.
func (q *Queue) MarkAbandoned(ctx context.Context, syncID int64) error {
	return q.markTerminal(ctx, syncID, StatusAbandoned)
}

func (q *Queue) markTerminal(ctx context.Context, syncID int64, status string) error {
	_, err := q.store.DB().ExecContext(ctx, `
		UPDATE sync_failures
		SET status = ?, last_attempt = CURRENT_TIMESTAMP
		WHERE sync_id = ? AND status = 'pending'`,
		status, syncID)
	if err != nil {
		return fmt.Errorf("mark failure %s: %w", status, err)
	}
	return nil
}

// PendingCount reports how many records await replay, for logging and tests.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_failures WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending failures: %w", err)
	}
	return n, nil
}
