package replication

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AranBhambra/E-Commerce-DS/internal/store"
)

func newTestQueue(t *testing.T) (*Queue, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewQueue(s), s
}

func testTask(step int) Task {
	return Task{
		UserID:  7,
		Action:  "add_to_cart",
		Payload: json.RawMessage(`{"user_id":7,"product_id":42,"quantity":2}`),
		Source:  "B",
		Target:  "C",
		Step:    step,
	}
}

func rowCount(t *testing.T, s *store.Store, where string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM sync_failures `+where).Scan(&n))
	return n
}

func TestLogFailureInsertsPending(t *testing.T) {
	ctx := context.Background()
	q, s := newTestQueue(t)

	require.NoError(t, q.LogFailure(ctx, testTask(2)))

	records, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, int64(7), rec.UserID)
	assert.Equal(t, "add_to_cart", rec.Action)
	assert.Equal(t, "B", string(rec.Source))
	assert.Equal(t, "C", string(rec.Target))
	assert.Equal(t, 2, rec.Step)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, StatusPending, rec.Status)
	assert.JSONEq(t, `{"user_id":7,"product_id":42,"quantity":2}`, string(rec.Payload))
	assert.Equal(t, 1, rowCount(t, s, ""))
}

func TestLogFailureMergesRepeat(t *testing.T) {
	ctx := context.Background()
	q, s := newTestQueue(t)

	require.NoError(t, q.LogFailure(ctx, testTask(5)))
	require.NoError(t, q.LogFailure(ctx, testTask(2)))

	assert.Equal(t, 1, rowCount(t, s, ""), "repeat failure must update, not insert")

	records, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 5, records[0].Step, "progress is the max of both attempts")
	assert.Equal(t, 2, records[0].Attempts)
}

func TestLogFailureDistinctKeys(t *testing.T) {
	ctx := context.Background()
	q, s := newTestQueue(t)

	require.NoError(t, q.LogFailure(ctx, testTask(2)))

	other := testTask(2)
	other.Target = "A"
	require.NoError(t, q.LogFailure(ctx, other))

	otherAction := testTask(3)
	otherAction.Action = "checkout"
	require.NoError(t, q.LogFailure(ctx, otherAction))

	assert.Equal(t, 3, rowCount(t, s, ""), "distinct (user, action, target) tuples get their own rows")
}

func TestMarkCompleted(t *testing.T) {
	ctx := context.Background()
	q, s := newTestQueue(t)

	require.NoError(t, q.LogFailure(ctx, testTask(2)))
	records, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, q.MarkCompleted(ctx, records[0].SyncID))

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, rowCount(t, s, `WHERE status = 'completed'`), "completed rows are retained")

	// A fresh failure for the same task opens a new pending record instead
	// of flipping the completed one back.
	require.NoError(t, q.LogFailure(ctx, testTask(2)))
	assert.Equal(t, 2, rowCount(t, s, ""))
	assert.Equal(t, 1, rowCount(t, s, `WHERE status = 'completed'`))
	assert.Equal(t, 1, rowCount(t, s, `WHERE status = 'pending'`))
}

func TestMarkAbandoned(t *testing.T) {
	ctx := context.Background()
	q, s := newTestQueue(t)

	require.NoError(t, q.LogFailure(ctx, testTask(2)))
	records, err := q.Pending(ctx)
	require.NoError(t, err)
	require.NoError(t, q.MarkAbandoned(ctx, records[0].SyncID))

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, rowCount(t, s, `WHERE status = 'abandoned'`))

	// Terminal statuses never regress.
	require.NoError(t, q.MarkCompleted(ctx, records[0].SyncID))
	assert.Equal(t, 1, rowCount(t, s, `WHERE status = 'abandoned'`))
}
