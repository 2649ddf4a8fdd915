package queue

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/common"
)

// newTestQueue connects to TEST_DATABASE_URL, applies the schema and starts
// from empty tables. Skipped when no test database is available.
func newTestQueue(t *testing.T, cfg common.QueueConfig) (*PGQueue, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping integration test: TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "db", "schema.sql"))
	require.NoError(t, err)
	// Simple protocol: the schema file holds multiple statements.
	_, err = pool.Exec(ctx, string(schema), pgx.QueryExecModeSimpleProtocol)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE queue_messages, queue_dedup`)
	require.NoError(t, err)

	return NewPGQueue(pool, cfg, nil), pool
}

func TestPGQueue_GroupFIFOAcrossDeliveries(t *testing.T) {
	q, _ := newTestQueue(t, common.QueueConfig{VisibilityTimeout: time.Minute})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "user-a", "a-1", []byte(`{"n":1}`)))
	require.NoError(t, q.Enqueue(ctx, "user-a", "a-2", []byte(`{"n":2}`)))
	require.NoError(t, q.Enqueue(ctx, "user-b", "b-1", []byte(`{"n":3}`)))

	first, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "user-a", first.GroupID)
	assert.Equal(t, "a-1", first.DedupID)

	// Group a's head is in flight, so its second message is blocked; group b
	// is still deliverable.
	second, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "user-b", second.GroupID)

	third, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, third)

	// Acknowledging the head releases the group in enqueue order.
	require.NoError(t, q.Delete(ctx, first.MessageID))
	next, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "a-2", next.DedupID)
}

func TestPGQueue_ConcurrentReceiversClaimOnePerGroup(t *testing.T) {
	q, _ := newTestQueue(t, common.QueueConfig{VisibilityTimeout: time.Minute})
	ctx := context.Background()

	for _, dedup := range []string{"a-1", "a-2", "a-3", "a-4", "a-5"} {
		require.NoError(t, q.Enqueue(ctx, "user-a", dedup, []byte(`{}`)))
	}

	// Many racing receivers against one group: exactly one claim must win
	// while the head is in flight, no matter how the statements interleave.
	var mu sync.Mutex
	var claimed []*Message
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				msg, err := q.Receive(ctx)
				require.NoError(t, err)
				if msg != nil {
					mu.Lock()
					claimed = append(claimed, msg)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, 1)
	assert.Equal(t, "a-1", claimed[0].DedupID)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.InFlight)
	assert.Equal(t, int64(4), stats.Ready)
}

func TestPGQueue_RedeliveryAfterVisibilityTimeout(t *testing.T) {
	q, _ := newTestQueue(t, common.QueueConfig{VisibilityTimeout: time.Second})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "user-a", "a-1", []byte(`{}`)))

	first, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.ReceiveCount)

	time.Sleep(1500 * time.Millisecond)
	again, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.MessageID, again.MessageID)
	assert.Equal(t, 2, again.ReceiveCount)
}

func TestPGQueue_DedupWindowCollapsesEnqueues(t *testing.T) {
	q, _ := newTestQueue(t, common.QueueConfig{VisibilityTimeout: time.Minute, DedupWindow: time.Minute})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "user-a", "job-1", []byte(`{}`)))
	require.NoError(t, q.Enqueue(ctx, "user-a", "job-1", []byte(`{}`)))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Ready)
}

func TestPGQueue_EnqueuePrunesExpiredDedupClaims(t *testing.T) {
	q, pool := newTestQueue(t, common.QueueConfig{VisibilityTimeout: time.Minute, DedupWindow: time.Minute})
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO queue_dedup (dedup_id, claimed_at)
		VALUES ('stale-1', now() - interval '1 hour'),
		       ('stale-2', now() - interval '2 hours')`)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, "user-a", "fresh-1", []byte(`{}`)))

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM queue_dedup`).Scan(&n))
	assert.Equal(t, 1, n)

	var remaining string
	require.NoError(t, pool.QueryRow(ctx, `SELECT dedup_id FROM queue_dedup`).Scan(&remaining))
	assert.Equal(t, "fresh-1", remaining)
}
