package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docpipe/docpipe/internal/common"
)

// PGQueue implements Queue on Postgres. Group FIFO is enforced at receive
// time: a group with an in-flight message yields nothing until that message
// is acknowledged or its visibility expires.
type PGQueue struct {
	pool       *pgxpool.Pool
	visibility time.Duration
	dedup      time.Duration
	log        *slog.Logger
}

func NewPGQueue(pool *pgxpool.Pool, cfg common.QueueConfig, log *slog.Logger) *PGQueue {
	if log == nil {
		log = slog.Default()
	}
	visibility := cfg.VisibilityTimeout
	if visibility <= 0 {
		visibility = 10 * time.Minute
	}
	dedup := cfg.DedupWindow
	if dedup <= 0 {
		dedup = 5 * time.Minute
	}
	return &PGQueue{pool: pool, visibility: visibility, dedup: dedup, log: log}
}

func (q *PGQueue) Enqueue(ctx context.Context, groupID, dedupID string, body []byte) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin enqueue")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Claim the dedup id. An existing claim younger than the window collapses
	// this enqueue; an expired claim is taken over.
	tag, err := tx.Exec(ctx, `
		INSERT INTO queue_dedup (dedup_id, claimed_at)
		VALUES ($1, now())
		ON CONFLICT (dedup_id) DO UPDATE SET claimed_at = now()
		WHERE queue_dedup.claimed_at < now() - make_interval(secs => $2)`,
		dedupID, q.dedup.Seconds())
	if err != nil {
		return common.WrapError(err, "claim dedup id")
	}
	if tag.RowsAffected() == 0 {
		q.log.Info("queue.enqueue.deduplicated", "group_id", groupID, "dedup_id", dedupID)
		return nil
	}

	// Expired claims no longer collapse anything; prune them while we are
	// here so the ledger stays bounded by the dedup window.
	if _, err := tx.Exec(ctx, `
		DELETE FROM queue_dedup
		WHERE dedup_id <> $1
		  AND claimed_at < now() - make_interval(secs => $2)`,
		dedupID, q.dedup.Seconds()); err != nil {
		return common.WrapError(err, "prune dedup ledger")
	}

	messageID := uuid.New().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO queue_messages (message_id, group_id, dedup_id, body)
		VALUES ($1, $2, $3, $4)`,
		messageID, groupID, dedupID, body)
	if err != nil {
		return common.WrapError(err, "insert message")
	}
	if err := tx.Commit(ctx); err != nil {
		return common.WrapError(err, "commit enqueue")
	}
	q.log.Info("queue.enqueue.ok", "message_id", messageID, "group_id", groupID, "dedup_id", dedupID)
	return nil
}

func (q *PGQueue) Receive(ctx context.Context) (*Message, error) {
	// Only the head of each group (oldest by enqueue order) is ever a
	// candidate. A head that is in flight fails the visibility check, and a
	// head locked by a concurrent claim is skipped, not bypassed; either way
	// the rest of its group stays blocked, even while the competing claim's
	// visible_at bump is uncommitted.
	row := q.pool.QueryRow(ctx, `
		WITH candidate AS (
			SELECT id
			FROM queue_messages m
			WHERE m.visible_at <= now()
			  AND NOT EXISTS (
				SELECT 1 FROM queue_messages f
				WHERE f.group_id = m.group_id
				  AND (f.enqueued_at, f.id) < (m.enqueued_at, m.id)
			  )
			ORDER BY m.enqueued_at ASC, m.id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_messages q
		SET visible_at = now() + make_interval(secs => $1),
			receive_count = receive_count + 1
		FROM candidate
		WHERE q.id = candidate.id
		RETURNING q.message_id, q.group_id, q.dedup_id, q.body, q.receive_count, q.enqueued_at`,
		q.visibility.Seconds())

	var msg Message
	err := row.Scan(&msg.MessageID, &msg.GroupID, &msg.DedupID, &msg.Body, &msg.ReceiveCount, &msg.EnqueuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(err, "receive message")
	}
	q.log.Debug("queue.receive.ok",
		"message_id", msg.MessageID, "group_id", msg.GroupID, "receive_count", msg.ReceiveCount)
	return &msg, nil
}

func (q *PGQueue) Delete(ctx context.Context, messageID string) error {
	tag, err := q.pool.Exec(ctx, `DELETE FROM queue_messages WHERE message_id = $1`, messageID)
	if err != nil {
		return common.WrapError(err, "delete message")
	}
	if tag.RowsAffected() == 0 {
		q.log.Warn("queue.delete.missing", "message_id", messageID)
	}
	return nil
}

// Stats counts ready and in-flight messages.
func (q *PGQueue) Stats(ctx context.Context) (Stats, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE visible_at <= now()),
			count(*) FILTER (WHERE visible_at > now())
		FROM queue_messages`)
	var s Stats
	if err := row.Scan(&s.Ready, &s.InFlight); err != nil {
		return Stats{}, common.WrapError(err, "queue stats")
	}
	return s, nil
}
