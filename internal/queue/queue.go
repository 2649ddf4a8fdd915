// Package queue is the at-least-once work queue between intake and the
// orchestrator: FIFO within a group id, duplicate enqueues sharing a dedup id
// collapsed within a window, and a visibility timeout so an unacknowledged
// message is redelivered.
package queue

import (
	"context"
	"time"
)

// Message is one delivery. ReceiveCount and GroupID are surfaced for
// diagnostics (the job's queue_trace); Body is the full Job snapshot taken at
// enqueue time.
type Message struct {
	MessageID    string
	GroupID      string
	DedupID      string
	Body         []byte
	ReceiveCount int
	EnqueuedAt   time.Time
}

type Queue interface {
	// Enqueue adds one message. A duplicate dedup id inside the dedup window
	// collapses to the earlier enqueue and is not an error.
	Enqueue(ctx context.Context, groupID, dedupID string, body []byte) error
	// Receive returns the next deliverable message, or nil when the queue has
	// none. The message stays invisible until Delete or the visibility
	// timeout elapses.
	Receive(ctx context.Context) (*Message, error)
	// Delete acknowledges a delivered message.
	Delete(ctx context.Context, messageID string) error
}

// Stats is a point-in-time queue census.
type Stats struct {
	Ready    int64
	InFlight int64
}
