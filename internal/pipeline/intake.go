package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/docpipe/docpipe/constants"
	"github.com/docpipe/docpipe/internal/entity"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/repository"
	"github.com/docpipe/docpipe/internal/storage"
)

// IntakeGate validates upload notifications and creates jobs. Non-document
// events from the same storage trigger (directory markers, unsupported
// extensions, keys outside a user folder) are silently ignored; they are
// expected traffic, not errors.
type IntakeGate struct {
	Jobs   repository.JobRepository
	Queue  queue.Queue
	Store  storage.ObjectStore
	Bucket string
	Logger *slog.Logger
}

func NewIntakeGate(jobs repository.JobRepository, q queue.Queue, store storage.ObjectStore, bucket string, logger *slog.Logger) *IntakeGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeGate{Jobs: jobs, Queue: q, Store: store, Bucket: bucket, Logger: logger}
}

// Handle processes one notification. The trigger does not redeliver on a
// non-error return, so persistence errors here are logged with the bucket and
// key for operator diagnosis and the notification is dropped; the stuck-job
// sweeper is the backstop for the partial case (job created, enqueue lost).
func (g *IntakeGate) Handle(ctx context.Context, n entity.UploadNotification) error {
	userID, fileName, ok := storage.ParseUploadKey(n.Key)
	if !ok {
		g.Logger.Info("intake.ignored", "key", n.Key, "reason", "not a user document key")
		return nil
	}

	ext := constants.NormalizeExt(filepath.Ext(fileName))
	if !constants.ExtAllowed(ext) {
		g.Logger.Info("intake.ignored", "key", n.Key, "reason", "unsupported extension", "ext", ext)
		return nil
	}

	// Truncated or aborted uploads must not become stuck jobs: remove the
	// object and stop.
	if n.Size == 0 {
		g.Logger.Warn("intake.empty_upload", "bucket", n.Bucket, "key", n.Key)
		if err := g.Store.Delete(ctx, n.Key); err != nil {
			g.Logger.Error("intake.empty_upload.delete_failed", "bucket", n.Bucket, "key", n.Key, "error", err)
			return fmt.Errorf("delete empty upload: %w", err)
		}
		return nil
	}

	now := time.Now().UTC()
	job := &entity.Job{
		JobID:        uuid.New(),
		UserID:       userID,
		SourceBucket: n.Bucket,
		SourceKey:    n.Key,
		FileMetadata: entity.FileMetadata{
			Name:      fileName,
			Format:    ext,
			SizeBytes: n.Size,
		},
		Status:    constants.JobStatusInProgress,
		SourceIP:  n.SourceIP,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The job record exists before any queue message referencing it.
	if err := g.Jobs.Create(ctx, job); err != nil {
		g.Logger.Error("intake.create_failed", "bucket", n.Bucket, "key", n.Key, "error", err)
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		g.Logger.Error("intake.encode_failed", "job_id", job.JobID, "error", err)
		return err
	}

	// User-scoped group keeps one user's documents ordered; dedup id = job_id
	// collapses trigger replays to a single enqueue.
	if err := g.Queue.Enqueue(ctx, GroupID(userID), job.JobID.String(), body); err != nil {
		g.Logger.Error("intake.enqueue_failed", "bucket", n.Bucket, "key", n.Key, "job_id", job.JobID, "error", err)
		return err
	}

	g.Logger.Info("intake.accepted",
		"job_id", job.JobID,
		"user_id", userID,
		"file", fileName,
		"size_bytes", n.Size,
	)
	return nil
}

// GroupID is the queue group for one user's uploads.
func GroupID(userID string) string {
	return "user-" + userID
}
