package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docpipe/docpipe/constants"
	"github.com/docpipe/docpipe/internal/common"
	"github.com/docpipe/docpipe/internal/entity"
)

// FinalizeRequest is the orchestrator's single terminal write: whichever
// stage artifacts are available, the latest queue trace, and the terminal
// status — applied atomically, and only while the job is still IN_PROGRESS.
// Nil artifact pointers leave previously written columns untouched.
type FinalizeRequest struct {
	JobID           uuid.UUID
	Status          constants.JobStatus
	StageExtraction *entity.StageArtifact
	StageSummary    *entity.StageArtifact
	QueueTrace      *entity.QueueTrace
}

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Job, error)
	// Finalize applies the terminal update. applied is false when the job was
	// already terminal (redelivery after completion); that is not an error.
	Finalize(ctx context.Context, req FinalizeRequest) (applied bool, err error)
	// FailStuck conditionally fails IN_PROGRESS jobs untouched since the
	// cutoff and returns the ids it transitioned.
	FailStuck(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type jobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{pool: pool, log: log}
}

const jobColumns = `job_id, user_id, source_bucket, source_key,
	file_name, file_format, file_size_bytes, status,
	stage_extraction, stage_summary, queue_trace, ip_address,
	created_at, updated_at`

func (r *jobRepo) Create(ctx context.Context, job *entity.Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (job_id, user_id, source_bucket, source_key,
			file_name, file_format, file_size_bytes, status, ip_address,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		job.JobID, job.UserID, job.SourceBucket, job.SourceKey,
		job.FileMetadata.Name, job.FileMetadata.Format, job.FileMetadata.SizeBytes,
		string(job.Status), job.SourceIP, job.CreatedAt,
	)
	if err != nil {
		r.log.Error("job create failed", "job_id", job.JobID, "error", err)
		return common.WrapError(err, "create job")
	}
	r.log.Info("job created", "job_id", job.JobID, "user_id", job.UserID, "file", job.FileMetadata.Name)
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
		}
		return nil, common.WrapError(err, "get job")
	}
	return job, nil
}

func (r *jobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, common.WrapError(err, "list jobs")
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, common.WrapError(err, "scan job")
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *jobRepo) Finalize(ctx context.Context, req FinalizeRequest) (bool, error) {
	if !req.Status.Terminal() {
		return false, fmt.Errorf("finalize to non-terminal status %q: %w", req.Status, common.ErrInvalidInput)
	}
	extraction, err := marshalOrNil(req.StageExtraction)
	if err != nil {
		return false, err
	}
	summary, err := marshalOrNil(req.StageSummary)
	if err != nil {
		return false, err
	}
	trace, err := marshalOrNil(req.QueueTrace)
	if err != nil {
		return false, err
	}

	// Field-scoped, additive, and conditional: COALESCE keeps any stage
	// column a previous delivery wrote, and the status predicate makes
	// redelivery of an already-terminal job a no-op.
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET
			status           = $2,
			stage_extraction = COALESCE($3, stage_extraction),
			stage_summary    = COALESCE($4, stage_summary),
			queue_trace      = COALESCE($5, queue_trace),
			updated_at       = now()
		WHERE job_id = $1
		  AND status = $6`,
		req.JobID, string(req.Status), extraction, summary, trace,
		string(constants.JobStatusInProgress),
	)
	if err != nil {
		r.log.Error("job finalize failed", "job_id", req.JobID, "status", req.Status, "error", err)
		return false, common.WrapError(err, "finalize job")
	}
	if tag.RowsAffected() == 0 {
		r.log.Warn("job finalize skipped: not in progress", "job_id", req.JobID, "status", req.Status)
		return false, nil
	}
	r.log.Info("job finalized", "job_id", req.JobID, "status", req.Status)
	return true, nil
}

func (r *jobRepo) FailStuck(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE jobs SET status = $1, updated_at = now()
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE status = $2 AND updated_at < $3
			ORDER BY updated_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id`,
		string(constants.JobStatusFailed), string(constants.JobStatusInProgress), cutoff, limit)
	if err != nil {
		return nil, common.WrapError(err, "fail stuck jobs")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalOrNil(v any) ([]byte, error) {
	switch t := v.(type) {
	case *entity.StageArtifact:
		if t == nil {
			return nil, nil
		}
	case *entity.QueueTrace:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal field: %w", err)
	}
	return b, nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job        entity.Job
		status     string
		extraction []byte
		summary    []byte
		trace      []byte
	)
	err := row.Scan(
		&job.JobID, &job.UserID, &job.SourceBucket, &job.SourceKey,
		&job.FileMetadata.Name, &job.FileMetadata.Format, &job.FileMetadata.SizeBytes,
		&status, &extraction, &summary, &trace, &job.SourceIP,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = constants.JobStatus(status)
	if len(extraction) > 0 {
		job.StageExtraction = &entity.StageArtifact{}
		if err := json.Unmarshal(extraction, job.StageExtraction); err != nil {
			return nil, fmt.Errorf("decode stage_extraction: %w", err)
		}
	}
	if len(summary) > 0 {
		job.StageSummary = &entity.StageArtifact{}
		if err := json.Unmarshal(summary, job.StageSummary); err != nil {
			return nil, fmt.Errorf("decode stage_summary: %w", err)
		}
	}
	if len(trace) > 0 {
		job.QueueTrace = &entity.QueueTrace{}
		if err := json.Unmarshal(trace, job.QueueTrace); err != nil {
			return nil, fmt.Errorf("decode queue_trace: %w", err)
		}
	}
	return &job, nil
}
