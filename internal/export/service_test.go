package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/docpipe/docpipe/constants"
	"github.com/docpipe/docpipe/internal/entity"
	"github.com/docpipe/docpipe/internal/repository"
)

type stubJobs struct {
	jobs []*entity.Job
	err  error
}

func (s *stubJobs) Create(ctx context.Context, job *entity.Job) error { return nil }
func (s *stubJobs) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return nil, errors.New("not implemented")
}
func (s *stubJobs) ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Job, error) {
	return s.jobs, s.err
}
func (s *stubJobs) Finalize(ctx context.Context, req repository.FinalizeRequest) (bool, error) {
	return false, nil
}
func (s *stubJobs) FailStuck(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

func TestExportJobsXLSX(t *testing.T) {
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	okJob := &entity.Job{
		JobID:        uuid.New(),
		UserID:       "u-1",
		FileMetadata: entity.FileMetadata{Name: "resume.pdf", SizeBytes: 2048},
		Status:       constants.JobStatusCompleted,
		StageExtraction: &entity.StageArtifact{
			ObjectKey: "uploads/u-1/x_extracted-text.txt",
		},
		StageSummary: &entity.StageArtifact{
			ObjectKey: "uploads/u-1/x_ai_summary.json",
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
	failedJob := &entity.Job{
		JobID:           uuid.New(),
		UserID:          "u-1",
		FileMetadata:    entity.FileMetadata{Name: "scan.png", SizeBytes: 100},
		Status:          constants.JobStatusFailed,
		StageExtraction: &entity.StageArtifact{Error: "external job timed out"},
		CreatedAt:       at,
		UpdatedAt:       at,
	}

	svc := NewService(&stubJobs{jobs: []*entity.Job{okJob, failedJob}}, nil)
	data, err := svc.ExportJobsXLSX(context.Background(), "u-1", 100)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Job ID", rows[0][0])
	assert.Equal(t, okJob.JobID.String(), rows[1][0])
	assert.Equal(t, "resume.pdf", rows[1][1])
	assert.Equal(t, "COMPLETED", rows[1][3])
	assert.Equal(t, "uploads/u-1/x_extracted-text.txt", rows[1][4])

	assert.Equal(t, "FAILED", rows[2][3])
	assert.Equal(t, "FAILED: external job timed out", rows[2][4])
}

func TestExportJobsXLSX_RepositoryError(t *testing.T) {
	svc := NewService(&stubJobs{err: errors.New("db down")}, nil)
	_, err := svc.ExportJobsXLSX(context.Background(), "u-1", 100)
	require.Error(t, err)
}

func TestExportJobsXLSX_EmptyList(t *testing.T) {
	svc := NewService(&stubJobs{}, nil)
	data, err := svc.ExportJobsXLSX(context.Background(), "u-1", 100)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
