package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/docpipe/docpipe/internal/entity"
	"github.com/docpipe/docpipe/internal/repository"
)

// Service produces XLSX bytes for operator job reports.
type Service struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

func NewService(jobs repository.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ExportJobsXLSX returns an XLSX workbook (as bytes) listing a user's jobs,
// newest first.
func (s *Service) ExportJobsXLSX(ctx context.Context, userID string, limit int) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Jobs"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Job ID",
		"File",
		"Size (bytes)",
		"Status",
		"Extraction",
		"Summary",
		"Created",
		"Updated",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, j := range jobs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, j.JobID.String())
		write(2, j.FileMetadata.Name)
		write(3, j.FileMetadata.SizeBytes)
		write(4, string(j.Status))
		write(5, stageCell(j.StageExtraction))
		write(6, stageCell(j.StageSummary))
		write(7, j.CreatedAt.UTC().Format(time.RFC3339))
		write(8, j.UpdatedAt.UTC().Format(time.RFC3339))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "D", 14)
	_ = f.SetColWidth(sheet, "E", "F", 48)
	_ = f.SetColWidth(sheet, "G", "H", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID,
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func stageCell(a *entity.StageArtifact) string {
	switch {
	case a == nil:
		return ""
	case a.Failed():
		return "FAILED: " + a.Error
	default:
		return a.ObjectKey
	}
}
