package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/docpipe/docpipe/constants"
	"github.com/docpipe/docpipe/internal/entity"
	"github.com/docpipe/docpipe/internal/ocr"
	"github.com/docpipe/docpipe/internal/poll"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/repository"
	"github.com/docpipe/docpipe/internal/storage"
	"github.com/docpipe/docpipe/internal/summarize"
)

// OCRService is the external async OCR job API the orchestrator depends on.
type OCRService interface {
	StartJob(ctx context.Context, loc storage.Location) (string, error)
	Poll(ctx context.Context, jobID string) (poll.Status, ocr.Result, error)
}

// Orchestrator advances one dequeued job through extraction, summarization
// and the terminal persistence step. It holds no state across messages; each
// invocation works on the snapshot carried in the message body.
type Orchestrator struct {
	Jobs       repository.JobRepository
	Queue      queue.Queue
	Store      storage.ObjectStore
	OCR        OCRService
	Summarizer summarize.Summarizer
	PollCfg    poll.Config
	Logger     *slog.Logger
}

func NewOrchestrator(
	jobs repository.JobRepository,
	q queue.Queue,
	store storage.ObjectStore,
	ocrSvc OCRService,
	summarizer summarize.Summarizer,
	pollCfg poll.Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Jobs:       jobs,
		Queue:      q,
		Store:      store,
		OCR:        ocrSvc,
		Summarizer: summarizer,
		PollCfg:    pollCfg,
		Logger:     logger,
	}
}

// Process drives one delivery to a terminal job status, then acknowledges the
// message. Stage errors never propagate past their step: they become error
// markers on the stage and a FAILED status in the finalize write, because
// leaving a job silently IN_PROGRESS forever is the worst outcome. Only a
// failed finalize or acknowledge returns an error (the delivery is then
// retried by redelivery).
func (o *Orchestrator) Process(ctx context.Context, msg *queue.Message) error {
	var job entity.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		// A malformed body can never succeed; drop it rather than redeliver.
		o.Logger.Error("orchestrator.bad_message", "message_id", msg.MessageID, "error", err)
		return o.Queue.Delete(ctx, msg.MessageID)
	}

	trace := &entity.QueueTrace{
		MessageID:    msg.MessageID,
		GroupID:      msg.GroupID,
		ReceiveCount: msg.ReceiveCount,
		ReceivedAt:   time.Now().UTC(),
	}
	o.Logger.Info("orchestrator.start",
		"job_id", job.JobID,
		"user_id", job.UserID,
		"receive_count", msg.ReceiveCount,
	)

	// Step 1 — extraction. Always yields an artifact: a stored-text pointer
	// or an error marker.
	extraction, rawText := o.runExtraction(ctx, &job)

	// Step 2 — summarization, only on usable extracted text.
	var summary *entity.StageArtifact
	if !extraction.Failed() {
		summary = o.runSummary(ctx, &job, rawText)
	}

	// Step 3 — finalize: one atomic conditional multi-field write.
	status := constants.JobStatusCompleted
	if extraction.Failed() || summary == nil || summary.Failed() {
		status = constants.JobStatusFailed
	}
	applied, err := o.Jobs.Finalize(ctx, repository.FinalizeRequest{
		JobID:           job.JobID,
		Status:          status,
		StageExtraction: extraction,
		StageSummary:    summary,
		QueueTrace:      trace,
	})
	if err != nil {
		return fmt.Errorf("finalize job %s: %w", job.JobID, err)
	}
	if !applied {
		// Redelivery of an already-terminal job; the re-run produced new
		// artifacts but must not regress the record.
		o.Logger.Warn("orchestrator.already_terminal", "job_id", job.JobID, "receive_count", msg.ReceiveCount)
	}

	o.Logger.Info("orchestrator.done", "job_id", job.JobID, "status", status)
	return o.Queue.Delete(ctx, msg.MessageID)
}

// runExtraction starts the OCR job, waits on it through the bounded poller,
// and stores the joined text. The returned artifact carries either the stored
// object pointer or an error marker; rawText is empty on failure.
func (o *Orchestrator) runExtraction(ctx context.Context, job *entity.Job) (*entity.StageArtifact, string) {
	fail := func(err error) (*entity.StageArtifact, string) {
		o.Logger.Error("orchestrator.extract.failed",
			"job_id", job.JobID, "stage", constants.StageExtraction, "error", err)
		at := time.Now().UTC()
		return &entity.StageArtifact{Error: err.Error(), FinishedAt: &at}, ""
	}

	loc := storage.Location{Bucket: job.SourceBucket, Key: job.SourceKey}
	ocrJobID, err := o.OCR.StartJob(ctx, loc)
	if err != nil {
		return fail(err)
	}

	result, err := poll.Wait(ctx, o.PollCfg, func(ctx context.Context) (poll.Status, ocr.Result, error) {
		return o.OCR.Poll(ctx, ocrJobID)
	})
	if err != nil {
		return fail(err)
	}

	rawText := result.Text()
	if rawText == "" {
		return fail(fmt.Errorf("ocr job %s returned no text", ocrJobID))
	}

	// Keyed by when extraction finished, not when it started.
	extractedAt := time.Now().UTC()
	key := storage.ExtractedTextKey(job.UserID, extractedAt)
	put, err := o.Store.Put(ctx, key, []byte(rawText), constants.ContentTypeText)
	if err != nil {
		return fail(fmt.Errorf("store extracted text: %w", err))
	}

	o.Logger.Info("orchestrator.extract.ok",
		"job_id", job.JobID, "key", key, "pages", result.Pages, "text_len", put.Length)
	return &entity.StageArtifact{
		ObjectKey:  put.Location.Key,
		URL:        put.URL,
		Length:     put.Length,
		FinishedAt: &extractedAt,
	}, rawText
}

// runSummary calls the summarizer and stores the structured result with its
// model/usage metadata.
func (o *Orchestrator) runSummary(ctx context.Context, job *entity.Job, rawText string) *entity.StageArtifact {
	fail := func(err error) *entity.StageArtifact {
		o.Logger.Error("orchestrator.summary.failed",
			"job_id", job.JobID, "stage", constants.StageSummary, "error", err)
		at := time.Now().UTC()
		return &entity.StageArtifact{Error: err.Error(), FinishedAt: &at}
	}

	result, err := o.Summarizer.Summarize(ctx, rawText)
	if err != nil {
		return fail(err)
	}

	artifact, err := json.Marshal(result)
	if err != nil {
		return fail(fmt.Errorf("encode summary artifact: %w", err))
	}

	key := storage.SummaryKey(job.UserID, time.Now().UTC())
	put, err := o.Store.Put(ctx, key, artifact, constants.ContentTypeJSON)
	if err != nil {
		return fail(fmt.Errorf("store summary: %w", err))
	}

	at := time.Now().UTC()
	o.Logger.Info("orchestrator.summary.ok",
		"job_id", job.JobID, "key", key, "score", result.Summary.Score, "total_tokens", result.TotalTokens)
	return &entity.StageArtifact{
		ObjectKey:  put.Location.Key,
		URL:        put.URL,
		Length:     put.Length,
		FinishedAt: &at,
	}
}
