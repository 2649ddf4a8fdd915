package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docpipe/docpipe/constants"
	"github.com/docpipe/docpipe/internal/entity"
	"github.com/docpipe/docpipe/internal/ocr"
	"github.com/docpipe/docpipe/internal/poll"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/repository"
	"github.com/docpipe/docpipe/internal/storage"
)

// fakeJobs is an in-memory JobRepository with the same conditional-update
// semantics as the real one.
type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*entity.Job
	createErr error
	finalErr  error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[uuid.UUID]*entity.Job{}}
}

func (f *fakeJobs) Create(ctx context.Context, job *entity.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *job
	f.jobs[job.JobID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Job
	for _, j := range f.jobs {
		if j.UserID == userID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeJobs) Finalize(ctx context.Context, req repository.FinalizeRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalErr != nil {
		return false, f.finalErr
	}
	j, ok := f.jobs[req.JobID]
	if !ok || j.Status != constants.JobStatusInProgress {
		return false, nil
	}
	j.Status = req.Status
	if req.StageExtraction != nil {
		j.StageExtraction = req.StageExtraction
	}
	if req.StageSummary != nil {
		j.StageSummary = req.StageSummary
	}
	if req.QueueTrace != nil {
		j.QueueTrace = req.QueueTrace
	}
	j.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeJobs) FailStuck(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, j := range f.jobs {
		if j.Status == constants.JobStatusInProgress && j.UpdatedAt.Before(cutoff) {
			j.Status = constants.JobStatusFailed
			ids = append(ids, j.JobID)
		}
	}
	return ids, nil
}

// fakeQueue records enqueues and acknowledgements; dedup ids collapse
// unconditionally, mimicking replays inside the window.
type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []queue.Message
	dedupSeen  map[string]struct{}
	deleted    []string
	enqueueErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{dedupSeen: map[string]struct{}{}}
}

func (q *fakeQueue) Enqueue(ctx context.Context, groupID, dedupID string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	if _, dup := q.dedupSeen[dedupID]; dup {
		return nil
	}
	q.dedupSeen[dedupID] = struct{}{}
	q.enqueued = append(q.enqueued, queue.Message{
		MessageID:  uuid.New().String(),
		GroupID:    groupID,
		DedupID:    dedupID,
		Body:       body,
		EnqueuedAt: time.Now().UTC(),
	})
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context) (*queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.enqueued) == 0 {
		return nil, nil
	}
	msg := q.enqueued[0]
	q.enqueued = q.enqueued[1:]
	msg.ReceiveCount++
	return &msg, nil
}

func (q *fakeQueue) Delete(ctx context.Context, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, messageID)
	return nil
}

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) (storage.PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return storage.PutResult{}, s.putErr
	}
	s.objects[key] = data
	return storage.PutResult{
		Location: storage.Location{Bucket: "documents", Key: key},
		URL:      "file:///tmp/" + key,
		Length:   len(data),
	}, nil
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %q", key)
	}
	return data, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

// fakeOCR plays back a scripted status sequence.
type fakeOCR struct {
	mu       sync.Mutex
	startErr error
	statuses []poll.Status
	result   ocr.Result
	polls    int
}

func (f *fakeOCR) StartJob(ctx context.Context, loc storage.Location) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "ocr-job-1", nil
}

func (f *fakeOCR) Poll(ctx context.Context, jobID string) (poll.Status, ocr.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.polls >= len(f.statuses) {
		return poll.StatusPending, ocr.Result{}, nil
	}
	status := f.statuses[f.polls]
	f.polls++
	if status == poll.StatusSucceeded {
		return status, f.result, nil
	}
	return status, ocr.Result{}, nil
}
