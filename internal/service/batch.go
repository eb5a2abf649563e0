package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/domain"
)

const (
	defaultBatchConcurrency = 5
	defaultBatchRetention   = time.Hour
)

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
)

// RecordProcessor handles one upload.
type RecordProcessor interface {
	ProcessRecord(ctx context.Context, userID string, pdf []byte) (*UploadResult, error)
}

// BatchFile is one file of a batch upload.
type BatchFile struct {
	UserID   string
	Filename string
	Data     []byte
}

// BatchFileError reports one failed file.
type BatchFileError struct {
	Filename string `json:"filename"`
	UserID   string `json:"user_id"`
	Reason   string `json:"reason"`
}

// BatchJob is a snapshot of a batch upload's progress.
type BatchJob struct {
	ID          string           `json:"batch_id"`
	Status      string           `json:"status"`
	Total       int              `json:"total_files"`
	Processed   int              `json:"processed"`
	Succeeded   int              `json:"successful"`
	Failed      int              `json:"failed"`
	Matches     int              `json:"matches"`
	Errors      []BatchFileError `json:"errors"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// BatchRunner processes batch uploads in the background with bounded concurrency and keeps
// job progress in memory. Completed jobs are dropped once they are older than the retention.
type BatchRunner struct {
	logger      *logrus.Logger
	processor   RecordProcessor
	concurrency int
	maxFiles    int
	retention   time.Duration
	now         func() time.Time

	mu   sync.Mutex
	jobs map[string]*BatchJob
	wg   sync.WaitGroup
}

func NewBatchRunner(logger *logrus.Logger, processor RecordProcessor, cfg domain.IntakeConfig) *BatchRunner {
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	retention := cfg.BatchRetention
	if retention <= 0 {
		retention = defaultBatchRetention
	}
	return &BatchRunner{
		logger:      logger,
		processor:   processor,
		concurrency: concurrency,
		maxFiles:    cfg.MaxBatchFiles,
		retention:   retention,
		now:         func() time.Time { return time.Now().UTC() },
		jobs:        make(map[string]*BatchJob),
	}
}

// Submit validates the batch and starts it. The returned snapshot is in the processing state.
// Work continues after ctx is cancelled; only its values are kept.
func (b *BatchRunner) Submit(ctx context.Context, files []BatchFile) (*BatchJob, error) {
	if len(files) == 0 {
		return nil, domain.NewValidationError("files", "at least one file is required", 0)
	}
	if b.maxFiles > 0 && len(files) > b.maxFiles {
		return nil, domain.NewValidationError("files", fmt.Sprintf("at most %d files per batch", b.maxFiles), len(files))
	}

	job := &BatchJob{
		ID:        shortID("BATCH_"),
		Status:    BatchProcessing,
		Total:     len(files),
		Errors:    []BatchFileError{},
		CreatedAt: b.now(),
	}

	b.mu.Lock()
	b.pruneLocked()
	b.jobs[job.ID] = job
	snapshot := job.clone()
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"batch_id": job.ID,
		"files":    len(files),
	}).Info("Batch upload started")

	b.wg.Add(1)
	go b.run(context.WithoutCancel(ctx), job.ID, files)
	return snapshot, nil
}

// Get returns a snapshot of a job or domain.ErrNotFound.
func (b *BatchRunner) Get(id string) (*BatchJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	job, ok := b.jobs[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	return job.clone(), nil
}

// Wait blocks until every submitted batch has finished.
func (b *BatchRunner) Wait() {
	b.wg.Wait()
}

func (b *BatchRunner) run(ctx context.Context, id string, files []BatchFile) {
	defer b.wg.Done()

	semaphore := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup
	for _, f := range files {
		wg.Add(1)
		go func(f BatchFile) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result, err := b.processor.ProcessRecord(ctx, f.UserID, f.Data)
			b.record(id, f, result, err)
		}(f)
	}
	wg.Wait()

	b.mu.Lock()
	job := b.jobs[id]
	now := b.now()
	job.Status = BatchCompleted
	job.CompletedAt = &now
	fields := logrus.Fields{
		"batch_id":   id,
		"successful": job.Succeeded,
		"failed":     job.Failed,
	}
	b.mu.Unlock()

	b.logger.WithFields(fields).Info("Batch upload completed")
}

// pruneLocked drops completed jobs past the retention. Callers hold b.mu.
func (b *BatchRunner) pruneLocked() {
	cutoff := b.now().Add(-b.retention)
	for id, job := range b.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(b.jobs, id)
		}
	}
}

func (b *BatchRunner) record(id string, f BatchFile, result *UploadResult, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job := b.jobs[id]
	job.Processed++
	if err != nil {
		job.Failed++
		job.Errors = append(job.Errors, BatchFileError{Filename: f.Filename, UserID: f.UserID, Reason: err.Error()})
		return
	}
	job.Succeeded++
	job.Matches += len(result.Matches)
}

func (j *BatchJob) clone() *BatchJob {
	c := *j
	c.Errors = append([]BatchFileError{}, j.Errors...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
