package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cinemind/internal/logger"
	"cinemind/internal/queue"
	"cinemind/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

var (
	ErrInvalidTarget = errors.New("invalid ingest target")
	ErrJobFinished   = errors.New("ingest job already finished")
)

// IngestRunner runs the pipelines for a target.
type IngestRunner interface {
	Run(ctx context.Context, target models.IngestTarget, limit int) []models.StageReport
}

// JobDispatcher hands a stored job to whatever executes it.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job models.IngestJob) error
	Cancel(ctx context.Context, jobID string) error
	Name() string
}

// IngestExecutor moves a job through running to a terminal status.
type IngestExecutor struct {
	store  JobStore
	runner IngestRunner
	now    func() time.Time
	log    *slog.Logger
}

var _ queue.JobExecutor = (*IngestExecutor)(nil)

func NewIngestExecutor(store JobStore, runner IngestRunner) *IngestExecutor {
	return &IngestExecutor{store: store, runner: runner, now: time.Now, log: logger.With("component", "ingest_executor")}
}

// Execute runs the job stored under jobID. A job that is already terminal,
// for example cancelled while queued, is skipped. Unknown ids are logged and
// dropped.
func (e *IngestExecutor) Execute(ctx context.Context, jobID string) error {
	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			e.log.Warn("ingest job vanished", "job_id", jobID)
			return nil
		}
		return err
	}
	if job.Status.Terminal() {
		e.log.Info("skipping finished job", "job_id", jobID, "status", string(job.Status))
		return nil
	}

	started := e.now().UTC()
	job.Status = models.JobRunning
	job.StartedAt = &started
	job.UpdatedAt = started
	if err := e.store.Update(ctx, job); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	log := e.log.With("job_id", jobID, "target", string(job.Target))
	log.Info("ingest job started")

	reports := e.runner.Run(ctx, job.Target, job.Limit)

	// the final write must land even when ctx was cancelled
	writeCtx := context.WithoutCancel(ctx)
	latest, err := e.store.Get(writeCtx, jobID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}
	finished := e.now().UTC()
	latest.Stages = reports
	latest.UpdatedAt = finished
	latest.FinishedAt = &finished
	switch {
	case latest.Status == models.JobCancelled || ctx.Err() != nil:
		latest.Status = models.JobCancelled
		latest.Error = "cancelled"
	default:
		latest.Status = models.DeriveStatus(reports)
		latest.Error = stageErrors(reports)
	}
	if err := e.store.Update(writeCtx, latest); err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}
	log.Info("ingest job finished", "status", string(latest.Status), "stages", len(reports))
	return nil
}

func stageErrors(reports []models.StageReport) string {
	msg := ""
	for _, r := range reports {
		if r.Error == "" {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		msg += string(r.Source) + ": " + r.Error
	}
	return msg
}

// InProcessDispatcher runs jobs on goroutines of the API process.
type InProcessDispatcher struct {
	executor *IngestExecutor
	base     context.Context
	stop     context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewInProcessDispatcher(executor *IngestExecutor) *InProcessDispatcher {
	base, stop := context.WithCancel(context.Background())
	return &InProcessDispatcher{executor: executor, base: base, stop: stop, cancels: map[string]context.CancelFunc{}}
}

func (d *InProcessDispatcher) Name() string { return "inprocess" }

// Dispatch starts the job in the background. The request ctx is not used for
// the run so the job outlives the request.
func (d *InProcessDispatcher) Dispatch(_ context.Context, job models.IngestJob) error {
	ctx, cancel := context.WithCancel(d.base)
	d.mu.Lock()
	d.cancels[job.JobID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.cancels, job.JobID)
			d.mu.Unlock()
			cancel()
		}()
		if err := d.executor.Execute(ctx, job.JobID); err != nil {
			logger.Error("ingest job failed", "job_id", job.JobID, "error", err)
		}
	}()
	return nil
}

func (d *InProcessDispatcher) Cancel(_ context.Context, jobID string) error {
	d.mu.Lock()
	cancel, ok := d.cancels[jobID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Shutdown cancels running jobs and waits for them to record their status.
func (d *InProcessDispatcher) Shutdown(ctx context.Context) error {
	d.stop()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every dispatched job has returned.
func (d *InProcessDispatcher) Wait() { d.wg.Wait() }

// AsynqDispatcher enqueues jobs for cmd/worker.
type AsynqDispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewAsynqDispatcher(opt asynq.RedisClientOpt) *AsynqDispatcher {
	return &AsynqDispatcher{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt)}
}

func (d *AsynqDispatcher) Name() string { return "asynq" }

func (d *AsynqDispatcher) Dispatch(ctx context.Context, job models.IngestJob) error {
	task, err := queue.NewIngestTask(job.JobID)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue ingest task: %w", err)
	}
	logger.Info("ingest task enqueued", "job_id", job.JobID, "queue", info.Queue)
	return nil
}

// Cancel removes a queued task and signals a running one. The executor also
// skips jobs already marked cancelled.
func (d *AsynqDispatcher) Cancel(_ context.Context, jobID string) error {
	err := d.inspector.DeleteTask(queue.QueueIngest, jobID)
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		if cerr := d.inspector.CancelProcessing(jobID); cerr != nil {
			logger.Warn("cancel processing failed", "job_id", jobID, "error", cerr)
		}
		return nil
	}
	return fmt.Errorf("delete ingest task: %w", err)
}

func (d *AsynqDispatcher) Close() error {
	d.inspector.Close()
	return d.client.Close()
}

// JobService is the entry point for tracked ingestion jobs.
type JobService struct {
	store      JobStore
	dispatcher JobDispatcher
	now        func() time.Time
	log        *slog.Logger
}

func NewJobService(store JobStore, dispatcher JobDispatcher) *JobService {
	return &JobService{store: store, dispatcher: dispatcher, now: time.Now, log: logger.With("component", "jobs")}
}

func (s *JobService) Backend() string { return s.dispatcher.Name() }

// Submit records a pending job and dispatches it. If dispatch fails the job
// is stored as failed and the error returned.
func (s *JobService) Submit(ctx context.Context, target models.IngestTarget, limit int) (*models.IngestJob, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	now := s.now().UTC()
	job := &models.IngestJob{
		JobID:     uuid.NewString(),
		Target:    target,
		Limit:     limit,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, *job); err != nil {
		s.log.Error("dispatch failed", "job_id", job.JobID, "error", err)
		job.Status = models.JobFailed
		job.Error = err.Error()
		job.UpdatedAt = s.now().UTC()
		if uerr := s.store.Update(context.WithoutCancel(ctx), job); uerr != nil {
			s.log.Error("recording dispatch failure", "job_id", job.JobID, "error", uerr)
		}
		return job, fmt.Errorf("dispatch job: %w", err)
	}
	s.log.Info("ingest job accepted", "job_id", job.JobID, "target", string(target), "backend", s.dispatcher.Name())
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*models.IngestJob, error) {
	return s.store.Get(ctx, id)
}

func (s *JobService) List(ctx context.Context, limit int) ([]models.IngestJob, error) {
	return s.store.List(ctx, limit)
}

// Cancel marks a job cancelled and stops it. Finished jobs return
// ErrJobFinished with their current record.
func (s *JobService) Cancel(ctx context.Context, id string) (*models.IngestJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, ErrJobFinished
	}

	now := s.now().UTC()
	job.Status = models.JobCancelled
	job.Error = "cancelled"
	job.UpdatedAt = now
	if job.StartedAt == nil {
		job.FinishedAt = &now
	}
	if err := s.store.Update(ctx, job); err != nil {
		return nil, err
	}
	if err := s.dispatcher.Cancel(ctx, id); err != nil {
		s.log.Warn("dispatcher cancel failed", "job_id", id, "error", err)
	}
	s.log.Info("ingest job cancelled", "job_id", id)
	return job, nil
}
