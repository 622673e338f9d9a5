package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cinemind/internal/config"
	"cinemind/internal/logger"

	"github.com/hibiken/asynq"
)

const (
	TaskIngestRun = "ingest:run"
	QueueIngest   = "ingest"
	ingestTimeout = 2 * time.Hour
)

type IngestPayload struct {
	JobID string `json:"job_id"`
}

// NewIngestTask builds the task for one ingestion job. The task id is the job
// id, so a job can be cancelled or deleted by id.
func NewIngestTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestRun,
		payload,
		asynq.TaskID(jobID),
		asynq.MaxRetry(1),
		asynq.Timeout(ingestTimeout),
		asynq.Queue(QueueIngest),
	), nil
}

// JobExecutor runs a stored ingestion job to completion.
type JobExecutor interface {
	Execute(ctx context.Context, jobID string) error
}

type TaskProcessor struct {
	executor JobExecutor
}

func NewTaskProcessor(executor JobExecutor) *TaskProcessor {
	return &TaskProcessor{executor: executor}
}

func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing job id: %w", asynq.SkipRetry)
	}

	logger.Info("processing ingest task", "job_id", payload.JobID)
	return p.executor.Execute(ctx, payload.JobID)
}

// NewServeMux registers the task handlers.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskIngestRun, p.ProcessIngest)
	return mux
}

// RedisOpt converts the Redis settings into asynq connection options.
func RedisOpt(cfg *config.Config) (asynq.RedisClientOpt, error) {
	opt, err := config.RedisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
