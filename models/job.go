package models

import "time"

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending       JobStatus = "pending"
	JobRunning       JobStatus = "running"
	JobSucceeded     JobStatus = "succeeded"
	JobFailedPartial JobStatus = "failed-partial"
	JobFailed        JobStatus = "failed"
	JobCancelled     JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailedPartial, JobFailed, JobCancelled:
		return true
	}
	return false
}

// IngestTarget selects which pipelines a job runs.
type IngestTarget string

const (
	TargetTMDb   IngestTarget = "tmdb"
	TargetIMDb   IngestTarget = "imdb"
	TargetScript IngestTarget = "script"
	TargetAll    IngestTarget = "all"
)

func (t IngestTarget) Valid() bool {
	switch t {
	case TargetTMDb, TargetIMDb, TargetScript, TargetAll:
		return true
	}
	return false
}

// IngestJob tracks one background ingestion run.
type IngestJob struct {
	JobID      string        `json:"job_id" bson:"job_id"`
	Target     IngestTarget  `json:"target" bson:"target"`
	Limit      int           `json:"limit" bson:"limit"`
	Status     JobStatus     `json:"status" bson:"status"`
	Stages     []StageReport `json:"stages,omitempty" bson:"stages,omitempty"`
	Error      string        `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" bson:"updated_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty" bson:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// StageReport summarizes one pipeline run.
type StageReport struct {
	Source            SourceKind `json:"source" bson:"source"`
	Fetched           int        `json:"fetched" bson:"fetched"`
	Stored            int        `json:"stored" bson:"stored"`
	EmbeddingFailures int        `json:"embedding_failures" bson:"embedding_failures"`
	SentimentFallback int        `json:"sentiment_fallback" bson:"sentiment_fallback"`
	ItemErrors        int        `json:"item_errors" bson:"item_errors"`
	Error             string     `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt         time.Time  `json:"started_at" bson:"started_at"`
	DurationMs        int64      `json:"duration_ms" bson:"duration_ms"`
}

func (r StageReport) Failed() bool { return r.Error != "" }

// DeriveStatus folds stage outcomes into a job status: every stage clean is
// succeeded, every stage failed is failed, anything in between is failed-partial.
func DeriveStatus(stages []StageReport) JobStatus {
	failed := 0
	for _, s := range stages {
		if s.Failed() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return JobSucceeded
	case failed == len(stages):
		return JobFailed
	default:
		return JobFailedPartial
	}
}
