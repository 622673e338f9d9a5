package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cinemind/internal/config"
	"cinemind/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrJobNotFound = errors.New("ingest job not found")

const defaultJobListLimit = 50

// JobStore persists ingestion job records.
type JobStore interface {
	Create(ctx context.Context, job *models.IngestJob) error
	Get(ctx context.Context, id string) (*models.IngestJob, error)
	// List returns the newest jobs first.
	List(ctx context.Context, limit int) ([]models.IngestJob, error)
	Update(ctx context.Context, job *models.IngestJob) error
}

// MemoryJobStore keeps jobs in process memory. Records are lost on restart.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.IngestJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]models.IngestJob)}
}

func (s *MemoryJobStore) Create(_ context.Context, job *models.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	s.jobs[job.JobID] = cloneJob(*job)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*models.IngestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

func (s *MemoryJobStore) List(_ context.Context, limit int) ([]models.IngestJob, error) {
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	s.mu.RLock()
	out := make([]models.IngestJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID > out[j].JobID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryJobStore) Update(_ context.Context, job *models.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.JobID] = cloneJob(*job)
	return nil
}

func cloneJob(j models.IngestJob) models.IngestJob {
	if j.Stages != nil {
		j.Stages = append([]models.StageReport(nil), j.Stages...)
	}
	return j
}

// MongoJobStore keeps jobs in the ingest_jobs collection so the API and the
// worker see the same records.
type MongoJobStore struct {
	col *mongo.Collection
}

func NewMongoJobStore(db *mongo.Database) *MongoJobStore {
	return &MongoJobStore{col: db.Collection(config.IngestJobsCollection)}
}

func (s *MongoJobStore) Create(ctx context.Context, job *models.IngestJob) error {
	if _, err := s.col.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *MongoJobStore) Get(ctx context.Context, id string) (*models.IngestJob, error) {
	var job models.IngestJob
	err := s.col.FindOne(ctx, bson.M{"job_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("find job: %w", err)
	}
	return &job, nil
}

func (s *MongoJobStore) List(ctx context.Context, limit int) ([]models.IngestJob, error) {
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer cursor.Close(ctx)

	jobs := []models.IngestJob{}
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}

func (s *MongoJobStore) Update(ctx context.Context, job *models.IngestJob) error {
	res, err := s.col.ReplaceOne(ctx, bson.M{"job_id": job.JobID}, job)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}
