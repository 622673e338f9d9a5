package crawler

import (
	"time"

	"cinemind/internal/logger"

	"github.com/go-co-op/gocron"
)

// Scheduler triggers periodic catalog refreshes. Jobs are keyed by tag and a
// tag can be registered once.
type Scheduler struct {
	cron *gocron.Scheduler
}

func NewScheduler() *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.TagsUnique()
	// a refresh still running when the next tick fires is not started twice
	cron.SingletonModeAll()
	return &Scheduler{cron: cron}
}

func (s *Scheduler) Start() { s.cron.StartAsync() }

func (s *Scheduler) Stop() { s.cron.Stop() }

// ScheduleCron registers fn under tag with a five-field cron expression.
func (s *Scheduler) ScheduleCron(tag, expr string, fn func()) error {
	job, err := s.cron.Cron(expr).Tag(tag).Do(fn)
	if err != nil {
		return err
	}
	logger.Info("refresh scheduled", "tag", tag, "cron", expr, "next_run", job.NextRun())
	return nil
}

// ScheduleEvery registers fn under tag to run every interval.
func (s *Scheduler) ScheduleEvery(tag string, interval time.Duration, fn func()) error {
	_, err := s.cron.Every(interval).Tag(tag).Do(fn)
	return err
}

func (s *Scheduler) Remove(tag string) error { return s.cron.RemoveByTag(tag) }

// Tags lists registered job tags.
func (s *Scheduler) Tags() []string {
	var tags []string
	for _, j := range s.cron.Jobs() {
		tags = append(tags, j.Tags()...)
	}
	return tags
}
