// Package jobs provides background job scheduling.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/contractlens/backend/internal/correlation"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 30 * time.Minute

// ErrJobNotFound is returned by RunNow for an unregistered job name.
var ErrJobNotFound = errors.New("job not found")

// JobFunc is the function signature for jobs.
type JobFunc func(ctx context.Context) error

// Job represents a scheduled job.
type Job struct {
	Name     string       `json:"name"`
	Schedule string       `json:"schedule"`
	Func     JobFunc      `json:"-"`
	EntryID  cron.EntryID `json:"-"`
	Next     time.Time    `json:"next_run,omitempty"`
}

// Scheduler manages background jobs. Schedules use six fields, seconds first.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*Job
	logger  *slog.Logger
	timeout time.Duration
	running sync.WaitGroup
	mu      sync.RWMutex
}

// NewScheduler creates a new job scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		jobs:    make(map[string]*Job),
		logger:  logger,
		timeout: DefaultJobTimeout,
	}
}

// Register adds a job to the scheduler. Names must be unique.
func (s *Scheduler) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	job := &Job{
		Name:     name,
		Schedule: schedule,
		Func:     fn,
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runJob(job)
	})
	if err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", name, schedule, err)
	}

	job.EntryID = entryID
	s.jobs[name] = job

	s.logger.Info("job registered", "name", name, "schedule", schedule)
	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() error {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop stops the scheduler and waits for running jobs, including ones
// started with RunNow.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow runs a job immediately in the background.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.runJob(job)
	}()
	return nil
}

func (s *Scheduler) runJob(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = correlation.WithID(ctx, uuid.NewString())

	start := time.Now()
	s.logger.Info("job started", "name", job.Name)

	err := job.Func(ctx)

	duration := time.Since(start)
	if err != nil {
		s.logger.Error("job failed", "name", job.Name, "duration", duration, "error", err)
	} else {
		s.logger.Info("job completed", "name", job.Name, "duration", duration)
	}
}

// ListJobs returns all registered jobs sorted by name, with their next run.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		j := *job
		j.Next = s.cron.Entry(job.EntryID).Next
		jobs = append(jobs, &j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })
	return jobs
}
