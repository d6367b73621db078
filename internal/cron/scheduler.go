package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the registered maintenance jobs on their cron schedules.
// A tick that fires while the previous run of the same job is still in
// flight is skipped, so a slow prune can never stack.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]*scheduledJob
	order  []string
	logger *slog.Logger
	cancel context.CancelFunc
}

// scheduledJob pairs a Job with the lock that serializes its runs.
type scheduledJob struct {
	job     Job
	running sync.Mutex
}

// NewScheduler creates an empty scheduler. Jobs are registered before
// Start; the set is fixed afterwards.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:   make(map[string]*scheduledJob),
		logger: logger,
	}
}

// RegisterJob adds a job under its Name. Names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	s.jobs[name] = &scheduledJob{job: j}
	s.order = append(s.order, name)
	return nil
}

// scheduleParser accepts standard 5-field cron expressions.
func scheduleParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

// Start validates every schedule expression and begins ticking. The
// context handed to job runs is cancelled by Stop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.cron = cron.New(cron.WithParser(scheduleParser()))

	for _, name := range s.order {
		entry := s.jobs[name]
		if _, err := s.cron.AddFunc(entry.job.Schedule(), func() {
			s.runOnce(ctx, entry)
		}); err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// runOnce executes one tick of a job, skipping it when the previous tick
// still holds the job's lock.
func (s *Scheduler) runOnce(ctx context.Context, entry *scheduledJob) {
	name := entry.job.Name()
	if !entry.running.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", name)
		return
	}
	defer entry.running.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	if err := entry.job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("cron: job completed", "job", name)
}

// Stop cancels the job context and waits for in-flight runs to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
