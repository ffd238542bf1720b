// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrJobRunning indicates a run of the same job is still in progress.
	ErrJobRunning = errors.New("job already running")

	// ErrUnknownJob indicates no job is registered under the requested name.
	ErrUnknownJob = errors.New("unknown job")
)

// JobRunner executes a named job body. JobTracer is the production runner.
type JobRunner interface {
	Run(ctx context.Context, name string, body JobFunc) error
}

// Job is a named unit of scheduled work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// Scheduler runs every registered job on its own ticker. Runs of the same job
// never overlap; different jobs may.
type Scheduler struct {
	runner JobRunner
	jobs   []Job
	byName map[string]Job

	mu      sync.Mutex
	running map[string]bool
}

// NewScheduler creates a Scheduler. Job names must be unique.
func NewScheduler(runner JobRunner, jobs ...Job) (*Scheduler, error) {
	byName := make(map[string]Job, len(jobs))
	for _, job := range jobs {
		if _, dup := byName[job.Name]; dup {
			return nil, fmt.Errorf("duplicate job name %q", job.Name)
		}
		if job.Interval <= 0 {
			return nil, fmt.Errorf("job %q: interval must be positive", job.Name)
		}
		byName[job.Name] = job
	}

	return &Scheduler{
		runner:  runner,
		jobs:    jobs,
		byName:  byName,
		running: make(map[string]bool),
	}, nil
}

// Names returns the registered job names in registration order.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
	}
	return names
}

// Start runs every job once in registration order, then runs each job on its
// interval. Start blocks until the context is canceled and all in-flight runs
// have returned.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.runScheduled(ctx, job)
	}

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job)
		}()
	}

	wg.Wait()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScheduled(ctx, job)
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, job Job) {
	err := s.run(ctx, job)
	switch {
	case errors.Is(err, ErrJobRunning):
		slog.Warn("skipping scheduled run, previous run still in progress", "job", job.Name)
	case err != nil:
		slog.Error("job failed", "job", job.Name, "error", err)
	}
}

// Trigger runs the named job immediately and waits for it to finish.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	job, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	slog.Info("manual job run requested", "job", name)
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, job.Name)
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
	}()

	return s.runner.Run(ctx, job.Name, job.Run)
}
