// Package scheduler triggers the agent's periodic checks.
package scheduler

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/carbuddy/internal/retry"
)

// Outcome statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run including its retries; zero means no bound.
	Timeout    time.Duration
	Policy     retry.Policy
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Outcome describes a finished run of a job.
type Outcome struct {
	Job      string    `json:"job"`
	Status   string    `json:"status"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Recorder receives every outcome, e.g. to feed metrics.
type Recorder func(Outcome)

// Scheduler runs each job on its own ticker until the context ends.
type Scheduler struct {
	jobs     []Job
	recorder Recorder

	mu   sync.Mutex
	last map[string]Outcome
	wg   sync.WaitGroup
}

// New creates a scheduler for jobs. recorder may be nil.
func New(recorder Recorder, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		recorder: recorder,
		last:     make(map[string]Outcome),
	}
}

// Start launches one goroutine per job and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			log.WithField("job", job.Name).Warn("Skipping job without interval or handler")
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	log.WithField("jobs", len(s.jobs)).Info("Scheduler started")
}

// Wait blocks until every job loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunOnStart {
		s.RunOnce(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes job under its timeout and retry policy.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) Outcome {
	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	out := Outcome{Job: job.Name, Started: time.Now()}
	logger := log.WithField("job", job.Name)
	logger.Info("Job starting")

	attempts, err := job.Policy.Do(runCtx, job.Name, job.Run)
	out.Attempts = attempts
	out.Finished = time.Now()
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		logger.WithError(err).WithField("attempts", attempts).Error("Job failed")
	} else {
		out.Status = StatusCompleted
		logger.WithFields(log.Fields{
			"attempts": attempts,
			"duration": out.Finished.Sub(out.Started),
		}).Info("Job completed")
	}

	s.mu.Lock()
	s.last[job.Name] = out
	s.mu.Unlock()
	if s.recorder != nil {
		s.recorder(out)
	}
	return out
}

// Last returns the most recent outcome of the named job.
func (s *Scheduler) Last(name string) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.last[name]
	return out, ok
}
