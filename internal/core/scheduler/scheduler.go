package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
)

// Handle identifies a pending one-shot task. The zero Handle is never issued.
type Handle uint64

// JobInfo describes a registered periodic job
type JobInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Next     time.Time     `json:"next"`
	Prev     time.Time     `json:"prev"`
}

type periodicJob struct {
	entryID  cron.EntryID
	interval time.Duration
}

// Scheduler runs one-shot deferred tasks on a Clock and periodic jobs on cron.
// Stop cancels both kinds of work.
type Scheduler struct {
	clock  clock.Clock
	cron   *cron.Cron
	logger *logrus.Logger

	mu      sync.Mutex
	nextID  Handle
	pending map[Handle]clock.Timer
	jobs    map[string]periodicJob
	running bool
	stopped bool
}

// New creates a new scheduler
func New(clk clock.Clock, logger *logrus.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}

	cronLogger := cron.PrintfLogger(logger)
	cronInstance := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		),
	)

	return &Scheduler{
		clock:   clk,
		cron:    cronInstance,
		logger:  logger,
		pending: make(map[Handle]clock.Timer),
		jobs:    make(map[string]periodicJob),
	}
}

// Schedule runs fn once after delay. It returns 0 when the scheduler is stopped.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Debug("Scheduler stopped, deferred task dropped")
		return 0
	}

	s.nextID++
	h := s.nextID
	s.pending[h] = s.clock.AfterFunc(delay, func() { s.fire(h, fn) })
	return h
}

// Cancel stops a pending task. It returns false if the task already ran or
// was cancelled.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	timer, ok := s.pending[h]
	if ok {
		delete(s.pending, h)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	timer.Stop()
	return true
}

func (s *Scheduler) fire(h Handle, fn func()) {
	s.mu.Lock()
	_, ok := s.pending[h]
	delete(s.pending, h)
	s.mu.Unlock()

	// Cancelled between the timer firing and acquiring the lock
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"handle": h,
				"panic":  r,
				"stack":  string(debug.Stack()),
			}).Error("Deferred task panicked")
		}
	}()
	fn()
}

// Every registers fn to run on a fixed interval. A run that is still in
// flight when the next tick arrives causes that tick to be skipped.
// Registering an existing name replaces the job.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s for job %s", interval, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	if existing, ok := s.jobs[name]; ok {
		s.cron.Remove(existing.entryID)
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), fn)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.jobs[name] = periodicJob{entryID: entryID, interval: interval}

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"interval": interval.String(),
	}).Info("Periodic job registered")

	return nil
}

// Start starts the periodic jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started")
	return nil
}

// Stop cancels every pending task, stops the periodic jobs and waits for
// running jobs until ctx is done. A stopped scheduler cannot be restarted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.running = false
	timers := make([]clock.Timer, 0, len(s.pending))
	for h, timer := range s.pending {
		timers = append(timers, timer)
		delete(s.pending, h)
	}
	s.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}

	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
		s.logger.WithField("cancelled_tasks", len(timers)).Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timeout waiting for scheduled jobs to complete")
		return ctx.Err()
	}
}

// Pending returns the number of one-shot tasks waiting to fire
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Jobs returns the registered periodic jobs sorted by name
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]JobInfo, 0, len(s.jobs))
	for name, job := range s.jobs {
		entry := s.cron.Entry(job.entryID)
		jobs = append(jobs, JobInfo{
			Name:     name,
			Interval: job.interval,
			Next:     entry.Next,
			Prev:     entry.Prev,
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}
