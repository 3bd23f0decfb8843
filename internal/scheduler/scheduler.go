// Package scheduler runs the accrual and settlement jobs on independent
// interval timers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"navLedger/internal/metrics"
	"navLedger/internal/model"
)

var (
	// ErrJobRunning is returned when a job fires while its previous run is
	// still in flight.
	ErrJobRunning = errors.New("job already running")
	ErrUnknownJob = errors.New("unknown job")
)

// Outcome is what a job reports about one run.
type Outcome struct {
	Processed int
	Failed    int
}

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (Outcome, error)
}

type jobEntry struct {
	Job
	running atomic.Bool
	id      cron.EntryID
}

// Scheduler owns the cron loop. Jobs never overlap with themselves; different
// jobs may run at the same time.
type Scheduler struct {
	cron   *cron.Cron
	runs   RunStore
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]*jobEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(runs RunStore, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		runs:   runs,
		logger: logger,
		jobs:   make(map[string]*jobEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job to fire every job.Interval.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job name and run func are required")
	}
	if job.Interval < time.Second {
		return fmt.Errorf("job %s: interval %s is below one second", job.Name, job.Interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	entry := &jobEntry{Job: job}
	entry.id = s.cron.Schedule(cron.Every(job.Interval), cron.FuncJob(func() {
		if _, err := s.execute(s.ctx, entry); err != nil && !errors.Is(err, ErrJobRunning) {
			s.logger.Warn("job failed", zap.String("job", entry.Name), zap.Error(err))
		}
	}))
	s.jobs[job.Name] = entry
	s.logger.Info("job scheduled", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
	return nil
}

// Start begins firing jobs. With runOnStart every job also runs once
// immediately.
func (s *Scheduler) Start(runOnStart bool) {
	s.mu.Lock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, entry := range s.jobs {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	for _, entry := range entries {
		if last, ok, err := s.lastRun(entry.Name); err == nil && ok {
			s.logger.Info("previous run",
				zap.String("job", entry.Name),
				zap.Time("finished_at", last.FinishedAt),
				zap.Int("processed", last.Processed),
				zap.Int("failed", last.Failed),
			)
		}
		if runOnStart {
			s.wg.Add(1)
			go func(entry *jobEntry) {
				defer s.wg.Done()
				if _, err := s.execute(s.ctx, entry); err != nil && !errors.Is(err, ErrJobRunning) {
					s.logger.Warn("job failed", zap.String("job", entry.Name), zap.Error(err))
				}
			}(entry)
		}
	}
	s.cron.Start()
}

// Stop prevents further firings, signals running jobs to wind down and waits
// for them to return.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.wg.Wait()
}

// RunNow runs a registered job once outside its timer.
func (s *Scheduler) RunNow(ctx context.Context, name string) (model.JobRun, error) {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return model.JobRun{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, entry)
}

func (s *Scheduler) execute(ctx context.Context, entry *jobEntry) (model.JobRun, error) {
	if !entry.running.CompareAndSwap(false, true) {
		s.logger.Info("job still running, skipping firing", zap.String("job", entry.Name))
		return model.JobRun{}, ErrJobRunning
	}
	defer entry.running.Store(false)

	run := model.JobRun{ID: uuid.NewString(), Job: entry.Name, StartedAt: time.Now().UTC()}
	out, err := entry.Run(ctx)
	run.FinishedAt = time.Now().UTC()
	run.Processed = out.Processed
	run.Failed = out.Failed
	if err != nil {
		run.Error = err.Error()
	}

	elapsed := run.FinishedAt.Sub(run.StartedAt)
	metrics.JobRun(entry.Name, err == nil, elapsed)
	if s.runs != nil {
		if saveErr := s.runs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
			s.logger.Warn("save job run failed", zap.String("job", entry.Name), zap.Error(saveErr))
		}
	}
	s.logger.Info("job finished",
		zap.String("job", entry.Name),
		zap.Int("processed", run.Processed),
		zap.Int("failed", run.Failed),
		zap.Duration("elapsed", elapsed),
		zap.Bool("ok", err == nil),
	)
	return run, err
}

func (s *Scheduler) lastRun(name string) (model.JobRun, bool, error) {
	if s.runs == nil {
		return model.JobRun{}, false, nil
	}
	return s.runs.Last(s.ctx, name)
}

// cronLogger routes cron's internal logging to zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
