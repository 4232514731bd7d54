// Package scheduler runs the polling job on a cron or fixed-interval
// schedule with single-flight semantics: at most one run of a job is in
// flight, and a run that cannot start within the misfire grace window is
// recorded and skipped.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/state"
)

// DefaultMisfireGrace matches the polling cadence: a run that cannot start
// within this window is stale and gets skipped.
const DefaultMisfireGrace = 60 * time.Second

// Job is one schedulable unit of work.
type Job func(ctx context.Context) error

// EventRecorder receives misfire and error audit rows.
type EventRecorder interface {
	RecordSchedulerEvent(eventType state.EventType, jobID, scheduledRunTime, exception, traceback string) error
}

type jobEntry struct {
	id       string
	job      Job
	inFlight chan struct{} // cap 1, acts as the single-flight lock
}

// Scheduler wraps a cron runner with misfire tracking.
type Scheduler struct {
	cron         *cron.Cron
	recorder     EventRecorder
	misfireGrace time.Duration
	log          zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. recorder may be nil to disable auditing.
func New(recorder EventRecorder, misfireGrace time.Duration, log zerolog.Logger) *Scheduler {
	if misfireGrace <= 0 {
		misfireGrace = DefaultMisfireGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:         cron.New(),
		recorder:     recorder,
		misfireGrace: misfireGrace,
		log:          log.With().Str("component", "scheduler").Logger(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// AddCronJob schedules a job on a standard 5-field cron expression. The
// parse error is returned so callers can fall back to an interval schedule.
func (s *Scheduler) AddCronJob(jobID, spec string, job Job) error {
	entry := s.newEntry(jobID, job)
	if _, err := s.cron.AddFunc(spec, func() { s.Run(entry) }); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.log.Info().Str("job", jobID).Str("cron", spec).Msg("Job scheduled")
	return nil
}

// AddIntervalJob schedules a job at a fixed interval.
func (s *Scheduler) AddIntervalJob(jobID string, interval time.Duration, job Job) {
	entry := s.newEntry(jobID, job)
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { s.Run(entry) }))
	s.log.Info().Str("job", jobID).Dur("interval", interval).Msg("Job scheduled")
}

// NewEntry prepares a job for manual or scheduled runs.
func (s *Scheduler) newEntry(jobID string, job Job) *jobEntry {
	return &jobEntry{id: jobID, job: job, inFlight: make(chan struct{}, 1)}
}

// RunNow executes a job immediately outside the schedule, with the same
// single-flight and audit semantics. Used for the run-once-at-startup pass.
func (s *Scheduler) RunNow(jobID string, job Job) {
	s.Run(s.newEntry(jobID, job))
}

// Run executes one occurrence of a job. If the previous occurrence is still
// in flight the run waits up to the misfire grace, then records a misfire
// and skips. Panics and errors become audit rows.
func (s *Scheduler) Run(entry *jobEntry) {
	scheduled := time.Now().UTC().Format(time.RFC3339)
	runID := uuid.NewString()

	select {
	case entry.inFlight <- struct{}{}:
	case <-time.After(s.misfireGrace):
		s.log.Warn().Str("job", entry.id).Str("run_id", runID).
			Str("scheduled", scheduled).Msg("Previous run still in flight, skipping (misfire)")
		s.record(state.EventMisfire, entry.id, scheduled, "", "")
		return
	case <-s.ctx.Done():
		return
	}
	defer func() { <-entry.inFlight }()

	s.log.Debug().Str("job", entry.id).Str("run_id", runID).Msg("Job starting")
	start := time.Now()

	err := s.runProtected(entry)
	if err != nil {
		s.log.Error().Err(err).Str("job", entry.id).Str("run_id", runID).Msg("Job failed")
		s.record(state.EventError, entry.id, scheduled, err.Error(), stackFor(err))
		return
	}
	s.log.Info().Str("job", entry.id).Str("run_id", runID).
		Dur("elapsed", time.Since(start)).Msg("Job finished")
}

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func (s *Scheduler) runProtected(entry *jobEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return entry.job(s.ctx)
}

func stackFor(err error) string {
	if pe, ok := err.(*panicError); ok {
		return pe.stack
	}
	return ""
}

func (s *Scheduler) record(eventType state.EventType, jobID, scheduled, exception, traceback string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordSchedulerEvent(eventType, jobID, scheduled, exception, traceback); err != nil {
		s.log.Error().Err(err).Msg("Failed to record scheduler event")
	}
}

// Start begins dispatching scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for in-flight runs to drain.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}
