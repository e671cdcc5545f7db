package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner is the part of the orchestrator the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context) []RunResult
}

// Scheduler runs all transformers on a fixed interval and on demand.
type Scheduler struct {
	runner    Runner
	interval  time.Duration
	log       zerolog.Logger
	resultCh  chan []RunResult
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewScheduler creates a scheduler. A non-positive interval defaults to
// five minutes.
func NewScheduler(runner Runner, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		runner:    runner,
		interval:  interval,
		log:       log.With().Str("component", "scheduler").Logger(),
		resultCh:  make(chan []RunResult, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the loop, which runs once immediately. It stops when ctx
// is done or Stop is called. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop halts the loop and waits for an in-flight round to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

// Trigger requests an immediate round. Requests made while one is pending
// are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Results delivers the results of every round. Rounds are dropped when
// nobody reads them.
func (s *Scheduler) Results() <-chan []RunResult {
	return s.resultCh
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.round(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.round(ctx)
		case <-s.triggerCh:
			s.round(ctx)
		}
	}
}

func (s *Scheduler) round(ctx context.Context) {
	results := s.runner.RunAll(ctx)

	failed := 0
	for _, r := range results {
		if !r.Success && !r.AlreadyRunning {
			failed++
		}
	}
	s.log.Debug().Int("sources", len(results)).Int("failed", failed).Msg("scheduled round finished")

	select {
	case s.resultCh <- results:
	default:
	}
}
