package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

// SchedulerConfig holds configuration for the fixed cost scheduler
type SchedulerConfig struct {
	// CheckInterval is how often the current month is re-evaluated (default: 1h)
	CheckInterval time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{CheckInterval: time.Hour}
}

// FixedCostScheduler auto-posts fixed costs at start and again whenever the
// calendar month rolls over while the process is running.
type FixedCostScheduler struct {
	poster *FixedCostPoster
	config SchedulerConfig
	logger *log.Logger

	mu       sync.Mutex
	running  bool
	lastDone core.YearMonth
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewFixedCostScheduler(poster *FixedCostPoster, config SchedulerConfig, logger *log.Logger) *FixedCostScheduler {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultSchedulerConfig().CheckInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FixedCostScheduler{poster: poster, config: config, logger: logger.WithComponent(log.ComponentWorker)}
}

// Start begins the check loop. Returns an error if already running.
func (s *FixedCostScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("fixed cost scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.logger.InfoContext(ctx, "Fixed cost scheduler started", "check_interval", s.config.CheckInterval)
	return nil
}

// Stop signals the loop and waits for it, or for ctx.
func (s *FixedCostScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Fixed cost scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Fixed cost scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *FixedCostScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *FixedCostScheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check posts the current month unless this scheduler already saw it
// posted. It reports whether a posting run happened.
func (s *FixedCostScheduler) Check(ctx context.Context) bool {
	ym := s.poster.CurrentMonth()
	s.mu.Lock()
	due := s.lastDone != ym
	s.mu.Unlock()
	if !due {
		return false
	}

	res, err := s.poster.AutoPostCurrentMonth(ctx)
	if err != nil {
		// Left unmarked so the next tick retries.
		s.logger.ErrorContext(ctx, "Scheduled fixed cost posting failed", log.FieldMonth, ym, log.FieldError, err)
		return true
	}
	s.mu.Lock()
	s.lastDone = res.Month
	s.mu.Unlock()
	return true
}
