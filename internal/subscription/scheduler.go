package subscription

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

const (
	// DefaultCheckInterval is how often due subscriptions are scanned.
	DefaultCheckInterval = time.Hour
	// dueCheckLock is the storage lock held while one instance runs the scan.
	dueCheckLock = "subscription_due_check"
)

// DueHandler is invoked for each subscription whose payment is due.
type DueHandler func(ctx context.Context, sub *models.Subscription)

// Scheduler periodically hands due subscriptions to a DueHandler. Stop
// waits for the scan in progress to finish.
type Scheduler struct {
	logger     *logger.Logger
	storage    models.Storage
	locker     models.Locker
	instanceID string
	interval   time.Duration
	onDue      DueHandler
	now        func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. When storage implements models.Locker
// only one instance scans at a time.
func NewScheduler(storage models.Storage, interval time.Duration, onDue DueHandler, logger *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	s := &Scheduler{
		logger:     logger,
		storage:    storage,
		instanceID: uuid.NewString(),
		interval:   interval,
		onDue:      onDue,
		now:        time.Now,
	}
	if locker, ok := storage.(models.Locker); ok {
		s.locker = locker
	}
	return s
}

// WithClock replaces the wall clock. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Interval returns the scan period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start runs a scan immediately and then once per interval.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Infow("Subscription due check started", "interval", s.interval)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(s.ctx)
		for {
			select {
			case <-ticker.C:
				s.RunOnce(s.ctx)
			case <-s.ctx.Done():
				s.logger.Info("Subscription due check stopped")
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// RunOnce scans for due subscriptions and returns how many were handled.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, dueCheckLock, s.instanceID, s.interval)
		if err != nil {
			s.logger.Errorw("Failed to acquire due check lock", "error", err)
			return 0
		}
		if !ok {
			s.logger.Debug("Due check running on another instance")
			return 0
		}
		defer func() {
			if err := s.locker.Unlock(context.Background(), dueCheckLock, s.instanceID); err != nil {
				s.logger.Errorw("Failed to release due check lock", "error", err)
			}
		}()
	}

	due, err := s.storage.GetSubscriptionsDue(ctx, s.now())
	if err != nil {
		s.logger.Errorw("Failed to load due subscriptions", "error", err)
		return 0
	}
	if len(due) > 0 {
		s.logger.Infow("Processing due subscriptions", "count", len(due))
	}

	handled := 0
	for _, sub := range due {
		if ctx.Err() != nil {
			break
		}
		s.safeCall(ctx, sub)
		handled++
	}
	return handled
}

// safeCall runs the handler with panic recovery so one bad subscription
// does not stop the scan.
func (s *Scheduler) safeCall(ctx context.Context, sub *models.Subscription) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Due handler panicked",
				"subscription", sub.ID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	s.onDue(ctx, sub)
}
