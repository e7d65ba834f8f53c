// Package scheduler decides when the sync engine drains the pending queues:
// on a transition to online, on a fixed interval, and on explicit sync-now.
package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kimhsiao/fieldsync/internal/connectivity"
	"github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
)

// Trigger names what started a drain.
type Trigger string

const (
	TriggerConnectivity Trigger = "connectivity"
	TriggerInterval     Trigger = "interval"
	TriggerManual       Trigger = "manual"
)

// Scheduler manages background drains. At most one drain runs at a time;
// a trigger that fires while one is running is dropped.
type Scheduler struct {
	engine       syncpkg.SyncEngineInterface
	oracle       connectivity.Oracle
	syncInterval time.Duration

	stopCh      chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()

	mu             sync.RWMutex
	isRunning      bool
	isOnline       bool
	syncInProgress bool
	lastSyncTime   time.Time
	lastResult     *syncpkg.DrainResult
	lastErr        error
	pending        queue.Counts
	listeners      []func(queue.Counts)
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	SyncInterval time.Duration // How often to drain (default: 5 minutes)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SyncInterval: 5 * time.Minute,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(engine syncpkg.SyncEngineInterface, oracle connectivity.Oracle, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	interval := config.SyncInterval
	if interval <= 0 {
		interval = DefaultSchedulerConfig().SyncInterval
	}

	return &Scheduler{
		engine:       engine,
		oracle:       oracle,
		syncInterval: interval,
	}
}

// Start subscribes to connectivity changes and starts the interval loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.isOnline = connectivity.Online(ctx, s.oracle)
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.unsubscribe = s.oracle.Subscribe(func(online bool) {
		s.onConnectivityChange(ctx, online)
	})

	s.wg.Add(1)
	go s.periodicSyncLoop(ctx, stopCh)

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"interval_seconds": s.syncInterval.Seconds(),
		"online":           s.IsOnline(),
	})

	s.RefreshPending(ctx)
}

// Stop stops the scheduler. An in-flight drain is allowed to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stopCh := s.stopCh
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	close(stopCh)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

func (s *Scheduler) onConnectivityChange(ctx context.Context, online bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = online
	s.mu.Unlock()

	if online && !wasOnline {
		s.TriggerSync(ctx, TriggerConnectivity)
	}
}

// periodicSyncLoop triggers a drain every interval. Whether the device is
// online is left to the engine.
func (s *Scheduler) periodicSyncLoop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.TriggerSync(ctx, TriggerInterval)
		}
	}
}

// tryAcquire sets the in-progress flag if it is clear.
func (s *Scheduler) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncInProgress {
		return false
	}
	s.syncInProgress = true
	return true
}

// TriggerSync starts a drain in the background.
// Returns true if a drain was started, false if one is already in progress.
func (s *Scheduler) TriggerSync(ctx context.Context, trigger Trigger) bool {
	if !s.tryAcquire() {
		logging.Debug("Sync already in progress, dropping trigger", map[string]interface{}{
			"trigger": string(trigger),
		})
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runDrain(ctx, trigger)
	}()
	return true
}

// SyncNow drains immediately and waits for completion. It fails with
// SYNC_IN_PROGRESS when another drain holds the flag.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.DrainResult, error) {
	if !s.tryAcquire() {
		return nil, errors.New(errors.ErrSyncInProgress, "sync already in progress")
	}
	return s.runDrain(ctx, TriggerManual)
}

// runDrain must be called with the flag held; it always clears it.
func (s *Scheduler) runDrain(ctx context.Context, trigger Trigger) (*syncpkg.DrainResult, error) {
	defer func() {
		s.mu.Lock()
		s.syncInProgress = false
		s.mu.Unlock()
		s.RefreshPending(ctx)
	}()

	result, err := s.engine.Drain(ctx)

	s.mu.Lock()
	s.lastErr = err
	if result != nil && !result.Skipped {
		s.lastResult = result
	}
	if err == nil && result != nil && !result.Skipped {
		s.lastSyncTime = result.EndTime
	}
	s.mu.Unlock()

	switch {
	case err != nil:
		logging.ErrorWithCode("Scheduled drain failed", string(errors.ErrSyncFailed), err,
			map[string]interface{}{"trigger": string(trigger)})
	case result.Skipped:
		logging.Debug("Drain skipped", map[string]interface{}{
			"trigger": string(trigger),
			"reason":  result.Message,
		})
	default:
		logging.Info("Drain finished", map[string]interface{}{
			"trigger":   string(trigger),
			"succeeded": result.Succeeded(),
			"failed":    result.Failed(),
		})
	}
	return result, err
}

// OnPendingChange registers fn to receive pending counts after every drain
// and on RefreshPending.
func (s *Scheduler) OnPendingChange(fn func(queue.Counts)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// RefreshPending reads the pending counts and publishes them to listeners.
func (s *Scheduler) RefreshPending(ctx context.Context) {
	counts, err := s.engine.PendingCounts(ctx)
	if err != nil {
		logging.Error("Failed to read pending counts", err, nil)
		return
	}

	s.mu.Lock()
	s.pending = counts
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(counts)
	}
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning      bool                 `json:"isRunning"`
	IsOnline       bool                 `json:"isOnline"`
	SyncInProgress bool                 `json:"syncInProgress"`
	LastSyncTime   *time.Time           `json:"lastSyncTime,omitempty"`
	LastResult     *syncpkg.DrainResult `json:"lastResult,omitempty"`
	LastError      string               `json:"lastError,omitempty"`
	Pending        queue.Counts         `json:"pending"`
}

// GetStatus returns the current status of the scheduler. Pending counts are
// as of the last refresh.
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		IsRunning:      s.isRunning,
		IsOnline:       s.isOnline,
		SyncInProgress: s.syncInProgress,
		LastResult:     s.lastResult,
		Pending:        s.pending,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

// IsOnline returns the last connectivity state the scheduler observed.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
