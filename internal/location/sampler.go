package location

import (
	"context"
	"slices"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
)

// Sampler owns the tracking state machine. Start and Stop never fail: a
// platform error is logged and the sampler falls back to foreground polling
// or ends in Stopped.
type Sampler struct {
	perms    Permissions
	provider Provider
	sink     Sink
	opts     Options

	// opMu serializes Start and Stop.
	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	registered bool
	stopTimer  context.CancelFunc
	timerDone  chan struct{}
	listeners  []func(from, to State)
}

// NewSampler creates a stopped sampler. Zero fields of opts take their
// DefaultOptions value.
func NewSampler(perms Permissions, provider Provider, sink Sink, opts Options) *Sampler {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if !opts.Accuracy.Valid() {
		opts.Accuracy = def.Accuracy
	}
	if opts.Platform == "" {
		opts.Platform = def.Platform
	}
	if opts.MinDistanceMeters < 0 {
		opts.MinDistanceMeters = 0
	}
	return &Sampler{
		perms:    perms,
		provider: provider,
		sink:     sink,
		opts:     opts,
		state:    Stopped,
	}
}

// Options returns the effective options.
func (s *Sampler) Options() Options {
	return s.opts
}

// State returns the current tracking state.
func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers fn for every transition.
func (s *Sampler) OnStateChange(fn func(from, to State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Sampler) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	if from == to {
		return
	}
	logging.Debug("Tracking state changed", map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
	for _, fn := range listeners {
		fn(from, to)
	}
}

// Start begins tracking and returns the resulting state. Calling Start
// while active returns the current state.
func (s *Sampler) Start(ctx context.Context) State {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if current := s.State(); current != Stopped {
		return current
	}

	granted, err := s.ensurePermission(ctx, s.perms.Foreground, s.perms.RequestForeground)
	if err != nil {
		s.fail("Foreground permission check failed", apperrors.ErrPermission, err)
		return Stopped
	}
	if !granted {
		logging.Warn("Foreground location permission denied", nil)
		return Stopped
	}

	s.transition(StartingBackground)

	if s.startBackground(ctx) {
		s.transition(ActiveBackground)
	} else {
		s.startInterval(ctx)
		s.transition(ActiveForegroundInterval)
	}

	logging.Info("Location tracking started", map[string]interface{}{
		"mode":       string(s.State()),
		"interval_s": s.opts.Interval.Seconds(),
		"accuracy":   string(s.opts.Accuracy),
		"distance_m": s.opts.MinDistanceMeters,
	})

	// Best-effort immediate feedback regardless of mode.
	s.sampleOnce(ctx)
	return s.State()
}

func (s *Sampler) ensurePermission(
	ctx context.Context,
	query func(context.Context) (PermissionStatus, error),
	request func(context.Context) (PermissionStatus, error),
) (bool, error) {
	status, err := query(ctx)
	if err != nil {
		return false, err
	}
	if status == PermissionGranted {
		return true, nil
	}
	status, err = request(ctx)
	if err != nil {
		return false, err
	}
	return status == PermissionGranted, nil
}

// startBackground tries the platform registration. Any failure means the
// caller falls back to foreground polling.
func (s *Sampler) startBackground(ctx context.Context) bool {
	granted, err := s.ensurePermission(ctx, s.perms.Background, s.perms.RequestBackground)
	if err != nil {
		logging.Warn("Background permission check failed, using foreground interval", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	if !granted {
		logging.Info("Background location not granted, using foreground interval", nil)
		return false
	}

	if err := s.provider.RegisterBackground(ctx, s.opts, s.Deliver); err != nil {
		logging.Warn("Background registration failed, using foreground interval", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}

	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()
	return true
}

// startInterval polls the current position every Interval until Stop.
// The timer outlives the caller's context.
func (s *Sampler) startInterval(ctx context.Context) {
	timerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.stopTimer = cancel
	s.timerDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-timerCtx.Done():
				return
			case <-ticker.C:
				s.sampleOnce(timerCtx)
			}
		}
	}()
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	fix, err := s.provider.CurrentFix(ctx, s.opts.Accuracy)
	if err != nil {
		logging.ErrorWithCode("Failed to acquire location", string(apperrors.ErrLocationFailed), err, nil)
		return
	}
	Dispatch(ctx, s.sink, []models.LocationLog{Normalize(fix, s.opts.Platform)})
}

// Deliver is the background delivery entry point. Each fix is normalized
// and handed to the sink in order. Batches arriving without an active
// background registration are dropped.
func (s *Sampler) Deliver(ctx context.Context, fixes []Fix) {
	s.mu.Lock()
	registered := s.registered
	s.mu.Unlock()
	if !registered {
		logging.Warn("Background fixes delivered while not registered, dropping", map[string]interface{}{
			"count": len(fixes),
		})
		return
	}

	logs := make([]models.LocationLog, 0, len(fixes))
	for _, fix := range fixes {
		logs = append(logs, Normalize(fix, s.opts.Platform))
	}
	Dispatch(ctx, s.sink, logs)
}

// Stop ends tracking. Background unregistration and timer cancellation are
// both attempted; a failure passes through StoppingFailed.
func (s *Sampler) Stop(ctx context.Context) State {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State() == Stopped {
		return Stopped
	}

	s.mu.Lock()
	registered := s.registered
	cancel, done := s.stopTimer, s.timerDone
	s.registered = false
	s.stopTimer, s.timerDone = nil, nil
	s.mu.Unlock()

	var unregisterErr error
	if registered {
		unregisterErr = s.provider.UnregisterBackground(ctx)
	}
	if cancel != nil {
		cancel()
		<-done
	}

	if unregisterErr != nil {
		s.fail("Background unregistration failed", apperrors.ErrLocationFailed, unregisterErr)
		return Stopped
	}

	s.transition(Stopped)
	logging.Info("Location tracking stopped", nil)
	return Stopped
}

// fail logs err and moves through StoppingFailed to Stopped.
func (s *Sampler) fail(message string, code apperrors.ErrorCode, err error) {
	logging.ErrorWithCode(message, string(code), err, nil)
	s.transition(StoppingFailed)
	s.transition(Stopped)
}
