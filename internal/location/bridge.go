package location

import (
	"context"
	"sync"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
)

// Bridge is a Permissions and Provider whose answers are pushed by a host
// app that owns the real platform APIs, such as the mobile FFI layer. The
// host reports permission state and background capability up front, pushes
// its latest fix, and forwards background batches through the registered
// deliver function.
type Bridge struct {
	mu          sync.Mutex
	foreground  PermissionStatus
	background  PermissionStatus
	bgAvailable bool
	current     *Fix
	deliver     DeliverFunc
	regOpts     Options
}

// NewBridge creates a bridge with undetermined permissions.
func NewBridge() *Bridge {
	return &Bridge{
		foreground: PermissionUndetermined,
		background: PermissionUndetermined,
	}
}

// SetPermissions records the host-reported permission state.
func (b *Bridge) SetPermissions(foreground, background PermissionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.foreground = foreground
	b.background = background
}

// SetBackgroundAvailable records whether the host can run a background
// location task.
func (b *Bridge) SetBackgroundAvailable(available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bgAvailable = available
}

// UpdateCurrentFix stores the host's most recent position.
func (b *Bridge) UpdateCurrentFix(fix Fix) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = &fix
}

// Push forwards a background batch to the registered sampler. It reports
// false when no background registration is active.
func (b *Bridge) Push(ctx context.Context, fixes []Fix) bool {
	b.mu.Lock()
	deliver := b.deliver
	b.mu.Unlock()
	if deliver == nil {
		return false
	}
	deliver(ctx, fixes)
	return true
}

// Registered returns the options of the active background registration.
func (b *Bridge) Registered() (Options, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regOpts, b.deliver != nil
}

// Foreground implements Permissions.
func (b *Bridge) Foreground(ctx context.Context) (PermissionStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.foreground, nil
}

// RequestForeground implements Permissions. The host prompts the user
// itself, so a request returns the last reported state.
func (b *Bridge) RequestForeground(ctx context.Context) (PermissionStatus, error) {
	return b.Foreground(ctx)
}

// Background implements Permissions.
func (b *Bridge) Background(ctx context.Context) (PermissionStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.background, nil
}

// RequestBackground implements Permissions.
func (b *Bridge) RequestBackground(ctx context.Context) (PermissionStatus, error) {
	return b.Background(ctx)
}

// CurrentFix implements Provider.
func (b *Bridge) CurrentFix(ctx context.Context, accuracy Accuracy) (Fix, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Fix{}, apperrors.New(apperrors.ErrLocationFailed, "host has not reported a position")
	}
	return *b.current, nil
}

// RegisterBackground implements Provider.
func (b *Bridge) RegisterBackground(ctx context.Context, opts Options, deliver DeliverFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.bgAvailable {
		return apperrors.New(apperrors.ErrLocationFailed, "background location task unavailable")
	}
	b.deliver = deliver
	b.regOpts = opts
	return nil
}

// UnregisterBackground implements Provider.
func (b *Bridge) UnregisterBackground(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = nil
	b.regOpts = Options{}
	return nil
}

var (
	_ Permissions = (*Bridge)(nil)
	_ Provider    = (*Bridge)(nil)
)
