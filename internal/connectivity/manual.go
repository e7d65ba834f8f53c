package connectivity

import (
	"context"
	"sync"

	"github.com/kimhsiao/fieldsync/internal/logging"
)

// Manual is an oracle whose state is pushed by the host platform, for
// example from the OS network-change callback.
type Manual struct {
	notifier
	mu     sync.RWMutex
	online bool
}

// NewManual creates a Manual oracle with an initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

// IsOnline implements Oracle.
func (m *Manual) IsOnline(ctx context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online, nil
}

// Subscribe implements Oracle.
func (m *Manual) Subscribe(fn func(bool)) func() {
	return m.subscribe(fn)
}

// Set updates the state. Subscribers are notified only when it changes.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if was == online {
		return
	}
	logging.Info("Online status changed", map[string]interface{}{
		"was_online": was,
		"is_online":  online,
	})
	m.notify(online)
}
