// Package connectivity answers whether the device can currently reach the
// backend and notifies listeners when that answer flips.
package connectivity

import (
	"context"
	"sort"
	"sync"
)

// Oracle reports reachability. IsOnline returning an error means the state
// is unknown; callers treat that the same as offline.
type Oracle interface {
	IsOnline(ctx context.Context) (bool, error)

	// Subscribe registers fn for online/offline transitions and returns a
	// function that removes it.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Online collapses an oracle answer into a boolean, with errors as offline.
func Online(ctx context.Context, o Oracle) bool {
	online, err := o.IsOnline(ctx)
	return err == nil && online
}

// notifier fans a transition out to subscribers in registration order.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(bool)
}

func (n *notifier) subscribe(fn func(bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(bool))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// notify calls every subscriber outside the lock so a subscriber may
// unsubscribe or query the oracle.
func (n *notifier) notify(online bool) {
	n.mu.Lock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.subs[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}
