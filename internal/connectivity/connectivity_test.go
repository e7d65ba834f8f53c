package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *recorder) record(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, online)
}

func (r *recorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func equalEvents(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestManual_SetNotifiesOnFlip(t *testing.T) {
	m := NewManual(false)
	rec := &recorder{}
	m.Subscribe(rec.record)

	m.Set(false)
	m.Set(true)
	m.Set(true)
	m.Set(false)

	if got, want := rec.snapshot(), []bool{true, false}; !equalEvents(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	online, err := m.IsOnline(context.Background())
	if err != nil || online {
		t.Errorf("IsOnline() = %v, %v; want false, nil", online, err)
	}
}

func TestManual_Unsubscribe(t *testing.T) {
	m := NewManual(false)
	rec := &recorder{}
	unsubscribe := m.Subscribe(rec.record)

	m.Set(true)
	unsubscribe()
	unsubscribe()
	m.Set(false)

	if got := rec.snapshot(); !equalEvents(got, []bool{true}) {
		t.Errorf("events = %v, want [true]", got)
	}
}

func TestManual_SubscribersInOrder(t *testing.T) {
	m := NewManual(false)
	var order []int
	m.Subscribe(func(bool) { order = append(order, 1) })
	m.Subscribe(func(bool) { order = append(order, 2) })
	m.Subscribe(func(bool) { order = append(order, 3) })

	m.Set(true)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("subscriber order = %v, want [1 2 3]", order)
	}
}

func TestOnline(t *testing.T) {
	if Online(context.Background(), NewManual(false)) {
		t.Error("Online() should be false for offline oracle")
	}
	if !Online(context.Background(), NewManual(true)) {
		t.Error("Online() should be true for online oracle")
	}

	// Unreachable URL yields an error, which collapses to offline.
	p := NewProbe("http://127.0.0.1:1/health", WithProbeTimeout(200*time.Millisecond))
	if Online(context.Background(), p) {
		t.Error("Online() should be false when the probe errors")
	}
}

func TestProbe_IsOnline(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"unauthorized still reachable", http.StatusUnauthorized, true},
		{"server error", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewProbe(srv.URL + "/health")
			got, err := p.IsOnline(context.Background())
			if err != nil {
				t.Fatalf("IsOnline() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsOnline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbe_NotifiesOnFlip(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL)
	rec := &recorder{}
	p.Subscribe(rec.record)
	ctx := context.Background()

	p.IsOnline(ctx) // offline baseline, silent
	healthy.Store(true)
	p.IsOnline(ctx)
	p.IsOnline(ctx)
	healthy.Store(false)
	p.IsOnline(ctx)

	if got, want := rec.snapshot(), []bool{true, false}; !equalEvents(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestProbe_Watch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL)
	notified := make(chan bool, 4)
	p.Subscribe(func(online bool) { notified <- online })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Watch(ctx, 20*time.Millisecond)
		close(done)
	}()

	select {
	case online := <-notified:
		if !online {
			t.Error("Watch() first notification should be online")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not notify")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}
