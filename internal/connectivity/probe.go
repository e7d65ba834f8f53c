package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kimhsiao/fieldsync/internal/logging"
)

// DefaultProbeTimeout bounds a single reachability check.
const DefaultProbeTimeout = 3 * time.Second

// Probe decides reachability by requesting a health URL on the backend.
// Any response below 500 counts as reachable.
type Probe struct {
	notifier
	url    string
	client *http.Client

	mu    sync.Mutex
	known bool
	last  bool
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithHTTPClient replaces the probe's HTTP client.
func WithHTTPClient(c *http.Client) ProbeOption {
	return func(p *Probe) { p.client = c }
}

// WithProbeTimeout sets the per-check timeout.
func WithProbeTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) { p.client.Timeout = d }
}

// NewProbe creates a probe against healthURL.
func NewProbe(healthURL string, opts ...ProbeOption) *Probe {
	p := &Probe{
		url: healthURL,
		client: &http.Client{
			Timeout:   DefaultProbeTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsOnline implements Oracle. It performs a live check and records the
// result, notifying subscribers if the state flipped.
func (p *Probe) IsOnline(ctx context.Context) (bool, error) {
	online, err := p.check(ctx)
	p.observe(online)
	return online, err
}

// Subscribe implements Oracle.
func (p *Probe) Subscribe(fn func(bool)) func() {
	return p.subscribe(fn)
}

// Watch checks reachability every interval until ctx is done.
func (p *Probe) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.IsOnline(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.IsOnline(ctx)
		}
	}
}

func (p *Probe) check(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", p.url, err)
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError, nil
}

func (p *Probe) observe(online bool) {
	p.mu.Lock()
	changed := !p.known || p.last != online
	first := !p.known
	p.known = true
	p.last = online
	p.mu.Unlock()

	if !changed {
		return
	}
	logging.Info("Online status changed", map[string]interface{}{
		"is_online": online,
		"probe":     p.url,
	})
	// An initial offline reading is not a transition.
	if first && !online {
		return
	}
	p.notify(online)
}
