// Package agent wires the sync core from a Config. The headless agent, the
// desktop server and the mobile bridge all build on it.
package agent

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"sync"

	"github.com/kimhsiao/fieldsync/internal/config"
	"github.com/kimhsiao/fieldsync/internal/connectivity"
	"github.com/kimhsiao/fieldsync/internal/db"
	"github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/gateway"
	"github.com/kimhsiao/fieldsync/internal/location"
	"github.com/kimhsiao/fieldsync/internal/logging"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
	"github.com/kimhsiao/fieldsync/internal/sync/scheduler"
	"github.com/kimhsiao/fieldsync/internal/telemetry"
)

// Options replaces parts of the default wiring.
type Options struct {
	// Oracle overrides the HTTP reachability probe. Hosts that receive
	// connectivity from the OS pass a *connectivity.Manual.
	Oracle connectivity.Oracle
	// Gateway overrides the HTTP client.
	Gateway gateway.Gateway
	// Permissions and Provider enable the location sampler. Both must be set.
	Permissions location.Permissions
	Provider    location.Provider

	LogOutput io.Writer
	Version   string
}

// Agent owns every long-lived component.
type Agent struct {
	Config    *config.Config
	DB        *db.DB
	Store     *queue.Store
	Gateway   gateway.Gateway
	Oracle    connectivity.Oracle
	Engine    *syncpkg.SyncEngine
	Scheduler *scheduler.Scheduler
	// Sampler is nil unless Options supplied a location provider.
	Sampler *location.Sampler

	probe           *connectivity.Probe
	shutdownTracing func(context.Context) error

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// New opens the pending store under cfg.DataDir and builds the engine and
// scheduler. Nothing runs until Start.
func New(cfg *config.Config, opts Options) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrConfig, "config is required")
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logging.Init(out, logging.ParseLevel(cfg.Logging.Level))

	shutdown, err := telemetry.Setup(telemetry.Options{
		Enabled: cfg.Tracing.Stdout,
		Version: opts.Version,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfig, "failed to set up tracing", err)
	}

	database, err := db.OpenAndMigrate(cfg.DataDir)
	if err != nil {
		shutdown(context.Background())
		return nil, errors.Wrap(errors.ErrDatabase, "failed to open pending store", err)
	}

	store, err := queue.NewStore(queue.NewSQLiteBackend(database.DB))
	if err != nil {
		database.Close()
		shutdown(context.Background())
		return nil, err
	}

	a := &Agent{
		Config:          cfg,
		DB:              database,
		Store:           store,
		Gateway:         opts.Gateway,
		Oracle:          opts.Oracle,
		shutdownTracing: shutdown,
	}

	if a.Gateway == nil {
		a.Gateway = gateway.NewClient(cfg.API.BaseURL,
			gateway.WithTokenSource(gateway.StaticToken(cfg.API.Token)),
			gateway.WithTimeout(cfg.API.Timeout.Std()),
		)
	}
	if a.Oracle == nil {
		a.probe = connectivity.NewProbe(cfg.ProbeURL(),
			connectivity.WithProbeTimeout(cfg.Connectivity.ProbeTimeout.Std()))
		a.Oracle = a.probe
	}

	a.Engine = syncpkg.NewSyncEngine(store, a.Gateway, a.Oracle, &syncpkg.EngineConfig{
		MaxRetries: cfg.Sync.MaxRetries,
	})
	a.Scheduler = scheduler.NewScheduler(a.Engine, a.Oracle, &scheduler.SchedulerConfig{
		SyncInterval: cfg.Sync.Interval.Std(),
	})

	if opts.Permissions != nil && opts.Provider != nil {
		a.Sampler = location.NewSampler(opts.Permissions, opts.Provider, a.Engine, cfg.LocationOptions())
	}

	logging.Info("Agent initialized", map[string]interface{}{
		"data_dir": cfg.DataDir,
		"api":      cfg.API.BaseURL,
		"probe":    a.probe != nil,
		"sampler":  a.Sampler != nil,
	})
	return a, nil
}

// Start runs the probe watcher, when the agent owns one, and the scheduler.
// Both stop with ctx or Close.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true

	ctx, a.cancel = context.WithCancel(ctx)
	a.Scheduler.Start(ctx)
	if a.probe != nil {
		go a.probe.Watch(ctx, a.Config.Connectivity.ProbeInterval.Std())
	}
}

// Close stops tracking, the scheduler and the probe, then closes the store.
func (a *Agent) Close(ctx context.Context) error {
	if a.Sampler != nil && a.Sampler.State().Active() {
		a.Sampler.Stop(ctx)
	}

	// An in-flight drain finishes before the context is cancelled.
	a.Scheduler.Stop()

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.started = false
	a.mu.Unlock()

	var errs []error
	if err := a.shutdownTracing(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	logging.Info("Agent stopped", nil)
	return stderrors.Join(errs...)
}
