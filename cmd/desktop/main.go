// Package main provides the FieldSync desktop server.
// Desktop clients communicate via REST/WebSocket on localhost:8090.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kimhsiao/fieldsync/cmd/desktop/handlers"
	"github.com/kimhsiao/fieldsync/internal/agent"
	"github.com/kimhsiao/fieldsync/internal/config"
	"github.com/kimhsiao/fieldsync/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fieldsync-desktop: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("fieldsync-desktop", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	addr := fs.String("addr", "", "listen address (overrides desktop.listenAddr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Desktop.ListenAddr = *addr
	}

	a, err := agent.New(cfg, agent.Options{Version: Version})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	hub := NewWSHub()
	defer hub.Close()
	unsubscribe := wireEvents(a, hub)
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Desktop.ListenAddr,
		Handler:           newRouter(a, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("FieldSync Desktop Server starting", map[string]interface{}{
			"addr":    srv.Addr,
			"version": Version,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("Shutting down desktop server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// wireEvents forwards engine, connectivity and pending-count updates to
// WebSocket clients. The returned func detaches the connectivity listener.
func wireEvents(a *agent.Agent, hub *WSHub) func() {
	a.Engine.SetEventHandler(hub)
	a.Scheduler.OnPendingChange(hub.BroadcastPending)
	return a.Oracle.Subscribe(hub.BroadcastConnectivity)
}

// newRouter registers the REST routes behind otelhttp and the WebSocket
// endpoint beside them.
func newRouter(a *agent.Agent, hub *WSHub) http.Handler {
	h := handlers.NewSyncHandler(a.Engine, a.Scheduler)

	api := http.NewServeMux()
	api.HandleFunc("/api/health", h.Health)
	api.HandleFunc("/api/status", h.GetStatus)
	api.HandleFunc("/api/pending", h.GetPending)
	api.HandleFunc("/api/sync", h.TriggerSync)
	api.HandleFunc("/api/visits", h.CreateVisit)
	api.HandleFunc("/api/locations", h.CreateLocation)

	mux := http.NewServeMux()
	mux.Handle("/api/", otelhttp.NewHandler(api, "fieldsync-desktop"))
	mux.HandleFunc("/ws", HandleWebSocket(hub))
	return mux
}
