// Package main provides the headless FieldSync agent. It keeps the pending
// queues draining against the backend with an HTTP reachability probe.
//
// Usage:
//
//	fieldsync-core -config fieldsync.yaml
//	fieldsync-core -once
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kimhsiao/fieldsync/internal/agent"
	"github.com/kimhsiao/fieldsync/internal/config"
	"github.com/kimhsiao/fieldsync/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fieldsync-core: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fieldsync-core", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	once := fs.Bool("once", false, "drain the pending queues once and print the result")
	version := fs.Bool("version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *version {
		fmt.Fprintf(stdout, "FieldSync Core v%s\n", Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	a, err := agent.New(cfg, agent.Options{Version: Version})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			logging.Error("Failed to close agent", err, nil)
		}
	}()

	if *once {
		return drainOnce(a, stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Start(ctx)
	logging.Info("FieldSync Core started", map[string]interface{}{
		"version":  Version,
		"interval": cfg.Sync.Interval.String(),
	})

	<-ctx.Done()
	logging.Info("Shutting down", nil)
	return nil
}

// drainOnce runs a single drain and writes the result as JSON.
func drainOnce(a *agent.Agent, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := a.Engine.Drain(ctx)
	if err != nil {
		return err
	}
	counts, err := a.Engine.PendingCounts(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"result":  result,
		"pending": counts,
	})
}
