// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libfieldsync.so (Android) / fieldsync.framework (iOS)
//
//	go build -buildmode=c-shared -o libfieldsync.so ./cmd/mobile
//
// The host app owns connectivity and location. It pushes both in through
// SetOnline, SetPermissions, DeliverFixes and UpdateCurrentFix.
package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kimhsiao/fieldsync/internal/agent"
	"github.com/kimhsiao/fieldsync/internal/config"
	"github.com/kimhsiao/fieldsync/internal/connectivity"
	"github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/location"
	"github.com/kimhsiao/fieldsync/internal/models"
)

// Version is set at build time
var Version = "0.1.0"

// mobileCore is the process-wide state behind the exported functions.
type mobileCore struct {
	mu     sync.Mutex
	agent  *agent.Agent
	oracle *connectivity.Manual
	bridge *location.Bridge
	ctx    context.Context
	cancel context.CancelFunc
}

var core mobileCore

var errNotInitialized = errors.New(errors.ErrInternal, "core not initialized")

// current returns the running agent and its long-lived context.
func (c *mobileCore) current() (*agent.Agent, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agent == nil {
		return nil, nil, errNotInitialized
	}
	return c.agent, c.ctx, nil
}

func (c *mobileCore) init(configJSON string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agent != nil {
		return errors.New(errors.ErrInvalid, "core already initialized")
	}

	cfg, err := config.Parse([]byte(configJSON))
	if err != nil {
		return err
	}

	oracle := connectivity.NewManual(false)
	bridge := location.NewBridge()
	a, err := agent.New(cfg, agent.Options{
		Oracle:      oracle,
		Permissions: bridge,
		Provider:    bridge,
		Version:     Version,
	})
	if err != nil {
		return err
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	a.Start(c.ctx)
	c.agent, c.oracle, c.bridge = a, oracle, bridge
	return nil
}

func (c *mobileCore) cleanup() error {
	c.mu.Lock()
	a, cancel := c.agent, c.cancel
	c.agent, c.oracle, c.bridge, c.cancel = nil, nil, nil, nil
	c.mu.Unlock()

	if a == nil {
		return nil
	}
	err := a.Close(context.Background())
	cancel()
	return err
}

func (c *mobileCore) setOnline(online bool) error {
	c.mu.Lock()
	oracle := c.oracle
	c.mu.Unlock()
	if oracle == nil {
		return errNotInitialized
	}
	oracle.Set(online)
	return nil
}

func (c *mobileCore) submit(kind models.Kind, payloadJSON string) (string, error) {
	a, ctx, err := c.current()
	if err != nil {
		return "", err
	}
	payload, err := models.DecodePayload(kind, []byte(payloadJSON))
	if err != nil {
		return "", errors.Wrap(errors.ErrValidation, "invalid "+string(kind), err)
	}
	outcome, err := a.Engine.SubmitOrQueue(ctx, payload)
	if err != nil {
		return "", err
	}
	a.Scheduler.RefreshPending(ctx)
	return marshal(outcome)
}

func (c *mobileCore) syncNow() (string, error) {
	a, ctx, err := c.current()
	if err != nil {
		return "", err
	}
	result, err := a.Scheduler.SyncNow(ctx)
	if err != nil {
		return "", err
	}
	return marshal(result)
}

func (c *mobileCore) pendingCounts() (string, error) {
	a, ctx, err := c.current()
	if err != nil {
		return "", err
	}
	counts, err := a.Engine.PendingCounts(ctx)
	if err != nil {
		return "", err
	}
	return marshal(counts)
}

func (c *mobileCore) setPermissions(foreground, background string) error {
	c.mu.Lock()
	bridge := c.bridge
	c.mu.Unlock()
	if bridge == nil {
		return errNotInitialized
	}
	bridge.SetPermissions(location.PermissionStatus(foreground), location.PermissionStatus(background))
	return nil
}

func (c *mobileCore) setBackgroundAvailable(available bool) error {
	c.mu.Lock()
	bridge := c.bridge
	c.mu.Unlock()
	if bridge == nil {
		return errNotInitialized
	}
	bridge.SetBackgroundAvailable(available)
	return nil
}

func (c *mobileCore) trackingStart() (string, error) {
	a, ctx, err := c.current()
	if err != nil {
		return "", err
	}
	return stateJSON(a.Sampler.Start(ctx))
}

func (c *mobileCore) trackingStop() (string, error) {
	a, ctx, err := c.current()
	if err != nil {
		return "", err
	}
	return stateJSON(a.Sampler.Stop(ctx))
}

func (c *mobileCore) trackingState() (string, error) {
	a, _, err := c.current()
	if err != nil {
		return "", err
	}
	return stateJSON(a.Sampler.State())
}

// deliverFixes forwards a background batch. It reports whether a background
// registration was active to receive it.
func (c *mobileCore) deliverFixes(fixesJSON string) (bool, error) {
	_, ctx, err := c.current()
	if err != nil {
		return false, err
	}
	var fixes []location.Fix
	if err := json.Unmarshal([]byte(fixesJSON), &fixes); err != nil {
		return false, errors.Wrap(errors.ErrInvalid, "invalid fixes", err)
	}
	c.mu.Lock()
	bridge := c.bridge
	c.mu.Unlock()
	if bridge == nil {
		return false, errNotInitialized
	}
	return bridge.Push(ctx, fixes), nil
}

func (c *mobileCore) updateCurrentFix(fixJSON string) error {
	c.mu.Lock()
	bridge := c.bridge
	c.mu.Unlock()
	if bridge == nil {
		return errNotInitialized
	}
	var fix location.Fix
	if err := json.Unmarshal([]byte(fixJSON), &fix); err != nil {
		return errors.Wrap(errors.ErrInvalid, "invalid fix", err)
	}
	bridge.UpdateCurrentFix(fix)
	return nil
}

func stateJSON(state location.State) (string, error) {
	return marshal(map[string]interface{}{
		"state":  state,
		"active": state.Active(),
	})
}

func marshal(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(errors.ErrInternal, "failed to serialize", err)
	}
	return string(data), nil
}

func main() {
	// Required for building as a shared library
}
