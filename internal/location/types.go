// Package location drives GPS sampling for field tracking: it negotiates
// permissions, prefers platform background delivery, falls back to
// foreground polling, and hands every fix to the sync engine.
package location

import (
	"context"
	"time"

	"github.com/kimhsiao/fieldsync/internal/models"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
)

// State is the tracking mode.
type State string

const (
	Stopped                  State = "stopped"
	StartingBackground       State = "starting_background"
	ActiveBackground         State = "active_background"
	ActiveForegroundInterval State = "active_foreground_interval"
	StoppingFailed           State = "stopping_failed"
)

// Active reports whether s produces samples.
func (s State) Active() bool {
	return s == ActiveBackground || s == ActiveForegroundInterval
}

// Accuracy is the platform sampling accuracy tier.
type Accuracy string

const (
	AccuracyLowest            Accuracy = "lowest"
	AccuracyLow               Accuracy = "low"
	AccuracyBalanced          Accuracy = "balanced"
	AccuracyHigh              Accuracy = "high"
	AccuracyHighest           Accuracy = "highest"
	AccuracyBestForNavigation Accuracy = "best_for_navigation"
)

// Valid reports whether a is a known tier.
func (a Accuracy) Valid() bool {
	switch a {
	case AccuracyLowest, AccuracyLow, AccuracyBalanced, AccuracyHigh,
		AccuracyHighest, AccuracyBestForNavigation:
		return true
	}
	return false
}

// Fix is a raw position reported by the platform.
type Fix struct {
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Accuracy     float64   `json:"accuracy"`
	Speed        *float64  `json:"speed,omitempty"`
	Heading      *float64  `json:"heading,omitempty"`
	Altitude     *float64  `json:"altitude,omitempty"`
	BatteryLevel *float64  `json:"batteryLevel,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PermissionStatus is the answer of a permission query.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Permissions queries and requests location permissions from the platform.
type Permissions interface {
	Foreground(ctx context.Context) (PermissionStatus, error)
	RequestForeground(ctx context.Context) (PermissionStatus, error)
	Background(ctx context.Context) (PermissionStatus, error)
	RequestBackground(ctx context.Context) (PermissionStatus, error)
}

// DeliverFunc receives fixes from a background registration.
type DeliverFunc func(ctx context.Context, fixes []Fix)

// Provider acquires fixes from the platform.
type Provider interface {
	CurrentFix(ctx context.Context, accuracy Accuracy) (Fix, error)
	RegisterBackground(ctx context.Context, opts Options, deliver DeliverFunc) error
	UnregisterBackground(ctx context.Context) error
}

// Sink accepts normalized location logs. The sync engine implements it.
type Sink interface {
	SubmitLocation(ctx context.Context, log models.LocationLog) (syncpkg.SubmitOutcome, error)
}

// Options configures sampling.
type Options struct {
	Interval          time.Duration
	MinDistanceMeters float64
	Accuracy          Accuracy
	Platform          models.Platform
}

// DefaultOptions returns the standard field-tracking settings.
func DefaultOptions() Options {
	return Options{
		Interval:          5 * time.Minute,
		MinDistanceMeters: 50,
		Accuracy:          AccuracyBalanced,
		Platform:          models.PlatformAndroid,
	}
}
