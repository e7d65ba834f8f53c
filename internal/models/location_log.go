package models

import (
	"math"
	"time"
)

// Platform tags the device that produced a location log.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
	PlatformDesktop Platform = "desktop"
)

// LocationLog is the create-location-log request body.
type LocationLog struct {
	Location     GeoPoint  `json:"location"`
	Accuracy     float64   `json:"accuracy"`
	Speed        *float64  `json:"speed,omitempty"`
	Heading      *float64  `json:"heading,omitempty"`
	Altitude     *float64  `json:"altitude,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Platform     Platform  `json:"platform"`
	BatteryLevel *float64  `json:"batteryLevel,omitempty"`
}

// Kind implements Payload.
func (LocationLog) Kind() Kind { return KindLocation }

// Validate implements Payload.
func (l LocationLog) Validate() error {
	if err := l.Location.Validate(); err != nil {
		return invalid(KindLocation, "location", err.Error())
	}
	if l.Accuracy < 0 || !isFinite(l.Accuracy) {
		return invalid(KindLocation, "accuracy", "must be a non-negative number")
	}
	for field, v := range map[string]*float64{
		"speed":        l.Speed,
		"heading":      l.Heading,
		"altitude":     l.Altitude,
		"batteryLevel": l.BatteryLevel,
	} {
		if v != nil && !isFinite(*v) {
			return invalid(KindLocation, field, "must be a finite number")
		}
	}
	if l.Timestamp.IsZero() {
		return invalid(KindLocation, "timestamp", "required")
	}
	if l.Platform == "" {
		return invalid(KindLocation, "platform", "required")
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DecodeLocationLog validates raw JSON against the location schema and decodes it.
func DecodeLocationLog(data []byte) (LocationLog, error) {
	var l LocationLog
	if err := decodeInto("location_log", data, &l); err != nil {
		return LocationLog{}, err
	}
	return l, nil
}
