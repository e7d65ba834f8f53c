// Package models provides the payloads exchanged between the field app, the
// offline queues and the REST backend.
package models

import (
	"fmt"
	"math"
)

// GeoPoint is a GeoJSON point. Coordinates are ordered [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewGeoPoint builds a point from latitude and longitude.
func NewGeoPoint(latitude, longitude float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{longitude, latitude}}
}

// Longitude returns the first coordinate.
func (p GeoPoint) Longitude() float64 { return p.Coordinates[0] }

// Latitude returns the second coordinate.
func (p GeoPoint) Latitude() float64 { return p.Coordinates[1] }

// Validate checks the point type and coordinate ranges.
func (p GeoPoint) Validate() error {
	if p.Type != "Point" {
		return fmt.Errorf("location type must be Point, got %q", p.Type)
	}
	lng, lat := p.Longitude(), p.Latitude()
	if math.IsNaN(lng) || math.IsNaN(lat) {
		return fmt.Errorf("location coordinates must be numbers")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range", lng)
	}
	return nil
}
