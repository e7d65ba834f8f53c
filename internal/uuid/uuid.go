// Package uuid provides identifier generation and validation for queue
// records and hub events.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// UUID v7 shares the layout with a leading 48-bit millisecond timestamp.
var uuidV7Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-7[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a random UUID v4.
func New() string {
	return uuid.New().String()
}

// NewOrdered generates a UUID v7. Values generated by one process sort in
// creation order, which makes them usable as pending record keys.
func NewOrdered() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate ordered id: %w", err)
	}
	return id.String(), nil
}

// IsValid checks if a string is a valid UUID v4.
// Enforces strict format with dashes and correct variant bits.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// IsOrdered checks if a string is a valid UUID v7.
func IsOrdered(s string) bool {
	return uuidV7Regex.MatchString(s)
}

// Validate returns an error if the string is neither a UUID v4 nor a v7.
func Validate(s string) error {
	if !IsValid(s) && !IsOrdered(s) {
		return fmt.Errorf("invalid UUID format: %q", s)
	}
	return nil
}
