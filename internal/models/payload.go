package models

import (
	"encoding/json"
	"fmt"
)

// Kind tags a queued payload.
type Kind string

const (
	KindVisit    Kind = "visit"
	KindLocation Kind = "location"
)

// Payload is a domain object that can be submitted or queued.
// Validate runs before a payload enters a queue so records missing
// required fields are rejected up front rather than at replay.
type Payload interface {
	Kind() Kind
	Validate() error
}

// ValidationError reports which payload field failed validation.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s: %s", e.Kind, e.Field, e.Reason)
}

func invalid(kind Kind, field, reason string) error {
	return &ValidationError{Kind: kind, Field: field, Reason: reason}
}

// DecodePayload decodes raw JSON into the payload type for kind after
// validating it against the embedded schema.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	switch kind {
	case KindVisit:
		v, err := DecodeVisit(data)
		if err != nil {
			return nil, err
		}
		return v, nil
	case KindLocation:
		l, err := DecodeLocationLog(data)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}

func decodeInto(schemaName string, data []byte, out any) error {
	if err := validateSchema(schemaName, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", schemaName, err)
	}
	return nil
}
