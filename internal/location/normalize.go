package location

import (
	"context"
	"math"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
)

// Normalize converts a platform fix into a location log payload.
// Negative speed or heading is the platform's "unknown" marker and is
// dropped, as is any non-finite optional reading.
func Normalize(fix Fix, platform models.Platform) models.LocationLog {
	accuracy := fix.Accuracy
	if accuracy < 0 || math.IsNaN(accuracy) || math.IsInf(accuracy, 0) {
		accuracy = 0
	}
	return models.LocationLog{
		Location:     models.NewGeoPoint(fix.Latitude, fix.Longitude),
		Accuracy:     accuracy,
		Speed:        nonNegative(fix.Speed),
		Heading:      nonNegative(fix.Heading),
		Altitude:     finite(fix.Altitude),
		Timestamp:    fix.Timestamp,
		Platform:     platform,
		BatteryLevel: finite(fix.BatteryLevel),
	}
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Dispatch hands logs to sink in order and returns how many it accepted,
// whether submitted or queued. Rejected logs are logged and skipped.
func Dispatch(ctx context.Context, sink Sink, logs []models.LocationLog) int {
	accepted := 0
	for _, log := range logs {
		if _, err := sink.SubmitLocation(ctx, log); err != nil {
			logging.ErrorWithCode("Location sample not accepted", string(apperrors.CodeOf(err)), err,
				map[string]interface{}{"timestamp": log.Timestamp})
			continue
		}
		accepted++
	}
	return accepted
}
