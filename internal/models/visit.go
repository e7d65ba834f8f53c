package models

import (
	"strconv"
	"time"
)

// VisitOutcome classifies what happened at a doctor visit.
type VisitOutcome string

const (
	OutcomeMetDoctor          VisitOutcome = "MET_DOCTOR"
	OutcomeDoctorNotAvailable VisitOutcome = "DOCTOR_NOT_AVAILABLE"
	OutcomeDoctorDidNotMeet   VisitOutcome = "DOCTOR_DID_NOT_MEET"
	OutcomeClinicClosed       VisitOutcome = "CLINIC_CLOSED"
	OutcomeOther              VisitOutcome = "OTHER"
)

// Valid reports whether o is a known outcome.
func (o VisitOutcome) Valid() bool {
	switch o {
	case OutcomeMetDoctor, OutcomeDoctorNotAvailable, OutcomeDoctorDidNotMeet,
		OutcomeClinicClosed, OutcomeOther:
		return true
	}
	return false
}

// VisitStatus is the lifecycle status sent with a visit.
type VisitStatus string

const (
	VisitStatusCompleted VisitStatus = "COMPLETED"
	VisitStatusPlanned   VisitStatus = "PLANNED"
	VisitStatusCancelled VisitStatus = "CANCELLED"
)

// ProductDiscussion is a product covered during a visit.
type ProductDiscussion struct {
	ProductID    string `json:"product"`
	SamplesGiven int    `json:"samplesGiven,omitempty"`
	Feedback     string `json:"feedback,omitempty"`
}

// Visit is the create-visit request body.
type Visit struct {
	DoctorID          string              `json:"doctor"`
	VisitDate         time.Time           `json:"visitDate"`
	Outcome           VisitOutcome        `json:"outcome"`
	Purpose           string              `json:"purpose,omitempty"`
	ProductsDiscussed []ProductDiscussion `json:"productsDiscussed,omitempty"`
	CheckInTime       *time.Time          `json:"checkInTime,omitempty"`
	CheckOutTime      *time.Time          `json:"checkOutTime,omitempty"`
	DurationMinutes   int                 `json:"duration,omitempty"`
	Location          *GeoPoint           `json:"location,omitempty"`
	Status            VisitStatus         `json:"status,omitempty"`
	Notes             string              `json:"notes,omitempty"`
}

// Kind implements Payload.
func (Visit) Kind() Kind { return KindVisit }

// Validate implements Payload.
func (v Visit) Validate() error {
	if v.DoctorID == "" {
		return invalid(KindVisit, "doctor", "required")
	}
	if v.VisitDate.IsZero() {
		return invalid(KindVisit, "visitDate", "required")
	}
	if !v.Outcome.Valid() {
		return invalid(KindVisit, "outcome", "unknown outcome "+string(v.Outcome))
	}
	if v.Location == nil {
		return invalid(KindVisit, "location", "GPS point required")
	}
	if err := v.Location.Validate(); err != nil {
		return invalid(KindVisit, "location", err.Error())
	}
	if v.CheckInTime != nil && v.CheckOutTime != nil && v.CheckOutTime.Before(*v.CheckInTime) {
		return invalid(KindVisit, "checkOutTime", "before checkInTime")
	}
	for i, p := range v.ProductsDiscussed {
		if p.ProductID == "" {
			return invalid(KindVisit, "productsDiscussed", "product missing at index "+strconv.Itoa(i))
		}
	}
	return nil
}

// Normalized returns a copy with derived fields filled in: the duration
// from check-in/check-out and the default status.
func (v Visit) Normalized() Visit {
	if v.CheckInTime != nil && v.CheckOutTime != nil && v.DurationMinutes == 0 {
		v.DurationMinutes = int(v.CheckOutTime.Sub(*v.CheckInTime).Round(time.Minute) / time.Minute)
	}
	if v.Status == "" {
		v.Status = VisitStatusCompleted
	}
	return v
}

// DecodeVisit validates raw JSON against the visit schema and decodes it.
func DecodeVisit(data []byte) (Visit, error) {
	var v Visit
	if err := decodeInto("visit", data, &v); err != nil {
		return Visit{}, err
	}
	return v, nil
}
