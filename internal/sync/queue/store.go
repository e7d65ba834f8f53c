package queue

import (
	"context"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// Counts is the number of pending records per queue.
type Counts struct {
	Visits    int `json:"visits"`
	Locations int `json:"locations"`
}

// Total returns the sum of both queues.
func (c Counts) Total() int {
	return c.Visits + c.Locations
}

// Store holds the two independent pending queues over one backend.
type Store struct {
	Visits    *Queue[models.Visit]
	Locations *Queue[models.LocationLog]
}

// NewStore creates both queues over backend.
func NewStore(backend Backend, opts ...Option) (*Store, error) {
	visits, err := New[models.Visit](Visits, backend, opts...)
	if err != nil {
		return nil, err
	}
	locations, err := New[models.LocationLog](Locations, backend, opts...)
	if err != nil {
		return nil, err
	}
	return &Store{Visits: visits, Locations: locations}, nil
}

// Counts returns the size of both queues.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	v, err := s.Visits.Count(ctx)
	if err != nil {
		return Counts{}, err
	}
	l, err := s.Locations.Count(ctx)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Visits: v, Locations: l}, nil
}
