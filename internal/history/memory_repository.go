package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
)

// InMemoryRepository is an in-memory implementation of Repository.
// It backs local runs and tests. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	demand []demand.TrainingRecord
	trips  []clustering.TripPattern
}

// NewInMemoryRepository creates a new in-memory history repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// RecentDemand returns observations at or after since, oldest first.
func (r *InMemoryRepository) RecentDemand(_ context.Context, since time.Time) ([]demand.TrainingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []demand.TrainingRecord
	for _, rec := range r.demand {
		if !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, func(a, b demand.TrainingRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

// RecentTrips returns trips at or after since, oldest first.
func (r *InMemoryRepository) RecentTrips(_ context.Context, since time.Time) ([]clustering.TripPattern, error) {
	return r.filterTrips(func(t clustering.TripPattern) bool {
		return !t.Timestamp.Before(since)
	}), nil
}

// UserTrips returns the trips of one rider, oldest first.
func (r *InMemoryRepository) UserTrips(_ context.Context, userID int64) ([]clustering.TripPattern, error) {
	return r.filterTrips(func(t clustering.TripPattern) bool {
		return t.UserID == userID
	}), nil
}

func (r *InMemoryRepository) filterTrips(keep func(clustering.TripPattern) bool) []clustering.TripPattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []clustering.TripPattern
	for _, t := range r.trips {
		if keep(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b clustering.TripPattern) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// AddDemand stores observations.
func (r *InMemoryRepository) AddDemand(_ context.Context, records []demand.TrainingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.demand = append(r.demand, records...)
	return nil
}

// AddTrips stores trips.
func (r *InMemoryRepository) AddTrips(_ context.Context, trips []clustering.TripPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips = append(r.trips, trips...)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
