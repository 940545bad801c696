// Package history reads recorded ride demand and trips used to train the
// demand and clustering models.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
)

// Errors returned by history sources.
var (
	// ErrUnavailable is returned when the underlying store cannot be read
	// and no previous snapshot exists.
	ErrUnavailable = errors.New("ride history unavailable")
)

// Source provides recorded observations.
type Source interface {
	// RecentDemand returns hourly passenger observations recorded at or
	// after since, oldest first.
	RecentDemand(ctx context.Context, since time.Time) ([]demand.TrainingRecord, error)

	// RecentTrips returns trips started at or after since, oldest first.
	RecentTrips(ctx context.Context, since time.Time) ([]clustering.TripPattern, error)

	// UserTrips returns every recorded trip of one rider, oldest first.
	UserTrips(ctx context.Context, userID int64) ([]clustering.TripPattern, error)
}

// Repository is a Source that also accepts new observations.
type Repository interface {
	Source

	// AddDemand stores passenger observations.
	AddDemand(ctx context.Context, records []demand.TrainingRecord) error

	// AddTrips stores trips.
	AddTrips(ctx context.Context, trips []clustering.TripPattern) error
}

// Snapshot is a training dataset read from a Source.
type Snapshot struct {
	Demand []demand.TrainingRecord
	Trips  []clustering.TripPattern
	// Stale is set when the store failed and a previous read was reused.
	Stale bool
}
