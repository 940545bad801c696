package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/provider/resilience"
)

// Dependency names reported to the resilience registry.
const (
	DemandDependency = "history-demand"
	TripsDependency  = "history-trips"
)

// ResilientConfig holds configuration for a ResilientSource.
type ResilientConfig struct {
	Source   Source
	Logger   zerolog.Logger
	Registry *resilience.Registry

	// Timeout bounds each read attempt.
	// Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after a failed read.
	// Default: 2
	MaxRetries uint64
}

// ResilientSource reads through circuit breakers with retries. When a bulk
// read fails it serves the last successful result, marked stale.
type ResilientSource struct {
	source Source
	logger zerolog.Logger
	demand *resilience.Executor[[]demand.TrainingRecord]
	trips  *resilience.Executor[[]clustering.TripPattern]

	mu         sync.RWMutex
	lastDemand []demand.TrainingRecord
	lastTrips  []clustering.TripPattern
}

// NewResilientSource wraps cfg.Source.
func NewResilientSource(cfg ResilientConfig) *ResilientSource {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}

	execCfg := func(name string) resilience.ExecutorConfig {
		c := resilience.DefaultExecutorConfig(name)
		c.Timeout = cfg.Timeout
		c.MaxRetries = cfg.MaxRetries
		c.Registry = cfg.Registry
		return c
	}

	return &ResilientSource{
		source: cfg.Source,
		logger: cfg.Logger.With().Str("component", "history").Logger(),
		demand: resilience.NewExecutor[[]demand.TrainingRecord](execCfg(DemandDependency)),
		trips:  resilience.NewExecutor[[]clustering.TripPattern](execCfg(TripsDependency)),
	}
}

// RecentDemand implements Source.
func (s *ResilientSource) RecentDemand(ctx context.Context, since time.Time) ([]demand.TrainingRecord, error) {
	records, _, err := s.recentDemand(ctx, since)
	return records, err
}

func (s *ResilientSource) recentDemand(ctx context.Context, since time.Time) ([]demand.TrainingRecord, bool, error) {
	records, err := s.demand.Execute(ctx, func(ctx context.Context) ([]demand.TrainingRecord, error) {
		return s.source.RecentDemand(ctx, since)
	})
	if err == nil {
		s.mu.Lock()
		s.lastDemand = records
		s.mu.Unlock()
		return records, false, nil
	}

	s.mu.RLock()
	stale := s.lastDemand
	s.mu.RUnlock()
	if stale == nil {
		return nil, false, fmt.Errorf("%w: demand: %w", ErrUnavailable, err)
	}

	s.logger.Warn().Err(err).Int("records", len(stale)).Msg("serving stale demand history")
	return stale, true, nil
}

// RecentTrips implements Source.
func (s *ResilientSource) RecentTrips(ctx context.Context, since time.Time) ([]clustering.TripPattern, error) {
	trips, _, err := s.recentTrips(ctx, since)
	return trips, err
}

func (s *ResilientSource) recentTrips(ctx context.Context, since time.Time) ([]clustering.TripPattern, bool, error) {
	trips, err := s.trips.Execute(ctx, func(ctx context.Context) ([]clustering.TripPattern, error) {
		return s.source.RecentTrips(ctx, since)
	})
	if err == nil {
		s.mu.Lock()
		s.lastTrips = trips
		s.mu.Unlock()
		return trips, false, nil
	}

	s.mu.RLock()
	stale := s.lastTrips
	s.mu.RUnlock()
	if stale == nil {
		return nil, false, fmt.Errorf("%w: trips: %w", ErrUnavailable, err)
	}

	s.logger.Warn().Err(err).Int("trips", len(stale)).Msg("serving stale trip history")
	return stale, true, nil
}

// UserTrips implements Source. Per-rider reads have no stale fallback.
func (s *ResilientSource) UserTrips(ctx context.Context, userID int64) ([]clustering.TripPattern, error) {
	trips, err := s.trips.Execute(ctx, func(ctx context.Context) ([]clustering.TripPattern, error) {
		return s.source.UserTrips(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: user %d: %w", ErrUnavailable, userID, err)
	}
	return trips, nil
}

// Snapshot reads the demand and trip history recorded since the given time.
// Each half fails independently; the returned error joins both failures.
func (s *ResilientSource) Snapshot(ctx context.Context, since time.Time) (Snapshot, error) {
	var snap Snapshot

	records, staleDemand, demandErr := s.recentDemand(ctx, since)
	trips, staleTrips, tripsErr := s.recentTrips(ctx, since)

	snap.Demand = records
	snap.Trips = trips
	snap.Stale = staleDemand || staleTrips

	return snap, errors.Join(demandErr, tripsErr)
}

var _ Source = (*ResilientSource)(nil)
