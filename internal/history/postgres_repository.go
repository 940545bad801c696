package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Derived calendar features are recomputed from the stored timestamps.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// RecentDemand returns observations at or after since, oldest first.
func (r *PostgresRepository) RecentDemand(ctx context.Context, since time.Time) ([]demand.TrainingRecord, error) {
	query := `
		SELECT route_id, observed_at, is_holiday, temperature, weather, passengers
		FROM ride_demand_history
		WHERE observed_at >= $1
		ORDER BY observed_at
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query demand history: %w", err)
	}
	defer rows.Close()

	var records []demand.TrainingRecord
	for rows.Next() {
		var (
			routeID     int64
			observedAt  time.Time
			isHoliday   bool
			temperature float64
			weather     string
			passengers  int
		)
		if err := rows.Scan(&routeID, &observedAt, &isHoliday, &temperature, &weather, &passengers); err != nil {
			return nil, fmt.Errorf("scan demand history: %w", err)
		}

		rec := demand.NewRecord(routeID, observedAt.UTC())
		rec.IsHoliday = isHoliday
		rec.Temperature = temperature
		rec.Weather = demand.ParseWeather(weather)
		records = append(records, demand.TrainingRecord{FeatureRecord: rec, Passengers: passengers})
	}

	return records, rows.Err()
}

const tripColumns = `
	user_id, card_id, started_at, route_id,
	origin_lat, origin_lon, dest_lat, dest_lon,
	distance_km, duration_min, cost, weekly_frequency
`

// RecentTrips returns trips started at or after since, oldest first.
func (r *PostgresRepository) RecentTrips(ctx context.Context, since time.Time) ([]clustering.TripPattern, error) {
	query := `SELECT ` + tripColumns + `
		FROM trip_history
		WHERE started_at >= $1
		ORDER BY started_at
	`
	return r.queryTrips(ctx, query, since)
}

// UserTrips returns the trips of one rider, oldest first.
func (r *PostgresRepository) UserTrips(ctx context.Context, userID int64) ([]clustering.TripPattern, error) {
	query := `SELECT ` + tripColumns + `
		FROM trip_history
		WHERE user_id = $1
		ORDER BY started_at
	`
	return r.queryTrips(ctx, query, userID)
}

// queryTrips scans trips from a query result.
func (r *PostgresRepository) queryTrips(ctx context.Context, query string, args ...interface{}) ([]clustering.TripPattern, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trip history: %w", err)
	}
	defer rows.Close()

	var trips []clustering.TripPattern
	for rows.Next() {
		var t clustering.TripPattern
		err := rows.Scan(
			&t.UserID,
			&t.CardID,
			&t.Timestamp,
			&t.RouteID,
			&t.OriginLat,
			&t.OriginLon,
			&t.DestLat,
			&t.DestLon,
			&t.DistanceKm,
			&t.DurationMin,
			&t.Cost,
			&t.WeeklyFrequency,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trip history: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		t.DayOfWeek = demand.ISOWeekday(t.Timestamp)
		t.Hour = t.Timestamp.Hour()
		trips = append(trips, t)
	}

	return trips, rows.Err()
}

// AddDemand bulk-loads observations with COPY.
func (r *PostgresRepository) AddDemand(ctx context.Context, records []demand.TrainingRecord) error {
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"ride_demand_history"},
		[]string{"route_id", "observed_at", "is_holiday", "temperature", "weather", "passengers"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rec := records[i]
			return []any{
				rec.RouteID,
				rec.Timestamp,
				rec.IsHoliday,
				rec.Temperature,
				string(rec.Weather),
				rec.Passengers,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy demand history: %w", err)
	}
	return nil
}

// AddTrips bulk-loads trips with COPY.
func (r *PostgresRepository) AddTrips(ctx context.Context, trips []clustering.TripPattern) error {
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"trip_history"},
		[]string{
			"user_id", "card_id", "started_at", "route_id",
			"origin_lat", "origin_lon", "dest_lat", "dest_lon",
			"distance_km", "duration_min", "cost", "weekly_frequency",
		},
		pgx.CopyFromSlice(len(trips), func(i int) ([]any, error) {
			t := trips[i]
			return []any{
				t.UserID, t.CardID, t.Timestamp, t.RouteID,
				t.OriginLat, t.OriginLon, t.DestLat, t.DestLon,
				t.DistanceKm, t.DurationMin, t.Cost, t.WeeklyFrequency,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy trip history: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
