// Package synthetic generates reproducible demand records, trip patterns and
// hourly passenger series for training when no ride history is available.
package synthetic

import (
	"math/rand/v2"
	"time"

	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/forecast"
)

// DefaultSeed makes generated datasets reproducible across runs.
const DefaultSeed = 42

const (
	demandWindowHours = 90 * 24
	tripWindowDays    = 30
	routes            = 5
	holidayRate       = 0.05
)

// Generator draws datasets from a single seeded stream. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
	now time.Time
}

// New creates a generator. Two generators with the same seed and now
// produce identical datasets.
func New(seed uint64, now time.Time) *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: now,
	}
}

// DemandRecords returns n labelled demand records spread over the 90 days
// before now.
func (g *Generator) DemandRecords(n int) []demand.TrainingRecord {
	start := g.now.Add(-demandWindowHours * time.Hour).Truncate(time.Hour)
	out := make([]demand.TrainingRecord, 0, n)

	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(g.rng.IntN(demandWindowHours)) * time.Hour)
		rec := demand.NewRecord(1+int64(g.rng.IntN(routes)), ts)
		rec.IsHoliday = g.rng.Float64() < holidayRate
		rec.Temperature = 15 + g.rng.Float64()*20
		rec.Weather = g.weather()

		out = append(out, demand.TrainingRecord{
			FeatureRecord: rec,
			Passengers:    g.passengers(rec),
		})
	}
	return out
}

func (g *Generator) weather() demand.Weather {
	switch r := g.rng.Float64(); {
	case r < 0.60:
		return demand.WeatherSunny
	case r < 0.85:
		return demand.WeatherCloudy
	default:
		return demand.WeatherRainy
	}
}

type passengerAdjustment struct {
	applies func(r demand.FeatureRecord) bool
	delta   int
}

// passengerAdjustments shape the base load of 10 passengers before noise.
var passengerAdjustments = []passengerAdjustment{
	{func(r demand.FeatureRecord) bool { return r.IsRushHour }, 25},
	{func(r demand.FeatureRecord) bool { return r.IsWeekend }, -8},
	{func(r demand.FeatureRecord) bool { return r.IsHoliday }, -12},
	{func(r demand.FeatureRecord) bool { return r.Hour >= 12 && r.Hour <= 14 }, 8},
	{func(r demand.FeatureRecord) bool { return r.Hour >= 21 || r.Hour <= 5 }, -7},
}

const (
	basePassengers = 10
	noiseShare     = 0.2
	rainBonus      = 5
)

func (g *Generator) passengers(r demand.FeatureRecord) int {
	base := basePassengers
	for _, adj := range passengerAdjustments {
		if adj.applies(r) {
			base += adj.delta
		}
	}

	noise := int(float64(base) * noiseShare * (g.rng.Float64() - 0.5) * 2)
	passengers := max(1, base+noise)
	if r.Weather == demand.WeatherRainy {
		passengers += rainBonus
	}
	return passengers
}

// riderType describes one synthetic rider behaviour.
type riderType struct {
	share     float64
	minTrips  int
	maxTrips  int
	frequency int
	days      func(*rand.Rand) int
	hours     func(*rand.Rand) int
}

func weekday(r *rand.Rand) int { return 1 + r.IntN(5) }
func anyDay(r *rand.Rand) int  { return 1 + r.IntN(7) }

func eitherOf(a, b int) func(*rand.Rand) int {
	return func(r *rand.Rand) int {
		if r.IntN(2) == 0 {
			return a + r.IntN(2)
		}
		return b + r.IntN(2)
	}
}

func hoursFrom(first, span int) func(*rand.Rand) int {
	return func(r *rand.Rand) int { return first + r.IntN(span) }
}

// riderTypes are picked by cumulative share: commuters 40%, students 20%,
// regulars 25%, occasional riders 15%.
var riderTypes = []riderType{
	{share: 0.40, minTrips: 4, maxTrips: 6, frequency: 10, days: weekday, hours: eitherOf(7, 17)},
	{share: 0.20, minTrips: 3, maxTrips: 4, frequency: 6, days: weekday, hours: eitherOf(8, 14)},
	{share: 0.25, minTrips: 2, maxTrips: 3, frequency: 4, days: anyDay, hours: hoursFrom(9, 10)},
	{share: 0.15, minTrips: 1, maxTrips: 2, frequency: 2, days: anyDay, hours: hoursFrom(10, 8)},
}

func (g *Generator) riderType() riderType {
	r := g.rng.Float64()
	acc := 0.0
	for _, t := range riderTypes {
		acc += t.share
		if r < acc {
			return t
		}
	}
	return riderTypes[len(riderTypes)-1]
}

const (
	baseLat     = 4.6
	baseLon     = -74.08
	originSpan  = 0.2
	destSpan    = 0.1
	minDistance = 2.0
	distSpan    = 15.0
	baseFare    = 1.5
	farePerKm   = 0.2
)

// TripPatterns returns trips for n/4 synthetic riders. The number of trips
// varies with each rider's behaviour, so the result length is close to,
// but not exactly, n.
func (g *Generator) TripPatterns(n int) []clustering.TripPattern {
	users := n / 4
	out := make([]clustering.TripPattern, 0, n)

	for userID := int64(1); userID <= int64(users); userID++ {
		t := g.riderType()
		trips := t.minTrips + g.rng.IntN(t.maxTrips-t.minTrips+1)
		for i := 0; i < trips; i++ {
			out = append(out, g.trip(userID, t))
		}
	}
	return out
}

func (g *Generator) trip(userID int64, t riderType) clustering.TripPattern {
	day := t.days(g.rng)
	hour := t.hours(g.rng)

	lat := baseLat + (g.rng.Float64()-0.5)*originSpan
	lon := baseLon + (g.rng.Float64()-0.5)*originSpan
	distance := minDistance + g.rng.Float64()*distSpan
	duration := int(distance*3 + float64(g.rng.IntN(20)))

	return clustering.TripPattern{
		UserID:          userID,
		CardID:          userID,
		Timestamp:       g.now.AddDate(0, 0, -g.rng.IntN(tripWindowDays)),
		DayOfWeek:       day,
		Hour:            hour,
		RouteID:         1 + int64(g.rng.IntN(routes)),
		OriginLat:       lat,
		OriginLon:       lon,
		DestLat:         lat + (g.rng.Float64()-0.5)*destSpan,
		DestLon:         lon + (g.rng.Float64()-0.5)*destSpan,
		DistanceKm:      distance,
		DurationMin:     duration,
		Cost:            baseFare + distance*farePerKm,
		WeeklyFrequency: t.frequency,
	}
}

// HourlySeries returns passenger counts for the given number of hours ending
// at now, following the hourly demand table with ±20% noise.
func (g *Generator) HourlySeries(hours int) []int {
	start := g.now.Add(-time.Duration(hours) * time.Hour).Truncate(time.Hour)
	out := make([]int, 0, hours)

	for h := 0; h < hours; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		base := forecast.BaseDemand(ts.Hour(), demand.ISOWeekday(ts))
		noise := int(float64(base) * noiseShare * (g.rng.Float64() - 0.5) * 2)
		out = append(out, max(0, base+noise))
	}
	return out
}
