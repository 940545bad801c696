package synthetic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/synthetic"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func TestDemandRecords_Reproducible(t *testing.T) {
	a := synthetic.New(synthetic.DefaultSeed, now).DemandRecords(200)
	b := synthetic.New(synthetic.DefaultSeed, now).DemandRecords(200)
	c := synthetic.New(7, now).DemandRecords(200)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDemandRecords_Ranges(t *testing.T) {
	records := synthetic.New(synthetic.DefaultSeed, now).DemandRecords(500)
	require.Len(t, records, 500)

	weather := make(map[demand.Weather]int)
	holidays := 0
	for _, r := range records {
		assert.GreaterOrEqual(t, r.RouteID, int64(1))
		assert.LessOrEqual(t, r.RouteID, int64(5))
		assert.True(t, r.Timestamp.Before(now))
		assert.True(t, r.Timestamp.After(now.AddDate(0, 0, -91)))
		assert.GreaterOrEqual(t, r.Temperature, 15.0)
		assert.Less(t, r.Temperature, 35.0)
		assert.GreaterOrEqual(t, r.Passengers, 1)
		assert.Equal(t, demand.IsRushHour(r.Hour), r.IsRushHour)
		assert.Equal(t, r.DayOfWeek > 5, r.IsWeekend)
		weather[r.Weather]++
		if r.IsHoliday {
			holidays++
		}
	}

	assert.Greater(t, weather[demand.WeatherSunny], weather[demand.WeatherCloudy])
	assert.Greater(t, weather[demand.WeatherCloudy], weather[demand.WeatherRainy])
	assert.Less(t, holidays, 60)
}

func TestDemandRecords_RushHourBusier(t *testing.T) {
	records := synthetic.New(synthetic.DefaultSeed, now).DemandRecords(1000)

	var rushSum, otherSum, rushN, otherN int
	for _, r := range records {
		if r.IsRushHour {
			rushSum += r.Passengers
			rushN++
		} else {
			otherSum += r.Passengers
			otherN++
		}
	}
	require.NotZero(t, rushN)
	require.NotZero(t, otherN)
	assert.Greater(t, float64(rushSum)/float64(rushN), float64(otherSum)/float64(otherN)+10)
}

func TestTripPatterns(t *testing.T) {
	patterns := synthetic.New(synthetic.DefaultSeed, now).TripPatterns(200)

	// 50 riders with one to six trips each.
	assert.GreaterOrEqual(t, len(patterns), 50)
	assert.LessOrEqual(t, len(patterns), 300)

	users := make(map[int64]bool)
	freqs := make(map[int]bool)
	for _, p := range patterns {
		users[p.UserID] = true
		freqs[p.WeeklyFrequency] = true

		assert.Equal(t, p.UserID, p.CardID)
		assert.GreaterOrEqual(t, p.DayOfWeek, 1)
		assert.LessOrEqual(t, p.DayOfWeek, 7)
		assert.GreaterOrEqual(t, p.DistanceKm, 2.0)
		assert.Less(t, p.DistanceKm, 17.0)
		assert.InDelta(t, 1.5+0.2*p.DistanceKm, p.Cost, 1e-9)
		assert.InDelta(t, 4.6, p.OriginLat, 0.1)
		assert.InDelta(t, -74.08, p.OriginLon, 0.1)
		assert.InDelta(t, p.OriginLat, p.DestLat, 0.05)

		switch p.WeeklyFrequency {
		case 10:
			assert.LessOrEqual(t, p.DayOfWeek, 5, "commuters travel on weekdays")
			assert.Contains(t, []int{7, 8, 17, 18}, p.Hour)
		case 6:
			assert.Contains(t, []int{8, 9, 14, 15}, p.Hour)
		}
	}
	assert.Len(t, users, 50)
	assert.True(t, freqs[10], "expected commuters in the sample")
}

func TestHourlySeries(t *testing.T) {
	series := synthetic.New(synthetic.DefaultSeed, now).HourlySeries(168)
	require.Len(t, series, 168)

	for _, v := range series {
		assert.GreaterOrEqual(t, v, 0)
		assert.LessOrEqual(t, v, 46)
	}
	assert.Equal(t, series, synthetic.New(synthetic.DefaultSeed, now).HourlySeries(168))
}
