package clustering_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/featureflags"
)

func newService(flags *featureflags.Service) *clustering.Service {
	return clustering.NewService(clustering.ServiceConfig{
		Logger: zerolog.Nop(),
		Flags:  flags,
	})
}

// riders builds four clearly separated behaviours of 15 trips each.
func riders() []clustering.TripPattern {
	type behaviour struct {
		day, hour, freq int
		dist, cost      float64
		route           int64
	}
	behaviours := []behaviour{
		{day: 2, hour: 7, freq: 10, dist: 12, cost: 3.9, route: 1},  // weekday commute
		{day: 3, hour: 14, freq: 6, dist: 5, cost: 2.5, route: 2},   // student
		{day: 6, hour: 11, freq: 2, dist: 3, cost: 2.1, route: 3},   // weekend occasional
		{day: 4, hour: 22, freq: 1, dist: 30, cost: 7.5, route: 4},  // late long trip
	}

	var out []clustering.TripPattern
	for b, bh := range behaviours {
		for i := 0; i < 15; i++ {
			out = append(out, clustering.TripPattern{
				UserID:          int64(b*100 + i),
				DayOfWeek:       bh.day,
				Hour:            bh.hour,
				RouteID:         bh.route,
				DistanceKm:      bh.dist + float64(i%3)*0.1,
				DurationMin:     int(bh.dist*3) + i%2,
				Cost:            bh.cost,
				WeeklyFrequency: bh.freq,
				Timestamp:       time.Date(2026, 3, 2, bh.hour, 0, 0, 0, time.UTC),
			})
		}
	}
	return out
}

func totalMembers(res clustering.Result) int {
	n := 0
	for _, c := range res.Clusters {
		n += c.Members
	}
	return n
}

func TestTrain_InsufficientData(t *testing.T) {
	svc := newService(nil)

	_, err := svc.Train(context.Background(), riders()[:49])
	require.ErrorIs(t, err, clustering.ErrInsufficientData)
	assert.False(t, svc.IsTrained())

	c, ok := svc.PredictCluster(riders()[0])
	assert.False(t, ok)
	assert.Equal(t, 0, c)
}

func TestAssign_UntrainedUsesFrequencyBands(t *testing.T) {
	svc := newService(nil)
	patterns := riders()

	res := svc.Assign(context.Background(), patterns)

	assert.Equal(t, clustering.MethodFrequencyBands, res.Method)
	assert.Equal(t, clustering.WarningUntrained, res.Warning)
	assert.Equal(t, len(patterns), totalMembers(res))
	require.Len(t, res.Clusters, 3)

	high := res.Clusters[0]
	assert.Equal(t, 0, high.ClusterID)
	assert.Equal(t, 15, high.Members)
	assert.Equal(t, clustering.ProfileCommuter, high.Profile)
	assert.Equal(t, []string{"Ruta 1"}, high.FrequentRoutes)
	assert.Equal(t, clustering.TimeMorning, high.PreferredTime)

	medium := res.Clusters[1]
	assert.Equal(t, clustering.ProfileStudent, medium.Profile)

	low := res.Clusters[2]
	assert.Equal(t, 30, low.Members)
	assert.Equal(t, clustering.ProfileOccasional, low.Profile)
}

func TestAssign_TrainedPartitionsInput(t *testing.T) {
	svc := newService(nil)
	patterns := riders()

	report, err := svc.Train(context.Background(), patterns)
	require.NoError(t, err)
	assert.Equal(t, 60, report.Patterns)
	assert.ElementsMatch(t, []int{15, 15, 15, 15}, report.Sizes)
	require.True(t, svc.IsTrained())

	res := svc.Assign(context.Background(), patterns)
	assert.Equal(t, clustering.MethodKMeans, res.Method)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 4, res.TotalClusters)
	assert.Equal(t, len(patterns), res.TotalPatterns)
	assert.Equal(t, len(patterns), totalMembers(res))

	profiles := make(map[clustering.Profile]int)
	for _, c := range res.Clusters {
		profiles[c.Profile] += c.Members
	}
	assert.Equal(t, 15, profiles[clustering.ProfileCommuter])
	assert.Equal(t, 15, profiles[clustering.ProfileStudent])
	assert.Equal(t, 30, profiles[clustering.ProfileOccasional])

	c, ok := svc.PredictCluster(patterns[0])
	assert.True(t, ok)
	assert.GreaterOrEqual(t, c, 0)
	assert.Less(t, c, 4)
}

func TestAssign_EmptyInput(t *testing.T) {
	svc := newService(nil)
	_, err := svc.Train(context.Background(), riders())
	require.NoError(t, err)

	res := svc.Assign(context.Background(), nil)
	assert.Zero(t, res.TotalClusters)
	assert.Empty(t, res.Clusters)
}

func TestAssign_FlagForcesBands(t *testing.T) {
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, flags.SetFlag(context.Background(), &featureflags.Flag{
		Key:   featureflags.FlagForceRuleBasedClustering,
		Value: true,
	}))

	svc := newService(flags)
	_, err := svc.Train(context.Background(), riders())
	require.NoError(t, err)

	res := svc.Assign(context.Background(), riders())
	assert.Equal(t, clustering.MethodFrequencyBands, res.Method)
	assert.Equal(t, clustering.WarningDisabled, res.Warning)
}

func TestProfileFor(t *testing.T) {
	weekday := []clustering.TripPattern{{DayOfWeek: 2, Hour: 11}}
	weekend := []clustering.TripPattern{{DayOfWeek: 7, Hour: 11}}
	studentHours := []clustering.TripPattern{{DayOfWeek: 2, Hour: 14}}

	tests := []struct {
		name     string
		freq     float64
		patterns []clustering.TripPattern
		want     clustering.Profile
	}{
		{name: "high frequency", freq: 8, patterns: weekend, want: clustering.ProfileCommuter},
		{name: "student hours", freq: 5, patterns: studentHours, want: clustering.ProfileStudent},
		{name: "low frequency", freq: 3.9, patterns: weekend, want: clustering.ProfileOccasional},
		{name: "mid frequency weekend", freq: 5, patterns: weekend, want: clustering.ProfileTourist},
		{name: "mid frequency weekday", freq: 5, patterns: weekday, want: clustering.ProfileRegular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clustering.ProfileFor(tt.freq, tt.patterns))
		})
	}
}

func TestRecommendationsFor(t *testing.T) {
	recs := clustering.RecommendationsFor(clustering.ProfileCommuter, 60)
	require.Len(t, recs, 4)
	assert.Equal(t, clustering.RecommendSubscription, recs[3])

	recs = clustering.RecommendationsFor(clustering.ProfileRegular, 10)
	assert.Equal(t, []string{clustering.RecommendDefault}, recs)

	recs = clustering.RecommendationsFor(clustering.ProfileStudent, 50)
	assert.Len(t, recs, 2, "spend equal to the threshold does not add the subscription line")
}

func TestRecommendForUser(t *testing.T) {
	svc := newService(nil)
	patterns := riders()

	rec, err := svc.RecommendForUser(context.Background(), 3, patterns)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.UserID)
	assert.Equal(t, 1, rec.Trips)
	assert.Equal(t, clustering.ProfileCommuter, rec.Profile)
	// 3.9 cost x 10 trips x 4 weeks x 30%
	assert.InDelta(t, 46.8, rec.EstimatedMonthlySavings, 1e-9)

	_, err = svc.RecommendForUser(context.Background(), 9999, patterns)
	assert.ErrorIs(t, err, clustering.ErrNoTrips)
}

func TestRecommendForUser_SavingsOnlyWithSubscriptionOffer(t *testing.T) {
	tests := []struct {
		name        string
		freq        int
		cost        float64
		wantProfile clustering.Profile
		wantSavings float64
	}{
		{"regular above spend threshold", 7, 8, clustering.ProfileRegular, 67.2},
		{"regular below spend threshold", 5, 2, clustering.ProfileRegular, 0},
		{"occasional rider", 2, 3, clustering.ProfileOccasional, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trips := []clustering.TripPattern{{
				UserID:          42,
				DayOfWeek:       3,
				Hour:            18,
				RouteID:         5,
				DistanceKm:      6,
				DurationMin:     20,
				Cost:            tt.cost,
				WeeklyFrequency: tt.freq,
				Timestamp:       time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC),
			}}

			rec, err := newService(nil).RecommendForUser(context.Background(), 42, trips)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProfile, rec.Profile)
			assert.InDelta(t, tt.wantSavings, rec.EstimatedMonthlySavings, 1e-9)
			if tt.wantSavings > 0 {
				assert.Contains(t, rec.Recommendations, clustering.RecommendSubscription)
			}
		})
	}
}
