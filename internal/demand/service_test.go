package demand_test

import (
	"bytes"
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/featureflags"
)

var fixedNow = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC) // Monday

func newPredictor(flags *featureflags.Service) *demand.Predictor {
	return demand.NewPredictor(demand.PredictorConfig{
		Logger: zerolog.Nop(),
		Flags:  flags,
		Clock:  func() time.Time { return fixedNow },
	})
}

// linearRecords returns records whose passenger count is an exact linear
// function of the hour, with every other feature held constant.
func linearRecords(n int, passengers func(hour int) int) []demand.TrainingRecord {
	records := make([]demand.TrainingRecord, 0, n)
	for i := 0; i < n; i++ {
		hour := i % 10
		records = append(records, demand.TrainingRecord{
			FeatureRecord: constantRecord(hour),
			Passengers:    passengers(hour),
		})
	}
	return records
}

func constantRecord(hour int) demand.FeatureRecord {
	return demand.FeatureRecord{
		RouteID:     3,
		DayOfWeek:   2,
		Hour:        hour,
		Month:       5,
		Temperature: 22,
		Weather:     demand.WeatherCloudy,
		HourOfDay:   hour,
		MinuteOfDay: hour * 60,
	}
}

func TestPredict_UntrainedRushHourScenario(t *testing.T) {
	p := newPredictor(nil)

	pred := p.Predict(context.Background(), demand.FeatureRecord{
		RouteID:    1,
		DayOfWeek:  1,
		Hour:       7,
		IsRushHour: true,
	})

	assert.Equal(t, 35, pred.Passengers)
	assert.Equal(t, demand.LevelHigh, pred.Level)
	assert.InDelta(t, 0.5, pred.Confidence, 1e-9)
	assert.InDelta(t, 35.0/40.0, pred.OccupancyRatio, 1e-9)
	assert.Equal(t, demand.SourceRules, pred.Source)
	assert.Equal(t, demand.RecommendRuleBased, pred.Recommendation)
	assert.Equal(t, demand.WarningUntrained, pred.Warning)
	assert.False(t, p.IsTrained())
}

func TestRuleBasedPassengers(t *testing.T) {
	tests := []struct {
		name   string
		record demand.FeatureRecord
		want   int
	}{
		{name: "base", record: demand.FeatureRecord{}, want: 15},
		{name: "rush", record: demand.FeatureRecord{IsRushHour: true}, want: 35},
		{name: "weekend", record: demand.FeatureRecord{IsWeekend: true}, want: 10},
		{name: "holiday", record: demand.FeatureRecord{IsHoliday: true}, want: 5},
		{name: "weekend holiday", record: demand.FeatureRecord{IsWeekend: true, IsHoliday: true}, want: 0},
		{name: "all", record: demand.FeatureRecord{IsRushHour: true, IsWeekend: true, IsHoliday: true}, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, demand.RuleBasedPassengers(tt.record))
		})
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		passengers int
		want       demand.Level
	}{
		{0, demand.LevelLow},
		{9, demand.LevelLow},
		{10, demand.LevelMedium},
		{24, demand.LevelMedium},
		{25, demand.LevelHigh},
		{39, demand.LevelHigh},
		{40, demand.LevelVeryHigh},
		{120, demand.LevelVeryHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, demand.LevelFor(tt.passengers), "passengers=%d", tt.passengers)
	}
}

func TestRecommendationFor(t *testing.T) {
	assert.Equal(t, demand.RecommendIncrease, demand.RecommendationFor(0.95))
	assert.Equal(t, demand.RecommendConsiderIncrease, demand.RecommendationFor(0.8))
	assert.Equal(t, demand.RecommendNormal, demand.RecommendationFor(0.5))
	assert.Equal(t, demand.RecommendNormal, demand.RecommendationFor(0.3))
	assert.Equal(t, demand.RecommendConsiderReduce, demand.RecommendationFor(0.1))
}

func TestTrain_InsufficientData(t *testing.T) {
	p := newPredictor(nil)

	_, err := p.Train(context.Background(), linearRecords(49, func(h int) int { return h }))
	require.ErrorIs(t, err, demand.ErrInsufficientData)
	assert.False(t, p.IsTrained())
	assert.False(t, p.Status().Trained)
}

func TestTrain_FitsLinearData(t *testing.T) {
	p := newPredictor(nil)
	ctx := context.Background()

	report, err := p.Train(ctx, linearRecords(60, func(h int) int { return 5 + 3*h }))
	require.NoError(t, err)
	assert.Equal(t, 60, report.Records)
	assert.InDelta(t, 1.0, report.RSquared, 1e-6)
	require.True(t, p.IsTrained())

	pred := p.Predict(ctx, constantRecord(8))
	assert.Equal(t, 29, pred.Passengers)
	assert.Equal(t, demand.SourceModel, pred.Source)
	assert.InDelta(t, 0.95, pred.Confidence, 1e-9)
	assert.Equal(t, demand.LevelHigh, pred.Level)
	assert.Empty(t, pred.Warning)

	st := p.Status()
	assert.True(t, st.Trained)
	assert.Equal(t, 60, st.Records)
	require.NotNil(t, st.TrainedAt)
	assert.Equal(t, fixedNow, *st.TrainedAt)
}

func TestTrain_InsufficientDataKeepsPreviousFit(t *testing.T) {
	p := newPredictor(nil)
	ctx := context.Background()

	_, err := p.Train(ctx, linearRecords(60, func(h int) int { return 5 + 3*h }))
	require.NoError(t, err)
	before := p.Predict(ctx, constantRecord(4))

	_, err = p.Train(ctx, linearRecords(10, func(int) int { return 100 }))
	require.ErrorIs(t, err, demand.ErrInsufficientData)

	after := p.Predict(ctx, constantRecord(4))
	assert.True(t, p.IsTrained())
	assert.Equal(t, before.Passengers, after.Passengers)
}

func TestPredict_NeverNegative(t *testing.T) {
	p := newPredictor(nil)
	ctx := context.Background()

	_, err := p.Train(ctx, linearRecords(50, func(h int) int { return 100 - 10*h }))
	require.NoError(t, err)

	pred := p.Predict(ctx, constantRecord(23))
	assert.Equal(t, 0, pred.Passengers)
	assert.Equal(t, demand.LevelLow, pred.Level)
	assert.Equal(t, demand.RecommendConsiderReduce, pred.Recommendation)
}

func TestPredict_FlagForcesRules(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	flags := featureflags.NewService(featureflags.ServiceConfig{Repository: repo, Logger: zerolog.Nop()})
	require.NoError(t, flags.SetFlag(context.Background(), &featureflags.Flag{
		Key:   featureflags.FlagForceRuleBasedDemand,
		Value: true,
	}))

	p := newPredictor(flags)
	_, err := p.Train(context.Background(), linearRecords(60, func(h int) int { return 5 + 3*h }))
	require.NoError(t, err)

	pred := p.Predict(context.Background(), constantRecord(8))
	assert.Equal(t, demand.SourceRules, pred.Source)
	assert.Equal(t, demand.WarningDisabled, pred.Warning)
	assert.Equal(t, 15, pred.Passengers)
}

func TestPredict_NonFinitePredictionFallsBack(t *testing.T) {
	var buf bytes.Buffer
	p := demand.NewPredictor(demand.PredictorConfig{
		Logger: zerolog.New(&buf),
		Clock:  func() time.Time { return fixedNow },
	})
	ctx := context.Background()

	_, err := p.Train(ctx, linearRecords(60, func(h int) int { return 5 + 3*h }))
	require.NoError(t, err)

	record := constantRecord(8)
	record.Temperature = math.NaN()
	pred := p.Predict(ctx, record)

	assert.Equal(t, demand.SourceRules, pred.Source)
	assert.Equal(t, demand.WarningError, pred.Warning)
	assert.Equal(t, 15, pred.Passengers)
	assert.InDelta(t, 0.5, pred.Confidence, 1e-9)
	assert.Contains(t, buf.String(), `"cause":"error"`)
	assert.Contains(t, buf.String(), "non-finite prediction")

	// The fit itself is untouched.
	assert.True(t, p.IsTrained())
	assert.Equal(t, demand.SourceModel, p.Predict(ctx, constantRecord(8)).Source)
}

func TestPredictBatch_PreservesOrder(t *testing.T) {
	p := newPredictor(nil)

	records := []demand.FeatureRecord{
		{RouteID: 1, IsRushHour: true},
		{RouteID: 2},
		{RouteID: 3, IsHoliday: true},
	}
	preds := p.PredictBatch(context.Background(), records)

	require.Len(t, preds, 3)
	assert.Equal(t, int64(1), preds[0].RouteID)
	assert.Equal(t, 35, preds[0].Passengers)
	assert.Equal(t, int64(2), preds[1].RouteID)
	assert.Equal(t, 15, preds[1].Passengers)
	assert.Equal(t, int64(3), preds[2].RouteID)
	assert.Equal(t, 5, preds[2].Passengers)
}

func TestEvaluate(t *testing.T) {
	p := newPredictor(nil)
	ctx := context.Background()
	records := linearRecords(60, func(h int) int { return 5 + 3*h })

	assert.Zero(t, p.Evaluate(ctx, records))

	_, err := p.Train(ctx, records)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, p.Evaluate(ctx, records), 1e-9)
	assert.Zero(t, p.Evaluate(ctx, nil))

	skewed := linearRecords(10, func(h int) int { return 1000 })
	assert.Zero(t, p.Evaluate(ctx, skewed))
}

func TestPredict_ConcurrentWithTrain(t *testing.T) {
	p := newPredictor(nil)
	ctx := context.Background()
	records := linearRecords(60, func(h int) int { return 5 + 3*h })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				pred := p.Predict(ctx, constantRecord(8))
				// Either the rule estimate or the fitted one, never a mix.
				if pred.Source == demand.SourceModel {
					assert.Equal(t, 29, pred.Passengers)
				} else {
					assert.Equal(t, 15, pred.Passengers)
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		_, err := p.Train(ctx, records)
		require.NoError(t, err)
	}
	wg.Wait()
}
