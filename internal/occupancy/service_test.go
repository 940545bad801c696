package occupancy_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransit/opsengine/internal/alerts"
	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/occupancy"
)

func newService() *occupancy.Service {
	return occupancy.NewService(occupancy.ServiceConfig{Logger: zerolog.Nop()})
}

// refWith returns the first generated image reference whose head count
// satisfies match.
func refWith(t *testing.T, match func(people int) bool) string {
	t.Helper()
	for i := 0; i < 1000; i++ {
		ref := fmt.Sprintf("https://cams.example.com/bus/%d.jpg", i)
		if match(occupancy.PeopleCount(ref)) {
			return ref
		}
	}
	t.Fatal("no matching reference found")
	return ""
}

func TestAnalyze_NoImageReturnsDefault(t *testing.T) {
	svc := newService()

	for i := 0; i < 3; i++ {
		res := svc.Analyze(context.Background(), occupancy.Request{VehicleID: 7})

		assert.Equal(t, int64(7), res.VehicleID)
		assert.Equal(t, 20, res.People)
		assert.Equal(t, 40, res.Capacity)
		assert.InDelta(t, 0.50, res.Ratio, 1e-9)
		assert.Equal(t, occupancy.LevelMedium, res.Level)
		assert.Empty(t, res.Boxes)
		assert.Empty(t, res.SafetyAlert)
		assert.False(t, res.NeedsExtraVehicle)
		assert.InDelta(t, 0.5, res.Confidence, 1e-9)
		assert.Equal(t, occupancy.WarningNoImage, res.Warning)
	}
}

func TestPeopleCount_ReproducibleAndBounded(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		ref := fmt.Sprintf("frame-%d", i)
		n := occupancy.PeopleCount(ref)
		assert.GreaterOrEqual(t, n, 15)
		assert.LessOrEqual(t, n, 45)
		assert.Equal(t, n, occupancy.PeopleCount(ref))
		seen[n] = true
	}
	assert.Greater(t, len(seen), 10, "counts should spread over the range")
}

func TestAnalyze_SameReferenceSameCount(t *testing.T) {
	svc := newService()
	req := occupancy.Request{VehicleID: 3, ImageBase64: "aGVsbG8gYnVz"}

	first := svc.Analyze(context.Background(), req)
	second := svc.Analyze(context.Background(), req)

	assert.Equal(t, first.People, second.People)
	assert.Equal(t, first.Level, second.Level)
	assert.Len(t, first.Boxes, min(first.People, 20))
	assert.InDelta(t, 0.88, first.Confidence, 1e-9)
	assert.Empty(t, first.Warning)
}

func TestAnalyze_Base64PreferredOverURL(t *testing.T) {
	svc := newService()
	res := svc.Analyze(context.Background(), occupancy.Request{
		ImageBase64: "aW1hZ2U=",
		ImageURL:    "https://cams.example.com/other.jpg",
	})
	assert.Equal(t, occupancy.PeopleCount("aW1hZ2U="), res.People)
}

func TestAnalyze_BoxesWithinFrame(t *testing.T) {
	res := newService().Analyze(context.Background(), occupancy.Request{ImageURL: "https://cams.example.com/1.jpg"})

	for _, b := range res.Boxes {
		assert.GreaterOrEqual(t, b.X, 0)
		assert.Less(t, b.X, 540)
		assert.GreaterOrEqual(t, b.Y, 0)
		assert.Less(t, b.Y, 330)
		assert.GreaterOrEqual(t, b.Width, 40)
		assert.Less(t, b.Width, 80)
		assert.GreaterOrEqual(t, b.Height, 80)
		assert.Less(t, b.Height, 150)
		assert.GreaterOrEqual(t, b.Confidence, 0.75)
		assert.Less(t, b.Confidence, 0.95)
	}
}

type capturePublisher struct {
	mu  sync.Mutex
	got []alerts.Alert
}

func (p *capturePublisher) Publish(_ context.Context, a alerts.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, a)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestAnalyze_OverloadRaisesAlert(t *testing.T) {
	pub := &capturePublisher{}
	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{Publisher: pub, Logger: zerolog.Nop()})
	dispatcher.Start(context.Background())
	svc := occupancy.NewService(occupancy.ServiceConfig{Logger: zerolog.Nop(), Alerts: dispatcher})

	overloaded := refWith(t, func(n int) bool { return n > 40 })
	res := svc.Analyze(context.Background(), occupancy.Request{VehicleID: 12, RouteID: 2, ImageURL: overloaded})

	assert.Equal(t, occupancy.LevelOverloaded, res.Level)
	assert.True(t, res.NeedsExtraVehicle)
	assert.Contains(t, res.SafetyAlert, "ALERTA: Vehículo sobrecargado - Supera capacidad en")

	within := refWith(t, func(n int) bool { return n <= 34 })
	calm := svc.Analyze(context.Background(), occupancy.Request{VehicleID: 13, ImageURL: within})
	assert.Empty(t, calm.SafetyAlert)
	assert.False(t, calm.NeedsExtraVehicle)

	require.NoError(t, dispatcher.Close())
	require.Len(t, pub.got, 1)
	assert.Equal(t, alerts.KindOverload, pub.got[0].Kind)
	assert.Equal(t, "12", pub.got[0].VehicleID)
	assert.Equal(t, int64(2), pub.got[0].RouteID)
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  occupancy.Level
	}{
		{0, occupancy.LevelEmpty},
		{0.24, occupancy.LevelEmpty},
		{0.25, occupancy.LevelLow},
		{0.5, occupancy.LevelMedium},
		{0.75, occupancy.LevelHigh},
		{0.9, occupancy.LevelFull},
		{1.0, occupancy.LevelFull},
		{1.01, occupancy.LevelOverloaded},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, occupancy.LevelFor(tt.ratio), "ratio=%v", tt.ratio)
	}
}

func TestSafetyAlert(t *testing.T) {
	assert.Empty(t, occupancy.SafetyAlert(1.0))
	assert.Equal(t, "ALERTA: Vehículo sobrecargado - Supera capacidad en 13%", occupancy.SafetyAlert(45.0/40))
	assert.Equal(t, "ALERTA: Vehículo sobrecargado - Supera capacidad en 5%", occupancy.SafetyAlert(42.0/40))
}

func TestAnalyzeBatch_PreservesOrder(t *testing.T) {
	svc := newService()
	reqs := []occupancy.Request{
		{VehicleID: 1, ImageURL: "a"},
		{VehicleID: 2},
		{VehicleID: 3, ImageURL: "c"},
		{VehicleID: 4, ImageBase64: "ZA=="},
	}

	results := svc.AnalyzeBatch(context.Background(), reqs)

	require.Len(t, results, 4)
	for i, res := range results {
		assert.Equal(t, reqs[i].VehicleID, res.VehicleID)
	}
	assert.Equal(t, occupancy.PeopleCount("a"), results[0].People)
	assert.Equal(t, 20, results[1].People)
}

func TestTrend(t *testing.T) {
	empty := occupancy.Trend(5, nil)
	assert.Equal(t, occupancy.TrendStatusNoData, empty.Status)
	assert.Zero(t, empty.Total)

	report := occupancy.Trend(5, []occupancy.Result{
		{Ratio: 1.1},
		{Ratio: 0.9},
		{Ratio: 0.7},
	})
	assert.Equal(t, occupancy.TrendStatusOK, report.Status)
	assert.Equal(t, int64(5), report.RouteID)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Overloaded)
	assert.InDelta(t, 0.9, report.AverageRatio, 1e-9)
	assert.True(t, report.NeedsOptimization)

	calm := occupancy.Trend(5, []occupancy.Result{{Ratio: 0.8}, {Ratio: 0.8}})
	assert.False(t, calm.NeedsOptimization, "average equal to the threshold does not need optimization")
}

func TestAnalyze_DisabledByFlag(t *testing.T) {
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, flags.SetFlag(context.Background(), &featureflags.Flag{
		Key:   featureflags.FlagDisableDeepLearning,
		Value: true,
	}))
	svc := occupancy.NewService(occupancy.ServiceConfig{Logger: zerolog.Nop(), Flags: flags})

	res := svc.Analyze(context.Background(), occupancy.Request{VehicleID: 1, ImageURL: "x"})
	assert.Equal(t, 20, res.People)
	assert.Equal(t, occupancy.WarningDisabled, res.Warning)
}
