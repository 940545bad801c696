package alerts_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransit/opsengine/internal/alerts"
	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/provider/resilience"
)

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []alerts.Alert
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, a alerts.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) published() []alerts.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]alerts.Alert(nil), p.alerts...)
}

func TestNew(t *testing.T) {
	a := alerts.New(alerts.KindOverload, "sobrecargado", 5)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, alerts.KindOverload, a.Kind)
	assert.WithinDuration(t, time.Now(), a.CreatedAt, time.Second)
	assert.NotEqual(t, a.ID, alerts.New(alerts.KindOverload, "x", 5).ID)
}

func TestAlert_Key(t *testing.T) {
	a := alerts.New(alerts.KindOverload, "m", 5)
	assert.Equal(t, a.ID, a.Key())

	a.RouteID = 7
	assert.Equal(t, "route-7", a.Key())

	a.VehicleID = "BUS-12"
	assert.Equal(t, "BUS-12", a.Key())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got alerts.Alert
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.VehicleID != "BUS-12" || got.Kind != alerts.KindOverload {
			return errors.New("unexpected alert payload")
		}
		return nil
	})

	pub := alerts.NewKafkaPublisherWithProducer(producer, alerts.KafkaConfig{
		Topic:  "ops-alerts",
		Logger: zerolog.Nop(),
	})

	a := alerts.New(alerts.KindOverload, "ALERTA", 5)
	a.VehicleID = "BUS-12"
	require.NoError(t, pub.Publish(context.Background(), a))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_ReportsFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	for i := 0; i < 4; i++ {
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	}

	registry := resilience.NewRegistry()
	pub := alerts.NewKafkaPublisherWithProducer(producer, alerts.KafkaConfig{
		Topic:    "ops-alerts",
		Logger:   zerolog.Nop(),
		Registry: registry,
	})

	err := pub.Publish(context.Background(), alerts.New(alerts.KindUrgentFeedback, "queja", 5))
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	health := registry.GetHealth("kafka-alerts")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastFailureAt)
	require.NoError(t, pub.Close())
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	d := alerts.NewDispatcher(alerts.DispatcherConfig{Publisher: pub, Logger: zerolog.Nop()})
	d.Start(context.Background())

	for i := 1; i <= 3; i++ {
		a := alerts.New(alerts.KindOverload, "m", 5)
		a.RouteID = int64(i)
		d.Notify(context.Background(), a)
	}
	require.NoError(t, d.Close())

	got := pub.published()
	require.Len(t, got, 3)
	for i, a := range got {
		assert.Equal(t, int64(i+1), a.RouteID)
	}
	assert.True(t, pub.closed)

	// Notify after Close is a no-op.
	assert.NotPanics(t, func() {
		d.Notify(context.Background(), alerts.New(alerts.KindOverload, "late", 5))
	})
}

func TestDispatcher_FlagDisablesPublishing(t *testing.T) {
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, flags.SetFlag(context.Background(), &featureflags.Flag{
		Key:   featureflags.FlagDisableAlertsPublishing,
		Value: true,
	}))

	pub := &recordingPublisher{}
	d := alerts.NewDispatcher(alerts.DispatcherConfig{Publisher: pub, Flags: flags, Logger: zerolog.Nop()})
	d.Start(context.Background())
	d.Notify(context.Background(), alerts.New(alerts.KindOverload, "m", 5))
	require.NoError(t, d.Close())

	assert.Empty(t, pub.published())
}

func TestDispatcher_NilIsNoop(t *testing.T) {
	var d *alerts.Dispatcher
	assert.NotPanics(t, func() {
		d.Notify(context.Background(), alerts.New(alerts.KindOverload, "m", 5))
	})
}

func TestLogPublisher(t *testing.T) {
	pub := alerts.NewLogPublisher(zerolog.Nop())
	require.NoError(t, pub.Publish(context.Background(), alerts.New(alerts.KindOverload, "m", 5)))
	require.NoError(t, pub.Close())
}
