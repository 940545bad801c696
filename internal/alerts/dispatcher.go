package alerts

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/featureflags"
)

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	Publisher Publisher
	Flags     *featureflags.Service
	Logger    zerolog.Logger

	// QueueSize bounds pending alerts. Alerts beyond it are dropped.
	// Default: 256
	QueueSize int
}

// Dispatcher hands alerts to a publisher on a background goroutine so
// inference calls never wait on the broker.
type Dispatcher struct {
	publisher Publisher
	flags     *featureflags.Service
	logger    zerolog.Logger
	queue     chan Alert

	wg    sync.WaitGroup
	start sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher. Call Start before Notify.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	size := cfg.QueueSize
	if size == 0 {
		size = 256
	}
	return &Dispatcher{
		publisher: cfg.Publisher,
		flags:     cfg.Flags,
		logger:    cfg.Logger.With().Str("component", "alert_dispatcher").Logger(),
		queue:     make(chan Alert, size),
	}
}

// Start launches the delivery goroutine. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	d.start.Do(func() {
		d.wg.Add(1)
		go d.run(context.WithoutCancel(ctx))
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for alert := range d.queue {
		if err := d.publisher.Publish(ctx, alert); err != nil {
			d.logger.Error().Err(err).
				Str("alert_id", alert.ID).
				Str("kind", string(alert.Kind)).
				Msg("failed to publish alert")
		}
	}
}

// Notify queues alert for delivery. It never blocks; a nil dispatcher, a
// disabled flag or a full queue drop the alert.
func (d *Dispatcher) Notify(ctx context.Context, alert Alert) {
	if d == nil {
		return
	}
	if d.flags.IsAlertsPublishingDisabled(ctx) {
		d.logger.Debug().Str("alert_id", alert.ID).Msg("alert publishing disabled, dropping alert")
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- alert:
	default:
		d.logger.Warn().Str("alert_id", alert.ID).Str("kind", string(alert.Kind)).Msg("alert queue full, dropping alert")
	}
}

// Close drains queued alerts and closes the publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return d.publisher.Close()
}
