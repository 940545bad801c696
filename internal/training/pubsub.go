package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

var errRetrainFailed = errors.New("retrain failed for every model")

// Job types accepted on the retrain subscription.
const (
	JobRetrain = "retrain"
	JobStatus  = "status"
)

// PubSubHandler consumes retrain jobs from Pub/Sub.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	orchestrator     *Orchestrator
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Orchestrator     *Orchestrator
	Logger           zerolog.Logger
}

// JobMessage is the payload of a training job message.
type JobMessage struct {
	JobType string `json:"job_type"`
	// RequestedBy is informational and only logged.
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Retraining is CPU bound; take one job at a time.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		orchestrator:     cfg.Orchestrator,
		logger:           cfg.Logger.With().Str("component", "training_pubsub").Logger(),
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	if err := HandleJob(ctx, h.orchestrator, logger, msg.Data); err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}
	msg.Ack()
}

// HandleJob runs the job encoded in data. Unknown job types are logged and
// treated as done so they are not redelivered.
func HandleJob(ctx context.Context, o *Orchestrator, logger zerolog.Logger, data []byte) error {
	startTime := time.Now()

	var job JobMessage
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("parse job message: %w", err)
	}

	switch job.JobType {
	case JobRetrain:
		if !o.flags.IsScheduledRetrainEnabled(ctx) {
			logger.Info().Msg("retrain jobs disabled by feature flag, skipping")
			return nil
		}
		result := o.Run(ctx)
		if result.Failed() == modelCount {
			return errRetrainFailed
		}
		logger.Info().
			Str("requested_by", job.RequestedBy).
			Int("failed", result.Failed()).
			Bool("synthetic", result.Synthetic).
			Msg("retrain completed")
	case JobStatus:
		logger.Info().
			Fields(o.MetricsSnapshot()).
			Msg("training status")
	default:
		logger.Warn().Str("job_type", job.JobType).Msg("unknown job type")
		return nil
	}

	logger.Info().
		Str("job_type", job.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}
