package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the refresh subscription.
const (
	JobTypePollenRefresh = "pollen_refresh"
	JobTypeHealthCheck   = "health_check"
)

// RefreshMessage represents a refresh job message.
type RefreshMessage struct {
	JobType string `json:"job_type"`

	// ReloadCatalog drops the cached catalog before refreshing.
	ReloadCatalog bool `json:"reload_catalog,omitempty"`
}

// Dispatcher runs the job named by a refresh message.
type Dispatcher struct {
	refreshJob *RefreshJob
	logger     zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(refreshJob *RefreshJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{refreshJob: refreshJob, logger: logger}
}

// Dispatch parses data and runs the job. Unknown job types are logged and
// reported as handled so they are not redelivered.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parsing refresh message: %w", err)
	}

	switch msg.JobType {
	case JobTypePollenRefresh:
		if msg.ReloadCatalog {
			d.refreshJob.InvalidateCatalog()
		}
		if result := d.refreshJob.Run(ctx); result.Err != nil {
			return fmt.Errorf("pollen refresh: %w", result.Err)
		}
		return nil
	case JobTypeHealthCheck:
		if err := d.refreshJob.CheckCatalog(ctx); err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		return nil
	default:
		d.logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return nil
	}
}

// PubSubHandler receives refresh messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	// Refreshes are serialized by the service, so there is no point in pulling many at once.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.RefreshJob, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, h.handleMessage)
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	start := time.Now()
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Time("publish_time", msg.PublishTime).
		Logger()

	if err := h.dispatcher.Dispatch(ctx, msg.Data); err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Dur("duration", time.Since(start)).
		Msg("job completed")
	msg.Ack()
}
