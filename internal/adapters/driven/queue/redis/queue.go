package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

const (
	// Stream names
	DefaultTriggerStream     = "applicant-sync:triggers"
	DefaultStateStream       = "applicant-sync:state-updates"
	DefaultApplicationStream = "applicant-sync:applications"
	DefaultGroup             = "applicant-sync:workers"

	// Default consumer name prefix
	consumerPrefix = "worker-"

	// Claim timeout - how long before a trigger is considered abandoned
	defaultClaimTimeout = 5 * time.Minute

	// Approximate cap on outbound stream length
	defaultMaxLen = 100_000

	payloadField   = "payload"
	messageIDField = "message_id"
	typeField      = "type"
)

// Verify interface compliance
var (
	_ driven.TriggerQueue         = (*Transport)(nil)
	_ driven.ApplicationPublisher = (*Transport)(nil)
	_ driven.StateReporter        = (*Transport)(nil)
)

// ApplicationMessage is one normalized application on the outbound stream.
// MessageID is stable per configuration and application.
type ApplicationMessage struct {
	MessageID   string                      `json:"message_id"`
	Application *domain.ProviderApplication `json:"application"`
}

// Transport moves engine messages over Redis Streams. Triggers are read
// through a consumer group so each is handled by one worker and redelivered
// if that worker dies before acknowledging it. It carries no business logic.
type Transport struct {
	client            *redis.Client
	consumerName      string
	triggerStream     string
	stateStream       string
	applicationStream string
	group             string
	claimTimeout      time.Duration
	maxLen            int64
	logger            *slog.Logger
}

// TransportConfig holds configuration for the Redis transport.
type TransportConfig struct {
	Client            *redis.Client
	ConsumerName      string // Unique per worker instance (default: generated)
	TriggerStream     string
	StateStream       string
	ApplicationStream string
	Group             string
	ClaimTimeout      time.Duration // Idle time before a pending trigger is reclaimed (default: 5m)
	MaxLen            int64         // Approximate length cap of outbound streams (default: 100000)
	Logger            *slog.Logger
}

// NewTransport creates a Redis Streams transport and ensures the consumer
// group exists.
func NewTransport(ctx context.Context, cfg TransportConfig) (*Transport, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Transport{
		client:            cfg.Client,
		consumerName:      orDefault(cfg.ConsumerName, fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())),
		triggerStream:     orDefault(cfg.TriggerStream, DefaultTriggerStream),
		stateStream:       orDefault(cfg.StateStream, DefaultStateStream),
		applicationStream: orDefault(cfg.ApplicationStream, DefaultApplicationStream),
		group:             orDefault(cfg.Group, DefaultGroup),
		claimTimeout:      cfg.ClaimTimeout,
		maxLen:            cfg.MaxLen,
		logger:            logger,
	}
	if t.claimTimeout <= 0 {
		t.claimTimeout = defaultClaimTimeout
	}
	if t.maxLen <= 0 {
		t.maxLen = defaultMaxLen
	}

	err := t.client.XGroupCreateMkStream(ctx, t.triggerStream, t.group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return t, nil
}

// Enqueue adds a trigger to the trigger stream.
func (t *Transport) Enqueue(ctx context.Context, msg *domain.TriggerMessage) error {
	if msg == nil {
		return errors.New("trigger message is required")
	}
	if msg.ID == "" {
		msg.ID = domain.NewMessageID()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	err = t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.triggerStream,
		Values: map[string]interface{}{
			messageIDField: msg.ID,
			payloadField:   string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue trigger: %w", err)
	}
	return nil
}

// DequeueWithTimeout returns the next trigger for this consumer, waiting up
// to timeout. Abandoned triggers of dead consumers are reclaimed first.
// Undecodable triggers are acknowledged, dropped and reported as
// domain.ErrMalformedTrigger.
func (t *Transport) DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*domain.TriggerMessage, error) {
	msg, err := t.claimAbandoned(ctx)
	if err != nil {
		t.logger.Warn("failed to claim abandoned triggers", "error", err)
	} else if msg != nil {
		return t.decode(ctx, *msg)
	}

	streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.group,
		Consumer: t.consumerName,
		Streams:  []string{t.triggerStream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read trigger stream: %w", err)
	}

	for _, stream := range streams {
		for _, m := range stream.Messages {
			return t.decode(ctx, m)
		}
	}
	return nil, nil
}

// Ack acknowledges a processed trigger and removes it from the stream.
func (t *Transport) Ack(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return nil
	}
	pipe := t.client.Pipeline()
	pipe.XAck(ctx, t.triggerStream, t.group, deliveryID)
	pipe.XDel(ctx, t.triggerStream, deliveryID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack trigger %s: %w", deliveryID, err)
	}
	return nil
}

// PublishApplications appends one message per application to the
// application stream in a single round trip. Message ids are derived from the
// configuration and application ids so consumers can drop re-emissions.
func (t *Transport) PublishApplications(ctx context.Context, apps []*domain.ProviderApplication) error {
	if len(apps) == 0 {
		return nil
	}

	pipe := t.client.Pipeline()
	for _, app := range apps {
		msg := ApplicationMessage{MessageID: domain.ApplicationMessageID(app.ConfigurationID, app.ExternalID), Application: app}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal application %s: %w", app.ExternalID, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: t.applicationStream,
			MaxLen: t.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				messageIDField: msg.MessageID,
				typeField:      "application",
				payloadField:   string(data),
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish applications: %w", err)
	}
	return nil
}

// ReportState appends a state update to the state stream.
func (t *Transport) ReportState(ctx context.Context, update *domain.StateUpdate) error {
	if update == nil {
		return errors.New("state update is required")
	}
	if update.MessageID == "" {
		update.MessageID = domain.NewMessageID()
	}

	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal state update: %w", err)
	}

	err = t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stateStream,
		MaxLen: t.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			messageIDField: update.MessageID,
			typeField:      "state_update",
			payloadField:   string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to report state for %s: %w", update.ConfigurationID, err)
	}
	return nil
}

// Ping checks if Redis is healthy.
func (t *Transport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close cleans up resources.
func (t *Transport) Close() error {
	// Redis client is shared, don't close it here
	return nil
}

// claimAbandoned takes over a trigger left pending by another consumer for
// longer than the claim timeout.
func (t *Transport) claimAbandoned(ctx context.Context) (*redis.XMessage, error) {
	pending, err := t.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: t.triggerStream,
		Group:  t.group,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   t.claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := t.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   t.triggerStream,
			Group:    t.group,
			Consumer: t.consumerName,
			MinIdle:  t.claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		t.logger.Info("claimed abandoned trigger", "delivery_id", p.ID, "previous_consumer", p.Consumer)
		return &claimed[0], nil
	}
	return nil, nil
}

func (t *Transport) decode(ctx context.Context, m redis.XMessage) (*domain.TriggerMessage, error) {
	raw, _ := m.Values[payloadField].(string)

	var msg domain.TriggerMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil || len(msg.Items) == 0 {
		if ackErr := t.Ack(ctx, m.ID); ackErr != nil {
			t.logger.Warn("failed to drop malformed trigger", "delivery_id", m.ID, "error", ackErr)
		}
		if err == nil {
			err = errors.New("no items")
		}
		return nil, fmt.Errorf("%w: delivery %s: %v", domain.ErrMalformedTrigger, m.ID, err)
	}

	msg.DeliveryID = m.ID
	return &msg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
