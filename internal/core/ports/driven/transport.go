package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

// ApplicationPublisher sends normalized applications to the downstream consumer.
type ApplicationPublisher interface {
	// PublishApplications emits the applications of one job.
	PublishApplications(ctx context.Context, apps []*domain.ProviderApplication) error
}

// StateReporter sends attempt outcomes to the owning configuration service.
type StateReporter interface {
	// ReportState emits one state update.
	ReportState(ctx context.Context, update *domain.StateUpdate) error
}

// TriggerQueue delivers trigger messages from the scheduler.
type TriggerQueue interface {
	// Enqueue adds a trigger message.
	Enqueue(ctx context.Context, msg *domain.TriggerMessage) error

	// DequeueWithTimeout returns the next trigger, waiting up to timeout.
	// Returns nil, nil if no trigger arrived in time.
	DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*domain.TriggerMessage, error)

	// Ack acknowledges a processed trigger by its delivery ID.
	Ack(ctx context.Context, deliveryID string) error

	// Ping checks if the queue backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}
