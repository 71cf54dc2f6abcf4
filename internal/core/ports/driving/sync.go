package driving

import (
	"context"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

// SyncOrchestrator drives provider synchronization.
type SyncOrchestrator interface {
	// SyncBatch syncs every configuration of a trigger with bounded fan-out.
	// Failures are isolated per configuration and returned as state updates.
	SyncBatch(ctx context.Context, msg *domain.TriggerMessage) []*domain.StateUpdate

	// SyncConfiguration runs one attempt for a configuration and reports it.
	SyncConfiguration(ctx context.Context, cfg *domain.ProviderConfiguration) *domain.StateUpdate
}
