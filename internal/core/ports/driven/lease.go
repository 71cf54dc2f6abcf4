package driven

import (
	"context"
	"time"
)

// ConfigurationLeases keeps one sync attempt per configuration across
// worker instances. Leases expire on their own if the holder dies.
type ConfigurationLeases interface {
	// Acquire takes the lease for a configuration.
	// Returns false if another instance holds it.
	Acquire(ctx context.Context, configurationID string, ttl time.Duration) (bool, error)

	// Extend renews a lease held by this instance.
	Extend(ctx context.Context, configurationID string, ttl time.Duration) error

	// Release gives the lease up. Safe to call if it already expired.
	Release(ctx context.Context, configurationID string) error
}
