package driven

import (
	"context"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

// TokenCache hands out provider tokens per configuration, authenticating at
// most once at a time for any configuration.
type TokenCache interface {
	// GetOrAuthenticate returns a cached, unexpired token or authenticates.
	GetOrAuthenticate(ctx context.Context, cfg *domain.ProviderConfiguration, provider Provider) (*domain.AuthResult, error)

	// Invalidate drops the cached token for a configuration.
	Invalidate(configurationID string)
}

// SecretOpener opens credentials sealed for transit.
type SecretOpener interface {
	// Open returns the plaintext secret. Unsealed values are returned as-is.
	Open(value string) (string, error)
}
