package driven

import (
	"context"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

// Provider is the capability set of one external recruiting platform.
// Each variant maps the platform's native pagination onto skip/take.
type Provider interface {
	// Type returns the platform type this provider serves.
	Type() domain.PlatformType

	// SupportedFetchModes returns the fetch modes this provider can serve.
	SupportedFetchModes() []domain.FetchMode

	// Authenticate obtains a token for the configuration.
	Authenticate(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error)

	// CountJobs returns the total number of jobs visible to the configuration.
	CountJobs(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult) (int, error)

	// ListJobsPage returns up to take jobs starting at skip.
	ListJobsPage(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, skip, take int) ([]*domain.ProviderJob, error)

	// CountApplications returns the number of applications for a job.
	CountApplications(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, jobID string) (int, error)

	// ListApplicationsPage returns up to take applications for a job starting
	// at skip, ordered by submission time descending.
	ListApplicationsPage(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, jobID string, skip, take int) ([]*domain.ProviderApplicationRaw, error)

	// DownloadCV fetches a CV file. The URL must belong to the configured base domain.
	DownloadCV(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, url string) ([]byte, error)
}

// ProviderRegistry resolves providers by platform type.
type ProviderRegistry interface {
	// Resolve returns the provider for a platform type.
	Resolve(platform domain.PlatformType) (Provider, error)

	// IsSupported returns true if a provider is registered for the platform type.
	IsSupported(platform domain.PlatformType) bool

	// SupportedTypes returns all registered platform types.
	SupportedTypes() []domain.PlatformType
}

// SupportsFetchMode returns true if the provider declares the mode.
func SupportsFetchMode(p Provider, mode domain.FetchMode) bool {
	for _, m := range p.SupportedFetchModes() {
		if m == mode {
			return true
		}
	}
	return false
}
