package domain

import (
	"path"
	"strings"
	"time"
)

// AuthResult is the outcome of authenticating against a platform.
// A zero ExpiresAt means the provider did not state an expiry.
type AuthResult struct {
	AccessToken string    `json:"-"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`

	// SecretIsToken marks an access token that is the client secret itself
	SecretIsToken bool `json:"-"`
}

// CachedToken is a bearer token held by the token cache for one configuration.
// When Sealed is set, Value is the client secret in its transit form and must
// be opened before use.
type CachedToken struct {
	ConfigurationID string
	Value           string
	TokenType       string
	ExpiresAt       time.Time
	Sealed          bool
}

// IsExpired reports whether the token is expired or within skew of expiring.
func (t *CachedToken) IsExpired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(t.ExpiresAt)
}

// AuthResult converts the cached token back to an AuthResult.
func (t *CachedToken) AuthResult() *AuthResult {
	return &AuthResult{
		AccessToken: t.Value,
		TokenType:   t.TokenType,
		ExpiresAt:   t.ExpiresAt,
	}
}

// ProviderJob is one job posting as reported by a platform
type ProviderJob struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	ApplicationCount int    `json:"application_count"`
}

// ProviderApplicationRaw is one application as fetched from a platform page
type ProviderApplicationRaw struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Email       string    `json:"email,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	CVURL       string    `json:"cv_url,omitempty"`
	CVFileName  string    `json:"cv_file_name,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

// ProviderApplication is the normalized application record sent downstream.
// The shape is shared with the email ingestion path.
type ProviderApplication struct {
	ConfigurationID string    `json:"configuration_id"`
	TenantID        string    `json:"tenant_id"`
	ExternalID      string    `json:"external_id"`
	ExternalJobID   string    `json:"external_job_id"`
	JobTitle        string    `json:"job_title"`
	Source          string    `json:"source"`
	SubmittedAt     time.Time `json:"submitted_at"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Phone           string    `json:"phone"`
	CVDownloadURL   string    `json:"cv_download_url"`
	CVFileName      string    `json:"cv_file_name"`
	Summary         string    `json:"summary,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`

	// sourceCVURL is the platform URL of the CV, never sent downstream
	sourceCVURL string
}

// NormalizeApplication projects a raw platform application onto the shared shape.
func NormalizeApplication(cfg *ProviderConfiguration, job *ProviderJob, raw *ProviderApplicationRaw) *ProviderApplication {
	fileName := strings.TrimSpace(raw.CVFileName)
	if fileName == "" && raw.CVURL != "" {
		fileName = path.Base(strings.SplitN(raw.CVURL, "?", 2)[0])
	}
	return &ProviderApplication{
		ConfigurationID: cfg.ID,
		TenantID:        cfg.TenantID,
		ExternalID:      raw.ID,
		ExternalJobID:   job.ID,
		JobTitle:        strings.TrimSpace(job.Title),
		Source:          cfg.Source(),
		SubmittedAt:     raw.SubmittedAt.UTC(),
		Email:           strings.ToLower(strings.TrimSpace(raw.Email)),
		FirstName:       strings.TrimSpace(raw.FirstName),
		LastName:        strings.TrimSpace(raw.LastName),
		Phone:           strings.TrimSpace(raw.Phone),
		CVFileName:      fileName,
		Summary:         strings.TrimSpace(raw.Summary),
		sourceCVURL:     raw.CVURL,
	}
}

// SourceCVURL returns the platform URL the CV must be downloaded from.
func (a *ProviderApplication) SourceCVURL() string {
	return a.sourceCVURL
}

// AttachCV sets the internal blob location of the downloaded CV.
func (a *ProviderApplication) AttachCV(location string) {
	a.CVDownloadURL = location
}

// DropCV clears CV fields after a failed download and records why.
func (a *ProviderApplication) DropCV(warning string) {
	a.CVDownloadURL = ""
	a.CVFileName = ""
	a.Warnings = append(a.Warnings, warning)
}
