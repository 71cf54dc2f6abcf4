package domain

import (
	"fmt"
	"strings"
	"time"
)

// PlatformType identifies an external recruiting platform
type PlatformType string

const (
	PlatformTalentsoft      PlatformType = "talentsoft"
	PlatformSmartRecruiters PlatformType = "smartrecruiters"
)

// FetchMode selects how applications are ingested for a configuration
type FetchMode string

const (
	FetchModeEmailOnly FetchMode = "email_only"
	FetchModeAPI       FetchMode = "api"
	FetchModeHybrid    FetchMode = "hybrid"
)

// UsesAPI returns true if the mode pulls data from the platform API.
func (m FetchMode) UsesAPI() bool {
	return m == FetchModeAPI || m == FetchModeHybrid
}

// AuthType defines how the engine authenticates against a platform
type AuthType string

const (
	AuthTypeNone              AuthType = "none"
	AuthTypeClientCredentials AuthType = "client_credentials"
	AuthTypeAPIKey            AuthType = "api_key"
	AuthTypeBasic             AuthType = "basic"
)

const (
	// DefaultCallTimeout applies when a configuration does not set one
	DefaultCallTimeout = 30 * time.Second

	// DefaultRetryBudget is the number of retries for transient failures
	DefaultRetryBudget = 3
)

// AuthConfiguration holds the credentials and endpoint for one configuration.
// ClientSecret may arrive sealed and is only opened for an outbound call.
type AuthConfiguration struct {
	Type           AuthType `json:"type"`
	ClientID       string   `json:"client_id,omitempty"`
	ClientSecret   string   `json:"client_secret,omitempty"`
	BaseURL        string   `json:"base_url"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	MaxRetries     *int     `json:"max_retries,omitempty"`
}

// Timeout returns the per-call timeout.
func (a AuthConfiguration) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return DefaultCallTimeout
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RetryBudget returns how many times a transient failure is retried.
func (a AuthConfiguration) RetryBudget() int {
	if a.MaxRetries == nil {
		return DefaultRetryBudget
	}
	if *a.MaxRetries < 0 {
		return 0
	}
	return *a.MaxRetries
}

// ProviderConfiguration is one (tenant, platform) pairing received from the
// owning configuration service. Only SyncState is mutated by the engine.
type ProviderConfiguration struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	PlatformType PlatformType      `json:"platform_type"`
	FetchMode    FetchMode         `json:"fetch_mode"`
	Enabled      bool              `json:"enabled"`
	DisplayName  string            `json:"display_name"`
	Auth         AuthConfiguration `json:"auth"`
	SyncState    SyncState         `json:"sync_state"`
}

// Validate checks the fields the engine relies on.
func (c *ProviderConfiguration) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: configuration id is required", ErrInvalidInput)
	}
	if c.PlatformType == "" {
		return fmt.Errorf("%w: platform type is required", ErrInvalidInput)
	}
	if strings.TrimSpace(c.Auth.BaseURL) == "" {
		return fmt.Errorf("%w: base url is required", ErrInvalidInput)
	}
	return nil
}

// Source returns the label used as application source downstream.
func (c *ProviderConfiguration) Source() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return string(c.PlatformType)
}
