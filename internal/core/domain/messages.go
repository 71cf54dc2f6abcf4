package domain

import (
	"time"

	"github.com/google/uuid"
)

// applicationNamespace scopes application message ids
var applicationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/custodia-labs/applicant-sync/applications"))

// NewMessageID creates a unique message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// ApplicationMessageID returns the stable message id of an application.
// Re-emitting the same application of the same configuration yields the same id.
func ApplicationMessageID(configurationID, externalID string) string {
	return uuid.NewSHA1(applicationNamespace, []byte(configurationID+"/"+externalID)).String()
}

// TriggerItem is one configuration to sync, as sent by the scheduler.
// Credentials are usable for this attempt only and never persisted.
type TriggerItem struct {
	ConfigurationID string            `json:"configuration_id"`
	TenantID        string            `json:"tenant_id"`
	PlatformType    PlatformType      `json:"platform_type"`
	FetchMode       FetchMode         `json:"fetch_mode"`
	DisplayName     string            `json:"display_name,omitempty"`
	Enabled         *bool             `json:"enabled,omitempty"`
	Auth            AuthConfiguration `json:"auth"`
	SyncState       SyncState         `json:"sync_state"`
}

// Configuration builds the ProviderConfiguration for this item.
// Items without an explicit enabled flag are treated as enabled.
func (i TriggerItem) Configuration() *ProviderConfiguration {
	enabled := true
	if i.Enabled != nil {
		enabled = *i.Enabled
	}
	return &ProviderConfiguration{
		ID:           i.ConfigurationID,
		TenantID:     i.TenantID,
		PlatformType: i.PlatformType,
		FetchMode:    i.FetchMode,
		Enabled:      enabled,
		DisplayName:  i.DisplayName,
		Auth:         i.Auth,
		SyncState:    i.SyncState.Clone(),
	}
}

// TriggerMessage asks the engine to sync a batch of configurations
type TriggerMessage struct {
	ID          string        `json:"id"`
	RequestedAt time.Time     `json:"requested_at"`
	Items       []TriggerItem `json:"items"`

	// DeliveryID identifies the transport delivery for acknowledgement
	DeliveryID string `json:"-"`
}

// NewTriggerMessage creates a trigger for the given items.
func NewTriggerMessage(items ...TriggerItem) *TriggerMessage {
	return &TriggerMessage{
		ID:          NewMessageID(),
		RequestedAt: time.Now().UTC(),
		Items:       items,
	}
}

// StateUpdate reports the outcome of one configuration's attempt to the
// owning configuration service. SyncState is always the full ledger, so
// failure counters survive failed attempts.
type StateUpdate struct {
	MessageID       string    `json:"message_id"`
	ConfigurationID string    `json:"configuration_id"`
	TenantID        string    `json:"tenant_id"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	ErrorKind       ErrorKind `json:"error_kind,omitempty"`
	SyncState       SyncState `json:"sync_state"`
	Stats           SyncStats `json:"stats"`
	DurationSeconds float64   `json:"duration_seconds"`
	CompletedAt     time.Time `json:"completed_at"`
}
