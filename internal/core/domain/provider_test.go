package domain

import (
	"errors"
	"testing"
	"time"
)

func TestFetchModeUsesAPI(t *testing.T) {
	tests := []struct {
		mode FetchMode
		want bool
	}{
		{FetchModeAPI, true},
		{FetchModeHybrid, true},
		{FetchModeEmailOnly, false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.UsesAPI(); got != tt.want {
				t.Errorf("UsesAPI() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthConfigurationTimeout(t *testing.T) {
	if got := (AuthConfiguration{}).Timeout(); got != DefaultCallTimeout {
		t.Errorf("expected default timeout, got %v", got)
	}
	if got := (AuthConfiguration{TimeoutSeconds: 5}).Timeout(); got != 5*time.Second {
		t.Errorf("expected 5s, got %v", got)
	}
}

func TestAuthConfigurationRetryBudget(t *testing.T) {
	zero, two, negative := 0, 2, -1

	tests := []struct {
		name string
		max  *int
		want int
	}{
		{"unset", nil, DefaultRetryBudget},
		{"zero", &zero, 0},
		{"explicit", &two, 2},
		{"negative", &negative, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (AuthConfiguration{MaxRetries: tt.max}).RetryBudget(); got != tt.want {
				t.Errorf("RetryBudget() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProviderConfigurationValidate(t *testing.T) {
	valid := func() *ProviderConfiguration {
		return &ProviderConfiguration{
			ID:           "cfg-1",
			PlatformType: PlatformTalentsoft,
			Auth:         AuthConfiguration{BaseURL: "https://acme.talent-soft.com"},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid configuration, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ProviderConfiguration)
	}{
		{"missing id", func(c *ProviderConfiguration) { c.ID = " " }},
		{"missing platform", func(c *ProviderConfiguration) { c.PlatformType = "" }},
		{"missing base url", func(c *ProviderConfiguration) { c.Auth.BaseURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if KindOf(err) != ErrorKindConfiguration {
				t.Errorf("expected configuration kind, got %s", KindOf(err))
			}
		})
	}
}

func TestProviderConfigurationSource(t *testing.T) {
	cfg := &ProviderConfiguration{PlatformType: PlatformSmartRecruiters}
	if cfg.Source() != "smartrecruiters" {
		t.Errorf("expected platform as source, got %s", cfg.Source())
	}
	cfg.DisplayName = "Careers Site"
	if cfg.Source() != "Careers Site" {
		t.Errorf("expected display name as source, got %s", cfg.Source())
	}
}

func TestTriggerItemConfiguration(t *testing.T) {
	boundary := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	item := TriggerItem{
		ConfigurationID: "cfg-1",
		TenantID:        "tenant-1",
		PlatformType:    PlatformTalentsoft,
		FetchMode:       FetchModeHybrid,
		SyncState: SyncState{
			LastProcessedApplicationDate: &boundary,
			SameDateProcessedIDs:         []string{"a"},
		},
	}

	cfg := item.Configuration()
	if !cfg.Enabled {
		t.Error("expected items without enabled flag to be enabled")
	}
	if cfg.ID != "cfg-1" || cfg.TenantID != "tenant-1" || cfg.FetchMode != FetchModeHybrid {
		t.Errorf("unexpected configuration: %+v", cfg)
	}

	cfg.SyncState.SameDateProcessedIDs[0] = "changed"
	if item.SyncState.SameDateProcessedIDs[0] != "a" {
		t.Error("configuration shares state with the trigger item")
	}

	disabled := false
	item.Enabled = &disabled
	if item.Configuration().Enabled {
		t.Error("expected explicit disabled flag to be kept")
	}
}

func TestNewTriggerMessage(t *testing.T) {
	a := NewTriggerMessage(TriggerItem{ConfigurationID: "cfg-1"})
	b := NewTriggerMessage()

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique message ids, got %q and %q", a.ID, b.ID)
	}
	if a.RequestedAt.IsZero() {
		t.Error("expected requested at to be set")
	}
	if len(a.Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(a.Items))
	}
}

func TestApplicationMessageID(t *testing.T) {
	id := ApplicationMessageID("cfg-1", "A1")

	if id != ApplicationMessageID("cfg-1", "A1") {
		t.Error("expected the same id for the same application")
	}
	if id == ApplicationMessageID("cfg-2", "A1") {
		t.Error("expected configurations to be distinguished")
	}
	if id == ApplicationMessageID("cfg-1", "A2") {
		t.Error("expected applications to be distinguished")
	}
	if len(id) != 36 {
		t.Errorf("expected a uuid, got %q", id)
	}
}
