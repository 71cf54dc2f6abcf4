package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

// MockPublisher records published applications
type MockPublisher struct {
	PublishFn func(ctx context.Context, apps []*domain.ProviderApplication) error

	mu    sync.Mutex
	apps  []*domain.ProviderApplication
	calls int
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishApplications(ctx context.Context, apps []*domain.ProviderApplication) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.PublishFn != nil {
		if err := m.PublishFn(ctx, apps); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps = append(m.apps, apps...)
	return nil
}

// Applications returns every application published so far.
func (m *MockPublisher) Applications() []*domain.ProviderApplication {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ProviderApplication(nil), m.apps...)
}

// ExternalIDs returns the external ids of published applications in order.
func (m *MockPublisher) ExternalIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.apps))
	for i, app := range m.apps {
		ids[i] = app.ExternalID
	}
	return ids
}

// Calls returns the number of PublishApplications calls.
func (m *MockPublisher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Reset forgets published applications.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps = nil
	m.calls = 0
}

// MockReporter records state updates
type MockReporter struct {
	ReportFn func(ctx context.Context, update *domain.StateUpdate) error

	mu      sync.Mutex
	updates []*domain.StateUpdate
}

func NewMockReporter() *MockReporter {
	return &MockReporter{}
}

func (m *MockReporter) ReportState(ctx context.Context, update *domain.StateUpdate) error {
	m.mu.Lock()
	m.updates = append(m.updates, update)
	m.mu.Unlock()

	if m.ReportFn != nil {
		return m.ReportFn(ctx, update)
	}
	return nil
}

// Updates returns every reported update.
func (m *MockReporter) Updates() []*domain.StateUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.StateUpdate(nil), m.updates...)
}
