package mocks

import (
	"context"
	"sync"
	"time"
)

// MockLeases is an in-memory ConfigurationLeases
type MockLeases struct {
	AcquireErr error

	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released []string
}

func NewMockLeases() *MockLeases {
	return &MockLeases{held: make(map[string]bool)}
}

// Hold marks a configuration as leased by another worker.
func (m *MockLeases) Hold(configurationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[configurationID] = true
}

func (m *MockLeases) Acquire(ctx context.Context, configurationID string, ttl time.Duration) (bool, error) {
	if m.AcquireErr != nil {
		return false, m.AcquireErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[configurationID] {
		return false, nil
	}
	m.held[configurationID] = true
	m.acquired = append(m.acquired, configurationID)
	return true, nil
}

func (m *MockLeases) Extend(ctx context.Context, configurationID string, ttl time.Duration) error {
	return nil
}

func (m *MockLeases) Release(ctx context.Context, configurationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, configurationID)
	m.released = append(m.released, configurationID)
	return nil
}

// Acquired returns configurations leased through Acquire.
func (m *MockLeases) Acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acquired...)
}

// Released returns configurations passed to Release.
func (m *MockLeases) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// IsHeld reports whether a configuration is currently leased.
func (m *MockLeases) IsHeld(configurationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[configurationID]
}
