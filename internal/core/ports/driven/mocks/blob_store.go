package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

// MockBlobStore keeps blobs in memory
type MockBlobStore struct {
	PutErr  error
	PingErr error

	mu    sync.RWMutex
	blobs map[string]*driven.Blob
}

func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{blobs: make(map[string]*driven.Blob)}
}

func (m *MockBlobStore) Put(ctx context.Context, blob *driven.Blob) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	location := "mem://" + blob.ConfigurationID + "/" + blob.ApplicationID
	m.blobs[location] = blob
	return location, nil
}

func (m *MockBlobStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Get returns a stored blob by location.
func (m *MockBlobStore) Get(location string) (*driven.Blob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[location]
	return b, ok
}

// Len returns the number of stored blobs.
func (m *MockBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
