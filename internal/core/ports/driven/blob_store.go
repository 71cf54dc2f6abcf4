package driven

import "context"

// Blob is a downloaded file to be stored
type Blob struct {
	TenantID        string
	ConfigurationID string
	ApplicationID   string
	FileName        string
	ContentType     string
	Data            []byte
}

// BlobStore persists downloaded files and returns their internal location.
type BlobStore interface {
	// Put stores the blob and returns its internal location.
	Put(ctx context.Context, blob *Blob) (string, error)

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error
}
