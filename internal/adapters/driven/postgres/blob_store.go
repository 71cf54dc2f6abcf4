package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

// DefaultLocationPrefix prefixes the internal location of stored CVs
const DefaultLocationPrefix = "cv-blobs://"

// Verify interface compliance
var _ driven.BlobStore = (*BlobStore)(nil)

// BlobStore implements driven.BlobStore using PostgreSQL
type BlobStore struct {
	db     *DB
	prefix string
}

// NewBlobStore creates a new BlobStore. An empty prefix uses DefaultLocationPrefix.
func NewBlobStore(db *DB, prefix string) *BlobStore {
	if prefix == "" {
		prefix = DefaultLocationPrefix
	}
	return &BlobStore{db: db, prefix: prefix}
}

// Put stores a CV and returns its internal location. Storing a CV again for
// the same application replaces the content and keeps the location.
func (s *BlobStore) Put(ctx context.Context, blob *driven.Blob) (string, error) {
	if blob == nil || len(blob.Data) == 0 {
		return "", errors.New("blob data is required")
	}
	if blob.ConfigurationID == "" || blob.ApplicationID == "" {
		return "", errors.New("blob configuration and application ids are required")
	}

	sum := sha256.Sum256(blob.Data)
	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	query := `
		INSERT INTO cv_blobs (id, tenant_id, configuration_id, application_id, file_name, content_type, size_bytes, sha256, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (configuration_id, application_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			sha256 = EXCLUDED.sha256,
			data = EXCLUDED.data,
			updated_at = NOW()
		RETURNING id
	`

	var id string
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		blob.TenantID,
		blob.ConfigurationID,
		blob.ApplicationID,
		blob.FileName,
		contentType,
		len(blob.Data),
		hex.EncodeToString(sum[:]),
		blob.Data,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to store cv for application %s: %w", blob.ApplicationID, err)
	}

	return s.prefix + id, nil
}

// Get returns a stored CV by its location.
func (s *BlobStore) Get(ctx context.Context, location string) (*driven.Blob, error) {
	id, ok := strings.CutPrefix(location, s.prefix)
	if !ok {
		return nil, fmt.Errorf("location %q is not a cv blob", location)
	}

	query := `
		SELECT tenant_id, configuration_id, application_id, file_name, content_type, data
		FROM cv_blobs
		WHERE id = $1
	`

	var blob driven.Blob
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&blob.TenantID,
		&blob.ConfigurationID,
		&blob.ApplicationID,
		&blob.FileName,
		&blob.ContentType,
		&blob.Data,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load cv %s: %w", id, err)
	}
	return &blob, nil
}

// Ping checks if the database is reachable
func (s *BlobStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
