// Package storage provides the artifact store used to persist validation
// reports and row-level rejection files produced by processing jobs.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// ArtifactInfo contains metadata about a stored artifact
type ArtifactInfo struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactStore defines the interface for artifact persistence.
// Production deployments back this with the platform object store;
// LocalStore is used for development and tests.
type ArtifactStore interface {
	// Put stores an artifact under the job's namespace and returns its metadata
	Put(ctx context.Context, jobID uuid.UUID, name string, contentType string, r io.Reader) (*ArtifactInfo, error)

	// Get retrieves a previously stored artifact
	Get(ctx context.Context, jobID uuid.UUID, name string) (io.ReadCloser, *ArtifactInfo, error)

	// Delete removes an artifact
	Delete(ctx context.Context, jobID uuid.UUID, name string) error
}
