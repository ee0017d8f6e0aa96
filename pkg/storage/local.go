package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStore implements ArtifactStore using the local filesystem
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a filesystem-backed artifact store
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Put stores an artifact under the job's directory
func (s *LocalStore) Put(ctx context.Context, jobID uuid.UUID, name string, contentType string, r io.Reader) (*ArtifactInfo, error) {
	jobDir := filepath.Join(s.basePath, jobID.String())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	path := filepath.Join(jobDir, sanitizeName(name))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	return &ArtifactInfo{
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Path:        path,
		CreatedAt:   time.Now(),
	}, nil
}

// Get retrieves an artifact by job id and name
func (s *LocalStore) Get(ctx context.Context, jobID uuid.UUID, name string) (io.ReadCloser, *ArtifactInfo, error) {
	path := filepath.Join(s.basePath, jobID.String(), sanitizeName(name))
	stat, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("artifact not found: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open artifact: %w", err)
	}

	return f, &ArtifactInfo{
		Name:      name,
		Size:      stat.Size(),
		Path:      path,
		CreatedAt: stat.ModTime(),
	}, nil
}

// Delete removes an artifact
func (s *LocalStore) Delete(ctx context.Context, jobID uuid.UUID, name string) error {
	path := filepath.Join(s.basePath, jobID.String(), sanitizeName(name))
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	replacer := strings.NewReplacer("..", "_", string(os.PathSeparator), "_")
	return replacer.Replace(name)
}
