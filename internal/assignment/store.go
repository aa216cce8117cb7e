package assignment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/classpulse/backend/pkg/storage"
)

// Store persists accepted submission payloads. Save returns a location
// string useful for download links (a filesystem path or an object URL).
type Store interface {
	Save(ctx context.Context, assignmentID, storedName string, data []byte) (location string, err error)
}

// DiskStore writes submissions under root/<assignment_id>/.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: root}
}

func (d *DiskStore) Save(_ context.Context, assignmentID, storedName string, data []byte) (string, error) {
	dir := filepath.Join(d.root, assignmentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create submission dir: %w", err)
	}
	path := filepath.Join(dir, storedName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write submission: %w", err)
	}
	return path, nil
}

// S3Store keeps submissions in the configured assignments bucket.
type S3Store struct {
	s3 *storage.S3
}

func NewS3Store(s3 *storage.S3) *S3Store {
	return &S3Store{s3: s3}
}

func (s *S3Store) Save(ctx context.Context, assignmentID, storedName string, data []byte) (string, error) {
	key := storage.AssignmentKey(assignmentID, storedName)
	return s.s3.Upload(ctx, s.s3.AssignmentsBucket(), key, "application/octet-stream",
		bytes.NewReader(data), int64(len(data)))
}
