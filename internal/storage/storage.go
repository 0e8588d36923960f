// Package storage moves sealed chunk index files between the local data directory and
// object storage.
package storage

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
)

// Sentinel errors, reachable through errors.Is on every error this package returns.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the object store holding chunk index files.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath, creating parent directories.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes objectPath. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether objectPath is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

func uploadError(objectPath string, err error) error {
	return apperrors.NewStorageError(apperrors.CodeUploadFailed,
		fmt.Sprintf("failed to upload %s", objectPath), fmt.Errorf("%w: %v", ErrUploadFailed, err))
}

func downloadError(objectPath string, err error) error {
	return apperrors.NewStorageError(apperrors.CodeDownloadFailed,
		fmt.Sprintf("failed to download %s", objectPath), fmt.Errorf("%w: %v", ErrDownloadFailed, err))
}

func deleteError(objectPath string, err error) error {
	return apperrors.NewStorageError(apperrors.CodeDeleteFailed,
		fmt.Sprintf("failed to delete %s", objectPath), fmt.Errorf("%w: %v", ErrDeleteFailed, err))
}

func notFoundError(objectPath string) error {
	return apperrors.NewStorageError(apperrors.CodeObjectNotFound,
		fmt.Sprintf("object %s not found", objectPath), ErrObjectNotFound)
}
