package blobstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chatcore/internal/chattypes"
	"chatcore/internal/config"
)

// LocalBlobStore implements chattypes.BlobStore on top of a local
// directory. Files are renamed to a UUID so callers can upload the same
// file name twice without collisions.
type LocalBlobStore struct {
	basePath string
	baseURL  string
}

// NewLocalBlobStore creates a blob store rooted at cfg.LocalPath.
// baseURL is the URL prefix under which the directory is served.
func NewLocalBlobStore(cfg config.StorageConfig, baseURL string) (chattypes.BlobStore, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("create local blob directory '%s': %w", cfg.LocalPath, err)
	}
	return &LocalBlobStore{
		basePath: cfg.LocalPath,
		baseURL:  baseURL,
	}, nil
}

// Store saves the blob to the local filesystem and returns its public URL.
func (s *LocalBlobStore) Store(ctx context.Context, reader io.Reader, size int64, fileName string, mimeType string) (*chattypes.FileInfo, error) {
	ext := filepath.Ext(fileName)
	if ext == "" {
		// No extension on the original name, infer one from the MIME type.
		extensions, _ := mime.ExtensionsByType(mimeType)
		if len(extensions) > 0 {
			ext = extensions[0]
		}
	}
	uniqueFileName := uuid.New().String() + ext

	dstPath := filepath.Join(s.basePath, uniqueFileName)

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("create blob file '%s': %w", dstPath, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, reader)
	if err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("write blob file: %w", err)
	}
	if written != size {
		os.Remove(dstPath)
		return nil, fmt.Errorf("blob size mismatch: expected %d, wrote %d", size, written)
	}

	fileURL := strings.TrimSuffix(s.baseURL, "/") + "/" + url.PathEscape(uniqueFileName)

	return &chattypes.FileInfo{
		URL:      fileURL,
		Path:     dstPath,
		Size:     size,
		MimeType: mimeType,
	}, nil
}
