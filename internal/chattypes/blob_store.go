package chattypes

import (
	"context"
	"io"
)

// FileInfo describes a stored blob.
type FileInfo struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// BlobStore is the opaque store(bytes) -> url capability the engine
// consumes for message images and avatars. The interface lives here to
// keep blobstore and the handlers from depending on each other.
type BlobStore interface {
	Store(ctx context.Context, reader io.Reader, size int64, fileName string, mimeType string) (*FileInfo, error)
}
