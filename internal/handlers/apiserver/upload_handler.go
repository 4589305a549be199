package apiserver

import (
	"fmt"
	"log"
	"net/http"

	"chatcore/internal/chattypes"
	"chatcore/internal/config"
)

// defaultMaxMemory bounds the in-memory part of multipart parsing.
const defaultMaxMemory = 32 << 20

// UploadHandler accepts multipart file uploads for message images and
// room or profile icons and returns the stored blob's URL.
type UploadHandler struct {
	blobStore chattypes.BlobStore
	cfg       config.StorageConfig
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(blobStore chattypes.BlobStore, cfg config.StorageConfig) *UploadHandler {
	return &UploadHandler{blobStore: blobStore, cfg: cfg}
}

// UploadFile stores the "file" form field and returns its FileInfo.
func (h *UploadHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	maxUploadSize := h.cfg.MaxFileSizeMB << 20
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxMemory
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		if err.Error() == "http: request body too large" {
			writeJSONError(w, fmt.Sprintf("file too large, limit is %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		} else {
			writeJSONError(w, fmt.Sprintf("parse form: %v", err), http.StatusBadRequest)
		}
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			writeJSONError(w, "missing 'file' field", http.StatusBadRequest)
		} else {
			writeJSONError(w, fmt.Sprintf("read file: %v", err), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	if handler.Size > maxUploadSize {
		writeJSONError(w, fmt.Sprintf("file too large, limit is %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		return
	}

	mimeType := handler.Header.Get("Content-Type")
	fileInfo, err := h.blobStore.Store(r.Context(), file, handler.Size, handler.Filename, mimeType)
	if err != nil {
		log.Printf("failed to store uploaded file: %v", err)
		writeJSONError(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, fileInfo)
}
