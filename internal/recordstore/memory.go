package recordstore

import (
	"context"
	"encoding/json"
	"sync"

	"chatcore/internal/cerrors"
)

// MemoryBackend keeps all records in process memory. It implements the
// same compare-and-commit contract as the durable backend and is what
// the engine's tests (and single-process runs without postgres) use.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]*Document)}
}

// Get returns a copy of the document, or cerrors.ErrNotFound.
func (m *MemoryBackend) Get(ctx context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, cerrors.NotFoundf("record %s", id)
	}
	return copyDoc(doc), nil
}

// Load returns copies of the current documents for ids; absent ids are
// omitted.
func (m *MemoryBackend) Load(ctx context.Context, ids []string) (map[string]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Document, len(ids))
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok {
			out[id] = copyDoc(doc)
		}
	}
	return out, nil
}

// Commit validates every read version under the write lock and applies
// all changes, or applies nothing and reports ErrVersionConflict.
func (m *MemoryBackend) Commit(ctx context.Context, readVersions map[string]int64, writes map[string]json.RawMessage, deletes map[string]struct{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, readVersion := range readVersions {
		current := int64(0)
		if doc, ok := m.docs[id]; ok {
			current = doc.Version
		}
		if current != readVersion {
			return ErrVersionConflict
		}
	}

	for id, data := range writes {
		version := int64(1)
		if doc, ok := m.docs[id]; ok {
			version = doc.Version + 1
		}
		stored := make([]byte, len(data))
		copy(stored, data)
		m.docs[id] = &Document{ID: id, Data: stored, Version: version}
	}
	for id := range deletes {
		delete(m.docs, id)
	}
	return nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error { return nil }

func copyDoc(doc *Document) *Document {
	data := make([]byte, len(doc.Data))
	copy(data, doc.Data)
	return &Document{ID: doc.ID, Data: data, Version: doc.Version}
}
