package gallery

import (
	"context"
	"sort"
	"sync"
)

// MemoryBlobStore keeps blobs in process memory. URLs use the memory:// scheme.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	types map[string]string
}

// NewMemoryBlobStore creates an empty MemoryBlobStore.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte), types: make(map[string]string)}
}

func (m *MemoryBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = append([]byte(nil), data...)
	m.types[path] = contentType
	return nil
}

func (m *MemoryBlobStore) URL(ctx context.Context, path string) (string, error) {
	return "memory://" + path, nil
}

// Get returns a stored blob and its content type.
func (m *MemoryBlobStore) Get(path string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[path]
	return data, m.types[path], ok
}

// MemoryRecordStore keeps gallery records in process memory.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewMemoryRecordStore creates an empty MemoryRecordStore.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string][]Record)}
}

func (m *MemoryRecordStore) Add(ctx context.Context, subjectID string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[subjectID] = append(m.records[subjectID], rec)
	return nil
}

func (m *MemoryRecordStore) List(ctx context.Context, subjectID string) ([]Record, error) {
	m.mu.RLock()
	recs := m.records[subjectID]
	out := make([]Record, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
	}
	m.mu.RUnlock()
	// Records added in the same instant stay newest-added first.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

var (
	_ BlobStore   = (*MemoryBlobStore)(nil)
	_ RecordStore = (*MemoryRecordStore)(nil)
)
