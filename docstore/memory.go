package docstore

import (
	"context"
	"sync"

	"github.com/rushteam/insurekit/core"
)

// MemoryStore 内存实现的 DocumentStore，用于测试/开发。
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string][]map[string]any
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]map[string]any)}
}

func (m *MemoryStore) InsertMany(ctx context.Context, database, collection string, docs []map[string]any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, core.NewDomainError(core.ModuleDocStore, core.ErrorCodeUnavailable, "docstore: store is closed")
	}
	key := database + "." + collection
	for _, d := range docs {
		cp := make(map[string]any, len(d))
		for k, v := range d {
			cp[k] = v
		}
		m.data[key] = append(m.data[key], cp)
	}
	return len(docs), nil
}

// Documents 返回 database.collection 中的全部文档
func (m *MemoryStore) Documents(database, collection string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.data[database+"."+collection]...)
}

func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ DocumentStore = (*MemoryStore)(nil)
