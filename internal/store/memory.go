package store

import (
	"context"
	"sync"

	"github.com/graphbridge/graphbridge/internal/model"
)

// Memory is an in-memory attribute source.
type Memory struct {
	mu    sync.RWMutex
	attrs []model.Attribute
}

// NewMemory creates a source seeded with attrs.
func NewMemory(attrs ...model.Attribute) *Memory {
	return &Memory{attrs: attrs}
}

// Add appends an attribute.
func (m *Memory) Add(a model.Attribute) {
	m.mu.Lock()
	m.attrs = append(m.attrs, a)
	m.mu.Unlock()
}

// Remove drops the attribute identified by (databaseID, collectionID, key).
func (m *Memory) Remove(databaseID, collectionID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.attrs {
		if a.DatabaseID == databaseID && a.CollectionID == collectionID && a.Key == key {
			m.attrs = append(m.attrs[:i], m.attrs[i+1:]...)
			return
		}
	}
}

// ListAttributes implements schema.AttributeSource.
func (m *Memory) ListAttributes(_ context.Context, limit, offset int) ([]model.Attribute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= len(m.attrs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.attrs) {
		end = len(m.attrs)
	}
	out := make([]model.Attribute, end-offset)
	copy(out, m.attrs[offset:end])
	return out, nil
}
