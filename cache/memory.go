package cache

import (
	"sort"
	"sync"
)

// MemoryProvider is an in-memory Provider.
// It is primarily meant for tests, where disposable partition
// namespaces make lifecycle transitions easy to assert on.
type MemoryProvider struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Entry
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		partitions: make(map[string]map[string]Entry),
	}
}

func (m *MemoryProvider) Put(partition string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[partition]
	if !ok {
		p = make(map[string]Entry)
		m.partitions[partition] = p
	}
	p[entry.Key] = entry
	return nil
}

func (m *MemoryProvider) Match(partition, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.partitions[partition][key]
	return entry, ok, nil
}

func (m *MemoryProvider) Delete(partition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, partition)
	return nil
}

func (m *MemoryProvider) Names() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryProvider) Count(partition string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.partitions[partition]), nil
}
