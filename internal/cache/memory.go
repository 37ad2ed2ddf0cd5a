package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	tags    map[string]map[string]struct{}
	// epochs counts invalidations per "tag:" and "path:" key.
	epochs map[string]uint64
	now    func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*Entry),
		tags:    make(map[string]map[string]struct{}),
		epochs:  make(map[string]uint64),
		now:     time.Now,
	}
}

// Get returns a copy of the entry cached for path.
func (m *Memory) Get(_ context.Context, path string) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[path]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	cp.Body = append([]byte(nil), e.Body...)
	cp.Tags = append([]string(nil), e.Tags...)
	return &cp, true, nil
}

// Set stores entry under path and indexes it by its tags.
func (m *Memory) Set(_ context.Context, path string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(path, entry)
	return nil
}

// Stamp implements Store.
func (m *Memory) Stamp(_ context.Context, path string, tags []string) (Stamp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stamp(path, tags), nil
}

// SetIfUnchanged implements Store.
func (m *Memory) SetIfUnchanged(_ context.Context, path string, entry Entry, stamp Stamp) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stamp(path, entry.Tags) != stamp {
		return false, nil
	}
	m.set(path, entry)
	return true, nil
}

// stamp sums the epochs of path and tags. Caller holds mu.
func (m *Memory) stamp(path string, tags []string) Stamp {
	sum := m.epochs["path:"+path]
	for _, tag := range tags {
		sum += m.epochs["tag:"+tag]
	}
	return Stamp(sum)
}

// set stores entry and indexes its tags. Caller holds mu for writing.
func (m *Memory) set(path string, entry Entry) {
	m.unindex(path)

	if entry.StoredAt.IsZero() {
		entry.StoredAt = m.now()
	}
	entry.Body = append([]byte(nil), entry.Body...)
	entry.Tags = append([]string(nil), entry.Tags...)
	m.entries[path] = &entry

	for _, tag := range entry.Tags {
		set, ok := m.tags[tag]
		if !ok {
			set = make(map[string]struct{})
			m.tags[tag] = set
		}
		set[path] = struct{}{}
	}
}

// InvalidateTag drops every entry carrying tag.
func (m *Memory) InvalidateTag(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epochs["tag:"+tag]++
	for path := range m.tags[tag] {
		m.unindex(path)
	}
	delete(m.tags, tag)
	return nil
}

// InvalidatePath drops the entry cached for path.
func (m *Memory) InvalidatePath(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epochs["path:"+path]++
	m.unindex(path)
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// unindex removes path from the entry map and every tag set. Caller holds mu.
func (m *Memory) unindex(path string) {
	e, ok := m.entries[path]
	if !ok {
		return
	}
	for _, tag := range e.Tags {
		if set, ok := m.tags[tag]; ok {
			delete(set, path)
			if len(set) == 0 {
				delete(m.tags, tag)
			}
		}
	}
	delete(m.entries, path)
}
