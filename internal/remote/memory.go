package remote

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/gitcms/internal/errors"
)

// MemoryStore is an in-process Store with the same hash and precondition
// semantics as the GitHub backend.
type MemoryStore struct {
	mu      sync.RWMutex
	files   map[string][]byte
	branch  string
	journal *journal
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:   make(map[string][]byte),
		branch:  "main",
		journal: newJournal(),
	}
}

// Seed stores files without recording commits.
func (m *MemoryStore) Seed(files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p, c := range files {
		m.files[CleanPath(p)] = []byte(c)
	}
}

// Read implements Store. The ref is ignored.
func (m *MemoryStore) Read(_ context.Context, path, _ string) (*RemoteFile, error) {
	path = CleanPath(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if content, ok := m.files[path]; ok {
		f := fileEntry(path, content, true)
		return &f, nil
	}

	entries := m.children(path)
	if len(entries) == 0 {
		return nil, errors.NewNotFoundError(path)
	}
	return &RemoteFile{Name: lastSegment(path), Path: path, Type: TypeDirectory, Entries: entries}, nil
}

// children lists the immediate children of dir. Caller holds the lock.
func (m *MemoryStore) children(dir string) []RemoteFile {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := make(map[string]bool)
	var entries []RemoteFile
	for p, content := range m.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			sub := prefix + rest[:i]
			if !seen[sub] {
				seen[sub] = true
				entries = append(entries, RemoteFile{Name: rest[:i], Path: sub, Type: TypeDirectory})
			}
			continue
		}
		entries = append(entries, fileEntry(p, content, false))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Write implements Store.
func (m *MemoryStore) Write(_ context.Context, path string, content []byte, message string, opts WriteOptions) (*CommitResult, error) {
	path = CleanPath(path)
	if path == "" {
		return nil, errors.NewDecodeError(errors.ErrCodeNotAFile, "path is required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.files[path]
	if !exists && len(m.children(path)) > 0 {
		return nil, errors.NewDecodeError(errors.ErrCodeNotAFile, "path is a directory", nil).WithPath(path)
	}
	if err := checkPrecondition(path, current, exists, opts.ContentHash); err != nil {
		return nil, err
	}

	stored := make([]byte, len(content))
	copy(stored, content)
	m.files[path] = stored

	return m.journal.record(path, message, opts.Author, stored, false), nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(_ context.Context, path, message, contentHash string) (*CommitResult, error) {
	path = CleanPath(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.files[path]
	if !exists {
		return nil, errors.NewNotFoundError(path)
	}
	if contentHash == "" || BlobHash(current) != contentHash {
		return nil, errors.NewConflictError(errors.ErrCodeHashMismatch, "content hash does not match").WithPath(path)
	}

	delete(m.files, path)
	return m.journal.record(path, message, nil, nil, true), nil
}

// ListCommits implements Store.
func (m *MemoryStore) ListCommits(_ context.Context, limit int) ([]CommitRecord, error) {
	return m.journal.list(limit), nil
}

// CheckAccess implements Store.
func (m *MemoryStore) CheckAccess(context.Context) AccessStatus {
	return AccessStatus{Valid: true}
}

// Repository implements Store.
func (m *MemoryStore) Repository(context.Context) (*RepositoryInfo, error) {
	return &RepositoryInfo{Name: "memory", FullName: "local/memory", Private: true, DefaultBranch: m.branch}, nil
}

// checkPrecondition enforces the optimistic-concurrency contract shared by
// the in-process stores.
func checkPrecondition(path string, current []byte, exists bool, hash string) error {
	switch {
	case hash == "" && exists:
		return errors.NewConflictError(errors.ErrCodeAlreadyExists, "file already exists").WithPath(path)
	case hash != "" && !exists:
		return errors.NewConflictError(errors.ErrCodeHashMismatch, "file does not exist").WithPath(path)
	case hash != "" && BlobHash(current) != hash:
		return errors.NewConflictError(errors.ErrCodeHashMismatch, "content hash does not match").WithPath(path)
	}
	return nil
}
