package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/logging"
)

// LocalStore serves a directory on disk as the content repository. Writes
// and deletes are serialized in process and journalled as commits.
type LocalStore struct {
	root    string
	branch  string
	mu      sync.Mutex
	journal *journal
	logger  logging.Logger
}

// NewLocalStore opens root, which must be an existing directory.
func NewLocalStore(root string, logger logging.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving local root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening local root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", abs)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &LocalStore{
		root:    abs,
		branch:  "main",
		journal: newJournal(),
		logger:  logger.WithComponent("remote"),
	}, nil
}

// Root returns the absolute directory backing the store.
func (l *LocalStore) Root() string { return l.root }

// RepoPath maps an absolute filesystem path under the root to a repository
// path.
func (l *LocalStore) RepoPath(abs string) (string, bool) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (l *LocalStore) resolve(path string) (string, string, error) {
	clean := CleanPath(path)
	if clean == "" {
		return "", l.root, nil
	}
	native := filepath.FromSlash(clean)
	if !filepath.IsLocal(native) {
		return "", "", errors.NewNotFoundError(clean).WithContext("reason", "path escapes repository root")
	}
	return clean, filepath.Join(l.root, native), nil
}

// Read implements Store. The ref is ignored.
func (l *LocalStore) Read(_ context.Context, path, _ string) (*RemoteFile, error) {
	clean, full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, l.fsError(clean, err)
	}

	if !info.IsDir() {
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, l.fsError(clean, err)
		}
		f := fileEntry(clean, data, true)
		return &f, nil
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, l.fsError(clean, err)
	}

	dir := &RemoteFile{Name: lastSegment(clean), Path: clean, Type: TypeDirectory}
	for _, e := range dirEntries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		child := e.Name()
		if clean != "" {
			child = clean + "/" + e.Name()
		}
		if e.IsDir() {
			dir.Entries = append(dir.Entries, RemoteFile{Name: e.Name(), Path: child, Type: TypeDirectory})
			continue
		}
		data, err := os.ReadFile(filepath.Join(full, e.Name()))
		if err != nil {
			l.logger.Warn(context.Background(), err, "Skipping unreadable file", "path", child)
			continue
		}
		dir.Entries = append(dir.Entries, fileEntry(child, data, false))
	}
	sort.Slice(dir.Entries, func(i, j int) bool { return dir.Entries[i].Name < dir.Entries[j].Name })
	return dir, nil
}

// Write implements Store.
func (l *LocalStore) Write(ctx context.Context, path string, content []byte, message string, opts WriteOptions) (*CommitResult, error) {
	clean, full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if clean == "" {
		return nil, errors.NewDecodeError(errors.ErrCodeNotAFile, "path is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, exists, err := l.current(clean, full)
	if err != nil {
		return nil, err
	}
	if err := checkPrecondition(clean, current, exists, opts.ContentHash); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, l.fsError(clean, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return nil, l.fsError(clean, err)
	}

	result := l.journal.record(clean, message, opts.Author, content, false)
	l.logger.Info(ctx, "Wrote file", "path", clean, "commit", result.CommitSHA)
	return result, nil
}

// Remove implements Store.
func (l *LocalStore) Remove(ctx context.Context, path, message, contentHash string) (*CommitResult, error) {
	clean, full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, exists, err := l.current(clean, full)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NewNotFoundError(clean)
	}
	if contentHash == "" || BlobHash(current) != contentHash {
		return nil, errors.NewConflictError(errors.ErrCodeHashMismatch, "content hash does not match").WithPath(clean)
	}

	if err := os.Remove(full); err != nil {
		return nil, l.fsError(clean, err)
	}

	result := l.journal.record(clean, message, nil, nil, true)
	l.logger.Info(ctx, "Removed file", "path", clean, "commit", result.CommitSHA)
	return result, nil
}

func (l *LocalStore) current(clean, full string) ([]byte, bool, error) {
	info, err := os.Stat(full)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, l.fsError(clean, err)
	}
	if info.IsDir() {
		return nil, false, errors.NewDecodeError(errors.ErrCodeNotAFile, "path is a directory", nil).WithPath(clean)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, false, l.fsError(clean, err)
	}
	return data, true, nil
}

// ListCommits implements Store.
func (l *LocalStore) ListCommits(_ context.Context, limit int) ([]CommitRecord, error) {
	return l.journal.list(limit), nil
}

// CheckAccess implements Store.
func (l *LocalStore) CheckAccess(context.Context) AccessStatus {
	info, err := os.Stat(l.root)
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", l.root)
	}
	if err != nil {
		return AccessStatus{Valid: false, Error: err.Error(), Err: err}
	}
	return AccessStatus{Valid: true}
}

// Repository implements Store.
func (l *LocalStore) Repository(context.Context) (*RepositoryInfo, error) {
	name := filepath.Base(l.root)
	return &RepositoryInfo{
		Name:          name,
		FullName:      "local/" + name,
		Private:       true,
		DefaultBranch: l.branch,
		URL:           "file://" + filepath.ToSlash(l.root),
	}, nil
}

func (l *LocalStore) fsError(path string, err error) error {
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return errors.NewNotFoundError(path)
	case stderrors.Is(err, fs.ErrPermission):
		return errors.NewAuthError("permission denied").WithPath(path)
	default:
		return errors.NewUnknownError(errors.ErrCodeRemoteUnavailable, "filesystem error", err).WithPath(path)
	}
}
