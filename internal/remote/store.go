// Package remote is the typed client over the repository that stores site
// content. Every backend (GitHub, a local directory, memory) implements Store
// with the same optimistic-concurrency contract: updates and deletes carry
// the content hash last read and fail with a conflict when it is stale.
package remote

import (
	"context"
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conneroisu/gitcms/internal/errors"
)

// FileType distinguishes files from directory listings.
type FileType string

const (
	TypeFile      FileType = "file"
	TypeDirectory FileType = "dir"
)

// EncodingBase64 is the only content encoding the store produces.
const EncodingBase64 = "base64"

// RemoteFile is a file or directory at a path and ref. For directories,
// Entries holds the immediate children without content.
type RemoteFile struct {
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	ContentHash string       `json:"sha"`
	Size        int64        `json:"size"`
	Type        FileType     `json:"type"`
	Content     string       `json:"content,omitempty"`
	Encoding    string       `json:"encoding,omitempty"`
	URL         string       `json:"html_url,omitempty"`
	Entries     []RemoteFile `json:"entries,omitempty"`
}

// IsDir reports whether f is a directory listing.
func (f *RemoteFile) IsDir() bool { return f.Type == TypeDirectory }

// Author identifies the person recorded on a commit.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// WriteOptions carries the optimistic-concurrency precondition for Write.
// An empty ContentHash makes the write a create.
type WriteOptions struct {
	ContentHash string
	Author      *Author
}

// CommitResult describes the commit produced by a write or delete.
type CommitResult struct {
	Path        string    `json:"path"`
	ContentHash string    `json:"sha,omitempty"`
	Size        int64     `json:"size"`
	CommitSHA   string    `json:"commit"`
	Message     string    `json:"message"`
	Author      Author    `json:"author"`
	Date        time.Time `json:"date"`
	URL         string    `json:"url,omitempty"`
}

// CommitRecord is one entry of the commit log.
type CommitRecord struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  Author    `json:"author"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url,omitempty"`
}

// AccessStatus is the outcome of a reachability and credentials probe.
type AccessStatus struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// RepositoryInfo is the metadata shown on status surfaces.
type RepositoryInfo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	URL           string `json:"html_url"`
}

// Store is a content repository. Implementations never cache and never retry.
type Store interface {
	// Read returns the file or directory listing at path. An empty ref means
	// the configured branch.
	Read(ctx context.Context, path, ref string) (*RemoteFile, error)
	// Write creates or updates a file. See WriteOptions for the precondition.
	Write(ctx context.Context, path string, content []byte, message string, opts WriteOptions) (*CommitResult, error)
	// Remove deletes a file whose current hash is contentHash.
	Remove(ctx context.Context, path, message, contentHash string) (*CommitResult, error)
	// ListCommits returns up to limit commits, most recent first.
	ListCommits(ctx context.Context, limit int) ([]CommitRecord, error)
	// CheckAccess probes reachability and credentials. It does not return
	// an error; failures are reported in the status.
	CheckAccess(ctx context.Context) AccessStatus
	// Repository returns repository metadata.
	Repository(ctx context.Context) (*RepositoryInfo, error)
}

// Decode returns the text content of a file read from a store.
func Decode(f *RemoteFile) (string, error) {
	if f.IsDir() {
		return "", errors.NewDecodeError(errors.ErrCodeNotAFile, "path is a directory", nil).WithPath(f.Path)
	}
	if f.Encoding != EncodingBase64 {
		return "", errors.NewDecodeError(errors.ErrCodeBadEncoding,
			"file content not available or not base64 encoded", nil).WithPath(f.Path)
	}

	// GitHub wraps base64 content at 60 columns.
	raw, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\n", "", "\r", "").Replace(f.Content))
	if err != nil {
		return "", errors.NewDecodeError(errors.ErrCodeBadEncoding, "invalid base64 content", err).WithPath(f.Path)
	}
	if !utf8.Valid(raw) {
		return "", errors.NewDecodeError(errors.ErrCodeBadEncoding, "content is not UTF-8 text", nil).WithPath(f.Path)
	}
	return string(raw), nil
}

// ReadContent reads a file and decodes it to text.
func ReadContent(ctx context.Context, s Store, path, ref string) (string, error) {
	f, err := s.Read(ctx, path, ref)
	if err != nil {
		return "", err
	}
	return Decode(f)
}

// Exists reports whether a file or directory is present at path. Errors other
// than not-found are returned.
func Exists(ctx context.Context, s Store, path string) (bool, error) {
	_, err := s.Read(ctx, path, "")
	if err == nil {
		return true, nil
	}
	if errors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Save writes content to path, updating the file when it exists and creating
// it otherwise. The hash is read immediately before the write, so a
// concurrent create between the two calls surfaces as a conflict. Callers
// that hold a hash from an earlier read should use Write with it instead.
func Save(ctx context.Context, s Store, path string, content []byte, message string, author *Author) (*CommitResult, error) {
	opts := WriteOptions{Author: author}

	existing, err := s.Read(ctx, path, "")
	switch {
	case err == nil:
		if existing.IsDir() {
			return nil, errors.NewDecodeError(errors.ErrCodeNotAFile, "cannot save over a directory", nil).WithPath(path)
		}
		opts.ContentHash = existing.ContentHash
	case errors.IsNotFound(err):
	default:
		return nil, err
	}

	return s.Write(ctx, path, content, message, opts)
}

// CleanPath normalizes a repository path for store calls.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return p
}
