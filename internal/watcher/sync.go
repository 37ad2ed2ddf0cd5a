package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/revalidate"
)

// RepoMapper maps an absolute filesystem path to a repository path.
type RepoMapper func(abs string) (string, bool)

// Pusher handles the commits of one push.
type Pusher interface {
	HandlePush(ctx context.Context, commits []revalidate.Commit) revalidate.Result
}

// ContentFilter accepts files that map to a content type.
func ContentFilter(repoPath RepoMapper) FileFilter {
	return func(path string) bool {
		rel, ok := repoPath(path)
		if !ok {
			return false
		}
		return NoHiddenFilter(rel) && content.Classify(rel) != content.TypeUnknown
	}
}

// ContentSync feeds local changes to the invalidation router as a synthetic
// push.
type ContentSync struct {
	pusher   Pusher
	repoPath RepoMapper
	logger   logging.Logger
	now      func() time.Time
}

// NewContentSync creates a ContentSync.
func NewContentSync(pusher Pusher, repoPath RepoMapper, logger logging.Logger) *ContentSync {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ContentSync{
		pusher:   pusher,
		repoPath: repoPath,
		logger:   logger.WithComponent("watcher"),
		now:      time.Now,
	}
}

// Commit converts a batch of change events into one commit. Events outside
// the repository are dropped.
func (s *ContentSync) Commit(events []ChangeEvent) (revalidate.Commit, bool) {
	commit := revalidate.Commit{
		ID:       fmt.Sprintf("local-%d", s.now().UnixNano()),
		Message:  "local change",
		Added:    []string{},
		Modified: []string{},
		Removed:  []string{},
	}

	n := 0
	for _, ev := range events {
		rel, ok := s.repoPath(ev.Path)
		if !ok {
			continue
		}
		n++
		switch ev.Type {
		case EventTypeCreated:
			commit.Added = append(commit.Added, rel)
		case EventTypeDeleted, EventTypeRenamed:
			commit.Removed = append(commit.Removed, rel)
		default:
			commit.Modified = append(commit.Modified, rel)
		}
	}
	return commit, n > 0
}

// Handle is a ChangeHandler that invalidates what the batch touched.
func (s *ContentSync) Handle(ctx context.Context, events []ChangeEvent) error {
	commit, ok := s.Commit(events)
	if !ok {
		return nil
	}

	result := s.pusher.HandlePush(ctx, []revalidate.Commit{commit})
	if !result.Success {
		return fmt.Errorf("local revalidation failed: %s", result.Error)
	}

	s.logger.Info(ctx, "Revalidated local changes",
		"types", result.AffectedTypes, "paths", result.AffectedPaths)
	return nil
}
