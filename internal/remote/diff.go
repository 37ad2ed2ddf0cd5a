package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/conneroisu/gitcms/internal/errors"
)

// DiffContext is the number of context lines in preview hunks.
const DiffContext = 3

// Change is a proposed edit compared against the stored file.
type Change struct {
	Path        string `json:"path"`
	ContentHash string `json:"sha,omitempty"`
	Created     bool   `json:"created"`
	Unchanged   bool   `json:"unchanged"`
	Patch       string `json:"patch"`
}

// Diff compares proposed content with the file stored at path. A missing file
// diffs against /dev/null.
func Diff(ctx context.Context, s Store, path, ref string, proposed []byte) (*Change, error) {
	path = CleanPath(path)
	change := &Change{Path: path}

	var current string
	from := "a/" + path
	f, err := s.Read(ctx, path, ref)
	switch {
	case err == nil:
		current, err = Decode(f)
		if err != nil {
			return nil, err
		}
		change.ContentHash = f.ContentHash
	case errors.IsNotFound(err):
		change.Created = true
		from = "/dev/null"
	default:
		return nil, err
	}

	if current == string(proposed) && !change.Created {
		change.Unchanged = true
		return change, nil
	}

	patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(current),
		B:        splitLines(string(proposed)),
		FromFile: from,
		ToFile:   "b/" + path,
		Context:  DiffContext,
	})
	if err != nil {
		return nil, fmt.Errorf("generating diff for %s: %w", path, err)
	}
	change.Patch = patch
	return change, nil
}

// splitLines keeps the newline on each line so hunks render verbatim.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}
