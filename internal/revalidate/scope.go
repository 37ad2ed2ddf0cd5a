package revalidate

import (
	"sort"

	"github.com/conneroisu/gitcms/internal/content"
)

// Commit is the part of a pushed commit that drives invalidation.
type Commit struct {
	ID       string   `json:"id,omitempty"`
	Message  string   `json:"message,omitempty"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Scope is the set of content types and public paths a change affects.
type Scope struct {
	Types []content.ContentType `json:"affectedTypes"`
	Paths []string              `json:"affectedPaths"`
}

// Empty reports whether no content type is affected.
func (s Scope) Empty() bool { return len(s.Types) == 0 }

// ChangedFiles returns the deduplicated union of every path touched by
// commits, sorted.
func ChangedFiles(commits []Commit) []string {
	seen := make(map[string]struct{})
	for _, c := range commits {
		for _, list := range [][]string{c.Added, c.Modified, c.Removed} {
			for _, p := range list {
				seen[p] = struct{}{}
			}
		}
	}

	files := make([]string, 0, len(seen))
	for p := range seen {
		files = append(files, p)
	}
	sort.Strings(files)
	return files
}

// ComputeScope classifies changed files into a scope. It uses the same
// classifier the parser uses.
func ComputeScope(files []string) Scope {
	types := make(map[content.ContentType]bool)
	paths := make(map[string]bool)

	for _, f := range files {
		t := content.Classify(f)
		if t == content.TypeUnknown {
			continue
		}
		types[t] = true
		if p, ok := content.LogicalPath(f); ok {
			paths[p] = true
		}
	}

	scope := Scope{
		Types: make([]content.ContentType, 0, len(types)),
		Paths: make([]string, 0, len(paths)),
	}
	for _, t := range typeOrder {
		if types[t] {
			scope.Types = append(scope.Types, t)
		}
	}
	for p := range paths {
		scope.Paths = append(scope.Paths, p)
	}
	sort.Strings(scope.Paths)
	return scope
}

// ScopeForCommits is ComputeScope over the files changed by commits.
func ScopeForCommits(commits []Commit) Scope {
	return ComputeScope(ChangedFiles(commits))
}
