//go:build property

package revalidate

import (
	"context"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/gitcms/internal/content"
)

// TestScopeAgreesWithClassifier checks that invalidation derives the same
// type and public path the parser side uses for a file.
func TestScopeAgreesWithClassifier(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(99)
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	types := gen.OneConstOf(content.TypePage, content.TypeProject, content.TypeService, content.TypeBlog)

	properties.Property("file path scope matches classifier and public path", prop.ForAll(
		func(t content.ContentType, slug string) bool {
			file := content.FilePath(t, slug)
			scope := ComputeScope([]string{file})

			if len(scope.Types) != 1 || scope.Types[0] != content.Classify(file) {
				return false
			}
			if t == content.TypePage && slug == content.IndexSlug {
				return len(scope.Paths) == 0
			}
			return len(scope.Paths) == 1 && scope.Paths[0] == content.PublicPath(t, slug)
		},
		types,
		gen.RegexMatch(`[a-z0-9][a-z0-9-]{0,20}`),
	))

	properties.Property("scope is independent of commit order and duplication", prop.ForAll(
		func(files []string) bool {
			forward := []Commit{{Added: files}}
			reversed := make([]string, len(files))
			for i, f := range files {
				reversed[len(files)-1-i] = f
			}
			backward := []Commit{{Modified: reversed}, {Removed: files}}

			a := ScopeForCommits(forward)
			b := ScopeForCommits(backward)
			if len(a.Types) != len(b.Types) || len(a.Paths) != len(b.Paths) {
				return false
			}
			for i := range a.Types {
				if a.Types[i] != b.Types[i] {
					return false
				}
			}
			for i := range a.Paths {
				if a.Paths[i] != b.Paths[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf(
			"content/pages/about.md",
			"content/pages/index.md",
			"content/projects/deck.md",
			"content/blog/tips.md",
			"content/settings/general.yml",
			"content/testimonials/a.md",
			"package.json",
		), reflect.TypeOf("")),
	))

	properties.Property("every push either succeeds or reports an error", prop.ForAll(
		func(files []string) bool {
			result := NewRouter(Fanout{}, nil).HandlePush(context.Background(), []Commit{{Modified: files}})
			return result.Success && result.Fallback == (len(result.AffectedTypes) == 0)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
