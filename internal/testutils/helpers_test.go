package testutils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/remote"
)

func TestCreateTempRepo(t *testing.T) {
	root := CreateTempRepo(t)

	for _, dir := range []string{"content/pages", "content/settings"} {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(dir)))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	full := WriteRepoFile(t, root, "content/blog/a.md", "x")
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestSampleRepositoryParses(t *testing.T) {
	parser := content.NewParser()

	for path, body := range SampleRepository() {
		if strings.Contains(path, "/gallery/") {
			continue
		}
		_, err := parser.ParseFile(path, body)
		assert.NoError(t, err, path)
	}
}

func TestSeedMemoryStore(t *testing.T) {
	s := SeedMemoryStore(map[string]string{"content/pages/about.md": PageDoc("about", "published")})

	text, err := remote.ReadContent(context.Background(), s, "content/pages/about.md", "")
	require.NoError(t, err)
	assert.Contains(t, text, "slug: about")
}
