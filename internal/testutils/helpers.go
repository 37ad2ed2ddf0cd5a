// Package testutils provides content fixtures shared by package tests.
package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/gitcms/internal/remote"
)

// CreateTempRepo creates a temporary repository with the content directory
// layout.
func CreateTempRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	dirs := []string{
		"content/pages",
		"content/projects",
		"content/services",
		"content/blog",
		"content/testimonials",
		"content/settings",
	}

	for _, dir := range dirs {
		err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755)
		require.NoError(t, err)
	}

	return root
}

// WriteRepoFile writes a file into a repository created by CreateTempRepo.
func WriteRepoFile(t *testing.T, root, repoPath, body string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(repoPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	return full
}

// SeedMemoryStore returns a memory store holding files.
func SeedMemoryStore(files map[string]string) *remote.MemoryStore {
	s := remote.NewMemoryStore()
	s.Seed(files)
	return s
}

// PageDoc returns a valid page document.
func PageDoc(slug, status string) string {
	return fmt.Sprintf(`---
id: page-%[1]s
title: Page %[1]s
slug: %[1]s
status: %[2]s
seo:
  title: Page %[1]s
  description: About %[1]s
---
Welcome to %[1]s.
`, slug, status)
}

// ProjectDoc returns a valid project document.
func ProjectDoc(id, status, completedAt string) string {
	return fmt.Sprintf(`---
id: %[1]s
title: Project %[1]s
description: Work on %[1]s.
category: kitchen
completedAt: %[3]s
status: %[2]s
images:
  - src: https://example.com/%[1]s.jpg
    alt: Photo of %[1]s
seo:
  title: Project %[1]s
  description: Case study for %[1]s
---
Project body.
`, id, status, completedAt)
}

// ServiceDoc returns a valid published service document.
func ServiceDoc(slug string, order int) string {
	return fmt.Sprintf(`---
id: service-%[1]s
title: Service %[1]s
slug: %[1]s
description: We do %[1]s.
order: %[2]d
status: published
features: [design, build]
seo:
  title: Service %[1]s
  description: All about %[1]s
---
Service body.
`, slug, order)
}

// BlogDoc returns a valid blog post document.
func BlogDoc(slug, status, publishedAt string) string {
	return fmt.Sprintf(`---
id: post-%[1]s
title: Post %[1]s
slug: %[1]s
excerpt: Short take on %[1]s.
author: Jane
category: tips
status: %[2]s
publishedAt: %[3]s
seo:
  title: Post %[1]s
  description: Reading about %[1]s
---
Post body.
`, slug, status, publishedAt)
}

// TestimonialDoc returns a valid testimonial document.
func TestimonialDoc(id string, rating int, featured bool) string {
	return fmt.Sprintf(`---
id: %[1]s
name: Customer %[1]s
rating: %[2]d
featured: %[3]t
---
Great work from start to finish.
`, id, rating, featured)
}

// SiteConfigYAML is a valid site settings document.
const SiteConfigYAML = `siteName: Acme Remodeling
siteUrl: https://acme.example.com
description: Quality remodeling since 1990.
contact:
  phone: "5551234567"
  email: info@acme.example.com
  address:
    street: 1 Main St
    city: Springfield
    state: IL
    zipCode: "62701"
  businessHours:
    - day: Monday
      open: "08:00"
      close: "17:00"
seo:
  defaultTitle: Acme Remodeling
  titleTemplate: "%s | Acme"
  defaultDescription: Remodeling experts.
  ogImage: https://acme.example.com/og.jpg
`

// MalformedDoc is a content file with an unterminated front-matter block.
const MalformedDoc = "---\ntitle: broken\n"

// SampleRepository returns a small repository exercising every collection.
func SampleRepository() map[string]string {
	return map[string]string{
		"content/pages/index.md":                    PageDoc("index", "published"),
		"content/pages/about.md":                    PageDoc("about", "published"),
		"content/pages/secret.md":                   PageDoc("secret", "draft"),
		"content/projects/kitchen-remodel.md":       ProjectDoc("kitchen-remodel", "published", "2024-01-15"),
		"content/projects/bath-refresh.md":          ProjectDoc("bath-refresh", "published", "2024-06-01"),
		"content/services/kitchens.md":              ServiceDoc("kitchens", 2),
		"content/services/baths.md":                 ServiceDoc("baths", 1),
		"content/blog/first-post.md":                BlogDoc("first-post", "published", "2024-02-01"),
		"content/testimonials/smith.md":             TestimonialDoc("smith", 5, true),
		"content/settings/general.yml":              SiteConfigYAML,
		"content/projects/gallery/ignored-image.md": "nested files are not records",
	}
}
