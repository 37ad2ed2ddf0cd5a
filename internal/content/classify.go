package content

import (
	"path"
	"strings"
)

// ContentRoot is the repository directory holding all content.
const ContentRoot = "content"

// SiteConfigPath is the repository path of the site settings document.
const SiteConfigPath = "content/settings/general.yml"

// IndexSlug names the page served at "/". It has no path of its own.
const IndexSlug = "index"

var prefixes = []struct {
	prefix string
	kind   ContentType
}{
	{"content/pages/", TypePage},
	{"content/projects/", TypeProject},
	{"content/services/", TypeService},
	{"content/blog/", TypeBlog},
	{"content/testimonials/", TypeTestimonial},
	{"content/settings/", TypeConfig},
}

// normalizePath turns a webhook or filesystem path into a clean
// repository-relative slash path.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// Classify maps a repository path to the content type owning it. It is the
// only place the path/type mapping is defined; parsing, fetching and cache
// invalidation all go through it.
func Classify(p string) ContentType {
	p = normalizePath(p)
	for _, entry := range prefixes {
		if strings.HasPrefix(p, entry.prefix) && len(p) > len(entry.prefix) {
			return entry.kind
		}
	}
	return TypeUnknown
}

// Directory returns the repository directory for a content type.
func Directory(t ContentType) string {
	for _, entry := range prefixes {
		if entry.kind == t {
			return strings.TrimSuffix(entry.prefix, "/")
		}
	}
	return ""
}

// FilePath returns the repository path of the markdown file for slug.
func FilePath(t ContentType, slug string) string {
	dir := Directory(t)
	if dir == "" || t == TypeConfig {
		return ""
	}
	return dir + "/" + slug + ".md"
}

// IsContentFile reports whether name has a markdown extension.
func IsContentFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".md" || ext == ".markdown"
}

// SlugFromPath derives the record slug from a repository path: the file name
// directly under its type directory without the markdown extension. Nested
// files and non-markdown files have no slug.
func SlugFromPath(p string) (string, bool) {
	p = normalizePath(p)
	t := Classify(p)
	if t == TypeUnknown || t == TypeConfig {
		return "", false
	}

	rest := strings.TrimPrefix(p, Directory(t)+"/")
	if strings.Contains(rest, "/") || !IsContentFile(rest) {
		return "", false
	}

	slug := strings.TrimSuffix(rest, path.Ext(rest))
	if slug == "" {
		return "", false
	}
	return slug, true
}

// PublicPath returns the site URL path for a record, or "" for types with no
// public page. The index page maps to "/".
func PublicPath(t ContentType, slug string) string {
	switch t {
	case TypePage:
		if slug == IndexSlug {
			return "/"
		}
		return "/" + slug
	case TypeProject:
		return "/projects/" + slug
	case TypeService:
		return "/services/" + slug
	case TypeBlog:
		return "/blog/" + slug
	default:
		return ""
	}
}

// LogicalPath derives the public path affected by a change to repository
// path p. The index page is excluded since "/" is invalidated as a landing
// path of the page type.
func LogicalPath(p string) (string, bool) {
	t := Classify(p)
	slug, ok := SlugFromPath(p)
	if !ok {
		return "", false
	}
	if t == TypePage && slug == IndexSlug {
		return "", false
	}

	public := PublicPath(t, slug)
	return public, public != ""
}
