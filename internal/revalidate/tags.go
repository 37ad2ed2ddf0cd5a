// Package revalidate maps repository changes onto regeneration-cache
// invalidations. Invalidation is idempotent and commutative, so duplicated or
// reordered webhook deliveries are harmless.
package revalidate

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/conneroisu/gitcms/internal/content"
)

// Cache tags.
const (
	TagPages        = "pages"
	TagProjects     = "projects"
	TagServices     = "services"
	TagBlog         = "blog"
	TagTestimonials = "testimonials"
	TagSiteConfig   = "site-config"
	TagAllContent   = "all-content"
)

// AllTags lists every known tag.
var AllTags = []string{
	TagPages,
	TagProjects,
	TagServices,
	TagBlog,
	TagTestimonials,
	TagSiteConfig,
	TagAllContent,
}

// CorePaths are invalidated by the fallback and by InvalidateAll.
var CorePaths = []string{"/", "/about", "/services", "/projects", "/contact"}

// typeOrder fixes the order in which types are reported and invalidated.
var typeOrder = []content.ContentType{
	content.TypePage,
	content.TypeProject,
	content.TypeService,
	content.TypeBlog,
	content.TypeTestimonial,
	content.TypeConfig,
}

var typeTags = map[content.ContentType]string{
	content.TypePage:        TagPages,
	content.TypeProject:     TagProjects,
	content.TypeService:     TagServices,
	content.TypeBlog:        TagBlog,
	content.TypeTestimonial: TagTestimonials,
	content.TypeConfig:      TagSiteConfig,
}

var landingPaths = map[content.ContentType][]string{
	content.TypePage:    {"/"},
	content.TypeProject: {"/projects"},
	content.TypeService: {"/services"},
	content.TypeBlog:    {"/blog"},
	content.TypeConfig:  {"/", "/about", "/contact"},
}

// TagFor returns the cache tag of a content type, or "".
func TagFor(t content.ContentType) string { return typeTags[t] }

// LandingPaths returns the listing paths that show records of type t.
func LandingPaths(t content.ContentType) []string { return landingPaths[t] }

// ParseType resolves a revalidation type name. It accepts tag names ("pages",
// "site-config"), content type names ("page", "config") in any case, and the
// upper-case names used by the admin API ("PAGES", "SITE_CONFIG").
func ParseType(name string) (content.ContentType, bool) {
	n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
	for t, tag := range typeTags {
		if n == tag || n == string(t) {
			return t, true
		}
	}
	return "", false
}

// TypeNames lists the names accepted by ParseType, one per type.
func TypeNames() []string {
	names := make([]string, 0, len(typeOrder)+1)
	for _, t := range typeOrder {
		names = append(names, typeTags[t])
	}
	return append(names, "all")
}

// Cache is a regeneration cache. Both calls must be idempotent and accept
// tags or paths that were never registered.
type Cache interface {
	InvalidateTag(ctx context.Context, tag string) error
	InvalidatePath(ctx context.Context, path string) error
}

// Fanout forwards invalidations to several caches. Every cache is called even
// when an earlier one fails; the failures are joined.
type Fanout []Cache

// InvalidateTag implements Cache.
func (f Fanout) InvalidateTag(ctx context.Context, tag string) error {
	var errs []error
	for _, c := range f {
		if err := c.InvalidateTag(ctx, tag); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// InvalidatePath implements Cache.
func (f Fanout) InvalidatePath(ctx context.Context, path string) error {
	var errs []error
	for _, c := range f {
		if err := c.InvalidatePath(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
