package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/conneroisu/gitcms/internal/cache"
	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/revalidate"
)

// CacheHeader reports whether a public document came from the page cache.
const CacheHeader = "X-Cache"

// document renders one public document. found is false for records that
// are missing or unpublished.
type document func(r *http.Request) (doc interface{}, found bool, err error)

// homeDocument is served at "/".
type homeDocument struct {
	Page         *content.Page          `json:"page"`
	SiteConfig   *content.SiteConfig    `json:"siteConfig"`
	Testimonials []*content.Testimonial `json:"testimonials"`
}

func (s *Server) registerPublicRoutes(mux *http.ServeMux) {
	tags := func(ts ...string) []string { return append(ts, revalidate.TagAllContent) }

	mux.Handle("GET /{$}", s.cached(tags(revalidate.TagPages, revalidate.TagSiteConfig, revalidate.TagTestimonials), s.home))
	mux.Handle("GET /{slug}", s.cached(tags(revalidate.TagPages), s.page))

	mux.Handle("GET /projects", s.cached(tags(revalidate.TagProjects), list(s.fetcher.Projects)))
	mux.Handle("GET /projects/{id}", s.cached(tags(revalidate.TagProjects), single("id", s.fetcher.Project)))

	mux.Handle("GET /services", s.cached(tags(revalidate.TagServices), list(s.fetcher.Services)))
	mux.Handle("GET /services/{slug}", s.cached(tags(revalidate.TagServices), single("slug", s.fetcher.Service)))

	mux.Handle("GET /blog", s.cached(tags(revalidate.TagBlog), list(s.fetcher.BlogPosts)))
	mux.Handle("GET /blog/{slug}", s.cached(tags(revalidate.TagBlog), single("slug", s.fetcher.BlogPost)))
}

func (s *Server) home(r *http.Request) (interface{}, bool, error) {
	ctx := r.Context()
	page, err := s.fetcher.Page(ctx, content.IndexSlug)
	if err != nil {
		return nil, false, err
	}
	site, err := s.fetcher.SiteConfig(ctx)
	if err != nil {
		return nil, false, err
	}
	testimonials, err := s.fetcher.Testimonials(ctx)
	if err != nil {
		return nil, false, err
	}
	return homeDocument{Page: page, SiteConfig: site, Testimonials: testimonials}, true, nil
}

func (s *Server) page(r *http.Request) (interface{}, bool, error) {
	slug := r.PathValue("slug")
	if slug == content.IndexSlug {
		return nil, false, nil
	}
	page, err := s.fetcher.Page(r.Context(), slug)
	return page, page != nil, err
}

// list serves a whole collection. Collections are never "not found".
func list[T any](fetch func(context.Context) ([]T, error)) document {
	return func(r *http.Request) (interface{}, bool, error) {
		items, err := fetch(r.Context())
		if items == nil {
			items = []T{}
		}
		return items, true, err
	}
}

// single serves the record named by the path wildcard.
func single[T any](wildcard string, fetch func(context.Context, string) (*T, error)) document {
	return func(r *http.Request) (interface{}, bool, error) {
		item, err := fetch(r.Context(), r.PathValue(wildcard))
		return item, item != nil, err
	}
}

// cached serves the document at the request path from the page cache,
// rendering and storing it under tags on a miss. Missing records are not
// cached.
func (s *Server) cached(tags []string, render document) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := r.URL.Path

		entry, ok, err := s.pages.Get(ctx, key)
		if err != nil {
			s.logger.Warn(ctx, err, "Page cache read failed, rendering", "path", key)
		}
		if ok {
			w.Header().Set(CacheHeader, "HIT")
			w.Header().Set("Content-Type", entry.ContentType)
			_, _ = w.Write(entry.Body)
			return
		}

		stamp, stampErr := s.pages.Stamp(ctx, key, tags)
		if stampErr != nil {
			s.logger.Warn(ctx, stampErr, "Page cache stamp failed, response will not be cached", "path", key)
		}

		doc, found, err := render(r)
		if err != nil {
			if errors.IsAuth(err) {
				s.logger.Error(ctx, err, "Content repository rejected credentials", "path", key)
				writeError(w, http.StatusServiceUnavailable, "Content repository unavailable")
				return
			}
			s.logger.Error(ctx, err, "Failed to render document", "path", key)
			writeError(w, http.StatusInternalServerError, "Failed to load content")
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}

		body, err := json.Marshal(doc)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to encode document", "path", key)
			writeError(w, http.StatusInternalServerError, "Failed to encode content")
			return
		}

		stored := cache.Entry{
			Body:        body,
			ContentType: "application/json",
			Tags:        tags,
			StoredAt:    s.clock(),
		}
		if stampErr == nil {
			ok, err := s.pages.SetIfUnchanged(ctx, key, stored, stamp)
			if err != nil {
				s.logger.Warn(ctx, err, "Page cache write failed", "path", key)
			} else if !ok {
				s.logger.Debug(ctx, "Content invalidated during render, not caching", "path", key)
			}
		}

		w.Header().Set(CacheHeader, "MISS")
		w.Header().Set("Content-Type", stored.ContentType)
		_, _ = w.Write(body)
	})
}
