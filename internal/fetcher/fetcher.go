// Package fetcher exposes typed content collections read through a remote
// store. Every read degrades to an empty or nil result instead of failing,
// except authentication failures, which propagate so status surfaces can
// report them.
package fetcher

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/remote"
)

// DefaultConcurrency bounds parallel file reads within one collection.
const DefaultConcurrency = 8

// Options configures a Fetcher.
type Options struct {
	// Concurrency bounds per-collection file reads. Zero uses the default.
	Concurrency int
	// Ref is the branch or commit to read. Empty means the store default.
	Ref string
	// Parser overrides the default parser.
	Parser *content.Parser
}

// Fetcher reads and parses content collections.
type Fetcher struct {
	store       remote.Store
	parser      *content.Parser
	logger      logging.Logger
	concurrency int
	ref         string
}

// New creates a Fetcher over store.
func New(store remote.Store, logger logging.Logger, opts Options) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Parser == nil {
		opts.Parser = content.NewParser()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Fetcher{
		store:       store,
		parser:      opts.Parser,
		logger:      logger.WithComponent("fetcher"),
		concurrency: opts.Concurrency,
		ref:         opts.Ref,
	}
}

// fileResult is the outcome of reading and parsing one file.
type fileResult struct {
	path   string
	record content.Record
	err    error
}

// listFiles returns the markdown files directly under the type directory.
func (f *Fetcher) listFiles(ctx context.Context, t content.ContentType) ([]remote.RemoteFile, error) {
	dir := content.Directory(t)
	listing, err := f.store.Read(ctx, dir, f.ref)
	if err != nil {
		if errors.IsAuth(err) {
			return nil, err
		}
		if errors.IsNotFound(err) {
			f.logger.Debug(ctx, "Content directory does not exist", "dir", dir)
		} else {
			f.logger.Warn(ctx, err, "Failed to list content directory", "dir", dir)
		}
		return nil, nil
	}
	if !listing.IsDir() {
		f.logger.Warn(ctx, nil, "Content path is not a directory", "dir", dir)
		return nil, nil
	}

	files := make([]remote.RemoteFile, 0, len(listing.Entries))
	for _, entry := range listing.Entries {
		if entry.Type == remote.TypeFile && content.IsContentFile(entry.Name) {
			files = append(files, entry)
		}
	}
	return files, nil
}

// readAll reads and parses files with bounded parallelism, preserving the
// listing order in the results.
func (f *Fetcher) readAll(ctx context.Context, files []remote.RemoteFile) []fileResult {
	results := make([]fileResult, len(files))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, f.concurrency)

	for i, file := range files {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[i] = f.readFile(ctx, path)
		}(i, file.Path)
	}
	wg.Wait()

	return results
}

func (f *Fetcher) readFile(ctx context.Context, path string) fileResult {
	raw, err := remote.ReadContent(ctx, f.store, path, f.ref)
	if err != nil {
		return fileResult{path: path, err: err}
	}
	record, err := f.parser.ParseFile(path, raw)
	return fileResult{path: path, record: record, err: err}
}

// collect lists and parses one collection, skipping files that fail.
func (f *Fetcher) collect(ctx context.Context, t content.ContentType) ([]content.Record, error) {
	files, err := f.listFiles(ctx, t)
	if err != nil || len(files) == 0 {
		return nil, err
	}

	var (
		records []content.Record
		authErr error
	)
	for _, r := range f.readAll(ctx, files) {
		switch {
		case r.err == nil:
			records = append(records, r.record)
		case errors.IsAuth(r.err):
			if authErr == nil {
				authErr = r.err
			}
		default:
			f.logger.Warn(ctx, r.err, "Skipping content file", "path", r.path, "type", string(t))
		}
	}
	if authErr != nil {
		return nil, authErr
	}

	f.logger.Debug(ctx, "Fetched collection", "type", string(t), "files", len(files), "parsed", len(records))
	return records, nil
}

func collectAs[T content.Record](ctx context.Context, f *Fetcher, t content.ContentType, keep func(T) bool) ([]T, error) {
	records, err := f.collect(ctx, t)
	if err != nil {
		return []T{}, err
	}

	out := make([]T, 0, len(records))
	for _, r := range records {
		typed, ok := r.(T)
		if ok && (keep == nil || keep(typed)) {
			out = append(out, typed)
		}
	}
	return out, nil
}

// Pages returns published pages in listing order.
func (f *Fetcher) Pages(ctx context.Context) ([]*content.Page, error) {
	return collectAs(ctx, f, content.TypePage, func(p *content.Page) bool { return p.Published() })
}

// Projects returns published projects, most recently completed first.
func (f *Fetcher) Projects(ctx context.Context) ([]*content.Project, error) {
	projects, err := collectAs(ctx, f, content.TypeProject, func(p *content.Project) bool { return p.Published() })
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CompletedAt.After(projects[j].CompletedAt)
	})
	return projects, err
}

// Services returns published services by ascending display order.
func (f *Fetcher) Services(ctx context.Context) ([]*content.Service, error) {
	services, err := collectAs(ctx, f, content.TypeService, func(s *content.Service) bool { return s.Published() })
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].Order < services[j].Order
	})
	return services, err
}

// BlogPosts returns published posts, newest first.
func (f *Fetcher) BlogPosts(ctx context.Context) ([]*content.BlogPost, error) {
	posts, err := collectAs(ctx, f, content.TypeBlog, func(b *content.BlogPost) bool { return b.Published() })
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PublishedAt.After(posts[j].PublishedAt)
	})
	return posts, err
}

// Testimonials returns every testimonial in listing order. Callers filter on
// Featured as needed.
func (f *Fetcher) Testimonials(ctx context.Context) ([]*content.Testimonial, error) {
	return collectAs[*content.Testimonial](ctx, f, content.TypeTestimonial, nil)
}

// validSlug rejects identifiers that would escape the type directory.
func validSlug(slug string) bool {
	return slug != "" && !strings.ContainsAny(slug, "/\\") && !strings.Contains(slug, "..")
}

// one reads a single record by constructed path. It returns nil for a
// missing, unparsable, or unpublished record.
func one[T content.Record](ctx context.Context, f *Fetcher, t content.ContentType, slug string, published func(T) bool) (T, error) {
	var zero T
	if !validSlug(slug) {
		return zero, nil
	}

	r := f.readFile(ctx, content.FilePath(t, slug))
	if r.err != nil {
		if errors.IsAuth(r.err) {
			return zero, r.err
		}
		if errors.IsNotFound(r.err) {
			f.logger.Debug(ctx, "Content not found", "path", r.path)
		} else {
			f.logger.Warn(ctx, r.err, "Failed to load content", "path", r.path)
		}
		return zero, nil
	}

	typed, ok := r.record.(T)
	if !ok || (published != nil && !published(typed)) {
		return zero, nil
	}
	return typed, nil
}

// Page returns the published page with slug, or nil.
func (f *Fetcher) Page(ctx context.Context, slug string) (*content.Page, error) {
	return one(ctx, f, content.TypePage, slug, func(p *content.Page) bool { return p.Published() })
}

// Project returns the published project with id, or nil.
func (f *Fetcher) Project(ctx context.Context, id string) (*content.Project, error) {
	return one(ctx, f, content.TypeProject, id, func(p *content.Project) bool { return p.Published() })
}

// Service returns the published service with slug, or nil.
func (f *Fetcher) Service(ctx context.Context, slug string) (*content.Service, error) {
	return one(ctx, f, content.TypeService, slug, func(s *content.Service) bool { return s.Published() })
}

// BlogPost returns the published post with slug, or nil.
func (f *Fetcher) BlogPost(ctx context.Context, slug string) (*content.BlogPost, error) {
	return one(ctx, f, content.TypeBlog, slug, func(b *content.BlogPost) bool { return b.Published() })
}

// SiteConfig returns the site settings, or nil when absent or invalid.
func (f *Fetcher) SiteConfig(ctx context.Context) (*content.SiteConfig, error) {
	r := f.readFile(ctx, content.SiteConfigPath)
	if r.err != nil {
		if errors.IsAuth(r.err) {
			return nil, r.err
		}
		f.logger.Warn(ctx, r.err, "Failed to load site config", "path", r.path)
		return nil, nil
	}
	cfg, _ := r.record.(*content.SiteConfig)
	return cfg, nil
}
