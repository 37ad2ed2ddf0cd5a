package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/remote"
)

// AllContent is every collection plus the site settings.
type AllContent struct {
	Pages        []*content.Page        `json:"pages"`
	Projects     []*content.Project     `json:"projects"`
	Services     []*content.Service     `json:"services"`
	BlogPosts    []*content.BlogPost    `json:"blogPosts"`
	Testimonials []*content.Testimonial `json:"testimonials"`
	SiteConfig   *content.SiteConfig    `json:"siteConfig"`
}

// ContentPaths holds the identifiers of every addressable record.
type ContentPaths struct {
	Pages    []string `json:"pagePaths" yaml:"pagePaths"`
	Projects []string `json:"projectPaths" yaml:"projectPaths"`
	Services []string `json:"servicePaths" yaml:"servicePaths"`
	Blog     []string `json:"blogPaths" yaml:"blogPaths"`
}

// URLs returns the public URL of every identifier in p.
func (p ContentPaths) URLs() []string {
	var urls []string
	add := func(t content.ContentType, slugs []string) {
		for _, s := range slugs {
			urls = append(urls, content.PublicPath(t, s))
		}
	}
	add(content.TypePage, p.Pages)
	add(content.TypeProject, p.Projects)
	add(content.TypeService, p.Services)
	add(content.TypeBlog, p.Blog)
	return urls
}

// Stats summarizes the published content for monitoring.
type Stats struct {
	TotalPages        int        `json:"totalPages" yaml:"totalPages"`
	TotalProjects     int        `json:"totalProjects" yaml:"totalProjects"`
	TotalServices     int        `json:"totalServices" yaml:"totalServices"`
	TotalBlogPosts    int        `json:"totalBlogPosts" yaml:"totalBlogPosts"`
	TotalTestimonials int        `json:"totalTestimonials" yaml:"totalTestimonials"`
	LastUpdate        *time.Time `json:"lastUpdate" yaml:"lastUpdate"`
}

// fanOut runs tasks concurrently and returns the first authentication error.
// Other failures have already been absorbed by the tasks.
func fanOut(tasks ...func() error) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(task func() error) {
			defer wg.Done()
			if err := task(); err != nil && errors.IsAuth(err) {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}(task)
	}
	wg.Wait()
	return first
}

// All fetches every collection concurrently. On an authentication failure
// the partial result is returned with the error.
func (f *Fetcher) All(ctx context.Context) (*AllContent, error) {
	all := &AllContent{}
	err := fanOut(
		func() (err error) { all.Pages, err = f.Pages(ctx); return },
		func() (err error) { all.Projects, err = f.Projects(ctx); return },
		func() (err error) { all.Services, err = f.Services(ctx); return },
		func() (err error) { all.BlogPosts, err = f.BlogPosts(ctx); return },
		func() (err error) { all.Testimonials, err = f.Testimonials(ctx); return },
		func() (err error) { all.SiteConfig, err = f.SiteConfig(ctx); return },
	)
	return all, err
}

// Paths returns the identifiers of every published addressable record.
func (f *Fetcher) Paths(ctx context.Context) (*ContentPaths, error) {
	var (
		pages    []*content.Page
		projects []*content.Project
		services []*content.Service
		posts    []*content.BlogPost
	)
	err := fanOut(
		func() (err error) { pages, err = f.Pages(ctx); return },
		func() (err error) { projects, err = f.Projects(ctx); return },
		func() (err error) { services, err = f.Services(ctx); return },
		func() (err error) { posts, err = f.BlogPosts(ctx); return },
	)

	paths := &ContentPaths{
		Pages:    make([]string, 0, len(pages)),
		Projects: make([]string, 0, len(projects)),
		Services: make([]string, 0, len(services)),
		Blog:     make([]string, 0, len(posts)),
	}
	for _, p := range pages {
		paths.Pages = append(paths.Pages, p.Slug)
	}
	for _, p := range projects {
		paths.Projects = append(paths.Projects, p.ID)
	}
	for _, s := range services {
		paths.Services = append(paths.Services, s.Slug)
	}
	for _, b := range posts {
		paths.Blog = append(paths.Blog, b.Slug)
	}
	return paths, err
}

// LastUpdate returns the date of the most recent commit, or nil.
func (f *Fetcher) LastUpdate(ctx context.Context) (*time.Time, error) {
	commits, err := f.store.ListCommits(ctx, 1)
	if err != nil {
		if errors.IsAuth(err) {
			return nil, err
		}
		f.logger.Warn(ctx, err, "Failed to get last content update")
		return nil, nil
	}
	if len(commits) == 0 {
		return nil, nil
	}
	date := commits[0].Date
	return &date, nil
}

// Stats counts published records and reports the last update.
func (f *Fetcher) Stats(ctx context.Context) (*Stats, error) {
	var (
		stats        Stats
		pages        []*content.Page
		projects     []*content.Project
		services     []*content.Service
		posts        []*content.BlogPost
		testimonials []*content.Testimonial
	)
	err := fanOut(
		func() (err error) { pages, err = f.Pages(ctx); return },
		func() (err error) { projects, err = f.Projects(ctx); return },
		func() (err error) { services, err = f.Services(ctx); return },
		func() (err error) { posts, err = f.BlogPosts(ctx); return },
		func() (err error) { testimonials, err = f.Testimonials(ctx); return },
		func() (err error) { stats.LastUpdate, err = f.LastUpdate(ctx); return },
	)

	stats.TotalPages = len(pages)
	stats.TotalProjects = len(projects)
	stats.TotalServices = len(services)
	stats.TotalBlogPosts = len(posts)
	stats.TotalTestimonials = len(testimonials)
	return &stats, err
}

// FileReport is the validation outcome for one repository file.
type FileReport struct {
	Path string              `json:"path" yaml:"path"`
	Type content.ContentType `json:"type" yaml:"type"`
	Err  error               `json:"-" yaml:"-"`
	// Error mirrors Err for encoding.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Check parses every content file, drafts included, and reports each result.
// Unlike the collection readers it does not skip failures; it is the
// pre-deploy validation pass.
func (f *Fetcher) Check(ctx context.Context) ([]FileReport, error) {
	var reports []FileReport

	for _, t := range content.Collections {
		files, err := f.listFiles(ctx, t)
		if err != nil {
			return reports, err
		}
		for _, r := range f.readAll(ctx, files) {
			reports = append(reports, newReport(r.path, t, r.err))
		}
	}

	r := f.readFile(ctx, content.SiteConfigPath)
	switch {
	case r.err == nil:
		reports = append(reports, newReport(r.path, content.TypeConfig, nil))
	case errors.IsAuth(r.err):
		return reports, r.err
	case !errors.IsNotFound(r.err):
		reports = append(reports, newReport(r.path, content.TypeConfig, r.err))
	}

	return reports, nil
}

func newReport(path string, t content.ContentType, err error) FileReport {
	report := FileReport{Path: path, Type: t, Err: err}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}

// Store returns the underlying store.
func (f *Fetcher) Store() remote.Store { return f.store }
