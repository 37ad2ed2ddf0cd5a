package revalidate

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/logging"
)

// Result is the outcome of handling one push.
type Result struct {
	Success       bool                  `json:"success"`
	AffectedTypes []content.ContentType `json:"affectedTypes"`
	AffectedPaths []string              `json:"affectedPaths"`
	Fallback      bool                  `json:"fallback,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// Skipped is the result for a delivery that needs no invalidation.
func Skipped() *Result {
	return &Result{
		Success:       true,
		AffectedTypes: []content.ContentType{},
		AffectedPaths: []string{},
	}
}

// Router drives cache invalidation for repository changes.
type Router struct {
	cache  Cache
	logger logging.Logger
}

// NewRouter creates a Router over cache.
func NewRouter(cache Cache, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Router{cache: cache, logger: logger.WithComponent("revalidate")}
}

// HandlePush invalidates everything the commits touched. When no content
// type is affected it invalidates everything. Failures are reported in the
// result, never retried.
func (r *Router) HandlePush(ctx context.Context, commits []Commit) Result {
	files := ChangedFiles(commits)
	scope := ComputeScope(files)

	result := Result{
		AffectedTypes: scope.Types,
		AffectedPaths: scope.Paths,
		Fallback:      scope.Empty(),
	}

	var err error
	if scope.Empty() {
		r.logger.Info(ctx, "No content types affected, invalidating everything",
			"commits", len(commits), "files", len(files))
		err = r.InvalidateAll(ctx)
	} else {
		err = r.Apply(ctx, scope)
	}

	if err != nil {
		r.logger.Error(ctx, err, "Failed to handle push invalidation")
		result.Error = err.Error()
		return result
	}

	r.logger.Info(ctx, "Invalidated content",
		"types", scope.Types, "paths", scope.Paths, "fallback", result.Fallback)
	result.Success = true
	return result
}

// Apply invalidates a computed scope: each type's tag and the all-content
// tag, then every affected path once, then the types' landing paths. Every
// invalidation is attempted and the failures are joined.
func (r *Router) Apply(ctx context.Context, scope Scope) error {
	var errs []error
	tags := make([]string, 0, len(scope.Types)+1)
	var landing []string
	for _, t := range scope.Types {
		tag := TagFor(t)
		if tag == "" {
			errs = append(errs, fmt.Errorf("unknown content type %q", t))
			continue
		}
		tags = append(tags, tag)
		landing = append(landing, LandingPaths(t)...)
	}
	if len(tags) == 0 {
		return stderrors.Join(errs...)
	}
	tags = append(tags, TagAllContent)

	errs = append(errs, r.invalidate(ctx, tags, append(append([]string(nil), scope.Paths...), landing...))...)

	r.logger.Debug(ctx, "Invalidated content", "types", scope.Types, "paths", len(scope.Paths))
	return stderrors.Join(errs...)
}

// InvalidateType invalidates one content type plus extra paths.
func (r *Router) InvalidateType(ctx context.Context, t content.ContentType, paths []string) error {
	return r.Apply(ctx, Scope{Types: []content.ContentType{t}, Paths: paths})
}

// InvalidateAll invalidates every known tag and the core navigational paths.
func (r *Router) InvalidateAll(ctx context.Context) error {
	return stderrors.Join(r.invalidate(ctx, AllTags, CorePaths)...)
}

// invalidate drops tags then paths in order, each at most once.
func (r *Router) invalidate(ctx context.Context, tags, paths []string) []error {
	var errs []error
	seen := make(map[string]struct{}, len(tags)+len(paths))
	for _, tag := range tags {
		if _, dup := seen["tag:"+tag]; dup {
			continue
		}
		seen["tag:"+tag] = struct{}{}
		if err := r.cache.InvalidateTag(ctx, tag); err != nil {
			errs = append(errs, fmt.Errorf("invalidating tag %s: %w", tag, err))
		}
	}
	for _, p := range paths {
		if _, dup := seen["path:"+p]; dup {
			continue
		}
		seen["path:"+p] = struct{}{}
		if err := r.cache.InvalidatePath(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("invalidating path %s: %w", p, err))
		}
	}
	return errs
}
