package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/logging"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// DefaultUserAgent identifies the client to GitHub.
const DefaultUserAgent = "gitcms/1.0"

// GitHubConfig configures a GitHubClient.
type GitHubConfig struct {
	// Repo is "owner/name".
	Repo      string
	Branch    string
	Token     string
	APIURL    string
	UserAgent string
	// HTTPClient is the base client; its transport is wrapped with auth.
	HTTPClient *http.Client
}

// GitHubClient implements Store over the GitHub contents API.
type GitHubClient struct {
	repo    string
	branch  string
	baseURL string
	client  *http.Client
	logger  logging.Logger
}

// NewGitHubClient creates a client for cfg.Repo.
func NewGitHubClient(cfg GitHubConfig, logger logging.Logger) (*GitHubClient, error) {
	if strings.Count(cfg.Repo, "/") != 1 || strings.HasPrefix(cfg.Repo, "/") || strings.HasSuffix(cfg.Repo, "/") {
		return nil, fmt.Errorf("repository must be in owner/name form, got %q", cfg.Repo)
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &GitHubClient{
		repo:    cfg.Repo,
		branch:  cfg.Branch,
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		client:  newHTTPClient(cfg.Token, cfg.UserAgent, cfg.HTTPClient),
		logger:  logger.WithComponent("remote"),
	}, nil
}

// Branch returns the branch reads and writes target by default.
func (c *GitHubClient) Branch() string { return c.branch }

type githubContent struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	HTMLURL  string `json:"html_url"`
}

func (g githubContent) toRemote() RemoteFile {
	t := TypeFile
	if g.Type == "dir" {
		t = TypeDirectory
	}
	return RemoteFile{
		Name:        g.Name,
		Path:        g.Path,
		ContentHash: g.SHA,
		Size:        g.Size,
		Type:        t,
		Content:     g.Content,
		Encoding:    g.Encoding,
		URL:         g.HTMLURL,
	}
}

type githubSignature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

type githubCommit struct {
	SHA     string          `json:"sha"`
	Message string          `json:"message"`
	Author  githubSignature `json:"author"`
	HTMLURL string          `json:"html_url"`
}

type githubWriteResponse struct {
	Content *githubContent `json:"content"`
	Commit  githubCommit   `json:"commit"`
}

type githubWriteRequest struct {
	Message   string  `json:"message"`
	Content   string  `json:"content,omitempty"`
	SHA       string  `json:"sha,omitempty"`
	Branch    string  `json:"branch"`
	Author    *Author `json:"author,omitempty"`
	Committer *Author `json:"committer,omitempty"`
}

func contentsEndpoint(path string) string {
	segments := strings.Split(CleanPath(path), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/contents/" + strings.Join(segments, "/")
}

// Read implements Store.
func (c *GitHubClient) Read(ctx context.Context, path, ref string) (*RemoteFile, error) {
	if ref == "" {
		ref = c.branch
	}
	path = CleanPath(path)

	var raw json.RawMessage
	endpoint := contentsEndpoint(path) + "?ref=" + url.QueryEscape(ref)
	if err := c.do(ctx, http.MethodGet, endpoint, path, nil, &raw); err != nil {
		return nil, err
	}

	// Directories come back as arrays, files as objects.
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []githubContent
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, errors.NewDecodeError(errors.ErrCodeBadEncoding, "decoding directory listing", err).WithPath(path)
		}
		dir := &RemoteFile{
			Name: lastSegment(path),
			Path: path,
			Type: TypeDirectory,
		}
		for _, e := range entries {
			dir.Entries = append(dir.Entries, e.toRemote())
		}
		return dir, nil
	}

	var file githubContent
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errors.NewDecodeError(errors.ErrCodeBadEncoding, "decoding file", err).WithPath(path)
	}
	f := file.toRemote()
	return &f, nil
}

// Write implements Store.
func (c *GitHubClient) Write(ctx context.Context, path string, content []byte, message string, opts WriteOptions) (*CommitResult, error) {
	path = CleanPath(path)
	body := githubWriteRequest{
		Message:   message,
		Content:   base64.StdEncoding.EncodeToString(content),
		SHA:       opts.ContentHash,
		Branch:    c.branch,
		Author:    opts.Author,
		Committer: opts.Author,
	}

	var resp githubWriteResponse
	err := c.do(ctx, http.MethodPut, contentsEndpoint(path), path, body, &resp)
	if err != nil {
		// Without a sha GitHub answers 422 for an existing path.
		if opts.ContentHash == "" && errors.IsConflict(err) {
			return nil, errors.NewConflictError(errors.ErrCodeAlreadyExists, "file already exists").
				WithPath(path).WithStatus(statusOf(err))
		}
		return nil, err
	}

	c.logger.Info(ctx, "Wrote file", "path", path, "commit", resp.Commit.SHA)
	return commitResult(path, &resp), nil
}

// Remove implements Store.
func (c *GitHubClient) Remove(ctx context.Context, path, message, contentHash string) (*CommitResult, error) {
	path = CleanPath(path)
	if contentHash == "" {
		return nil, errors.NewConflictError(errors.ErrCodeHashMismatch, "content hash is required to delete").WithPath(path)
	}

	body := githubWriteRequest{
		Message: message,
		SHA:     contentHash,
		Branch:  c.branch,
	}

	var resp githubWriteResponse
	if err := c.do(ctx, http.MethodDelete, contentsEndpoint(path), path, body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info(ctx, "Removed file", "path", path, "commit", resp.Commit.SHA)
	return commitResult(path, &resp), nil
}

// ListCommits implements Store.
func (c *GitHubClient) ListCommits(ctx context.Context, limit int) ([]CommitRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var commits []struct {
		SHA     string       `json:"sha"`
		HTMLURL string       `json:"html_url"`
		Commit  githubCommit `json:"commit"`
	}
	endpoint := fmt.Sprintf("/commits?per_page=%d&sha=%s", limit, url.QueryEscape(c.branch))
	if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &commits); err != nil {
		return nil, err
	}

	if len(commits) > limit {
		commits = commits[:limit]
	}

	records := make([]CommitRecord, 0, len(commits))
	for _, cm := range commits {
		records = append(records, CommitRecord{
			SHA:     cm.SHA,
			Message: cm.Commit.Message,
			Author:  Author{Name: cm.Commit.Author.Name, Email: cm.Commit.Author.Email},
			Date:    cm.Commit.Author.Date,
			URL:     cm.HTMLURL,
		})
	}
	return records, nil
}

// Repository implements Store.
func (c *GitHubClient) Repository(ctx context.Context) (*RepositoryInfo, error) {
	var info RepositoryInfo
	if err := c.do(ctx, http.MethodGet, "", "", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CheckAccess implements Store.
func (c *GitHubClient) CheckAccess(ctx context.Context) AccessStatus {
	if _, err := c.Repository(ctx); err != nil {
		return AccessStatus{Valid: false, Error: err.Error(), Err: err}
	}
	return AccessStatus{Valid: true}
}

// do issues one request against /repos/{repo}{endpoint} and decodes the
// JSON response into out. Failures are translated into the error taxonomy.
func (c *GitHubClient) do(ctx context.Context, method, endpoint, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/repos/"+c.repo+endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewTransientError(errors.ErrCodeNetwork, "request to remote store failed", err).WithPath(path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(ctx, resp, method != http.MethodGet, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewDecodeError(errors.ErrCodeBadEncoding, "decoding remote store response", err).WithPath(path)
	}
	return nil
}

func (c *GitHubClient) statusError(ctx context.Context, resp *http.Response, write bool, path string) error {
	var payload struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)
	msg := payload.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	// GitHub reports primary rate limiting as 403 with no remaining quota.
	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		e := errors.NewTransientError(errors.ErrCodeRemoteRateLimit, msg, nil).WithStatus(resp.StatusCode).WithPath(path)
		if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			e = e.WithContext("reset_at", time.Unix(reset, 0).UTC())
		}
		c.logger.Warn(ctx, e, "Remote store rate limit exhausted")
		return e
	}

	e := errors.FromHTTPStatus(resp.StatusCode, write, msg).WithPath(path)
	if errors.IsAuth(e) {
		c.logger.Error(ctx, e, "Remote store rejected credentials")
	}
	return e
}

func commitResult(path string, resp *githubWriteResponse) *CommitResult {
	result := &CommitResult{
		Path:      path,
		CommitSHA: resp.Commit.SHA,
		Message:   resp.Commit.Message,
		Author:    Author{Name: resp.Commit.Author.Name, Email: resp.Commit.Author.Email},
		Date:      resp.Commit.Author.Date,
		URL:       resp.Commit.HTMLURL,
	}
	if resp.Content != nil {
		result.ContentHash = resp.Content.SHA
		result.Size = resp.Content.Size
	}
	return result
}

func statusOf(err error) int {
	var ce *errors.ContentError
	if stderrors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
