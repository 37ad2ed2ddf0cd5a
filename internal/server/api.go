package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/fetcher"
	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/remote"
	"github.com/conneroisu/gitcms/internal/revalidate"
	"github.com/conneroisu/gitcms/internal/validation"
	"github.com/conneroisu/gitcms/internal/version"
	"github.com/conneroisu/gitcms/internal/websocket"
)

// MaxContentBytes bounds admin content API request bodies.
const MaxContentBytes = 5 << 20

// ContentRoot is the only repository directory the content API touches.
const ContentRoot = "content"

// DefaultAuthor is recorded on commits that name no author.
var DefaultAuthor = remote.Author{Name: "CMS User", Email: "cms@example.com"}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Report(r.Context())
	writeJSON(w, report.HTTPStatus(), report)
}

// RevalidateRequest is the body of POST /api/revalidate.
type RevalidateRequest struct {
	Type  string   `json:"type"`
	Paths []string `json:"paths"`
}

func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"availableTypes": revalidate.TypeNames(),
			"message":        "Use POST to trigger revalidation",
			"example": RevalidateRequest{
				Type:  revalidate.TagProjects,
				Paths: []string{"/projects/kitchen-remodel"},
			},
		})
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RevalidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	for _, p := range req.Paths {
		if !strings.HasPrefix(p, "/") {
			writeError(w, http.StatusBadRequest, "Paths must start with /")
			return
		}
	}

	ctx := r.Context()
	op := logging.StartOperation(s.logger, "revalidate")

	var err error
	if strings.EqualFold(strings.TrimSpace(req.Type), "all") {
		err = s.router.InvalidateAll(ctx)
	} else {
		t, ok := revalidate.ParseType(req.Type)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid revalidation type")
			return
		}
		err = s.router.InvalidateType(ctx, t, req.Paths)
	}
	if err != nil {
		op.EndWithError(ctx, err, "type", req.Type)
		writeError(w, http.StatusInternalServerError, "Failed to revalidate content")
		return
	}
	op.End(ctx, "type", req.Type, "paths", len(req.Paths))

	if req.Paths == nil {
		req.Paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"type":      req.Type,
		"paths":     req.Paths,
		"timestamp": s.clock().UTC(),
	})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Connected  bool                   `json:"connected"`
	Error      string                 `json:"error,omitempty"`
	Repository *remote.RepositoryInfo `json:"repository"`
	LastCommit *CommitSummary         `json:"lastCommit"`
	Statistics *fetcher.Stats         `json:"statistics"`
	Live       *websocket.Stats       `json:"live,omitempty"`
	Version    version.Info           `json:"version"`
}

// CommitSummary is the short commit form shown on status surfaces.
type CommitSummary struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

func summarize(c remote.CommitRecord) *CommitSummary {
	sha := c.SHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return &CommitSummary{SHA: sha, Message: c.Message, Author: c.Author.Name, Date: c.Date}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()

	access := s.store.CheckAccess(ctx)
	resp := StatusResponse{
		Connected: access.Valid,
		Error:     access.Error,
		Version:   version.Get(),
	}
	if s.hub != nil {
		stats := s.hub.Stats()
		resp.Live = &stats
	}

	if access.Valid {
		if info, err := s.store.Repository(ctx); err == nil {
			resp.Repository = info
		} else {
			s.logger.Warn(ctx, err, "Failed to read repository info")
		}
		if commits, err := s.store.ListCommits(ctx, 1); err == nil && len(commits) > 0 {
			resp.LastCommit = summarize(commits[0])
		} else if err != nil {
			s.logger.Warn(ctx, err, "Failed to list commits")
		}
		if stats, err := s.fetcher.Stats(ctx); err == nil {
			resp.Statistics = stats
		} else {
			resp.Connected = false
			resp.Error = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ContentRequest is the body of content writes and deletes.
type ContentRequest struct {
	Path    string         `json:"path"`
	Content *string        `json:"content,omitempty"`
	Message string         `json:"message"`
	SHA     string         `json:"sha,omitempty"`
	Author  *remote.Author `json:"author,omitempty"`
}

// ContentEntry is one directory child in a content listing.
type ContentEntry struct {
	Name string          `json:"name"`
	Path string          `json:"path"`
	Type remote.FileType `json:"type"`
	Size int64           `json:"size"`
	URL  string          `json:"url,omitempty"`
}

// CommitResponse is returned by successful writes and deletes.
type CommitResponse struct {
	Success bool                 `json:"success"`
	Commit  CommitSummary        `json:"commit"`
	File    *remote.CommitResult `json:"file,omitempty"`
}

// contentPath cleans p and checks it stays under the content directory.
func contentPath(p string) (string, bool) {
	clean, err := validation.ContentPath(p)
	return clean, err == nil
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.readContent(w, r)
	case http.MethodPost, http.MethodPut:
		s.writeContent(w, r)
	case http.MethodDelete:
		s.deleteContent(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) readContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("path")
	if raw == "" {
		raw = ContentRoot
	}
	path, ok := contentPath(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "Path must be inside the content directory")
		return
	}

	f, err := s.store.Read(ctx, path, "")
	if err != nil {
		if errors.IsNotFound(err) && path == ContentRoot {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"path":     path,
				"contents": []ContentEntry{},
				"message":  "Content directory not found. It will be created when you add content.",
			})
			return
		}
		s.writeStoreError(w, r, err, "read")
		return
	}

	if f.IsDir() {
		entries := make([]ContentEntry, 0, len(f.Entries))
		for _, e := range f.Entries {
			entries = append(entries, ContentEntry{Name: e.Name, Path: e.Path, Type: e.Type, Size: e.Size, URL: e.URL})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"path": path, "contents": entries})
		return
	}

	text, err := remote.Decode(f)
	if err != nil {
		s.writeStoreError(w, r, err, "read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":        path,
		"type":        remote.TypeFile,
		"contentType": content.Classify(path),
		"content":     text,
		"size":        f.Size,
		"sha":         f.ContentHash,
	})
}

func (s *Server) decodeContentRequest(w http.ResponseWriter, r *http.Request) (*ContentRequest, string, bool) {
	var req ContentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxContentBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, "", false
	}
	path, ok := contentPath(req.Path)
	if !ok {
		writeError(w, http.StatusBadRequest, "Path must be inside the content directory")
		return nil, "", false
	}
	if req.Author == nil {
		author := DefaultAuthor
		req.Author = &author
	}
	req.Message = validation.SanitizeMessage(req.Message)
	return &req, path, true
}

func (s *Server) writeContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, path, ok := s.decodeContentRequest(w, r)
	if !ok {
		return
	}
	if req.Content == nil || (req.Message == "" && r.URL.Query().Get("preview") == "") {
		writeError(w, http.StatusBadRequest, "Path, content, and message are required")
		return
	}
	body := []byte(*req.Content)

	if r.URL.Query().Get("preview") != "" {
		change, err := remote.Diff(ctx, s.store, path, "", body)
		if err != nil {
			s.writeStoreError(w, r, err, "preview")
			return
		}
		writeJSON(w, http.StatusOK, change)
		return
	}

	var (
		result *remote.CommitResult
		err    error
	)
	if req.SHA != "" {
		result, err = s.store.Write(ctx, path, body, req.Message, remote.WriteOptions{ContentHash: req.SHA, Author: req.Author})
	} else {
		result, err = remote.Save(ctx, s.store, path, body, req.Message, req.Author)
	}
	if err != nil {
		s.writeStoreError(w, r, err, "save")
		return
	}

	s.logger.Info(ctx, "Content saved", "path", path, "commit", result.CommitSHA)
	s.afterWrite(r, revalidate.Commit{ID: result.CommitSHA, Message: req.Message, Modified: []string{path}})

	writeJSON(w, http.StatusOK, CommitResponse{
		Success: true,
		Commit:  CommitSummary{SHA: result.CommitSHA, Message: result.Message, Author: result.Author.Name, Date: result.Date},
		File:    result,
	})
}

func (s *Server) deleteContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, path, ok := s.decodeContentRequest(w, r)
	if !ok {
		return
	}
	if req.Message == "" || req.SHA == "" {
		writeError(w, http.StatusBadRequest, "Path, message, and SHA are required")
		return
	}

	result, err := s.store.Remove(ctx, path, req.Message, req.SHA)
	if err != nil {
		s.writeStoreError(w, r, err, "delete")
		return
	}

	s.logger.Info(ctx, "Content deleted", "path", path, "commit", result.CommitSHA)
	s.afterWrite(r, revalidate.Commit{ID: result.CommitSHA, Message: req.Message, Removed: []string{path}})

	writeJSON(w, http.StatusOK, CommitResponse{
		Success: true,
		Commit:  CommitSummary{SHA: result.CommitSHA, Message: result.Message, Author: result.Author.Name, Date: result.Date},
	})
}

// afterWrite invalidates directly for backends that send no push webhook.
func (s *Server) afterWrite(r *http.Request, commit revalidate.Commit) {
	if !s.invalidateOnWrite {
		return
	}
	result := s.router.HandlePush(r.Context(), []revalidate.Commit{commit})
	if !result.Success {
		s.logger.Warn(r.Context(), nil, "Invalidation after write failed", "error", result.Error)
	}
}

// writeStoreError maps the store error taxonomy onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, message := http.StatusInternalServerError, "Failed to "+op+" content"
	switch {
	case errors.IsConflict(err):
		status, message = http.StatusConflict, "Content changed since it was read; reload and retry"
	case errors.IsNotFound(err):
		status, message = http.StatusNotFound, "Path not found"
	case errors.IsAuth(err):
		status, message = http.StatusBadGateway, "Content repository rejected credentials"
	case errors.IsTransient(err):
		status, message = http.StatusServiceUnavailable, "Content repository temporarily unavailable"
	case errors.IsDecode(err), errors.IsValidation(err):
		status, message = http.StatusBadRequest, err.Error()
	}

	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		s.logger.Error(r.Context(), err, "Content API "+op+" failed", "status", status)
	} else {
		s.logger.Warn(r.Context(), err, "Content API "+op+" rejected", "status", status)
	}
	writeError(w, status, message)
}
