package remote

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/conneroisu/gitcms/internal/errors"
)

const (
	testRepo  = "acme/site"
	testToken = "test-token"
)

// newFakeGitHub serves the subset of the GitHub REST API the client uses,
// backed by a MemoryStore.
func newFakeGitHub(t *testing.T, backing *MemoryStore) *httptest.Server {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	fail := func(w http.ResponseWriter, err error) {
		status := http.StatusInternalServerError
		switch {
		case errors.IsNotFound(err):
			status = http.StatusNotFound
		case errors.IsConflict(err) && strings.Contains(err.Error(), errors.ErrCodeAlreadyExists):
			status = http.StatusUnprocessableEntity
		case errors.IsConflict(err):
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"message": err.Error()})
	}
	toContent := func(f RemoteFile) githubContent {
		typ := "file"
		if f.IsDir() {
			typ = "dir"
		}
		return githubContent{
			Name: f.Name, Path: f.Path, SHA: f.ContentHash, Size: f.Size,
			Type: typ, Content: f.Content, Encoding: f.Encoding,
		}
	}
	writeResult := func(w http.ResponseWriter, r *CommitResult) {
		resp := githubWriteResponse{Commit: githubCommit{
			SHA:     r.CommitSHA,
			Message: r.Message,
			Author:  githubSignature{Name: r.Author.Name, Email: r.Author.Email, Date: r.Date},
		}}
		if r.ContentHash != "" {
			resp.Content = &githubContent{Name: lastSegment(r.Path), Path: r.Path, SHA: r.ContentHash, Size: r.Size, Type: "file"}
		}
		writeJSON(w, http.StatusOK, resp)
	}

	prefix := "/repos/" + testRepo
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		if r.Header.Get("Accept") != "application/vnd.github.v3+json" {
			t.Errorf("unexpected Accept header %q", r.Header.Get("Accept"))
		}

		p := strings.TrimPrefix(r.URL.Path, prefix)
		switch {
		case p == "" && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, RepositoryInfo{Name: "site", FullName: testRepo, DefaultBranch: "main"})

		case p == "/commits" && r.Method == http.MethodGet:
			perPage := 30
			if n, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && n > 0 {
				perPage = n
			}
			commits, _ := backing.ListCommits(r.Context(), perPage)
			out := make([]map[string]interface{}, 0, len(commits))
			for _, c := range commits {
				out = append(out, map[string]interface{}{
					"sha": c.SHA,
					"commit": githubCommit{SHA: c.SHA, Message: c.Message,
						Author: githubSignature{Name: c.Author.Name, Email: c.Author.Email, Date: c.Date}},
				})
			}
			writeJSON(w, http.StatusOK, out)

		case strings.HasPrefix(p, "/contents"):
			path := strings.TrimPrefix(strings.TrimPrefix(p, "/contents"), "/")
			switch r.Method {
			case http.MethodGet:
				f, err := backing.Read(r.Context(), path, r.URL.Query().Get("ref"))
				if err != nil {
					fail(w, err)
					return
				}
				if f.IsDir() {
					entries := make([]githubContent, 0, len(f.Entries))
					for _, e := range f.Entries {
						entries = append(entries, toContent(e))
					}
					writeJSON(w, http.StatusOK, entries)
					return
				}
				writeJSON(w, http.StatusOK, toContent(*f))

			case http.MethodPut, http.MethodDelete:
				var body githubWriteRequest
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad json"})
					return
				}
				var (
					result *CommitResult
					err    error
				)
				if r.Method == http.MethodPut {
					content, decErr := base64.StdEncoding.DecodeString(body.Content)
					if decErr != nil {
						writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad content"})
						return
					}
					result, err = backing.Write(r.Context(), path, content, body.Message,
						WriteOptions{ContentHash: body.SHA, Author: body.Author})
				} else {
					result, err = backing.Remove(r.Context(), path, body.Message, body.SHA)
				}
				if err != nil {
					fail(w, err)
					return
				}
				writeResult(w, result)

			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}

		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestGitHubClient(t *testing.T, ts *httptest.Server, token string) *GitHubClient {
	t.Helper()
	client, err := NewGitHubClient(GitHubConfig{
		Repo:       testRepo,
		Branch:     "main",
		Token:      token,
		APIURL:     ts.URL,
		HTTPClient: ts.Client(),
	}, nil)
	if err != nil {
		t.Fatalf("NewGitHubClient: %v", err)
	}
	return client
}
