package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/gitcms/internal/cache"
	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/revalidate"
)

const testSecret = "s3cret"

type stubPusher struct {
	calls   [][]revalidate.Commit
	failing bool
}

func (p *stubPusher) HandlePush(_ context.Context, commits []revalidate.Commit) revalidate.Result {
	p.calls = append(p.calls, commits)
	if p.failing {
		return revalidate.Result{Error: "cache unavailable"}
	}
	return revalidate.Result{Success: true, AffectedTypes: []content.ContentType{content.TypeProject}}
}

func pushBody(ref string, files ...string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"ref":        ref,
		"repository": map[string]string{"name": "site", "full_name": "acme/site"},
		"commits": []map[string]interface{}{
			{"id": "abc", "added": []string{}, "modified": files, "removed": []string{}},
		},
	})
	return body
}

func deliver(t *testing.T, h http.Handler, event string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", bytes.NewReader(body))
	req.Header.Set(EventHeader, event)
	req.Header.Set(DeliveryHeader, "delivery-1")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestVerify(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	good := Sign([]byte(testSecret), body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
		code   string
	}{
		{name: "valid", secret: testSecret, body: body, header: good},
		{name: "empty secret", secret: "", body: body, header: good, code: errors.ErrCodeNoSecret},
		{name: "missing header", secret: testSecret, body: body, code: errors.ErrCodeMissingSignature},
		{name: "wrong scheme", secret: testSecret, body: body, header: "sha1=abcd", code: errors.ErrCodeBadSignature},
		{name: "not hex", secret: testSecret, body: body, header: "sha256=zz", code: errors.ErrCodeBadSignature},
		{name: "wrong secret", secret: "other", body: body, header: good, code: errors.ErrCodeBadSignature},
		{
			name:   "re-serialized body",
			secret: testSecret,
			body:   []byte(`{"ref": "refs/heads/main"}`),
			header: good,
			code:   errors.ErrCodeBadSignature,
		},
		{name: "truncated signature", secret: testSecret, body: body, header: good[:len(good)-2], code: errors.ErrCodeBadSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify([]byte(tt.secret), tt.body, tt.header)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsSignature(err))
			var ce *errors.ContentError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestSignMatchesKnownVector(t *testing.T) {
	// Example from GitHub's webhook validation documentation.
	got := Sign([]byte("It's a Secret to Everybody"), []byte("Hello, World!"))
	assert.Equal(t, "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17", got)
}

func TestHandlerPush(t *testing.T) {
	pusher := &stubPusher{}
	h := NewHandler(testSecret, "main", pusher, nil)

	body := pushBody("refs/heads/main", "content/projects/deck.md")
	rec := deliver(t, h, "push", body, Sign([]byte(testSecret), body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pusher.calls, 1)
	assert.Equal(t, []string{"content/projects/deck.md"}, pusher.calls[0][0].Modified)

	resp := decodeResponse(t, rec)
	assert.Equal(t, "push", resp.Event)
	assert.Equal(t, "delivery-1", resp.Delivery)
	assert.Equal(t, "acme/site", resp.Repository)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
}

func TestHandlerRejectsBadSignatureBeforeParsing(t *testing.T) {
	pusher := &stubPusher{}
	h := NewHandler(testSecret, "main", pusher, nil)

	rec := deliver(t, h, "push", []byte("not json at all"), "sha256=00")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, pusher.calls)

	rec = deliver(t, h, "push", pushBody("refs/heads/main"), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, pusher.calls)
}

func TestHandlerRejectsWithoutSecret(t *testing.T) {
	pusher := &stubPusher{}
	h := NewHandler("", "main", pusher, nil)

	body := pushBody("refs/heads/main", "content/blog/a.md")
	rec := deliver(t, h, "push", body, Sign(nil, body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, pusher.calls)
}

func TestHandlerIgnoresOtherBranches(t *testing.T) {
	pusher := &stubPusher{}
	h := NewHandler(testSecret, "main", pusher, nil)

	body := pushBody("refs/heads/feature", "content/blog/a.md")
	rec := deliver(t, h, "push", body, Sign([]byte(testSecret), body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, pusher.calls)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Ignored)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
	assert.Empty(t, resp.Result.AffectedTypes)
}

func TestHandlerUnknownEvent(t *testing.T) {
	pusher := &stubPusher{}
	h := NewHandler(testSecret, "main", pusher, nil)

	body := []byte(`{"action":"opened","pull_request":{"number":1}}`)
	rec := deliver(t, h, "pull_request", body, Sign([]byte(testSecret), body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, pusher.calls)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
	assert.Empty(t, resp.Result.AffectedTypes)
}

func TestHandlerPing(t *testing.T) {
	h := NewHandler(testSecret, "main", &stubPusher{}, nil)
	body := []byte(`{"zen":"Keep it logically awesome."}`)
	rec := deliver(t, h, "ping", body, Sign([]byte(testSecret), body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", decodeResponse(t, rec).Message)
}

func TestHandlerMalformedPush(t *testing.T) {
	pusher := &stubPusher{}
	h := NewHandler(testSecret, "main", pusher, nil)
	body := []byte(`{"ref":`)
	rec := deliver(t, h, "push", body, Sign([]byte(testSecret), body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pusher.calls)
}

func TestHandlerReportsRevalidationFailure(t *testing.T) {
	h := NewHandler(testSecret, "main", &stubPusher{failing: true}, nil)
	body := pushBody("refs/heads/main", "content/pages/about.md")
	rec := deliver(t, h, "push", body, Sign([]byte(testSecret), body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.Success)
	assert.Equal(t, "cache unavailable", resp.Result.Error)
}

func TestHandlerMethods(t *testing.T) {
	h := NewHandler(testSecret, "main", &stubPusher{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webhooks/github", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/webhooks/github", strings.NewReader("")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	pages := cache.NewMemory()
	require.NoError(t, pages.Set(ctx, "/projects/kitchen-remodel", cache.Entry{Body: []byte("{}"), Tags: []string{revalidate.TagProjects}}))
	require.NoError(t, pages.Set(ctx, "/services", cache.Entry{Body: []byte("[]"), Tags: []string{revalidate.TagServices}}))

	h := NewHandler(testSecret, "main", revalidate.NewRouter(pages, nil), nil)
	body := pushBody("refs/heads/main", "content/projects/kitchen-remodel.md")
	rec := deliver(t, h, "push", body, Sign([]byte(testSecret), body))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Result)
	assert.Equal(t, []content.ContentType{content.TypeProject}, resp.Result.AffectedTypes)
	assert.Equal(t, []string{"/projects/kitchen-remodel"}, resp.Result.AffectedPaths)

	_, ok, _ := pages.Get(ctx, "/projects/kitchen-remodel")
	assert.False(t, ok)
	_, ok, _ = pages.Get(ctx, "/services")
	assert.True(t, ok)
}
