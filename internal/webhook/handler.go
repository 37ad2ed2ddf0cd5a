package webhook

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/revalidate"
)

// MaxPayloadBytes is the largest body accepted. GitHub caps payloads at 25MB.
const MaxPayloadBytes = 25 << 20

// Pusher handles the commits of one push.
type Pusher interface {
	HandlePush(ctx context.Context, commits []revalidate.Commit) revalidate.Result
}

// Repository identifies the repository a delivery came from.
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// PushEvent is the part of a push payload the handler reads.
type PushEvent struct {
	Ref        string              `json:"ref"`
	Repository Repository          `json:"repository"`
	Commits    []revalidate.Commit `json:"commits"`
}

// Response is the JSON body returned for every verified delivery.
type Response struct {
	Message    string             `json:"message"`
	Event      string             `json:"event"`
	Delivery   string             `json:"delivery,omitempty"`
	Repository string             `json:"repository,omitempty"`
	Ignored    bool               `json:"ignored,omitempty"`
	Result     *revalidate.Result `json:"result,omitempty"`
}

// Handler is the webhook HTTP endpoint.
type Handler struct {
	secret []byte
	branch string
	pusher Pusher
	logger logging.Logger
}

// NewHandler creates a Handler that forwards pushes to branch into pusher.
func NewHandler(secret, branch string, pusher Pusher, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{
		secret: []byte(secret),
		branch: branch,
		pusher: pusher,
		logger: logger.WithComponent("webhook"),
	}
}

// ServeHTTP verifies and dispatches one delivery.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"webhook":   "GitHub webhook handler",
			"timestamp": time.Now().UTC(),
		})
		return
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	event := r.Header.Get(EventHeader)
	delivery := r.Header.Get(DeliveryHeader)
	logger := h.logger.With("event", event, "delivery", delivery)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		logger.Warn(ctx, err, "Failed to read webhook body")
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unreadable payload"})
		return
	}

	if err := Verify(h.secret, body, r.Header.Get(SignatureHeader)); err != nil {
		logger.Warn(ctx, err, "Rejected webhook delivery")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	resp := Response{Event: event, Delivery: delivery}

	switch event {
	case "push":
		var push PushEvent
		if err := json.Unmarshal(body, &push); err != nil {
			logger.Warn(ctx, errors.NewDecodeError(errors.ErrCodeBadEncoding, "invalid push payload", err),
				"Failed to decode push payload")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
			return
		}
		resp.Repository = push.Repository.FullName
		h.handlePush(ctx, logger, push, &resp)
	case "ping":
		resp.Message = "pong"
	default:
		logger.Info(ctx, "Unhandled webhook event")
		resp.Message = "Event ignored"
		resp.Ignored = true
		resp.Result = revalidate.Skipped()
	}

	status := http.StatusOK
	if resp.Result != nil && !resp.Result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handlePush(ctx context.Context, logger logging.Logger, push PushEvent, resp *Response) {
	want := "refs/heads/" + h.branch
	if push.Ref != want {
		logger.Info(ctx, "Ignoring push to untracked ref", "ref", push.Ref, "branch", h.branch)
		resp.Message = "Push ignored"
		resp.Ignored = true
		resp.Result = revalidate.Skipped()
		return
	}

	logger.Info(ctx, "Processing push",
		"repository", push.Repository.FullName, "ref", push.Ref, "commits", len(push.Commits))

	result := h.pusher.HandlePush(ctx, push.Commits)
	resp.Result = &result
	if result.Success {
		resp.Message = "Webhook processed successfully"
	} else {
		resp.Message = "Revalidation failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
