package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/af-corp/chatfilter/internal/httputil"
)

const maxBodyBytes = 64 << 10

// FilterRequest is the body of POST /v1/moderation/filter.
type FilterRequest struct {
	Text     *string `json:"text"`
	ChatID   string  `json:"chat_id,omitempty"`
	SenderID string  `json:"sender_id,omitempty"`
}

// Handler holds dependencies for the moderation HTTP handlers.
type Handler struct {
	service *Service
	ready   func() bool
	version string
}

func NewHandler(service *Service, ready func() bool, version string) *Handler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{service: service, ready: ready, version: version}
}

// Filter handles POST /v1/moderation/filter
func (h *Handler) Filter(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteRequestTooLargeError(w, reqID, "Request body too large")
			return
		}
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req FilterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Text == nil {
		httputil.WriteBadRequestError(w, reqID, "text is required")
		return
	}

	verdict, err := h.service.Check(r.Context(), Request{
		Text:     *req.Text,
		ChatID:   req.ChatID,
		SenderID: req.SenderID,
	})
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			httputil.WriteServiceUnavailableError(w, reqID, "Moderation settings are unavailable")
			return
		}
		slog.Error("moderation failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Moderation failed")
		return
	}

	if verdict.Blocked || verdict.Flagged {
		slog.Info("message moderated",
			"request_id", reqID,
			"chat_id", req.ChatID,
			"sender_id", req.SenderID,
			"blocked", verdict.Blocked,
			"flagged", verdict.Flagged,
			"disposition", verdict.Disposition,
		)
	}

	httputil.WriteJSON(w, reqID, http.StatusOK, verdict)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, "", http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// Ready handles GET /readyz
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		httputil.WriteServiceUnavailableError(w, RequestIDFromContext(r.Context()), "Configuration store not ready")
		return
	}
	httputil.WriteJSON(w, "", http.StatusOK, map[string]string{"status": "ready"})
}
