package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iamkuldeepprovana/kmschatbot/internal/chat"
)

// maxBodyBytes caps request bodies on the append endpoint.
const maxBodyBytes = 1 << 20

// sessionHandler serves the session CRUD endpoints.
type sessionHandler struct {
	service *chat.Service
	logger  *slog.Logger
}

// appendRequest is the message append payload. The query/response pair
// form is the legacy client shape: both messages of one exchange in a
// single request.
type appendRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	Owner     string `json:"owner"`
	Username  string `json:"username"`

	// Legacy pair form.
	Query    string `json:"query"`
	Response string `json:"response"`
}

// appendResponse reports what the append did.
type appendResponse struct {
	Success      bool   `json:"success"`
	SessionID    string `json:"sessionId"`
	IsNewSession bool   `json:"isNewSession"`
	Skipped      bool   `json:"skipped,omitempty"`
}

// listResponse wraps the owner listing.
type listResponse struct {
	Sessions []chat.Summary `json:"sessions"`
}

// listSessions handles GET /api/sessions?owner=<name>.
// Listing is fail-soft: storage trouble still yields 200 with an
// empty list.
func (h *sessionHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		// Older clients send username instead.
		owner = r.URL.Query().Get("username")
	}
	if owner == "" {
		WriteError(w, http.StatusBadRequest, "missing_owner", "query parameter 'owner' is required", h.logger)
		return
	}

	summaries := h.service.Summaries(r.Context(), owner)
	WriteJSON(w, http.StatusOK, listResponse{Sessions: summaries}, h.logger)
}

// getSession handles GET /api/sessions/{sessionId}.
func (h *sessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	sess, err := h.service.Session(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sess, h.logger)
}

// deleteSession handles DELETE /api/sessions/{sessionId}.
func (h *sessionHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	deleted, err := h.service.Delete(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !deleted {
		WriteError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true}, h.logger)
}

// appendMessage handles POST /api/sessions/messages. A single request
// persists either one message or, in the legacy pair form, the user
// query and assistant response of one exchange in order.
func (h *sessionHandler) appendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	owner := req.Owner
	if owner == "" {
		owner = req.Username
	}

	if req.Content == "" && req.Role == "" && (req.Query != "" || req.Response != "") {
		h.appendPair(w, r, req, owner)
		return
	}

	res, err := h.service.AppendMessage(r.Context(), req.SessionID, owner, req.Content, req.Role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, appendResponse{
		Success:      true,
		SessionID:    req.SessionID,
		IsNewSession: res.Created,
		Skipped:      res.Skipped,
	}, h.logger)
}

// appendPair persists a legacy query/response exchange. The user
// message goes first so readers of the session always see the question
// before its answer.
func (h *sessionHandler) appendPair(w http.ResponseWriter, r *http.Request, req appendRequest, owner string) {
	var created bool

	if req.Query != "" {
		res, err := h.service.AppendMessage(r.Context(), req.SessionID, owner, req.Query, chat.RoleUser)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		created = res.Created
	}

	if req.Response != "" {
		res, err := h.service.AppendMessage(r.Context(), req.SessionID, owner, req.Response, chat.RoleAssistant)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		created = created || res.Created
	}

	WriteJSON(w, http.StatusOK, appendResponse{
		Success:      true,
		SessionID:    req.SessionID,
		IsNewSession: created,
	}, h.logger)
}

// writeServiceError maps chat service sentinels to HTTP statuses.
func (h *sessionHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidArgument):
		WriteError(w, http.StatusBadRequest, "invalid_request", "sessionId, owner and content are required", h.logger)
	case errors.Is(err, chat.ErrInvalidRole):
		WriteError(w, http.StatusBadRequest, "invalid_role", "role must be 'user' or 'assistant'", h.logger)
	case errors.Is(err, chat.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
	case errors.Is(err, chat.ErrTimeout):
		WriteError(w, http.StatusServiceUnavailable, "storage_timeout", "storage operation timed out", h.logger)
	default:
		h.logger.Error("session operation failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "storage_error", "storage operation failed", h.logger)
	}
}
