package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iamkuldeepprovana/kmschatbot/internal/retrieve"
)

// chatHandler proxies chat queries to the retrieval service.
type chatHandler struct {
	retriever  *retrieve.Client
	clientName string
	logger     *slog.Logger
}

// chatRequest is the inbound chat payload.
type chatRequest struct {
	Query      string `json:"query"`
	ClientName string `json:"client_name"`
}

// send handles POST /api/chat. The upstream answer is passed through
// as-is; an upstream failure mirrors the upstream status so clients
// can distinguish retrieval trouble from backend trouble.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.Query == "" {
		WriteError(w, http.StatusBadRequest, "missing_query", "query is required", h.logger)
		return
	}

	clientName := req.ClientName
	if clientName == "" {
		clientName = h.clientName
	}

	resp, err := h.retriever.Retrieve(r.Context(), retrieve.Request{
		Query:      req.Query,
		ClientName: clientName,
	})
	if err != nil {
		h.writeRetrieveError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp, h.logger)
}

func (h *chatHandler) writeRetrieveError(w http.ResponseWriter, err error) {
	var upstream *retrieve.UpstreamError
	switch {
	case errors.As(err, &upstream):
		h.logger.Warn("retrieval upstream failure",
			"status", upstream.StatusCode, "message", upstream.Message)
		WriteError(w, upstream.StatusCode, "upstream_error", upstream.Message, h.logger)
	case retrieve.IsTimeout(err):
		h.logger.Warn("retrieval timed out", "error", err)
		WriteError(w, http.StatusGatewayTimeout, "upstream_timeout", "retrieval service did not respond in time", h.logger)
	default:
		h.logger.Error("retrieval failed", "error", err)
		WriteError(w, http.StatusBadGateway, "upstream_unreachable", "failed to reach retrieval service", h.logger)
	}
}
