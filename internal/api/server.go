package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iamkuldeepprovana/kmschatbot/internal/chat"
	"github.com/iamkuldeepprovana/kmschatbot/internal/retrieve"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Service     *chat.Service    // Required
	Retriever   *retrieve.Client // Optional: nil disables POST /api/chat
	Pinger      Pinger           // Required: backs the /ready probe
	ClientName  string           // Default client_name forwarded to retrieval
	CORSOrigins []string         // Allowed origins for CORS
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Pinger == nil {
		return nil, errors.New("store pinger is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sh := &sessionHandler{service: cfg.Service, logger: logger}

	mux := http.NewServeMux()

	// Session CRUD
	mux.HandleFunc("GET /api/sessions", sh.listSessions)
	mux.HandleFunc("GET /api/sessions/{sessionId}", sh.getSession)
	mux.HandleFunc("DELETE /api/sessions/{sessionId}", sh.deleteSession)
	mux.HandleFunc("POST /api/sessions/messages", sh.appendMessage)

	// Chat proxy (optional — only registered when a retriever is wired)
	if cfg.Retriever != nil {
		ch := &chatHandler{
			retriever:  cfg.Retriever,
			clientName: cfg.ClientName,
			logger:     logger,
		}
		mux.HandleFunc("POST /api/chat", ch.send)
	}

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → Routes
	// RequestID sits before Logging so request_id is available in log
	// attributes. CORS goes last so preflight OPTIONS still gets its
	// headers after logging.
	handler := chain(mux,
		recoveryMiddleware(logger),
		requestIDMiddleware(),
		loggingMiddleware(logger),
		corsMiddleware(cfg.CORSOrigins),
	)

	// A top-level mux keeps health probes out of the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pinger, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
