package gateway

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/parrot/internal/events"
	"github.com/dohr-michael/parrot/internal/gateway/ws"
	"github.com/dohr-michael/parrot/internal/sessions"
	"github.com/dohr-michael/parrot/internal/storage"
)

//go:embed static/index.html
var indexHTML []byte

const defaultMaxUploadBytes = 32 << 20

// Slack is the subset of the Slack API the upload routes need.
type Slack interface {
	PostWebhook(ctx context.Context, text string) error
	UploadFile(ctx context.Context, name string, size int64, r io.Reader) error
}

// UsageReporter reports per-provider model usage.
type UsageReporter interface {
	Totals() []storage.ProviderUsage
}

// Config holds dependencies and settings for the gateway.
type Config struct {
	Bus            *events.Bus
	Store          sessions.Store
	Slack          Slack
	Usage          UsageReporter
	Host           string
	Port           int
	MaxUploadBytes int64
	AllowedFiles   []string // doublestar patterns; empty allows every name
}

// Server is the parrot gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	store      sessions.Store
	usage      UsageReporter
	uploads    *uploader
}

// NewServer creates a new gateway server.
func NewServer(cfg Config) *Server {
	hub := ws.NewHub(cfg.Bus)

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		hub:   hub,
		bus:   cfg.Bus,
		store: cfg.Store,
		usage: cfg.Usage,
		uploads: &uploader{
			slack:    cfg.Slack,
			bus:      cfg.Bus,
			maxBytes: maxUpload,
			allowed:  cfg.AllowedFiles,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// Upload page
	r.Get("/", s.handleIndex)
	r.Post("/send-url", s.uploads.handleSendURL)
	r.Post("/send-files", s.uploads.handleSendFiles)

	// API
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/sessions", s.handleSessions)
	r.Get("/api/usage", s.handleUsage)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("parrot gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history := s.bus.History(limit)

	type eventJSON struct {
		ID        string             `json:"id"`
		SessionID string             `json:"session_id,omitempty"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []*sessions.Session{})
		return
	}
	list, err := s.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*sessions.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	totals := []storage.ProviderUsage{}
	if s.usage != nil {
		totals = s.usage.Totals()
	}
	writeJSON(w, http.StatusOK, totals)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json response", "error", err)
	}
}
