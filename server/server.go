// Package server exposes the read-only offer viewer and operational endpoints.
package server

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"marketwatch/pkg/offer"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "tmpl/*.tmpl"))

// recentLimit caps how many offers the panel and the JSON API return.
const recentLimit = 200

// Store is the read side of the offer store.
type Store interface {
	Recent(ctx context.Context, limit int) ([]offer.Record, error)
}

// Poller triggers a scan cycle on demand.
type Poller interface {
	RunCycle(ctx context.Context)
}

// Server handles HTTP requests.
type Server struct {
	store         Store
	poller        Poller
	logger        *slog.Logger
	adminPassword string
	sessionSecret []byte
}

// Config holds server configuration.
type Config struct {
	Store         Store
	Poller        Poller
	Logger        *slog.Logger
	AdminPassword string
}

// New creates a new HTTP server handler. An empty AdminPassword leaves the
// viewer open to anyone who can reach the port.
func New(cfg *Config) *Server {
	s := &Server{
		store:         cfg.Store,
		poller:        cfg.Poller,
		logger:        cfg.Logger,
		adminPassword: cfg.AdminPassword,
	}
	if s.adminPassword == "" {
		s.logger.Warn("ADMIN_PASSWORD is not set, viewer runs without authentication")
	} else {
		s.sessionSecret = deriveSessionSecret(s.adminPassword)
	}
	return s
}

// Router builds the request router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/pollz", s.handlePoll).Methods(http.MethodPost)
	r.HandleFunc("/offers", s.handleOffers).Methods(http.MethodGet)
	return r
}

// Serve starts the HTTP server on the given port and shuts it down when the
// context is canceled.
func (s *Server) Serve(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")

	if !s.authenticated(r) {
		s.renderLogin(w, "")
		return
	}

	records, err := s.store.Recent(r.Context(), recentLimit)
	if err != nil {
		s.logger.Error("Failed to load offers for panel", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	records = applyViewFilters(records, r)

	data := map[string]any{
		"Offers": records,
		"Count":  len(records),
		"Gated":  s.adminPassword != "",
		"Query":  r.URL.Query().Get("q"),
		"Min":    r.URL.Query().Get("min"),
		"Max":    r.URL.Query().Get("max"),
	}
	if err := templates.ExecuteTemplate(w, "panel.tmpl", data); err != nil {
		s.logger.Error("Failed to render template", "template", "panel.tmpl", "error", err)
	}
}

func (s *Server) renderLogin(w http.ResponseWriter, errMsg string) {
	if err := templates.ExecuteTemplate(w, "login.tmpl", map[string]string{"Error": errMsg}); err != nil {
		s.logger.Error("Failed to render template", "template", "login.tmpl", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	s.logger.Info("Manual scan triggered via HTTP")
	s.poller.RunCycle(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"completed"}`)); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
