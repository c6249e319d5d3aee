// Package server provides the HTTP control API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/podgrab/internal/opml"
	"github.com/bryan-buckman/podgrab/internal/podcasts"
	"github.com/bryan-buckman/podgrab/internal/rss"
)

// maxOPMLSize bounds uploaded OPML documents.
const maxOPMLSize = 10 << 20

// Server is the HTTP server.
type Server struct {
	svc       *podcasts.Service
	refresher *podcasts.Refresher
	router    chi.Router

	// RefreshTimeout bounds a refresh started from the API.
	RefreshTimeout time.Duration
}

// New creates a new server. refresher must be the one shared with the
// poller so that update runs never overlap.
func New(svc *podcasts.Service, refresher *podcasts.Refresher) *Server {
	s := &Server{
		svc:            svc,
		refresher:      refresher,
		RefreshTimeout: 2 * time.Hour,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Post("/subscriptions", s.handleSubscribe)
		r.Delete("/subscriptions", s.handleUnsubscribe)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/export-opml", s.handleExportOPML)
		r.Post("/import-opml", s.handleImportOPML)
	})

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return ctx.Err()
}

// --- API Handlers ---

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Run(r.Context(), podcasts.List{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": res.Subscriptions,
	})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL        string `json:"url"`
		NoDownload bool   `json:"no_download"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !rss.IsRemote(req.URL) {
		http.Error(w, "url must be an http or https feed URL", http.StatusBadRequest)
		return
	}

	res, err := s.svc.Run(r.Context(), podcasts.Subscribe{URL: req.URL, NoDownload: req.NoDownload})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if res.Notice != "" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "unchanged", "notice": res.Notice})
		return
	}
	items := 0
	if res.Report != nil {
		items = res.Report.Items()
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "items": items})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	feedURL := r.URL.Query().Get("url")
	if feedURL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	res, err := s.svc.Run(r.Context(), podcasts.Unsubscribe{URL: feedURL})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "notice": res.Notice})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// A run may be shared with other callers, so it must outlive this
	// request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.RefreshTimeout)
	defer cancel()

	report, shared, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"run":    report.RunID,
		"feeds":  len(report.Feeds),
		"items":  report.Items(),
		"bytes":  report.Bytes(),
		"shared": shared,
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.ExportOPML(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename="+opml.ExportFileName(s.svc.Now()))
	if _, err := w.Write(data); err != nil {
		slog.WarnContext(r.Context(), "export not delivered", "error", err)
	}
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOPMLSize)
	file, _, err := r.FormFile("opml")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	res, err := s.svc.Run(r.Context(), podcasts.Import{Body: file})
	if err != nil {
		if errors.Is(err, opml.ErrMalformed) {
			http.Error(w, fmt.Sprintf("Failed to parse OPML: %v", err), http.StatusBadRequest)
			return
		}
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"imported": res.Added,
	})
}

// fail maps err to a status code and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rss.ErrUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, rss.ErrMalformedFeed):
		status = http.StatusUnprocessableEntity
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
