package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"vaultclip/internal/apperrors"
	"vaultclip/internal/messaging"
)

const (
	// LongTimeout bounds actions that load pages or move many images.
	LongTimeout     = 2 * time.Minute
	maxRequestBytes = 64 << 20
	shutdownTimeout = 10 * time.Second
)

var longActions = map[string]bool{
	messaging.ActionClip:                      true,
	messaging.ActionDownloadAndSaveImages:     true,
	messaging.ActionConvertImagesInBackground: true,
	messaging.ActionDownloadSingleImage:       true,
	messaging.ActionFetchImageWithCookies:     true,
	messaging.ActionSaveToObsidian:            true,
}

// Requester forwards a message to a context on the bus.
type Requester interface {
	Request(ctx context.Context, contextName string, msg messaging.Message, timeout time.Duration) (any, error)
}

// Server exposes the background context over HTTP so browser extensions and
// scripts can send it messages.
type Server struct {
	srv *http.Server
	bus Requester
	log logrus.FieldLogger
}

func New(addr string, bus Requester, logger logrus.FieldLogger) *Server {
	s := &Server{
		bus: bus,
		log: logger.WithField("component", "http_server"),
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: LongTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router with recovery, request logging, the CORS policy
// and the origin check applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(cors.New(cors.Options{
		AllowOriginFunc: AllowOrigin,
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:  []string{"Accept", "Content-Type"},
		MaxAge:          300,
	}).Handler)
	r.Use(trustedOrigin)

	r.Get("/healthz", s.handleHealth)
	r.With(middleware.AllowContentType("application/json")).Post("/api/messages", s.handleMessage)
	return r
}

// AllowOrigin admits browser extension pages and pages served from the local
// machine.
func AllowOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "chrome-extension", "moz-extension":
		return true
	case "http", "https":
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	return false
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("address", s.srv.Addr).Info("HTTP server starting")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Error("HTTP server forced to shutdown")
		return err
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg messaging.Message
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	log := s.log.WithField("action", msg.Action)
	timeout := messaging.TimeoutFor(msg.Action)
	if longActions[msg.Action] {
		timeout = LongTimeout
	}

	value, err := s.bus.Request(r.Context(), messaging.ContextBackground, msg, timeout)
	if err != nil {
		log.WithError(err).Warn("Message failed")
		writeJSON(w, statusFor(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// statusFor maps a bus failure to an HTTP status.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindMessageTimeout:
		return http.StatusGatewayTimeout
	case apperrors.KindExtractionUnsupported:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) {
		return 499
	}
	return http.StatusInternalServerError
}

func errorBody(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
