package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"newsbrief/internal/docstore"
	"newsbrief/internal/ingest"
	"newsbrief/internal/server/api"
)

// Store is what the server needs from a document store: the document
// operations plus a liveness probe for the health endpoint.
type Store interface {
	docstore.Store
	Ping(ctx context.Context) error
}

// adminMiddleware guards the mutating and settings routes with an
// X-API-Key check. With no key configured the admin surface stays
// disabled.
func adminMiddleware(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if apiKey == "" {
			http.Error(w, "Admin API disabled: no API key configured", http.StatusServiceUnavailable)
			return
		}
		got := r.Header.Get("X-API-Key")
		if got == "" {
			http.Error(w, "API key required", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// newMux assembles the route table. Read routes are open; everything
// that changes state or exposes configuration sits behind the API key.
func newMux(store Store, runner *ingest.Runner, apiKey string) *http.ServeMux {
	h := api.NewHandler(store, runner)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/articles", h.GetArticles)
	mux.HandleFunc("DELETE /v1/articles", adminMiddleware(apiKey, h.DeleteArticles))
	mux.HandleFunc("POST /v1/refresh", adminMiddleware(apiKey, h.Refresh))
	mux.HandleFunc("GET /v1/runlog", h.GetRunLog)
	mux.HandleFunc("GET /v1/settings", adminMiddleware(apiKey, h.GetSettings))
	mux.HandleFunc("PUT /v1/settings", adminMiddleware(apiKey, h.PutSettings))
	mux.HandleFunc("GET /v1/stats", h.GetStats)
	mux.HandleFunc("GET /health", healthCheckHandler(store))
	return mux
}

// RunServer starts the HTTP server with graceful shutdown support.
// It sets up routes, middleware, and handles OS signals for clean termination.
func RunServer(store Store, runner *ingest.Runner, listenAddr string, logger zerolog.Logger, apiKey string) error {
	logger = logger.With().Str("service", "newsbrief-api").Logger()

	mux := newMux(store, runner, apiKey)

	// Set up middleware chain for logging and request tracking
	h := hlog.NewHandler(logger)(mux)
	h = hlog.MethodHandler("method")(h)
	h = hlog.URLHandler("url")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		idReq, _ := hlog.IDFromRequest(r)

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("req_id", idReq.String()).
			Msg("HTTP Request")
	})(h)

	if apiKey != "" {
		logger.Info().Msg("Admin API key authentication enabled")
	} else {
		logger.Warn().Msg("No API key configured, admin routes disabled")
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", listenAddr).Msg("API Server starting")
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatal().Err(err).Msg("Server failed to start")

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
			if err := httpServer.Close(); err != nil {
				logger.Error().Err(err).Msg("HTTP server force close error")
			}
		} else {
			logger.Info().Msg("HTTP server shutdown complete.")
		}
		if err := <-serverErr; err != nil {
			logger.Error().Err(err).Msg("ListenAndServe error during shutdown")
		}
	}

	logger.Info().Msg("Server exiting.")
	return nil
}

// healthCheckHandler reports liveness, including whether the document
// store is reachable.
func healthCheckHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)
		log.Debug().Msg("Health check request received")

		if err := store.Ping(r.Context()); err != nil {
			log.Error().Err(err).Msg("Health check store ping failed")
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("Error writing health check response")
		}
	}
}
