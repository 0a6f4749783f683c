package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/neway-security/clocking-monitor/internal/http/handlers"
)

// NewRouter builds full HTTP routing tree for the monitor API, the viewer
// socket and static frontend. metrics may be nil.
func NewRouter(api *handlers.API, hub *handlers.Hub, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(StripIngressPrefix)
	r.Use(RequestLogger(api))

	// Long-lived viewer sessions stay outside the request timeout.
	r.Get("/ws", hub.ServeWS)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(20 * time.Second))
		r.Get("/healthz", api.Health)
		r.Route("/api", func(apiRouter chi.Router) {
			apiRouter.Get("/state", api.State)
			apiRouter.Get("/feed", api.Feed)
			apiRouter.Get("/signals", api.Signals)
			apiRouter.Get("/diagnostics", api.Diagnostics)
			apiRouter.Get("/summary", api.Summary)

			apiRouter.With(ActionRateLimit()).Post("/refresh", api.Refresh)
			apiRouter.With(ActionRateLimit()).Post("/reset", api.Reset)
		})

		r.Get("/*", api.Static)
		r.Get("/", api.Static)
	})
	return r
}

// RunServer starts and gracefully stops HTTP server with context cancellation.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
