// Package server assembles the lfsauth HTTP router.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends/localfs"
	"github.com/ebogdum/lfsauth/config"
	"github.com/ebogdum/lfsauth/core"
	"github.com/ebogdum/lfsauth/metrics"
	"github.com/ebogdum/lfsauth/server/handlers"
	authMiddleware "github.com/ebogdum/lfsauth/server/middleware"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	resolver *core.Resolver,
	contentAuth *auth.ContentAuthorizer,
	transferAuth *auth.TransferAuthorizer,
	users *auth.UserProvider,
	authenticator auth.Authenticator,
	cfg *config.AppConfig,
	logger *zap.Logger,
) chi.Router {
	metrics.RegisterMetrics()

	r := chi.NewRouter()

	r.Use(authMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(authMiddleware.V1SecurityHeaders())
	r.Use(requestMetrics(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendJSONResponse(w, map[string]string{"status": "ok"})
	})

	if cfg.Metrics.ListenAddr == "" {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Content authorization for filesystem backends. The content token is the credential.
	r.Get(localfs.ContentPathPrefix+"/{backend}/{oid}/authorize",
		handlers.V1AuthorizeContent(resolver, contentAuth, logger))

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.V1AuthMiddleware(authenticator, logger))

		sshLimiter := rate.NewLimiter(rate.Limit(cfg.Server.SSHAuthRateLimit), cfg.Server.SSHAuthBurst)
		r.With(authMiddleware.V1RateLimitMiddleware(sshLimiter, logger)).
			Post("/ssh/authenticate", handlers.V1SSHAuthenticate(transferAuth, cfg.Server.ExternalURL, logger))

		r.Get("/identity", handlers.V1Identity(users, logger))
		r.Get("/actions", handlers.V1Actions(resolver, logger))
	})

	logger.Info("HTTP router configured successfully")

	return r
}

func requestMetrics(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			// Route patterns keep object IDs out of label values
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, http.StatusText(ww.Status())).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", duration),
				zap.String("request_id", authMiddleware.GetRequestID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
