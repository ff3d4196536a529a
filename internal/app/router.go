package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"parcelcli/internal/errors"
	"parcelcli/internal/infrastructure"
	customMiddleware "parcelcli/internal/middleware"
	handlers "parcelcli/internal/transport/http"
	ws "parcelcli/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
)

// setupRouter builds the route tree in three layers:
//
//	/ws              request ID and real IP only, then the upgrade
//	/assets, icons   static files, no session or CORS stack
//	everything else  the full middleware group
//
// The websocket upgrade fails if any middleware wraps the
// ResponseWriter first, which is what forces the split.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", a.handleWebSocket)

	if a.FrontendFS != nil {
		a.mountStaticAssets(r)
	}

	r.Group(func(r chi.Router) {
		// Ordering: RequestID -> RealIP -> OTel -> Logger -> Recoverer
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.getCORSConfig()))

		if a.Config.Security.RateLimit.Enabled {
			limiter := customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			)
			r.Use(limiter.Handler)
		}

		// Browser session cookie. Every uploaded report belongs to the
		// session that uploaded it.
		sessionManager := customMiddleware.NewSessionManager(a.SessionStore, a.Logger, a.Config.Session.CookieName)
		r.Use(sessionManager.Handler)

		a.setupAPIRoutes(r)
		a.mountSPA(r)
	})

	// Prometheus scrape endpoint, outside the group so scrapes skip
	// sessions and logging
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes registers the JSON API under /api
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		errorHandler := errors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

		// Error responses get a warn log with the redacted request body
		r.Use(errorHandler.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))
			r.Use(customMiddleware.NewValidationMiddleware(a.Logger, errorHandler).ValidateRequest)

			// Health probes plus the version endpoint release tooling reads
			healthHandler := handlers.NewHealthHandler(a.HealthService)
			r.Mount("/health", healthHandler.Routes())
			r.Get("/version", healthHandler.Version)

			statsHandler := handlers.NewStatsHandler(a.HealthService, a.WebSocketHub)
			r.Mount("/stats", statsHandler.Routes())

			// Report handler with audit logging on all mutations
			reportHandler := handlers.NewReportHandler(a.ReportService, a.Config, a.Logger, errorHandler)
			reportHandler.SetMetrics(a.metrics)
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.AuditLog(a.Logger))
				r.Mount("/reports", reportHandler.Routes())
			})
		})

		// Sink for log lines the browser ships back
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))
			r.Post("/client-logs", handlers.NewClientLogHandler(a.Logger).Handle)
		})
	})
}

// getCORSConfig builds the CORS policy. Same-origin is always allowed;
// development mode adds the frontend dev server, production adds
// whatever origins the operator configured.
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	cfg := customMiddleware.CORSConfig{
		AllowedOrigins: []string{
			fmt.Sprintf("http://localhost:%d", a.Config.Server.Port),
			fmt.Sprintf("http://127.0.0.1:%d", a.Config.Server.Port),
		},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", "X-Requested-With"},
		// Content-Disposition carries the export filename
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}

	dev := a.isDevelopmentMode()
	if dev {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins,
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		)
	} else if a.Config.Security.EnableCORS {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, a.Config.Security.AllowedOrigins...)
	}

	a.Logger.Info("CORS configured",
		slog.Bool("development", dev),
		slog.Any("allowed_origins", cfg.AllowedOrigins))

	return cfg
}

// isDevelopmentMode reports whether a frontend dev server should be
// trusted. Either environment variable wins over the config flag.
func (a *Application) isDevelopmentMode() bool {
	if os.Getenv("GO_ENV") == "development" || os.Getenv("PARCEL_ENV") == "development" {
		return true
	}
	return a.Config.Logging.Development
}

// handleWebSocket upgrades /ws connections and hands them to the hub.
// The route sits outside the session middleware group, so the browser
// identity comes straight from the cookie.
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = fmt.Sprintf("ws-%d", time.Now().UnixNano())
	}
	ctx := infrastructure.WithTraceID(r.Context(), reqID)

	cookieName := a.Config.Session.CookieName
	if cookieName == "" {
		cookieName = customMiddleware.SessionCookieName
	}
	var sessionID string
	if cookie, err := r.Cookie(cookieName); err == nil {
		sessionID = cookie.Value
	}

	a.Logger.InfoContext(ctx, "WebSocket upgrade request",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("origin", r.Header.Get("Origin")),
		slog.String("session_id", sessionID))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return a.allowWebSocketOrigin(ctx, r.Header.Get("Origin"))
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			a.Logger.ErrorContext(ctx, "WebSocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.ErrorContext(ctx, "WebSocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("origin", r.Header.Get("Origin")))
		return
	}

	// Register the client under its session identity and start the pumps
	ws.ServeWSWithIdentity(a.WebSocketHub, conn, sessionID, reqID, a.Logger)

	a.Logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("session_id", sessionID))
}

// allowWebSocketOrigin applies the CORS origin list to websocket
// upgrades. Empty origins pass, they come from same-origin requests
// and non-browser clients.
func (a *Application) allowWebSocketOrigin(ctx context.Context, origin string) bool {
	if origin == "" || a.isDevelopmentMode() {
		return true
	}

	for _, allowed := range a.getCORSConfig().AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	a.Logger.WarnContext(ctx, "WebSocket origin rejected", slog.String("origin", origin))
	return false
}
