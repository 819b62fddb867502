package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/mathprepa/internal/engine"
	"github.com/seantiz/mathprepa/internal/identity"
	"github.com/seantiz/mathprepa/internal/render"
	"github.com/seantiz/mathprepa/internal/session"
	"github.com/seantiz/mathprepa/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	sweepInterval     = time.Minute
)

// Options configures the per-session state of the server.
type Options struct {
	SessionLifetime time.Duration
	ViewIdleTimeout time.Duration
	SecureCookies   bool
	// AllowedOrigins lists the cross-origin clients allowed to send the
	// session cookie. Without it other origins get anonymous CORS only.
	AllowedOrigins []string
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router *chi.Mux
	store  store.Store
	auth   *identity.Authenticator
	views  *session.Registry
	logger *slog.Logger
	addr   string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, s store.Store, auth *identity.Authenticator, opts Options, logger *slog.Logger) *Server {
	renderer := render.NewMarkdown()
	mountCatalog := func(ctx context.Context) *engine.CatalogEngine {
		e := engine.NewCatalogEngine(s, renderer, logger)
		e.Load(ctx)
		return e
	}
	mountBoard := func(ctx context.Context) *engine.BoardEngine {
		e := engine.NewBoardEngine(s, identity.ContextProvider{}, logger)
		e.ListPosts(ctx)
		return e
	}

	srv := &Server{
		router: chi.NewRouter(),
		store:  s,
		auth:   auth,
		views: session.NewRegistry(mountCatalog, mountBoard, session.Options{
			Lifetime:    opts.SessionLifetime,
			IdleTimeout: opts.ViewIdleTimeout,
			Secure:      opts.SecureCookies,
			CrossSite:   len(opts.AllowedOrigins) > 0,
		}, logger),
		logger: logger,
		addr:   addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(corsOptions(opts.AllowedOrigins)))

	srv.routes()

	return srv
}

// corsOptions allows credentialed requests from the listed origins. With no
// origins configured any origin may call the API, but browsers will not
// attach the session cookie.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}
	if len(origins) > 0 {
		opts.AllowedOrigins = origins
		opts.AllowCredentials = true
	}
	return opts
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.views.Middleware)
		r.Use(s.auth.Middleware)

		r.Get("/me", s.handleMe)
		r.Post("/auth/signout", s.handleSignOut)
		r.Get("/stats", s.handleGetStats)

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", s.handleGetCatalog)
			r.Post("/reload", s.handleReloadCatalog)
			r.Put("/filter", s.handleSetCatalogFilter)
			r.Post("/exercises/{id}/toggle", s.handleToggleSolution)
		})

		r.Route("/board", func(r chi.Router) {
			r.Get("/", s.handleGetBoard)
			r.Post("/refresh", s.handleRefreshBoard)
			r.Post("/posts/{id}/select", s.handleSelectPost)
			r.Post("/back", s.handleBoardBack)
			r.Put("/forms/post", s.handleSetPostForm)
			r.Put("/forms/reply", s.handleSetReplyDraft)
			r.Post("/posts", s.handleCreatePost)
			r.Post("/replies", s.handleCreateReply)
		})
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.views.Run(sweepCtx, sweepInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
