// Package api serves the local management REST API: operator auth,
// link status and control, settings, history and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/lora-node/lora-node-agent/internal/auth"
	"github.com/lora-node/lora-node-agent/internal/command"
	"github.com/lora-node/lora-node-agent/internal/config"
	"github.com/lora-node/lora-node-agent/internal/link"
	"github.com/lora-node/lora-node-agent/internal/power"
	"github.com/lora-node/lora-node-agent/internal/storage"
	"github.com/lora-node/lora-node-agent/pkg/crypto"
)

type claimsKey struct{}

// RESTServer represents the REST API server
type RESTServer struct {
	config       *config.Config
	store        storage.Store
	auth         *auth.JWTManager
	mgr          *link.Manager
	proc         *command.Processor
	battery      power.Monitor
	metrics      http.Handler
	passwordHash string
	log          zerolog.Logger
	router       chi.Router
	server       *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, store storage.Store, mgr *link.Manager, proc *command.Processor, battery power.Monitor, metrics http.Handler, log zerolog.Logger) (*RESTServer, error) {
	hash := cfg.Auth.PasswordHash
	if hash == "" {
		var err error
		hash, err = crypto.HashPassword(cfg.Auth.Password)
		if err != nil {
			return nil, err
		}
	}

	s := &RESTServer{
		config:       cfg,
		store:        store,
		auth:         auth.NewJWTManager(&cfg.JWT),
		mgr:          mgr,
		proc:         proc,
		battery:      battery,
		metrics:      metrics,
		passwordHash: hash,
		log:          log,
		router:       chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Router exposes the HTTP handler for tests.
func (s *RESTServer) Router() http.Handler { return s.router }

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	s.log.Info().Str("addr", addr).Msg("starting management API")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware validates the Bearer token on protected routes
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
