// Package server wires the stores, services, handlers and middleware together
// and runs the HTTP server.
//
// Dependency flow, built once in New:
//
//	config → store (sqlite | mongo | firestore) → [rediscache] → SavedRecipeService → SavedRecipeHandler
//	config → TokenService → AuthService → AuthHandler
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/recipe-finder/internal/auth"
	"github.com/sakif/recipe-finder/internal/config"
	"github.com/sakif/recipe-finder/internal/handler"
	"github.com/sakif/recipe-finder/internal/middleware"
	"github.com/sakif/recipe-finder/internal/repository"
	firestoreRepo "github.com/sakif/recipe-finder/internal/repository/firestore"
	mongoRepo "github.com/sakif/recipe-finder/internal/repository/mongo"
	"github.com/sakif/recipe-finder/internal/repository/rediscache"
	sqliteRepo "github.com/sakif/recipe-finder/internal/repository/sqlite"
	"github.com/sakif/recipe-finder/internal/service"
)

// HealthMessage is the body of GET /.
const HealthMessage = "Recipe Finder API is running"

const (
	connectTimeout  = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Server owns the router and every connection opened for it. Connections are
// closed by Close, which Start calls after the listener stops.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	redis  *redis.Client // nil when caching is off
}

// New opens the configured store (and Redis, if REDIS_URL is set) and builds
// the router.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	var repo repository.SavedRecipeRepository = store
	if cfg.RedisURL != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			store.Close()
			return nil, err
		}
		s.redis = client
		repo = rediscache.New(store, client, cfg.CacheTTL, logger)
	}

	if err := s.setupRoutes(repo); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	logger.Info("server configured",
		slog.String("store", cfg.StoreDriver),
		slog.Bool("cache", s.redis != nil),
		slog.Bool("auth", cfg.AuthEnabled()),
		slog.Bool("require_auth", cfg.RequireAuth),
	)
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverMongo:
		store, err := mongoRepo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverFirestore:
		store, err := firestoreRepo.New(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Routes:
//
//	GET    /                                   health text
//	POST   /api/recipes/save                   save a recipe
//	DELETE /api/recipes/unsave/{userId}/{recipeId}
//	GET    /api/recipes/saved/{userId}
//	GET    /api/me                             (GitHub login configured)
//	GET    /auth/github/login, /auth/github/callback, POST /auth/logout
//
// The logger wraps Recoverer so a recovered panic is logged with its 500.
func (s *Server) setupRoutes(repo repository.SavedRecipeRepository) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPut},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(HealthMessage))
	})

	var tokens *auth.TokenService
	if s.config.AuthEnabled() {
		var err error
		tokens, err = auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return err
		}
	} else {
		s.logger.Warn("JWT_SECRET not set, identity checks are disabled")
	}

	recipes := handler.NewSavedRecipeHandler(service.NewSavedRecipeService(repo, s.logger), s.logger)

	var ah *handler.AuthHandler
	if s.config.GitHubEnabled() {
		ah = s.authHandler(tokens)
	} else if tokens != nil {
		s.logger.Warn("GitHub OAuth not configured, login routes are disabled")
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			switch {
			case tokens == nil:
			case s.config.RequireAuth:
				r.Use(auth.RequireAuth(tokens))
			default:
				r.Use(auth.OptionalAuth(tokens))
			}
			r.Mount("/recipes", recipes.Routes())
		})

		if ah != nil {
			r.With(auth.RequireAuth(tokens)).Get("/me", ah.HandleMe)
		}
	})

	if ah != nil {
		s.router.Route("/auth", func(r chi.Router) {
			r.Get("/github/login", ah.HandleGitHubLogin)
			r.Get("/github/callback", ah.HandleGitHubCallback)
			r.Post("/logout", ah.HandleLogout)
		})
	}

	return nil
}

func (s *Server) authHandler(tokens *auth.TokenService) *handler.AuthHandler {
	github := auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	return handler.NewAuthHandler(github, service.NewAuthService(tokens, s.logger), tokens, s.config.ClientURL, s.logger)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests and
// closes the store.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing connections", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
