package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/messagely/apiserver/config"
	"github.com/messagely/apiserver/internal/credential"
	"github.com/messagely/apiserver/internal/db"
	"github.com/messagely/apiserver/internal/handlers"
	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/mq"
	"github.com/messagely/apiserver/internal/services"
	"github.com/messagely/apiserver/internal/storage"
	"github.com/messagely/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *slog.Logger
}

// New connects the database and optional backends and builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}

	objects, err := storage.Open(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, fmt.Errorf("open object storage: %w", err)
	}

	userRepo := store.NewUserRepository(dbConn)
	messageRepo := store.NewMessageRepository(dbConn)

	userService := services.NewUserService(userRepo, credential.NewBcryptStore(cfg.Auth.BcryptWorkFactor))

	var events services.EventPublisher
	if queue != nil {
		events = queue
	}
	messageService := services.NewMessageService(messageRepo, userService, events)

	var archive *services.ArchiveService
	if objects != nil {
		archive = services.NewArchiveService(messageService, objects)
	}
	inbox := services.NewInbox(userService, messageService, archive)

	logger.Info("backends ready",
		slog.String("mq_backend", cfg.MQ.Backend),
		slog.String("storage_backend", cfg.Storage.Backend),
	)

	authHandler := handlers.NewAuthHandler(userService, jwtSecret, cfg.Auth.TokenTTL)
	authLimiter := handlers.NewIPRateLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.HTTPMiddleware(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, authLimiter.Middleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, inbox, authHandler.RequireAuth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
