// Package server contains HTTP and WebSocket handlers for the chat API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"jurutani/internal/chat"
	"jurutani/internal/config"
	"jurutani/internal/database"
	"jurutani/internal/identity"
	"jurutani/internal/media"
	"jurutani/internal/models"
	"jurutani/internal/realtime"
	"jurutani/internal/repository"
	"jurutani/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config    *config.Config
	db        *gorm.DB
	redis     *redis.Client
	app       *fiber.App
	prom      *fiberprometheus.FiberPrometheus
	repo      repository.ChatRepository
	objects   *storage.DiskStore
	pipeline  *media.Pipeline
	store     *chat.Store
	directory *chat.Directory
	verifier  *identity.TokenVerifier
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		slog.Warn("Redis unavailable, realtime fan-out disabled",
			slog.String("addr", cfg.RedisURL),
			slog.String("error", err.Error()),
		)
		redisClient = nil
	}

	server, err := NewServerWithDeps(cfg, db, redisClient)
	if err != nil {
		return nil, err
	}
	server.prom = fiberprometheus.New("jurutani-chat")
	return server, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	repo := repository.NewChatRepository(db)
	objects := storage.NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL)
	pipeline := media.NewPipeline(objects,
		cfg.ImageMaxUploadSizeMB, cfg.ImageMaxWidth, cfg.ImageMaxHeight, cfg.ImageJPEGQuality)
	ident := identity.ContextProvider{}

	server := &Server{
		config:    cfg,
		db:        db,
		redis:     redisClient,
		repo:      repo,
		objects:   objects,
		pipeline:  pipeline,
		store:     chat.NewStore(repo, pipeline, realtime.NewNotifier(redisClient), ident, cfg.HistoryPageSize),
		directory: chat.NewDirectory(repo, ident),
		verifier:  identity.NewTokenVerifier(cfg.JWTSecret),
	}
	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Prometheus metrics
	if s.prom != nil {
		app.Use(s.prom.Middleware)
	}

	// CORS middleware with WebSocket support
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.HealthCheck)
	if s.prom != nil {
		s.prom.RegisterAt(app, "/metrics")
	}

	// Stored attachments are served straight off the object store.
	app.Static("/media", s.objects.Root())

	api := app.Group("/api", s.AuthRequired())
	api.Get("/health", s.HealthCheck)

	conversations := api.Group("/conversations")
	conversations.Post("/", s.GetOrCreateConversation)
	conversations.Get("/", s.ListConversations)
	conversations.Delete("/:id", s.DeleteConversation)
	conversations.Post("/:id/read", s.MarkConversationRead)
	conversations.Get("/:id/messages", s.GetMessages)
	conversations.Post("/:id/messages", s.SendMessage)
	conversations.Delete("/:id/messages", s.ClearMessages)

	api.Delete("/messages/:id", s.DeleteMessage)

	s.setupWebSocketRoutes(app)
}

// HealthCheck reports process liveness plus backend reachability.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	status := fiber.Map{"status": "ok"}

	if sqlDB, err := s.db.DB(); err != nil || sqlDB.Ping() != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
	}
	if s.redis != nil {
		if err := s.redis.Ping(c.UserContext()).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = "unreachable"
		}
	} else {
		status["redis"] = "disabled"
	}

	code := fiber.StatusOK
	if status["status"] != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}

// AuthRequired returns the authentication middleware. WebSocket upgrades
// cannot carry headers from browsers, so the token query parameter is
// accepted as a fallback.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := ""
		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewNotAuthenticatedError())
		}

		user, err := s.verifier.Verify(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		c.Locals("user", user)
		ctx := identity.WithUser(c.UserContext(), user)
		c.SetUserContext(ctx)

		// Refresh the profile snapshot so partners see current display
		// fields. Best effort.
		if err := s.repo.UpsertProfile(ctx, user.Profile()); err != nil {
			slog.WarnContext(ctx, "failed to refresh profile snapshot",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}

		return c.Next()
	}
}

// currentUser returns the principal placed by AuthRequired.
func (s *Server) currentUser(c *fiber.Ctx) (*identity.User, bool) {
	u, ok := c.Locals("user").(*identity.User)
	return u, ok && u != nil
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "JuruTani Chat API",
		BodyLimit: (s.config.ImageMaxUploadSizeMB + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("unhandled request error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewBackendError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Shutdown gracefully releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			slog.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			slog.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	slog.Info("Server shutdown complete")
	return nil
}
