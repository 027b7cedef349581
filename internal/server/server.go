// Package server contains HTTP and WebSocket handlers for the chat API.
package server

import (
	"context"
	"fmt"
	"time"

	"commons/internal/cache"
	"commons/internal/config"
	"commons/internal/database"
	"commons/internal/middleware"
	"commons/internal/models"
	"commons/internal/notifications"
	"commons/internal/profiles"
	"commons/internal/repository"
	"commons/internal/service"
	"commons/internal/timeline"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo    repository.UserRepository
	channelRepo repository.ChannelRepository
	messageRepo repository.MessageRepository
	banRepo     repository.BanRepository
	readRepo    repository.ReadStateRepository
	reportRepo  repository.ReportRepository

	resolver  *profiles.Resolver
	notifier  *notifications.Notifier
	chatHub   *notifications.ChatHub
	presence  *notifications.PresenceTracker
	timelines *timeline.Manager

	chatService       *service.ChatService
	moderationService *service.ModerationService
	readService       *service.ReadService
	profileService    *service.ProfileService
}

// NewServer creates a server instance and its dependency graph.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Used by tests and by bootstrap code that establishes DB/Redis itself.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())

	s := &Server{
		config:      cfg,
		db:          db,
		redis:       redisClient,
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
		userRepo:    repository.NewUserRepository(db),
		channelRepo: repository.NewChannelRepository(db),
		messageRepo: repository.NewMessageRepository(db),
		banRepo:     repository.NewBanRepository(db),
		readRepo:    repository.NewReadStateRepository(db),
		reportRepo:  repository.NewReportRepository(db),
	}
	if cfg.Env != "test" {
		// Prometheus collectors register globally; tests build several
		// servers in one process and must not register twice.
		s.promMiddleware = fiberprometheus.New("commons-api")
	}

	s.resolver = profiles.NewResolver(s.userRepo)
	s.moderationService = service.NewModerationService(
		s.banRepo, s.channelRepo, s.userRepo, s.reportRepo, s.messageRepo)
	s.chatService = service.NewChatService(
		s.messageRepo, s.channelRepo, s.moderationService, s.resolver, cfg.PageSize)
	s.readService = service.NewReadService(s.readRepo, s.messageRepo)
	s.profileService = service.NewProfileService(s.userRepo, s.messageRepo, s.resolver)
	s.timelines = timeline.NewManager(func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		page, err := s.chatService.LoadPage(ctx, channelID, cursor)
		if err != nil {
			return nil, false, err
		}
		return page.Messages, page.HasMore, nil
	})

	s.notifier = notifications.NewNotifier(redisClient)
	s.chatHub = notifications.NewChatHub()
	s.presence = notifications.NewPresenceTracker(
		time.Duration(cfg.PresenceTTLSeconds)*time.Second,
		time.Duration(cfg.TypingTTLMillis)*time.Millisecond,
	)
	s.presence.StartPruning(10*time.Second, shutdownCtx.Done())

	if err := s.startSubscriber(); err != nil {
		return nil, err
	}
	return s, nil
}

// startSubscriber wires Redis pub/sub into local dispatch so events published
// by any instance reach this instance's warm timeline views and websocket
// clients.
func (s *Server) startSubscriber() error {
	return s.notifier.StartChatSubscriber(s.shutdownCtx, func(topic, payload string) {
		channelID := notifications.TopicChannelID(topic)
		if channelID == 0 {
			return
		}
		s.dispatchLocal(channelID, []byte(payload))
	})
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limit per IP; preflight requests are never limited.
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Channels
	channels := api.Group("/channels", middleware.AuthRequired)
	channels.Get("/", s.ListChannels)
	channels.Post("/", middleware.RateLimit(s.redis, 10, time.Minute, "channel_create"), s.CreateChannel)
	channels.Get("/:id", s.GetChannel)
	channels.Get("/:id/messages", s.GetMessages)
	channels.Post("/:id/messages", middleware.RateLimit(s.redis, 30, time.Minute, "message_send"), s.SendMessage)
	channels.Get("/:id/pins", s.GetPinnedMessages)
	channels.Get("/:id/presence", s.GetPresence)
	channels.Post("/:id/read", s.MarkChannelRead)
	channels.Get("/:id/unread", s.GetUnreadState)

	// Messages
	messages := api.Group("/messages", middleware.AuthRequired)
	messages.Patch("/:id", s.EditMessage)
	messages.Delete("/:id", s.DeleteMessage)
	messages.Post("/:id/reactions", middleware.RateLimit(s.redis, 60, time.Minute, "reaction"), s.ToggleReaction)
	messages.Put("/:id/pin", s.PinMessage)
	messages.Delete("/:id/pin", s.UnpinMessage)

	// Read state summary
	api.Get("/unread", middleware.AuthRequired, s.GetUnreadSummary)

	// Profiles
	api.Get("/profile", middleware.AuthRequired, s.GetOwnProfile)
	api.Patch("/profile", middleware.AuthRequired, s.UpdateOwnProfile)
	api.Get("/users/:id", middleware.AuthRequired, s.GetUserProfile)

	// Reports
	reports := api.Group("/reports", middleware.AuthRequired)
	reports.Post("/", middleware.RateLimit(s.redis, 10, time.Minute, "report"), s.CreateReport)
	reports.Get("/", middleware.AdminRequired, s.ListReports)
	reports.Post("/:id/resolve", middleware.AdminRequired, s.ResolveReport)
	reports.Post("/:id/dismiss", middleware.AdminRequired, s.DismissReport)

	// Moderation (admin only)
	mod := api.Group("/moderation", middleware.AuthRequired, middleware.AdminRequired)
	mod.Post("/bans", s.BanUser)
	mod.Get("/bans", s.ListOpenBans)
	mod.Delete("/bans/:id", s.UnbanUser)
	mod.Get("/bans/history/:userId", s.GetBanHistory)
	mod.Put("/channels/:id/lock", s.LockChannel)
	mod.Delete("/channels/:id/lock", s.UnlockChannel)
	mod.Post("/channels/:id/authorized/:userId", s.AuthorizeChannelUser)
	mod.Delete("/channels/:id/authorized/:userId", s.RevokeChannelUser)

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", middleware.AuthRequired, s.WebSocketChatHandler())
}

// App builds the configured Fiber application.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "commons",
		DisableStartupMessage: s.config.Env == "production",
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Shutdown stops background workers.
func (s *Server) Shutdown() {
	s.shutdownFn()
}

// LivenessCheck reports that the process is up.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ReadinessCheck verifies database and Redis connectivity.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "database unavailable"})
	}
	if s.redis != nil {
		if err := s.redis.Ping(c.UserContext()).Err(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "redis unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ready"})
}
