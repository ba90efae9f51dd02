package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"crm-backend/config"
	"crm-backend/handlers"
	"crm-backend/middleware"
	"crm-backend/models"
	"crm-backend/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	// Initialize structured logger
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))

	// Load configuration
	cfg := config.LoadConfig()
	handlers.Configure(cfg)

	// Initialize MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := services.InitMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer db.Disconnect(ctx)

	// Initialize services and indexes
	services.InitServices(db, cfg.DatabaseName)

	// Wire the session guard against the Mongo-backed stores
	services.InitSessionGuard(cfg.SessionStaleAfter)

	// Start the background session janitor
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	services.StartSessionCleanup(cleanupCtx, cfg.SessionTTL)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error("Request error", "error", err, "status", code)
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		ExposeHeaders:    "Content-Length, Content-Type",
		MaxAge:           86400,
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path}\n",
	}))

	// Auth routes
	auth := app.Group("/auth")
	auth.Post("/login", handlers.Login)
	auth.Post("/logout", handlers.Logout)
	auth.Get("/me", handlers.GetCurrentUser)
	auth.Get("/check", handlers.CheckSession)

	// Heartbeat endpoint used by the client session monitor. Authenticates
	// by cookie itself so a deactivated account still gets a clean
	// "inactive" answer instead of a 401.
	app.Post("/users/heartbeat", handlers.Heartbeat)

	// Admin routes (user administration)
	admin := app.Group("/admin", middleware.RequireAuth)
	admin.Post("/users", middleware.RequireAdmin, handlers.CreateUser)
	admin.Get("/users", handlers.GetCompanyUsers)
	admin.Get("/users/:userID", handlers.GetUser)
	admin.Put("/users/:userID/role", middleware.RequireAdmin, handlers.UpdateUserRole)
	admin.Delete("/users/:userID", middleware.RequireAdmin, handlers.DeactivateUser)
	admin.Post("/users/:userID/logout", middleware.RequireAdmin, handlers.ForceLogoutUser)
	admin.Get("/audit", middleware.RequireRead(models.ModuleAudit), handlers.GetAuditLog)

	// CRM API (protected)
	api := app.Group("/api", middleware.RequireAuth)

	api.Get("/clients", middleware.RequireRead(models.ModuleClients), handlers.GetClients)
	api.Get("/clients/:clientID", middleware.RequireRead(models.ModuleClients), handlers.GetClient)
	api.Post("/clients", middleware.RequireWrite(models.ModuleClients), handlers.CreateClient)
	api.Put("/clients/:clientID", middleware.RequireWrite(models.ModuleClients), handlers.UpdateClient)
	api.Delete("/clients/:clientID", middleware.RequireDelete(models.ModuleClients), handlers.DeleteClient)

	api.Get("/projects", middleware.RequireRead(models.ModuleProjects), handlers.GetProjects)
	api.Get("/projects/:projectID", middleware.RequireRead(models.ModuleProjects), handlers.GetProject)
	api.Post("/projects", middleware.RequireWrite(models.ModuleProjects), handlers.CreateProject)
	api.Put("/projects/:projectID", middleware.RequireWrite(models.ModuleProjects), handlers.UpdateProject)
	api.Delete("/projects/:projectID", middleware.RequireDelete(models.ModuleProjects), handlers.DeleteProject)

	api.Get("/quotes", middleware.RequireRead(models.ModuleQuotes), handlers.GetQuotes)
	api.Get("/quotes/:quoteID", middleware.RequireRead(models.ModuleQuotes), handlers.GetQuote)
	api.Post("/quotes", middleware.RequireWrite(models.ModuleQuotes), handlers.CreateQuote)
	api.Put("/quotes/:quoteID", middleware.RequireWrite(models.ModuleQuotes), handlers.UpdateQuote)
	api.Delete("/quotes/:quoteID", middleware.RequireDelete(models.ModuleQuotes), handlers.DeleteQuote)
	api.Post("/quotes/:quoteID/embed-token", middleware.RequireRead(models.ModuleQuotes), handlers.CreateEmbedToken)

	// Per-identity push channel (requires authentication)
	api.Get("/dashboard/ws", handlers.WebSocketUpgrade, websocket.New(handlers.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "crm-backend",
		})
	})

	// Start server
	slog.Info("Server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
