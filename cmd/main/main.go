package main

// @title WhatsApp Session API
// @version 1.0.0
// @description Multi-session WhatsApp gateway with session lifecycle management, message sending, and webhook event delivery

// @host localhost:7001
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token for session operations

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/router"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/whatsapp"

	"github.com/rcfaria/go-whatsapp-session-api/internal"
	"github.com/rcfaria/go-whatsapp-session-api/internal/media"
	"github.com/rcfaria/go-whatsapp-session-api/internal/session"
	ctlSessions "github.com/rcfaria/go-whatsapp-session-api/internal/sessions"
	"github.com/rcfaria/go-whatsapp-session-api/internal/webhook"
	ctlWebhooks "github.com/rcfaria/go-whatsapp-session-api/internal/webhooks"
)

type Server struct {
	Address string
	Port    string
}

func main() {
	var err error

	// Initialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize WhatsApp Datastore + Routing
	connector, err := whatsapp.NewConnector(context.Background())
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	// Initialize Webhook Store + Delivery Engine
	store, err := webhook.NewStore(connector.RoutingDB())
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}
	engine := webhook.NewEngine(store)

	// Initialize Session Manager
	manager := session.NewManager(connector, connector, media.NewFetcher(), engine, session.Config{})

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler:   router.HttpErrorHandler,
		BodyLimit:      router.BodyLimitBytes(),
		ReadBufferSize: 8192, // Increase from default 4096 to handle larger headers (JWT tokens)
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "docs")
		},
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Router Cache
	app.Use(router.HttpCacheInMemory(router.CacheTTLSeconds))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	// Load Internal Routes
	internal.Routes(app, ctlSessions.NewController(manager), ctlWebhooks.NewController(store))

	// Running Startup Tasks
	internal.Startup(connector, manager)

	// Running Routines Tasks
	internal.Routines(c, manager)

	// Get Server Configuration with defaults
	var serverConfig Server

	// SERVER_ADDRESS: default "0.0.0.0" (all interfaces)
	serverConfig.Address = env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")

	// SERVER_PORT: default "7001"
	serverConfig.Port = env.GetEnvStringOrDefault("SERVER_PORT", "7001")

	// Start Server
	go func() {
		if err := app.Listen(serverConfig.Address + ":" + serverConfig.Port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown
	// Wait 5 Seconds Before Graceful Shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Try To Shutdown Server
	err = app.ShutdownWithContext(ctxShutdown)
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	// Try To Shutdown Cron + Webhook Workers
	c.Stop()
	engine.Shutdown()
}
