// Command main is the entry point for the commons chat server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commons/internal/cache"
	"commons/internal/config"
	"commons/internal/database"
	"commons/internal/middleware"
	"commons/internal/observability"
	"commons/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.InitMiddleware(cfg)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:  "commons-chat",
		Environment:  cfg.Env,
		Enabled:      cfg.Env == "production",
		Exporter:     "otlp",
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		SamplerRatio: 0.1,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	cache.InitRedis(cfg.RedisURL)
	srv, err := server.NewServerWithDeps(cfg, db, cache.GetClient())
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	app := srv.App()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		srv.Shutdown()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
