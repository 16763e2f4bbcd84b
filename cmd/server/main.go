package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/safesite/ptw-service/internal/client"
	"github.com/safesite/ptw-service/internal/config"
	"github.com/safesite/ptw-service/internal/database"
	"github.com/safesite/ptw-service/internal/handler"
	"github.com/safesite/ptw-service/internal/repository"
	"github.com/safesite/ptw-service/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Logger()

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting PTW service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize NATS (optional; the service runs without the event sink)
	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		natsConn, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			log.Error().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS; events disabled")
		} else {
			defer natsConn.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}

	// Initialize repositories
	permitRepo := repository.NewPermitRepository(db)
	extensionRepo := repository.NewExtensionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Initialize services
	publisher := client.NewNotificationPublisher(natsConn, log)
	notificationSvc := service.NewNotificationService(notificationRepo, publisher, log)
	authSvc := service.NewAuthService(userRepo, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, log)
	permitSvc := service.NewPermitService(permitRepo, extensionRepo, notificationSvc, log)
	lifecycleSvc := service.NewLifecycleService(permitRepo, extensionRepo, notificationSvc, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(authSvc, permitSvc, lifecycleSvc, notificationSvc, log)
	router := handler.SetupRouter(httpHandler, authSvc, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
