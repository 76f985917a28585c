// Package main is the entry point for the seqnum API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"seqnum/internal/app"
	"seqnum/internal/domain/auth"
	v1 "seqnum/internal/infrastructure/http/v1"
	"seqnum/internal/infrastructure/storage"
	"seqnum/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	log.Info("starting seqnum server")

	storageCfg := storage.DefaultConfig()
	storageCfg.Driver = getEnv("DB_DRIVER", storage.DriverPostgres)
	storageCfg.DSN = getEnv("DATABASE_URL", "")
	storageCfg.Guard = getEnv("SEQUENCE_GUARD", storage.GuardAuto)
	storageCfg.MaxRetries = getEnvInt("SEQUENCE_MAX_RETRIES", storageCfg.MaxRetries)
	storageCfg.LockTimeout = getEnvDuration("LOCK_TIMEOUT", storageCfg.LockTimeout)
	storageCfg.Audit = getEnvBool("AUDIT_ENABLED", false)
	if storageCfg.Driver != storage.DriverMemory && storageCfg.DSN == "" {
		storageCfg.DSN = mustEnv("DATABASE_URL")
	}

	a, err := app.New(ctx, app.Config{
		SequencesFile: mustEnv("SEQUENCES_CONFIG"),
		Storage:       storageCfg,
		MaxProbes:     getEnvInt("SEQUENCE_MAX_PROBES", 0),
	})
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer a.Close()

	log.Infow("sequences loaded", "tables", len(a.Registry.All()), "driver", a.Backend.Driver)

	routerCfg := v1.RouterConfig{
		Service: a.Service,
		Logger:  log,
		Driver:  a.Backend.Driver,
		Ping:    a.Backend.Ping,
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		routerCfg.JWTValidator = auth.NewJWTService(auth.DefaultJWTConfig(secret))
	} else {
		log.Warn("JWT_SECRET not set, API authentication disabled")
	}
	router := v1.NewRouter(routerCfg)

	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
