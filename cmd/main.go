package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	h "github.com/fjod/go_cart/cart-aggregation-service/internal/http"
	"github.com/fjod/go_cart/cart-aggregation-service/internal/repository"
	s "github.com/fjod/go_cart/cart-aggregation-service/internal/service"
)

type Config struct {
	HTTPPort        string
	Store           string // "postgres" or "memory"
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Postgres        repository.Credentials
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		Store:           getEnv("STORE", "postgres"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Postgres: repository.Credentials{
			Host:              getEnv("POSTGRES_HOST", "localhost"),
			Port:              getEnvInt("POSTGRES_PORT", 5432),
			User:              getEnv("POSTGRES_USER", "postgres"),
			Password:          getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:            getEnv("POSTGRES_DB", "cartdb"),
			MigrationsDirPath: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func main() {
	cfg := loadConfig()

	var store repository.CartStore
	switch cfg.Store {
	case "memory":
		store = repository.NewMemoryStore()
		log.Println("Using in-memory store")
	default:
		pg, err := repository.NewPostgresStore(&cfg.Postgres)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		if err := pg.RunMigrations(&cfg.Postgres); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		store = pg
	}
	defer store.Close()

	cartService := s.NewCartService(store)
	cartHandler := h.NewCartHandler(cartService, cfg.RequestTimeout)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(h.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			log.Printf("failed to write health response: %v", err)
		}
	})

	// API routes
	r.Route("/cart", func(r chi.Router) {
		r.Get("/{userID}", cartHandler.GetCart)
		r.Post("/", cartHandler.AddItem)
		r.Put("/", cartHandler.UpdateQuantity)
		r.Post("/remove", cartHandler.RemoveItem)
		r.Post("/clear", cartHandler.ClearCart)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "cart-aggregation-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Cart aggregation service starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
