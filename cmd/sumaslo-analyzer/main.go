package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/yuhis0727/sumaslo-analyzer/internal/aggregator"
	"github.com/yuhis0727/sumaslo-analyzer/internal/analyzer"
	"github.com/yuhis0727/sumaslo-analyzer/internal/cache"
	"github.com/yuhis0727/sumaslo-analyzer/internal/config"
	"github.com/yuhis0727/sumaslo-analyzer/internal/handlers"
	"github.com/yuhis0727/sumaslo-analyzer/internal/ingest"
	"github.com/yuhis0727/sumaslo-analyzer/internal/middleware"
	"github.com/yuhis0727/sumaslo-analyzer/internal/store"
)

func main() {
	fmt.Println("=== Sumaslo Analyzer ===")

	cfg := config.LoadConfig()

	// Connect to PostgreSQL
	db, err := store.NewPostgres(cfg.Database.DSN)
	if err != nil {
		fmt.Printf("❌ Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Ping(pingCtx); err != nil {
		cancel()
		fmt.Printf("❌ Failed to ping database: %v\n", err)
		os.Exit(1)
	}
	cancel()
	fmt.Println("✓ Connected to PostgreSQL")

	// Connect to Redis for the run lock and recommendation cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
	})
	defer redisClient.Close()

	var runLock *aggregator.RunLock
	var recCache *cache.RecommendationCache

	redisCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(redisCtx).Err(); err != nil {
		fmt.Printf("⚠️  Redis unavailable, running without cache and run lock: %v\n", err)
	} else {
		runLock = aggregator.NewRunLock(redisClient, cfg.Analysis.RunLockTTL)
		recCache = cache.NewRecommendationCache(redisClient, cfg.Analysis.CacheTTL)
		fmt.Println("✓ Connected to Redis")
	}
	cancel()

	// Wire services
	pipeline := aggregator.NewPipeline(db, runLock)
	engine := analyzer.NewEngine(db, nil)
	ingestSvc := ingest.NewService(db, pipeline)

	handler := handlers.NewHandler(db, engine, pipeline, ingestSvc, recCache)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handler.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	serverErrors := make(chan error, 1)
	go func() {
		fmt.Printf("✓ Sumaslo Analyzer listening on :%s\n", cfg.Server.Port)
		fmt.Println("  Endpoints:")
		fmt.Println("    GET  /health")
		fmt.Println("    POST /api/v1/data")
		fmt.Println("    POST /api/v1/stores")
		fmt.Println("    GET  /api/v1/stores")
		fmt.Println("    GET  /api/v1/stores/{storeID}")
		fmt.Println("    POST /api/v1/stores/{storeID}/aggregate")
		fmt.Println("    GET  /api/v1/stores/{storeID}/recommendations")
		fmt.Println("    GET  /api/v1/stores/{storeID}/machines/{machineNumber}")
		fmt.Println("    GET  /api/v1/stores/{storeID}/ingest-logs")
		fmt.Println("    POST /api/v1/stores/{storeID}/analyze")
		fmt.Println("    GET  /api/v1/stores/{storeID}/predictions")

		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		fmt.Printf("❌ Server error: %v\n", err)
		os.Exit(1)

	case sig := <-shutdown:
		fmt.Printf("\n⚠️  Received signal: %v\n", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("⚠️  Graceful shutdown failed: %v\n", err)
			if err := srv.Close(); err != nil {
				fmt.Printf("❌ Could not stop server: %v\n", err)
			}
		}
	}

	fmt.Println("✓ Shutdown complete")
}
