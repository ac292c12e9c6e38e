package main

import (
	"context"
	"log"
	"os"
	"time"

	"hoopsight/agent"
	"hoopsight/ai"
	"hoopsight/cache"
	"hoopsight/config"
	"hoopsight/db"
	_ "hoopsight/docs" // Swagger docs
	"hoopsight/handlers"
	"hoopsight/ratelimit"
	"hoopsight/session"
	"hoopsight/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hoopsight",
		Short: "Conversational analytics over a basketball statistics dataset",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Load CSV files from the data directory into the analytical store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync()
		},
	}

	rootCmd.AddCommand(serveCmd, syncCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer() error {
	cfg := config.GetConfig()

	// Initialize database
	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Initialize cache
	appCache := cache.New()

	// Initialize LLM client
	aiService, err := ai.New(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMEndpoint, appCache)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// Initialize analytical store
	analyticalStore, err := store.New(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize analytical store: %v", err)
	}
	defer analyticalStore.Close()

	// Sessions, rate limiter, SQL engine, orchestrator
	sessions := session.NewStore(database)
	limiter := ratelimit.New(cfg.DemoLimit, cfg.DemoWindow, database)
	engine := agent.NewSQLEngine(aiService, analyticalStore, cfg.MaxAttempts)
	orchestrator := agent.NewOrchestrator(aiService, analyticalStore, engine, sessions, cfg.HistoryTurns)

	// Prune stale sessions in the background
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if n := sessions.Prune(cfg.SessionTTL); n > 0 {
				log.Printf("[SESSION] Pruned %d stale sessions", n)
			}
		}
	}()

	// Initialize handlers
	h := handlers.New(orchestrator, limiter, analyticalStore, cfg.AdminAPIKey)

	// Setup Gin router
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Routes
	r.GET("/health", h.HealthHandler)

	api := r.Group("/api")
	api.Use(h.Identify())
	{
		api.POST("/chat", h.ChatHandler)
		api.GET("/usage", h.UsageHandler)
		api.GET("/schema", h.SchemaHandler)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	return nil
}

func runSync() error {
	cfg := config.GetConfig()

	analyticalStore, err := store.New(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize analytical store: %v", err)
	}
	defer analyticalStore.Close()

	n, err := analyticalStore.SyncCSVDir(context.Background(), cfg.DataDir)
	if err != nil {
		log.Fatalf("Sync failed: %v", err)
	}
	log.Printf("Synced %d tables from %s", n, cfg.DataDir)
	return nil
}
