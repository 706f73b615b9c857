package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	openailib "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/echoself-ai/echoself/internal/api/handlers"
	"github.com/echoself-ai/echoself/internal/config"
	"github.com/echoself-ai/echoself/internal/database"
	"github.com/echoself-ai/echoself/internal/openai"
	"github.com/echoself-ai/echoself/internal/repository"
	"github.com/echoself-ai/echoself/internal/rerank"
	"github.com/echoself-ai/echoself/internal/server"
	"github.com/echoself-ai/echoself/internal/service"
	"github.com/echoself-ai/echoself/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the retrieval API server",
		Long:  "Start the echoself retrieval API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required: the retrieval pipeline cannot embed queries without it")
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	twinRepo := repository.NewTwinRepository(pool)
	verifiedRepo := repository.NewVerifiedAnswerRepository(pool)
	vectorRepo := repository.NewVectorRecordRepository(pool)
	logRepo := repository.NewRetrievalLogRepository(pool)

	oaClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      openailib.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		GenerationModel:     cfg.GenerationModel,
	})

	var reranker service.Reranker
	if cfg.HasRerank() {
		reranker = rerank.NewClient(rerank.Config{
			Endpoint: cfg.RerankEndpoint,
			APIKey:   cfg.RerankAPIKey,
			Model:    cfg.RerankModel,
			Timeout:  cfg.Retrieval.RerankTimeout,
		})
		log.Printf("rerank enabled via %s", cfg.RerankEndpoint)
	} else {
		log.Println("rerank disabled: RERANK_ENDPOINT not set, serving fused order")
	}

	resolver := service.NewNamespaceResolver(twinRepo, cfg.Retrieval.NamespaceCacheTTL)
	matcher := service.NewVerifiedAnswerMatcher(verifiedRepo, cfg.Retrieval.VerifiedSimilarity, cfg.Retrieval.VerifiedTimeout)
	expander := service.NewQueryExpander(oaClient)

	retrievalSvc := service.NewRetrievalService(
		resolver,
		matcher,
		expander,
		oaClient,
		vectorRepo,
		reranker,
		logRepo,
		service.RetrievalConfig{
			TopK:               cfg.Retrieval.TopK,
			MaxResults:         cfg.Retrieval.MaxResults,
			MaxContextTokens:   cfg.Retrieval.MaxContextTokens,
			ConfidenceFloor:    cfg.Retrieval.ConfidenceFloor,
			VerifiedSimilarity: cfg.Retrieval.VerifiedSimilarity,
			RerankScoreFloor:   cfg.Retrieval.RerankScoreFloor,
			VerifiedTimeout:    cfg.Retrieval.VerifiedTimeout,
			FanoutTimeout:      cfg.Retrieval.FanoutTimeout,
			RerankTimeout:      cfg.Retrieval.RerankTimeout,
		},
	)

	routerCfg := server.RouterConfig{
		ServiceToken: cfg.ServiceToken,
		RetrieveHandler: handlers.NewRetrieveHandler(retrievalSvc, handlers.RetrieveDefaults{
			DualRead:     cfg.Retrieval.DualRead,
			EnableRerank: cfg.Retrieval.EnableRerank,
		}),
		NamespaceHandler: handlers.NewNamespaceHandler(resolver),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
