package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/caretrail/visit-pipeline/internal/adapters/cache"
	"github.com/caretrail/visit-pipeline/internal/adapters/database"
	"github.com/caretrail/visit-pipeline/internal/adapters/providers/diarization"
	"github.com/caretrail/visit-pipeline/internal/adapters/providers/transcription"
	"github.com/caretrail/visit-pipeline/internal/adapters/queue"
	"github.com/caretrail/visit-pipeline/internal/adapters/search"
	"github.com/caretrail/visit-pipeline/internal/adapters/storage"
	"github.com/caretrail/visit-pipeline/internal/api/handlers"
	"github.com/caretrail/visit-pipeline/internal/api/routes"
	"github.com/caretrail/visit-pipeline/internal/application/services"
	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/postgres"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/redis"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/typesense"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/observability"
	"github.com/caretrail/visit-pipeline/pkg/config"
	"github.com/caretrail/visit-pipeline/pkg/secrets"
)

// newPipelineService wires the stage engines and policy services behind the
// orchestrator.
func newPipelineService(
	cfg *config.Config,
	visitRepo repositories.VisitRepository,
	transcriptRepo repositories.TranscriptRepository,
	billingRepo repositories.BillingRepository,
	noteRepo repositories.NoteRepository,
	contractRepo repositories.ContractRepository,
	taskQueue providers.TaskQueue,
	noteSearch providers.NoteSearchRepository,
	metrics *observability.Metrics,
) *services.PipelineService {
	return services.NewPipelineService(
		visitRepo,
		transcriptRepo,
		billingRepo,
		noteRepo,
		contractRepo,
		taskQueue,
		storage.NewHTTPAudioStore(&cfg.AudioStore),
		transcription.NewTranscriptionProvider(&cfg.Engines),
		diarization.NewDiarizationProvider(&cfg.Engines),
		noteSearch,
		services.NewAlignmentService(cfg.Pipeline.OverlapThreshold, cfg.Pipeline.DefaultSpeaker),
		services.NewBillingService(services.DefaultRuleTable(), cfg.Pipeline.MinBlockMinutes, cfg.Pipeline.MinGapMs),
		services.NewNoteService(),
		services.NewContractService(""),
		cfg.Engines.MinSpeakers,
		cfg.Engines.MaxSpeakers,
		metrics,
	)
}

func main() {
	// Load .env in development; ignored when absent
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pull secrets from Vault into the environment before config is read
	vaultCfg := secrets.LoadVaultConfigFromEnv("")
	if vaultCfg.Enabled {
		if _, err := secrets.ApplyVaultSecrets(ctx, vaultCfg); err != nil {
			log.Printf("Warning: Failed to load Vault secrets: %v", err)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger("visit-pipeline-api", cfg.Environment)

	// Initialize OpenTelemetry if enabled
	var shutdown func(context.Context) error
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err = observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Printf("Warning: Failed to set up OpenTelemetry: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Printf("Error shutting down OpenTelemetry: %v", err)
				}
			}()
			log.Println("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Initialize database client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
	}
	defer pgClient.Close()
	log.Println("PostgreSQL client initialized successfully")

	// Initialize Redis client. The queue needs it; the status cache is optional.
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize Redis client: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis client initialized successfully")

	// Initialize Typesense client for note search
	var noteSearch providers.NoteSearchRepository
	typesenseClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		log.Printf("Warning: Failed to initialize Typesense client: %v", err)
	} else {
		adapter := search.NewTypesenseAdapter(typesenseClient)
		if err := adapter.InitSchema(ctx); err != nil {
			log.Printf("Warning: Failed to init Typesense schema: %v", err)
		}
		noteSearch = adapter
		log.Println("Typesense client initialized successfully")
	}

	// Initialize adapters
	visitAdapter := database.NewVisitAdapter(pgClient)
	transcriptAdapter := database.NewTranscriptAdapter(pgClient)
	billingAdapter := database.NewBillingAdapter(pgClient)
	noteAdapter := database.NewNoteAdapter(pgClient)
	contractAdapter := database.NewContractAdapter(pgClient)
	cacheProvider := cache.NewRedisAdapter(redisClient)
	taskQueue := queue.NewRedisTaskQueue(redisClient)
	defer taskQueue.Close()

	// Initialize services
	visitService := services.NewVisitService(visitAdapter, cacheProvider, metrics)
	pipelineService := newPipelineService(cfg, visitAdapter, transcriptAdapter, billingAdapter,
		noteAdapter, contractAdapter, taskQueue, noteSearch, metrics)
	reviewService := services.NewReviewService(visitAdapter, billingAdapter, noteAdapter, noteSearch)
	exportService := services.NewExportService(visitAdapter, billingAdapter)

	// Initialize handlers
	visitHandler := handlers.NewVisitHandler(visitService, pipelineService)
	reviewHandler := handlers.NewReviewHandler(reviewService, transcriptAdapter, billingAdapter, noteAdapter, contractAdapter)
	exportHandler := handlers.NewExportHandler(exportService)
	noteSearchHandler := handlers.NewNoteSearchHandler(noteSearch)

	// Set up routes
	router := routes.NewRouter(visitHandler, reviewHandler, exportHandler, noteSearchHandler, metrics)
	handler := router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
