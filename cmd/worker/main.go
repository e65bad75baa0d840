package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/caretrail/visit-pipeline/internal/adapters/database"
	"github.com/caretrail/visit-pipeline/internal/adapters/providers/diarization"
	"github.com/caretrail/visit-pipeline/internal/adapters/providers/transcription"
	"github.com/caretrail/visit-pipeline/internal/adapters/queue"
	"github.com/caretrail/visit-pipeline/internal/adapters/search"
	"github.com/caretrail/visit-pipeline/internal/adapters/storage"
	"github.com/caretrail/visit-pipeline/internal/application/services"
	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/postgres"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/redis"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/typesense"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/observability"
	"github.com/caretrail/visit-pipeline/internal/worker"
	"github.com/caretrail/visit-pipeline/pkg/config"
	"github.com/caretrail/visit-pipeline/pkg/secrets"
)

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

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger("visit-pipeline-worker", cfg.Environment)

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName+"-worker",
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
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
	}
	defer pgClient.Close()

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize Redis client: %v", err)
	}
	defer redisClient.Close()

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
	}

	visitAdapter := database.NewVisitAdapter(pgClient)
	transcriptAdapter := database.NewTranscriptAdapter(pgClient)
	billingAdapter := database.NewBillingAdapter(pgClient)
	noteAdapter := database.NewNoteAdapter(pgClient)
	contractAdapter := database.NewContractAdapter(pgClient)
	taskQueue := queue.NewRedisTaskQueue(redisClient)
	defer taskQueue.Close()

	pipelineService := services.NewPipelineService(
		visitAdapter,
		transcriptAdapter,
		billingAdapter,
		noteAdapter,
		contractAdapter,
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

	stageTimeout := time.Duration(cfg.Pipeline.StageTimeoutMin) * time.Minute
	w := worker.New(cfg.Pipeline.WorkerID, taskQueue, pipelineService, stageTimeout, *observability.GetLogger())

	// Stop the worker loop on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down worker...")
		cancel()
	}()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Worker failed: %v", err)
	}

	log.Println("Worker exited")
}
