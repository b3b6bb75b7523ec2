package main

import (
	"context"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/util"

	appconfig "github.com/antinvestor/flowforge/apps/worker/config"
	"github.com/antinvestor/flowforge/apps/worker/service/orchestrator"
	workerqueue "github.com/antinvestor/flowforge/apps/worker/service/queue"
	"github.com/antinvestor/flowforge/apps/worker/service/repository"
	"github.com/antinvestor/flowforge/internal/events"
	"github.com/antinvestor/flowforge/internal/llm"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.WorkerConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "workflow_worker"
	}

	// Create service with Frame
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithDatastore(),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	// Get managers
	dbManager := svc.DatastoreManager()
	qMan := svc.QueueManager()

	// Handle database migration
	if handleDatabaseMigration(ctx, dbManager, cfg) {
		return
	}

	// Get database pool
	dbPool := dbManager.GetPool(ctx, datastore.DefaultPoolName)

	// ==========================================================================
	// Setup Repositories
	// ==========================================================================

	runRepo := repository.NewRunRepository(ctx, dbPool)

	// ==========================================================================
	// Setup Services
	// ==========================================================================

	llmClient, err := llm.NewGenerationClient(cfg.LLMConfig())
	if err != nil {
		log.WithError(err).Fatal("could not create generation client")
	}

	dedupStore, err := events.NewDeduplicationStore(ctx, cfg.DedupBackendType(), cfg.DedupRedisURL, cfg.DedupTTL())
	if err != nil {
		log.WithError(err).Fatal("could not create deduplication store")
	}
	defer func() {
		if closeErr := dedupStore.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("failed to close deduplication store")
		}
	}()

	pipelineOrchestrator := orchestrator.New(&cfg, llmClient, qMan, runRepo, dedupStore)

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	notificationPublisher := frame.WithRegisterPublisher(
		cfg.QueueNotificationName,
		cfg.QueueNotificationURI,
	)

	// ==========================================================================
	// Register Subscribers
	// ==========================================================================

	workflowRequestSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueWorkflowRequestName,
		cfg.QueueWorkflowRequestURI,
		workerqueue.NewWorkflowRequestHandler(pipelineOrchestrator),
	)

	// ==========================================================================
	// Setup Health Endpoint
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"worker"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"worker"}`))
	})

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(mux),
		// Publishers
		notificationPublisher,
		// Subscribers
		workflowRequestSubscriber,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting workflow worker service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}

func handleDatabaseMigration(
	ctx context.Context,
	dbManager datastore.Manager,
	cfg appconfig.WorkerConfig,
) bool {
	if cfg.DoDatabaseMigrate() {
		err := repository.Migrate(ctx, dbManager, cfg.GetDatabaseMigrationPath())
		if err != nil {
			util.Log(ctx).WithError(err).Fatal("could not migrate")
		}
		return true
	}
	return false
}
