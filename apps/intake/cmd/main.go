package main

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	connectInterceptors "github.com/pitabwire/frame/security/interceptors/connect"
	"github.com/pitabwire/util"

	appconfig "github.com/antinvestor/flowforge/apps/intake/config"
	"github.com/antinvestor/flowforge/apps/intake/handlers"
	"github.com/antinvestor/flowforge/apps/intake/middleware"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.IntakeConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "workflow_intake"
	}

	// Create service with Frame - minimal dependencies
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithRegisterServerOauth2Client(),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	// Get queue manager for publishing
	qMan := svc.QueueManager()

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	workflowRequestPublisher := frame.WithRegisterPublisher(
		cfg.QueueWorkflowRequestName,
		cfg.QueueWorkflowRequestURI,
	)

	// ==========================================================================
	// Setup HTTP Server
	// ==========================================================================

	securityMan := svc.SecurityManager()
	authenticator := securityMan.GetAuthenticator(ctx)

	defaultInterceptorList, err := connectInterceptors.DefaultList(ctx, authenticator)
	if err != nil {
		log.WithError(err).Fatal("could not create default interceptors")
	}
	_ = defaultInterceptorList
	_ = connect.WithInterceptors // Silence unused

	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimitRequestsPerMinute,
		cfg.RateLimitBurstSize,
	)
	defer rateLimiter.Stop()

	intakeHandler := handlers.NewIntakeHandler(&cfg, qMan)

	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"intake"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"intake"}`))
	})

	// Email webhook endpoint
	mux.Handle("/webhooks/email",
		rateLimiter.Middleware(http.HandlerFunc(intakeHandler.HandleEmailWebhook)))

	// Form submission endpoint
	mux.Handle("/api/v1/requests",
		rateLimiter.Middleware(http.HandlerFunc(intakeHandler.HandleFormSubmission)))

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(mux),
		workflowRequestPublisher,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting workflow intake service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}
