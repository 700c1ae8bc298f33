// Entry point for the access-control API: HTTP surface plus the MQTT event
// dispatcher. Both live in one process because the pending-enroll tracker is
// in-memory and must be shared between the command path and the dispatcher.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"access.service/internal/api"
	"access.service/internal/config"
	"access.service/internal/core"
	"access.service/internal/core/model"
	"access.service/internal/dispatcher"
	"access.service/internal/ports/messaging"
	"access.service/internal/ports/repository"
	"access.service/pkg/aws"
	"access.service/pkg/database"
	"access.service/pkg/logger"
	mqttclient "access.service/pkg/mqtt"
	"access.service/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	// Configure structured logging
	logger.Setup(cfg.IsLocalDev)

	// Configure OpenTelemetry Tracing
	shutdownTracer, err := telemetry.InitTracer("access-api")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	// DB connection
	db, err := database.NewInstrumentedConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()
	log.Info().Msg("Successfully connected to the database.")

	// AWS SDK Config
	awsCfg, err := aws.NewAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	// MQTT connection
	mqttConn, err := mqttclient.NewClient(mqttclient.Options{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to MQTT broker")
	}
	defer mqttConn.Disconnect()
	log.Info().Str("broker", cfg.MQTTBroker).Msg("Connected to MQTT broker.")

	// Initialize dependencies
	repo := repository.NewAccessRepository(db)
	sqsClient := sqs.NewFromConfig(awsCfg)
	emailProducer := messaging.NewSQSProducer(sqsClient, cfg.EmailSQSQueueURL)
	publisher := messaging.NewMQTTPublisher(mqttConn, cfg.MQTTBaseTopic)

	enrollTTL := time.Duration(cfg.EnrollTTLSeconds) * time.Second
	offlineTTL := time.Duration(cfg.OfflineTTLSeconds) * time.Second

	tracker := core.NewEnrollTracker(enrollTTL, func(deviceID string, p core.PendingEnroll) {
		entry := model.DeviceLog{
			DeviceID:   deviceID,
			EventType:  model.EventEnrollTimeout,
			SlotID:     &p.SlotID,
			EmployeeID: &p.EmployeeID,
			Success:    false,
			Message:    "Enrollment abandoned: no device response within TTL",
			Timestamp:  time.Now(),
		}
		if _, err := repo.AppendLog(context.Background(), entry); err != nil {
			log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to log enroll timeout")
		}
	})

	coreService := core.NewAccessService(repo, publisher, tracker, emailProducer, cfg.MaxFingerprintSlots, offlineTTL)
	disp := dispatcher.New(repo, coreService, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker.StartSweeper(ctx, 10*time.Second)

	// Subscribe to every device topic under the base topic
	eventTopic := cfg.MQTTBaseTopic + "/#"
	if err := mqttConn.Subscribe(eventTopic, 1, disp.HandleMessage); err != nil {
		log.Fatal().Err(err).Msg("Error subscribing to device events")
	}
	log.Info().Str("topic", eventTopic).Msg("Subscribed to device events.")

	// Setup router and server
	router := api.NewRouter(coreService)

	// Middleware to inject logger with trace ID
	loggerMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.EnrichContextWithLogger(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	// Wrap the router with OpenTelemetry middleware to create spans for each request
	handler := otelhttp.NewHandler(loggerMiddleware(router), "api")

	serverAddr := ":" + cfg.ServerPort
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: handler,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("Access API starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// The context informs the server it has 5 seconds to finish
	// the requests it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
