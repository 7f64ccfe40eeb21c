package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/directory"
	"messaging-service/internal/feed"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.ServiceName, cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint, cfg.EnableTracing, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown tracing")
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	log.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Msg("event publisher ready")

	emitter := telemetry.NewEmitter(publisher, cfg.ServiceName, cfg.Environment, log)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	broker := feed.NewBroker()
	dir := directory.New(conversationRepo, profileRepo, log)

	conversationHandler := handlers.NewConversationHandler(dir, emitter)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, broker, emitter, log)
	healthHandler := handlers.NewHealthHandler(database, cfg.DBPingTimeout)
	wsHandler := ws.NewHandler(conversationRepo, messageRepo, broker, emitter, cfg.JWTSecret, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations/start", authMiddleware, conversationHandler.StartConversation)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.PostMessage)
	router.POST("/conversations/:conversation_id/read", authMiddleware, messageHandler.MarkRead)

	router.GET("/ws/conversations/:conversation_id", wsHandler.Handle)

	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("stopped")
}
