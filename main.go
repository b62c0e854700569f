package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"recipe-realtime/internal/config"
	"recipe-realtime/internal/db"
	"recipe-realtime/internal/events"
	"recipe-realtime/internal/handlers"
	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/middleware"
	"recipe-realtime/internal/observability"
	"recipe-realtime/internal/rabbitmq"
	"recipe-realtime/internal/repositories"
	"recipe-realtime/internal/services"
	"recipe-realtime/internal/telemetry"
	"recipe-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.With("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	followRepo := repositories.NewFollowRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.RealtimeEventsExchange)
	defer publisher.Close()
	log.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")

	bus := events.NewBus()
	bus.Mirror(publisher)

	notificationService := services.NewNotificationService(notificationRepo, followRepo, bus, services.NotificationOptions{
		DedupWindow: cfg.NotificationDedupWindow,
		FanoutCap:   cfg.NotificationFanoutCap,
	})
	bridge := services.NewBridge(notificationService, userRepo)
	chatService := services.NewChatService(chatRepo, messageRepo, userRepo, bus, bridge)

	audit := telemetry.NewAuditEmitter(publisher, telemetry.RoutingKeyAuditChat, cfg.ServiceName, cfg.Environment)

	hub := ws.NewHub(chatService, userRepo, ws.HubOptions{
		EventTimeout: cfg.WSEventTimeout,
		Lifecycle:    publisher,
		Audit:        audit,
	})
	hub.Subscribe(bus)

	consumer := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.DomainEventsExchange, cfg.DomainEventsQueue, services.DomainEventKeys, bridge, cfg.WSEventTimeout)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error().Err(err).Msg("domain event consumer stopped")
		}
	}()

	var (
		authMiddleware gin.HandlerFunc
		tokens         ws.TokenParser
	)
	if cfg.AuthDisabled {
		log.Warn().Msg("authentication disabled, trusting X-User-ID")
		authMiddleware = middleware.TrustedUserMiddleware()
	} else {
		verifier := middleware.NewJWTVerifier(cfg.JWTSecret)
		authMiddleware = middleware.AuthMiddleware(verifier)
		tokens = verifier
	}

	chatHandler := handlers.NewChatHandler(chatService, audit)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	wsHandler := ws.NewHandler(hub, tokens, cfg.WSSendBuffer)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterHealthRoutes(router, database)
	handlers.RegisterDebugRoutes(router, hub.Registry(), audit, cfg.DebugRoutes)

	router.GET("/ws", wsHandler.Handle)

	chats := router.Group("/chats", authMiddleware)
	chats.POST("", chatHandler.CreateChat)
	chats.GET("/user/:userId", chatHandler.ListUserChats)
	chats.GET("/:chatId/messages", chatHandler.ListMessages)
	chats.POST("/:chatId/read", chatHandler.MarkChatRead)
	chats.POST("/messages", chatHandler.SendMessage)
	chats.POST("/messages/:id/read", chatHandler.MarkMessageRead)
	chats.GET("/unread/:userId", chatHandler.UnreadCount)
	chats.GET("/search/:userId", chatHandler.SearchMessages)

	notifications := router.Group("/notifications", authMiddleware)
	notifications.POST("", notificationHandler.Create)
	notifications.GET("", notificationHandler.List)
	notifications.GET("/counts", notificationHandler.Counts)
	notifications.GET("/user/:userId", notificationHandler.ListForUser)
	notifications.POST("/read-all", notificationHandler.MarkAllRead)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
}
