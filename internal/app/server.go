package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tasklink/realtime/api/ws"
	"github.com/tasklink/realtime/config"
	"github.com/tasklink/realtime/internal/auth"
	"github.com/tasklink/realtime/internal/broker"
	"github.com/tasklink/realtime/internal/nats"
	"github.com/tasklink/realtime/internal/port"
	"github.com/tasklink/realtime/internal/redis"
	"github.com/tasklink/realtime/internal/registry"
	"github.com/tasklink/realtime/pkg/logger"
)

// App represents the main application structure holding all dependencies
type App struct {
	cfg         config.Config
	logger      logger.Logger
	relay       *nats.Relay
	redisClient *redis.RedisClient
	registry    *registry.Registry
	httpServer  *http.Server
	rootCtx     context.Context
	cancel      context.CancelFunc
}

// NewApp initializes and connects all application dependencies
func NewApp(cfg config.Config) (*App, error) {
	baseLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFile)
	rootCtx := logger.NewContext(context.Background(), baseLogger)
	rootCtx, rootCancel := context.WithCancel(rootCtx)

	log := logger.FromContext(rootCtx).WithModule("app")
	log.Infof("Initializing application components...")

	redisClient, err := redis.NewRedisClient(rootCtx, cfg.RedisURL)
	if err != nil {
		rootCancel()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// NATS is optional: without it the broker serves a single process.
	var relay *nats.Relay
	var relayPort port.Relay
	if cfg.NATSURL != "" {
		relay, err = nats.NewRelay(rootCtx, cfg.NATSURL)
		if err != nil {
			rootCancel()
			redisClient.Close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		relayPort = relay
	}

	reg := registry.New(baseLogger.WithModule("registry"))
	roomBroker := broker.New(reg, redis.NewGate(redisClient), relayPort, baseLogger.WithModule("broker"))

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: ws.SetupWebSocketRoutes(ws.WSConfig{
			Broker:         roomBroker,
			Registry:       reg,
			Verifier:       auth.NewVerifier(cfg.JWTSecret),
			Store:          redis.NewMessageStore(redisClient),
			Presence:       redis.NewPresence(redisClient),
			HistoryLimit:   cfg.HistoryLimit,
			PongWait:       time.Duration(cfg.PongWaitSeconds) * time.Second,
			PersistTimeout: time.Duration(cfg.PersistTimeoutSeconds) * time.Second,
			RootCtx:        rootCtx,
		}),
	}

	app := &App{
		cfg:         cfg,
		logger:      log,
		relay:       relay,
		redisClient: redisClient,
		registry:    reg,
		httpServer:  httpServer,
		rootCtx:     rootCtx,
		cancel:      rootCancel,
	}

	log.Infof("Application initialized successfully")
	return app, nil
}

// Start runs the application and handles graceful shutdown on signal
func (a *App) Start() error {
	log := a.logger.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
	})

	log.Infof("Starting application server")

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatalf("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.WithFields(map[string]interface{}{
		"signal": sig.String(),
	}).Warnf("Received shutdown signal")

	return a.Stop()
}

// Stop gracefully shuts down the server and closes all connections
func (a *App) Stop() error {
	log := a.logger.WithFields(map[string]interface{}{
		"shutdown_timeout": "5s",
	})

	log.Infof("Initiating graceful shutdown")

	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Errorf("HTTP server shutdown error")
	}

	if a.relay != nil {
		log.Infof("Closing NATS relay")
		a.relay.Close()
	}

	log.Infof("Closing Redis connection")
	a.redisClient.Close()

	log.Infof("Shutdown completed successfully")
	return nil
}
