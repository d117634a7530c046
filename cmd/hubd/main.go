// Command hubd runs the bidirectional real-time RPC hub: the
// connection registry, request correlator, and blob side channel wired
// together behind a gin HTTP server and a WebSocket upgrade endpoint.
//
// Wiring order and graceful-shutdown shape are adapted from the
// teacher's cmd/main.go: store first, optional Redis/NATS next (never
// fatal if absent), then the domain services, then the HTTP server
// started in a goroutine and stopped on SIGINT/SIGTERM within a bounded
// shutdown deadline.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hubfabric/hubd/internal/admission"
	"github.com/hubfabric/hubd/internal/authmw"
	"github.com/hubfabric/hubd/internal/blob"
	"github.com/hubfabric/hubd/internal/cache"
	"github.com/hubfabric/hubd/internal/correlator"
	"github.com/hubfabric/hubd/internal/decoder"
	"github.com/hubfabric/hubd/internal/events"
	"github.com/hubfabric/hubd/internal/executor"
	"github.com/hubfabric/hubd/internal/huberrors"
	"github.com/hubfabric/hubd/internal/logger"
	"github.com/hubfabric/hubd/internal/pending"
	"github.com/hubfabric/hubd/internal/registry"
	"github.com/hubfabric/hubd/internal/resolver"
	"github.com/hubfabric/hubd/internal/store"
	"github.com/hubfabric/hubd/internal/transport"
)

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnvBool("LOG_PRETTY", false))
	log := logger.GetLogger()

	cfg := loadConfig()

	log.Info().Msg("connecting to store")
	db, err := store.New(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer db.Close()
	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	log.Info().Msg("initializing optional redis mirror")
	redisCache, err := cache.New(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("redis mirror unavailable, continuing without it")
		redisCache, _ = cache.New(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	log.Info().Msg("initializing optional NATS fan-out")
	eventsPublisher := events.New(cfg.Events)
	defer eventsPublisher.Close()

	blobStore, err := blob.New(cfg.Blob)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob store")
	}

	reg := registry.New(cfg.Registry, db, nil)
	authManager := authmw.New(cfg.Auth)

	transportAdapter := transport.New(reg, cfg.AllowedOrigins)
	reg.SetBroadcaster(events.NewFanOut(transportAdapter, eventsPublisher))

	callExecutor := executor.New(cfg.Executor, blobStore)
	callExecutor.Register("Ping", func(ctx context.Context, param json.RawMessage) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})
	transportAdapter.SetExecutor(callExecutor)

	reg.Start()
	defer reg.Stop()

	res := resolver.New(reg, transportAdapter)
	sem := admission.New(maxConcurrentRequests())
	pendingTable := pending.New()
	corr := correlator.New(cfg.Correlator, sem, res, transportAdapter, pendingTable)
	transportAdapter.SetReplyHandler(corr.OnReply)
	respDecoder := decoder.New(blobStore)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(huberrors.Recovery())
	router.Use(gin.Logger())
	router.Use(corsMiddleware(cfg.AllowedOrigins))
	router.Use(huberrors.ErrorHandler())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"users":           reg.CountUsers(),
			"connections":     reg.CountConnections(),
			"admissionInUse":  sem.InUse(),
			"admissionCap":    sem.Capacity(),
			"pendingRequests": pendingTable.Len(),
			"redisMirrorUp":   redisCache.Enabled(),
			"natsFanOutUp":    eventsPublisher.Enabled(),
		})
	})

	router.GET("/ws", func(c *gin.Context) {
		userID := c.Query("userId")
		connID := c.Query("connId")
		if connID == "" {
			huberrors.AbortWithError(c, huberrors.ClientError("missing connId query parameter"))
			return
		}
		if err := transportAdapter.ServeConn(c.Writer, c.Request, connID, userID, c.Request.UserAgent()); err != nil {
			log.Warn().Err(err).Str("connId", connID).Msg("websocket session ended with error")
		}
	})

	blobGroup := router.Group("/", authManager.RequireBearer())
	blob.RegisterRoutes(blobGroup, blobStore)

	adminGroup := router.Group("/", authManager.RequireBearer())
	registerInvokeRoute(adminGroup, corr, respDecoder)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("hubd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server forced to shutdown")
	}
}
