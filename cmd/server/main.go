// Package main runs the virtual-live HTTP server with WebSocket session views and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/virtual-live/config"
	"github.com/aura-webinar/virtual-live/internal/auth"
	"github.com/aura-webinar/virtual-live/internal/comments"
	"github.com/aura-webinar/virtual-live/internal/middleware"
	"github.com/aura-webinar/virtual-live/internal/questions"
	"github.com/aura-webinar/virtual-live/internal/realtime"
	"github.com/aura-webinar/virtual-live/internal/schedule"
	"github.com/aura-webinar/virtual-live/internal/session"
	"github.com/aura-webinar/virtual-live/internal/sessionlog"
	"github.com/aura-webinar/virtual-live/internal/viewer"
	"github.com/aura-webinar/virtual-live/internal/webinars"
	"github.com/aura-webinar/virtual-live/internal/worker"
	"github.com/aura-webinar/virtual-live/pkg/database"
	"github.com/aura-webinar/virtual-live/pkg/metrics"
	"github.com/aura-webinar/virtual-live/pkg/queue"
	"github.com/aura-webinar/virtual-live/pkg/redis"
	"github.com/aura-webinar/virtual-live/pkg/response"
	"github.com/aura-webinar/virtual-live/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	loc, err := cfg.Session.Location()
	if err != nil {
		logger.Fatal("schedule zone", zap.Error(err))
	}
	resolver := schedule.NewResolver(loc)
	classifier := session.Classifier{EarlyJoin: cfg.Session.EarlyJoin}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var videos webinars.VideoPresigner
	if cfg.AWS.Enabled() {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			VideosBucket:         cfg.AWS.VideosBucket,
			TranscriptsBucket:    cfg.AWS.TranscriptsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			videos = s3Client
		}
	}

	m := metrics.New()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	hub.SetAudienceChangeHandler(func(webinarID uuid.UUID, count int) {
		logger.Debug("audience changed", zap.String("webinar_id", webinarID.String()), zap.Int("count", count))
	})

	commentRepo := comments.NewRepository(pool)
	questionRepo := questions.NewRepository(pool)
	sessionLogRepo := sessionlog.NewRepository(pool)
	webinarRepo := webinars.NewRepository(pool, resolver)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	deps := viewer.Deps{
		Comments:      commentRepo,
		Responses:     questionRepo,
		Sessions:      sessionLogRepo,
		Spill:         worker.NewSpiller(jobQueue),
		Changes:       hub,
		Resolver:      resolver,
		Classifier:    classifier,
		Metrics:       m,
		Logger:        logger,
		Tick:          cfg.Session.Tick,
		FlushTimeout:  cfg.Session.FlushTimeout,
		FlushRetry:    cfg.Session.FlushRetry,
		ResponseGrace: cfg.Session.ResponseGrace,
	}

	webinarHandler := webinars.NewHandler(webinarRepo, commentRepo, jwtService, videos, webinars.Options{
		Resolver:   resolver,
		Classifier: classifier,
		Tolerance:  cfg.Session.SelectionTolerance,
		Metrics:    m,
		Logger:     logger,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Public: the invitation token is the credential.
	router.GET("/webinars/current", webinarHandler.Current)
	router.GET("/webinars/:id/access", webinarHandler.Access)
	router.GET("/webinars/:id/audience_count", webinarHandler.AudienceCount(hub))

	// Viewer API (token from the access response)
	api := router.Group("/webinars/:id")
	api.Use(middleware.ViewerJWT(jwtService), middleware.RequireWebinar("id"))
	{
		api.GET("/state", webinarHandler.State)
		api.GET("/comments", webinarHandler.Comments)
		api.GET("/comments/stream", webinarHandler.Stream)
	}

	// WebSocket (invitation token in query)
	router.GET("/ws", realtime.ServeWs(hub, webinarRepo, deps, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (spilled chat and responses)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Server.EmbeddedWorker {
		processor := worker.NewFlushProcessor(commentRepo, questionRepo, hub, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("flush worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
