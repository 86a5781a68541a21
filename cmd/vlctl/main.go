// Package main runs vlctl, the virtual-live operator CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/config"
	"github.com/aura-webinar/virtual-live/internal/analytics"
	"github.com/aura-webinar/virtual-live/internal/cli"
	"github.com/aura-webinar/virtual-live/internal/comments"
	"github.com/aura-webinar/virtual-live/internal/questions"
	"github.com/aura-webinar/virtual-live/internal/schedule"
	"github.com/aura-webinar/virtual-live/internal/session"
	"github.com/aura-webinar/virtual-live/internal/sessionlog"
	"github.com/aura-webinar/virtual-live/internal/webinars"
	"github.com/aura-webinar/virtual-live/pkg/database"
	"github.com/aura-webinar/virtual-live/pkg/queue"
	"github.com/aura-webinar/virtual-live/pkg/redis"
	"github.com/aura-webinar/virtual-live/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loc, err := cfg.Session.Location()
	if err != nil {
		return err
	}
	resolver := schedule.NewResolver(loc)
	// Keep stdout clean for command output.
	logger := zap.NewNop()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: 2}, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	commentRepo := comments.NewRepository(pool)
	questionRepo := questions.NewRepository(pool)
	deps := &cli.Dependencies{
		Webinars:   webinars.NewRepository(pool, resolver),
		Comments:   commentRepo,
		Stats:      analytics.NewSummarizer(sessionlog.NewRepository(pool), commentRepo, questionRepo),
		Resolver:   resolver,
		Classifier: session.Classifier{EarlyJoin: cfg.Session.EarlyJoin},
		Tolerance:  cfg.Session.SelectionTolerance,
	}

	if rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger); err == nil {
		defer rdb.Close()
		deps.Queue = queue.NewQueue(rdb.Client, logger)
	}

	if cfg.AWS.TranscriptsBucket != "" && cfg.AWS.Region != "" {
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
			return fmt.Errorf("s3: %w", err)
		}
		deps.Transcripts = s3Client
	}

	return cli.NewRootCmd(deps).ExecuteContext(ctx)
}
