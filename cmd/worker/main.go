package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/appforge/engine/pkg/config"
	"github.com/appforge/engine/pkg/database"
	"github.com/appforge/engine/pkg/httpclient"
	"github.com/appforge/engine/pkg/logger"

	"github.com/appforge/engine/internal/generator"
	"github.com/appforge/engine/internal/live"
	"github.com/appforge/engine/internal/pipeline"
	"github.com/appforge/engine/internal/provision/neon"
	"github.com/appforge/engine/internal/provision/vercel"
	"github.com/appforge/engine/internal/queue"
	"github.com/appforge/engine/internal/queue/tasks"
	"github.com/appforge/engine/internal/repository"
	"github.com/appforge/engine/internal/scaffold"
	"github.com/appforge/engine/internal/services"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
	})
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	appRepo := repository.NewApplicationRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	deployRepo := repository.NewDeploymentRepository(db)

	// vendor clients, each paced independently
	neonClient := neon.New(httpclient.New(cfg.NeonAPIURL, cfg.NeonAPIKey,
		httpclient.WithMinInterval(500*time.Millisecond)))

	vercelOpts := []vercel.Option{}
	if cfg.VercelTeamID != "" {
		vercelOpts = append(vercelOpts, vercel.WithTeam(cfg.VercelTeamID))
	}
	vercelClient := vercel.New(httpclient.New(cfg.VercelAPIURL, cfg.VercelToken,
		httpclient.WithMinInterval(300*time.Millisecond)), vercelOpts...)

	gen := generator.NewHTTP(httpclient.New(cfg.GeneratorAPIURL, cfg.GeneratorAPIKey))

	guard := services.NewDeployGuard()
	scaffolder := scaffold.NewProjectRenderer()
	deploySvc := services.NewDeployService(guard, neonClient, vercelClient, scaffolder, deployRepo)

	scheduler := queue.NewScheduler(asynqClient, cfg.AutoDeployDelay)
	runner := pipeline.New(gen, deploySvc, cfg.NeonRegion, pipeline.WithScheduler(scheduler))

	publisher := live.NewRedisPublisher(rdb)

	generateHandler := tasks.NewGenerateTaskHandler(runner, appRepo, docRepo)
	autoDeployHandler := tasks.NewAutoDeployTaskHandler(deploySvc, appRepo, docRepo, publisher, cfg.NeonRegion)

	mux := asynq.NewServeMux()
	mux.HandleFunc(services.TaskTypeGenerate, generateHandler.HandleGenerate)
	mux.HandleFunc(queue.TaskTypeAutoDeploy, autoDeployHandler.HandleAutoDeploy)

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.L().Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.L().Error("worker stopped with error", zap.Error(err))
	}

	srv.Shutdown()
}
