package main

import (
	"context"
	"log"

	"cinemind/internal/app"
	"cinemind/internal/config"
	"cinemind/internal/logger"
	"cinemind/internal/queue"

	"github.com/hibiken/asynq"
)

const concurrency = 2

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.JobBackend != "asynq" {
		log.Fatal("Worker requires JOB_BACKEND=asynq")
	}

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer application.Close()

	redisOpt, err := queue.RedisOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis settings:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queue.QueueIngest: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(application.NewExecutor())

	logger.Info("starting asynq worker",
		"concurrency", concurrency,
		"queue", queue.QueueIngest,
		"redis", redisOpt.Addr)

	if err := server.Run(queue.NewServeMux(processor)); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
