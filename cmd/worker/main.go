package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"franklin/internal/bootstrap"
	"franklin/internal/config"
	"franklin/internal/domain/usecase"
	"franklin/internal/repository/rabbitmq"
	"franklin/internal/repository/redis"
)

const prefetch = 4

func main() {
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags)

	cfg, err := config.Load("./.env.local")
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	if cfg.Dispatch != config.DispatchRabbitMQ {
		logger.Fatalf("worker needs DISPATCH_MODE=%s, got %q", config.DispatchRabbitMQ, cfg.Dispatch)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := bootstrap.Redis(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	store, err := bootstrap.Store(cfg, rdb)
	if err != nil {
		logger.Fatalf("failed to open job store: %v", err)
	}

	providers, err := bootstrap.Providers(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init providers: %v", err)
	}

	events := redis.NewEventPublisher(rdb, logger)
	defer events.Close()

	orch := usecase.NewOrchestrator(store, events, providers, bootstrap.Options(cfg), logger)
	defer orch.Reaper().Stop()

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbitmq.NewJobConsumer(conn, rabbitmq.DefaultExchange, rabbitmq.DefaultRoutingKey, rabbitmq.DefaultQueue, prefetch, orch, logger)
	if err != nil {
		logger.Fatalf("failed to init consumer: %v", err)
	}

	logger.Println("Franklin worker started")
	if err := consumer.Start(ctx); err != nil {
		logger.Fatalf("consumer stopped with error: %v", err)
	}
	logger.Println("Franklin worker stopped")
}
