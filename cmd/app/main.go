package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"

	"franklin/internal/bootstrap"
	"franklin/internal/config"
	v1 "franklin/internal/controller/http/v1"
	"franklin/internal/domain/usecase"
	"franklin/internal/notify"
	"franklin/internal/repository/rabbitmq"
	"franklin/internal/repository/redis"
	"franklin/pkg/middleware"
)

func main() {
	logger := log.New(os.Stdout, "[gateway] ", log.LstdFlags)

	cfg, err := config.Load("./.env.local")
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	if err := cfg.ProviderError(); err != nil {
		logger.Printf("WARNING: %v; questions will fail until this is fixed", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := bootstrap.Redis(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	store, err := bootstrap.Store(cfg, rdb)
	if err != nil {
		logger.Fatalf("failed to open job store: %v", err)
	}

	hub := notify.NewHub()
	var notifier usecase.Notifier = hub
	if rdb != nil {
		// events from any process reach local sockets through redis
		publisher := redis.NewEventPublisher(rdb, logger)
		defer publisher.Close()
		notifier = publisher
		relay := redis.NewEventRelay(rdb, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("event relay stopped: %v", err)
			}
		}()
	}

	providers, err := bootstrap.Providers(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init providers: %v", err)
	}

	orch := usecase.NewOrchestrator(store, notifier, providers, bootstrap.Options(cfg), logger)
	defer orch.Reaper().Stop()
	go orch.Reaper().Run(ctx, cfg.SweepInterval)

	var local *usecase.InProcessDispatcher
	if cfg.Dispatch == config.DispatchRabbitMQ {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()

		publisher, err := rabbitmq.NewRabbitPublisher(conn, rabbitmq.DefaultExchange, rabbitmq.DefaultRoutingKey)
		if err != nil {
			logger.Fatalf("failed to init publisher: %v", err)
		}
		defer publisher.Close()
		orch.SetDispatcher(publisher)
	} else {
		local = usecase.NewInProcessDispatcher(context.WithoutCancel(ctx), orch, logger)
		orch.SetDispatcher(local)
	}

	var rateLimit gin.HandlerFunc
	if rdb != nil && cfg.RateLimit > 0 {
		rateLimit = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RedisClient: rdb,
			Limit:       cfg.RateLimit,
			Window:      cfg.RateLimitWindow,
		})
	}

	router := v1.NewRouter(v1.RouterDeps{
		Questions: orch,
		Jobs:      store,
		Events:    hub,
		Config:    cfg.Summary(),
		RateLimit: rateLimit,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s (store=%s dispatch=%s)", cfg.HTTPAddr, cfg.Store, cfg.Dispatch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}

	if local != nil {
		done := make(chan struct{})
		go func() {
			local.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Println("in-flight jobs did not finish before shutdown")
		}
	}
}
