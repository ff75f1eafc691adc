package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"memorabilia-service/config"
	"memorabilia-service/internal/api"
	"memorabilia-service/internal/assets"
	"memorabilia-service/internal/auction"
	"memorabilia-service/internal/broker"
	"memorabilia-service/internal/clock"
	"memorabilia-service/internal/docstore"
	"memorabilia-service/internal/docstore/mongostore"
	"memorabilia-service/internal/realtime"
	"memorabilia-service/internal/redisclient"
	"memorabilia-service/internal/service"
	"memorabilia-service/internal/store"
	"memorabilia-service/internal/util"
	"memorabilia-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting memorabilia service", zap.String("store", cfg.Store.Backend))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer(util.TracingOptions{
			ServiceName: "memorabilia-service",
			Endpoint:    cfg.Observ.JaegerEndpoint,
			Environment: cfg.Server.Env,
			SampleRatio: cfg.Observ.TraceSampleRatio,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	var checks []namedCheck

	docs, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()
	if p, ok := docs.(api.Pinger); ok {
		checks = append(checks, namedCheck{cfg.Store.Backend, p})
	}

	clk := clock.NewSystem()
	hub := realtime.NewHub()

	auctionDeps := service.AuctionDeps{
		Store:      docs,
		Engine:     auction.NewEngine(cfg.Business.BidIncrementPercent),
		Clock:      clk,
		Feed:       hub,
		MaxRetries: cfg.Business.BidMaxRetries,
	}
	videoDeps := service.VideoDeps{
		Store:   docs,
		Clock:   clk,
		MinLead: cfg.Business.VideoMinLead,
	}

	var idem service.IdempotencyStore
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		mirror := service.NewBidMirror(docs, redisClient, clk)
		if err := mirror.SyncBidsToRedis(ctx); err != nil {
			logger.Warn("Failed to sync bids to Redis", zap.Error(err))
		}
		auctionDeps.Cache = mirror
		idem = redisClient
		checks = append(checks, namedCheck{"redis", redisClient})
	}

	if cfg.Assets.Bucket != "" {
		verifier, err := assets.NewS3Verifier(ctx, assets.Options{
			Bucket:    cfg.Assets.Bucket,
			Region:    cfg.Assets.Region,
			Endpoint:  cfg.Assets.Endpoint,
			AccessKey: cfg.Assets.AccessKey,
			SecretKey: cfg.Assets.SecretKey,
		})
		if err != nil {
			return fmt.Errorf("failed to configure asset verifier: %w", err)
		}
		videoDeps.Verifier = verifier
	}

	var paymentWorker *worker.PaymentWorker
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

		publisher := broker.NewEventPublisher(producer)
		auctionDeps.Events = publisher
		videoDeps.Events = publisher
	}

	auctionService := service.NewAuctionService(auctionDeps)
	videoService := service.NewVideoService(videoDeps)

	if cfg.Kafka.Enabled {
		paymentService := service.NewPaymentService(videoService, idem)
		deadLetter := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetter)
		defer deadLetter.Close()
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.ConsumerGroup).
			WithDeadLetter(deadLetter)
		paymentWorker = worker.NewPaymentWorker(consumer, paymentService)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(auctionService, videoService, hub)
	for _, c := range checks {
		handler.AddReadinessCheck(c.name, c.pinger)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if paymentWorker != nil {
		g.Go(func() error {
			if err := paymentWorker.Start(gctx); err != nil {
				return fmt.Errorf("payment worker: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if paymentWorker != nil {
			if err := paymentWorker.Stop(); err != nil {
				logger.Warn("Error stopping payment worker", zap.Error(err))
			}
		}
		return nil
	})

	return g.Wait()
}

type namedCheck struct {
	name   string
	pinger api.Pinger
}

// openStore connects the configured document store backend
func openStore(ctx context.Context, cfg config.StoreConfig) (docstore.Store, func(), error) {
	logger := util.GetLogger()

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := store.NewStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("Database connected")
		return db, func() { db.Close() }, nil

	case config.BackendMongo:
		db, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		logger.Info("MongoDB connected", zap.String("database", cfg.MongoDatabase))
		return db, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Close(closeCtx)
		}, nil

	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		return docstore.NewMemoryStore(), func() {}, nil
	}
}
