package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webpub/internal/auth"
	"webpub/internal/config"
	httpserver "webpub/internal/http_server"
	postImage "webpub/internal/http_server/handlers/post_image"
	"webpub/internal/lib/logger"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/lib/recovery"
	"webpub/internal/media"
	"webpub/internal/metrics"
	"webpub/internal/models"
	"webpub/internal/notify"
	"webpub/internal/rabbitmq"
	"webpub/internal/resources"
	"webpub/internal/storage/memory"
	"webpub/internal/storage/postgres"
	"webpub/internal/storage/redis"
)

func main() {
	cfg := config.MustLoad()

	log := logger.Setup(cfg.Env, os.Stdout)

	log.Info("starting webpub", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	m := metrics.New()
	hub := notify.NewHub(16)

	users, services, closeStorage, err := setupStorage(ctx, log, cfg, hub)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}
	defer closeStorage()

	var resets auth.ResetStore = memory.New()
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("failed to connect redis", sl.Err(err))
			os.Exit(1)
		}
		defer rdb.Close()

		resets = rdb
	}

	var mail recovery.Publisher = recovery.LogPublisher{Log: log}
	if cfg.RabbitMQ.URL != "" {
		msgBroker, err := rabbitmq.Dial(rabbitmq.Options{
			URL:            cfg.RabbitMQ.URL,
			Queue:          cfg.RabbitMQ.QueueName,
			ConfirmTimeout: cfg.RabbitMQ.ConfirmTimeout,
		})
		if err != nil {
			log.Error("failed to connect rabbitmq", sl.Err(err))
			os.Exit(1)
		}
		defer msgBroker.Close()

		mail = msgBroker
	}

	var uploader postImage.Uploader
	if cfg.S3.Bucket != "" {
		s3, err := media.NewS3(ctx, media.Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			log.Error("failed to init s3", sl.Err(err))
			os.Exit(1)
		}

		uploader = s3
	}

	authService, err := auth.New(log, users, resets, mail, auth.Options{
		Secret:     cfg.Tokens.Secret,
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
		ResetTTL:   cfg.Tokens.ResetTTL,
		PublicURL:  cfg.HTTPServer.PublicURL,
		Events:     m,
	})
	if err != nil {
		log.Error("failed to init auth service", sl.Err(err))
		os.Exit(1)
	}

	router := httpserver.NewRouter(log, httpserver.Deps{
		Env:        cfg.Env,
		BasePath:   cfg.HTTPServer.BasePath,
		RateLimit:  cfg.HTTPServer.RateLimit,
		RequestLog: cfg.Env == logger.EnvLocal,
		Auth:       authService,
		Resources:  services,
		Hub:        hub,
		Uploader:   uploader,
		Metrics:    m,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	authService.Wait()

	log.Info("webpub stopped")
}

func setupStorage(
	ctx context.Context,
	log *slog.Logger,
	cfg *config.Config,
	hub *notify.Hub,
) (auth.UserRepository, *resources.Services, func(), error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		pg, err := postgres.New(ctx, postgres.Options{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			return nil, nil, nil, err
		}

		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, err
		}

		services := resources.NewServices(log,
			postgres.NewCollection[models.Channel](pg, "channel"),
			postgres.NewCollection[models.Post](pg, "post"),
			postgres.NewCollection[models.Notification](pg, "notification"),
			cfg.Limits.MaxChannels,
			hub,
		)

		return pg, services, pg.Close, nil
	default:
		log.Warn("using in-memory storage; data is lost on restart")

		services := resources.NewServices(log,
			memory.NewCollection[models.Channel](),
			memory.NewCollection[models.Post](),
			memory.NewCollection[models.Notification](),
			cfg.Limits.MaxChannels,
			hub,
		)

		return memory.New(), services, func() {}, nil
	}
}
