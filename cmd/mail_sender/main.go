package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"webpub/internal/config"
	"webpub/internal/lib/logger"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/mailsender"
	"webpub/internal/rabbitmq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoadMailSender()
	log := logger.Setup(cfg.Env, os.Stdout)

	log.Info("Starting mail_sender", slog.String("env", cfg.Env))

	if err := run(ctx, cfg, log); err != nil {
		log.Error("mail_sender stopped with error", sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.MailSenderConfig, log *slog.Logger) error {
	r, err := rabbitmq.Dial(rabbitmq.Options{
		URL:   cfg.RabbitMQ.URL,
		Queue: cfg.RabbitMQ.QueueName,
	})
	if err != nil {
		return err
	}
	defer r.Close()

	m := mailsender.NewSMTP(log, cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)

	done := make(chan error, 1)

	go func() {
		done <- r.StartReading(ctx, m.Consume)
	}()

	log.Info("consumer successfully started", slog.String("queue", cfg.RabbitMQ.QueueName))

	select {
	case <-ctx.Done():
		log.Info("shutting down consumer...")
	case err := <-done:
		if err != nil {
			return err
		}
		log.Info("consumer finished the work")
	}

	log.Info("service gracefully stopped")

	return nil
}
