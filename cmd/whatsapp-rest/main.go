package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	amqpconsumer "your.org/whatsapp-rest/internal/amqp"
	"your.org/whatsapp-rest/internal/broker"
	"your.org/whatsapp-rest/internal/config"
	httpserver "your.org/whatsapp-rest/internal/http"
	ilog "your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/messaging"
	"your.org/whatsapp-rest/internal/provider"
	"your.org/whatsapp-rest/internal/relay"
	"your.org/whatsapp-rest/internal/session"
	"your.org/whatsapp-rest/internal/status"
	"your.org/whatsapp-rest/internal/storage"
)

// main wires the WhatsApp session, the inbound relay, the outbound
// messaging service, the optional AMQP consumer and the HTTP API.  It
// shuts down gracefully on SIGINT or SIGTERM.
func main() {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		ilog.Errorf("failed to load .env: %v", err)
	}
	cfg := config.NewConfig()

	// The root context is cancelled on shutdown which signals all
	// subordinate goroutines to stop.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := session.New()

	// Mirror session state to Redis (disabled if REDIS_URL empty)
	var mirror *status.Mirror
	if cfg.RedisURL != "" {
		m, err := status.New(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			ilog.Errorf("redis status mirror disabled: %v", err)
		} else {
			mirror = m
			state.OnChange(mirror.Publish)
			mirror.Publish(state.Snapshot())
		}
	}

	gw, err := provider.New(ctx, cfg.SessionStore)
	if err != nil {
		ilog.Errorf("failed to open session store: %v", err)
		os.Exit(1)
	}
	gw.Subscribe(state.HandleEvent)

	// Inbound relay sinks
	var sinks []relay.Sink
	if cfg.WebhookURL != "" {
		sinks = append(sinks, relay.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout))
	} else {
		ilog.Infof("webhook disabled (WEBHOOK_URL empty)")
	}
	var publisher *broker.Publisher
	if cfg.AMQPURL != "" && cfg.AMQPRelayExchange != "" {
		publisher = broker.NewPublisher(cfg.AMQPURL, cfg.AMQPRelayExchange)
		if err := publisher.Connect(); err != nil {
			ilog.Errorf("AMQP relay publisher not connected yet: %v", err)
		}
		sinks = append(sinks, publisher)
	}
	rl := relay.New(cfg.RequestTimeout, sinks...)
	if cfg.ArchiveEnabled() {
		store, err := storage.New(ctx, storage.Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			URLExpiry: cfg.S3URLExpiry,
		})
		if err != nil {
			ilog.Errorf("media archive disabled: %v", err)
		} else {
			rl.SetArchive(store)
			ilog.Infof("archiving inbound media to bucket %s", cfg.S3Bucket)
		}
	}
	gw.Subscribe(rl.HandleEvent)

	opts := messaging.Options{
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Timeout:    cfg.RequestTimeout,
	}
	if cfg.ResolveNumbers {
		opts.Resolver = provider.NewResolver(gw, 24*time.Hour)
	}
	svc := messaging.New(gw, state, opts)

	consumer := amqpconsumer.NewConsumer(cfg, svc)
	srv := httpserver.NewServer(cfg, svc, state)

	if err := gw.Start(ctx); err != nil {
		ilog.Errorf("failed to start whatsapp session: %v", err)
		os.Exit(1)
	}

	// The consumer blocks until the context is cancelled.
	go func() {
		if err := consumer.Start(ctx); err != nil {
			ilog.Errorf("AMQP consumer stopped: %v", err)
		}
	}()

	go func() {
		ilog.Infof("HTTP API listening on %s", cfg.HTTPAddr())
		if err := srv.Start(); err != nil {
			ilog.Errorf("HTTP server stopped: %v", err)
			cancel()
		}
	}()

	// Wait for a termination signal and initiate a graceful shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	ilog.Infof("Shutting down…")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		ilog.Errorf("failed to shutdown HTTP server: %v", err)
	}
	cancel()
	gw.Stop()
	rl.Wait()
	if publisher != nil {
		_ = publisher.Close()
	}
	if mirror != nil {
		_ = mirror.Close()
	}
}
