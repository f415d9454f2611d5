package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"image-pipeline/internal/config"
	"image-pipeline/internal/fetch"
	"image-pipeline/internal/queue"
	"image-pipeline/internal/store"
	"image-pipeline/internal/telemetry"
	"image-pipeline/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	sink, err := worker.NewSink(ctx, cfg)
	if err != nil {
		log.Fatalf("init output sink: %v", err)
	}

	fetcher := fetch.New(cfg.FetchTimeout, cfg.FetchAttempts, cfg.FetchRetryDelay, cfg.MaxImageBytes)
	executor := worker.NewExecutor(fetcher, st, sink)
	notifier := queue.NewNotifier(cfg)
	dispatcher := worker.NewDispatcher(st, executor, notifier, cfg.PollInterval, cfg.BatchSize, cfg.Concurrency)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started with poll=%s batch=%d concurrency=%d", cfg.PollInterval, cfg.BatchSize, cfg.Concurrency)
	if err := dispatcher.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}
