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

	"grantwatch/config"
	"grantwatch/internal/pipeline"
	"grantwatch/internal/source"
	"grantwatch/internal/store"
	"grantwatch/internal/telegram"
	"grantwatch/metrics"
)

type server struct {
	cfg    config.Config
	st     *store.Store
	runner *pipeline.Runner
	tg     *telegram.Client
	met    *metrics.Metrics
}

func main() {
	config.LoadDotEnv(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		log.Fatalf("failed to ensure work dir: %v", err)
	}

	st, err := store.OpenOrRecover(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	catalog, err := source.NewCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	sources := []source.Source{catalog}
	feedClient := &http.Client{Timeout: time.Duration(cfg.SourceTimeoutSec) * time.Second}
	for _, url := range cfg.FeedURLs {
		sources = append(sources, source.NewFeed("", url, feedClient))
	}

	met := metrics.New()
	tg := telegram.New(cfg.TelegramToken, cfg.TelegramAPIBase, nil)

	var deliverer pipeline.Deliverer
	if cfg.TelegramToken != "" && cfg.ChatID != 0 {
		deliverer = &telegram.Deliverer{
			Client:     tg,
			ChatID:     cfg.ChatID,
			BlockDelay: time.Duration(cfg.BlockDelayMS) * time.Millisecond,
		}
	} else {
		log.Printf("warning: TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID missing, runs will fail until configured")
	}

	runner := pipeline.New(st, sources, deliverer, met, pipeline.Options{
		Keywords:           cfg.Relevance.Keywords,
		PriorityDirections: cfg.Relevance.PriorityDirections,
		WorkDir:            cfg.WorkDir,
		SourceTimeout:      time.Duration(cfg.SourceTimeoutSec) * time.Second,
	})

	s := &server{cfg: cfg, st: st, runner: runner, tg: tg, met: met}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := catalog.Watch(ctx); err != nil {
		log.Printf("catalog watch disabled: %v", err)
	}

	if cfg.TelegramToken != "" {
		go s.pollUpdates(ctx)
	} else {
		log.Printf("bot polling disabled: no token")
	}

	if cfg.CheckIntervalMin > 0 {
		go s.schedule(ctx, time.Duration(cfg.CheckIntervalMin)*time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/healthz", s.handleHealth)

	httpServer := &http.Server{Addr: cfg.HTTPPort, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxTimeout)
	}()

	log.Printf("server listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// schedule triggers a run on a fixed cadence. A run already in flight just
// skips the tick.
func (s *server) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Printf("scheduler: checking every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.runner.Run(ctx, "schedule"); err != nil {
				if errors.Is(err, pipeline.ErrAlreadyRunning) {
					continue
				}
				log.Printf("scheduled run: %v", err)
			}
		}
	}
}
