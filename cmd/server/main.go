package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"visiontriage/internal/config"
	"visiontriage/internal/core"
	httpserver "visiontriage/internal/http"
	"visiontriage/internal/llm"
	"visiontriage/internal/metrics"
	"visiontriage/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	// Load .env if present; real environment variables still win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Missing credential is a fatal startup condition: halt before the
		// interactive state machine ever comes up.
		log.Fatalf("configuration error: %v", err)
	}

	metrics.Init()

	llmClient := llm.NewOpenAIClient(cfg)
	consult := core.NewConsultService(llmClient)
	store := session.NewStore()

	tmplDir := filepath.Join("internal", "http", "templates")
	srv, err := httpserver.NewServer(store, consult, tmplDir, cfg.Upload.MaxBytes)
	if err != nil {
		log.Fatalf("failed to construct server: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", srv)

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("Service stopped")
}
