package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tailored-agentic-units/interpreter/contexts"
	"github.com/tailored-agentic-units/interpreter/gateway"
	"github.com/tailored-agentic-units/interpreter/observability"
	"github.com/tailored-agentic-units/interpreter/server"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to config file (JSON or YAML)")
		addr       = flag.String("addr", "", "Listen address (overrides config)")
		gatewayURL = flag.String("gateway", "", "Kernel gateway base URL (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := server.DefaultConfig()
	if *configFile != "" {
		loaded, err := server.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}

	if *addr != "" {
		cfg.Addr = *addr
	}
	if *gatewayURL != "" {
		cfg.Gateway.BaseURL = *gatewayURL
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	observer := observability.NewSlogObserver(logger)

	gw := gateway.NewClient(cfg.Gateway)

	managerOpts := []contexts.Option{contexts.WithObserver(observer)}
	if cfg.DefaultCWD != "" {
		managerOpts = append(managerOpts, contexts.WithDefaultCWD(cfg.DefaultCWD))
	}
	manager := contexts.NewManager(gw, managerOpts...)

	facade := server.New(manager,
		server.WithObserver(observer),
		server.WithDefaultLanguage(cfg.DefaultLanguage),
	)

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: facade,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		manager.Shutdown()
	}()

	logger.Info("interpreter bridge listening",
		slog.String("addr", cfg.Addr),
		slog.String("gateway", cfg.Gateway.BaseURL),
	)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
