package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/native/rebase"
	"github.com/MRAlirad/ccip-rebase-token/observability/logging"
	"github.com/MRAlirad/ccip-rebase-token/observability/metrics"
	telemetry "github.com/MRAlirad/ccip-rebase-token/observability/otel"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/config"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/journal"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/ledger"
	rbmw "github.com/MRAlirad/ccip-rebase-token/services/rebased/middleware"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/server"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/stream"
	"github.com/MRAlirad/ccip-rebase-token/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/rebased/config.yaml", "path to rebased config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, logCloser := logging.New(logging.Config{
		Service:    "rebased",
		Env:        cfg.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()
	logger.LogAttrs(context.Background(), slog.LevelInfo, "config loaded", cfg.LogAttrs()...)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("rebased", cfg.Env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("open ledger storage: %v", err)
	}
	defer db.Close()

	journalDB, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	eventJournal, err := journal.New(journalDB, logger)
	if err != nil {
		log.Fatalf("init journal: %v", err)
	}
	if sqlDB, err := journalDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	ledgerMetrics := metrics.Ledger()
	hub := stream.NewHub(cfg.Stream.Buffer, ledgerMetrics.IncStreamDrop)
	l, err := ledger.New(db,
		ledger.WithSink(events.NewFanout(eventJournal, hub)),
		ledger.WithLogger(logger),
		ledger.WithMetrics(ledgerMetrics),
	)
	if err != nil {
		log.Fatalf("init ledger: %v", err)
	}
	if err := initialise(context.Background(), l, cfg.Genesis, logger); err != nil {
		log.Fatalf("genesis: %v", err)
	}

	srv := server.New(server.Config{
		Ledger: l,
		Events: eventJournal,
		Stream: hub,
		Auth: rbmw.NewAuthenticator(rbmw.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		}, logger),
		Limiter: rbmw.NewRateLimiter(rbmw.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}),
		Registry: prometheus.DefaultRegisterer,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger,
	})

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	if cfg.TLS.AllowInsecure {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(cfg.Env, "dev") && !loopback {
			log.Fatalf("plaintext rebased mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("rebased listening", slog.String("addr", cfg.ListenAddress), slog.Bool("tls", cfg.TLS.CertPath != ""))
		if cfg.TLS.CertPath != "" {
			serverErr <- httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.String("error", err.Error()))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}

// initialise runs genesis on an empty ledger when the config names an owner.
func initialise(ctx context.Context, l *ledger.Ledger, g config.GenesisConfig, logger *slog.Logger) error {
	if _, err := l.Protocol(ctx); err == nil {
		return nil
	} else if !errors.Is(err, rebase.ErrNotInitialised) {
		return err
	}
	if g.Owner == "" {
		logger.Warn("ledger not initialised and no genesis owner configured")
		return nil
	}
	genesis, err := g.Build()
	if err != nil {
		return err
	}
	if err := l.Genesis(ctx, genesis); err != nil {
		return err
	}
	logger.Info("ledger initialised",
		slog.String("owner", genesis.Owner.String()),
		slog.String("direction", genesis.Direction.String()),
		slog.Int("mint_burners", len(genesis.MintBurners)))
	return nil
}
