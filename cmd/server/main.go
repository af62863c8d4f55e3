package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/analytics"
	"github.com/aegisshield/security-orchestrator/internal/archive"
	"github.com/aegisshield/security-orchestrator/internal/audit"
	"github.com/aegisshield/security-orchestrator/internal/config"
	"github.com/aegisshield/security-orchestrator/internal/cryptoprov"
	"github.com/aegisshield/security-orchestrator/internal/detection"
	"github.com/aegisshield/security-orchestrator/internal/events"
	"github.com/aegisshield/security-orchestrator/internal/handlers"
	"github.com/aegisshield/security-orchestrator/internal/metrics"
	"github.com/aegisshield/security-orchestrator/internal/orchestrator"
	"github.com/aegisshield/security-orchestrator/internal/realtime"
	"github.com/aegisshield/security-orchestrator/internal/response"
	"github.com/aegisshield/security-orchestrator/internal/server"
	"github.com/aegisshield/security-orchestrator/internal/trust"
	"github.com/aegisshield/security-orchestrator/internal/zerotrust"
)

var (
	Version   = "1.0.0"
	GitCommit = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := initLogger(cfg.Environment)
	defer logger.Sync()

	if showVersion {
		logger.Info("Security Orchestrator",
			zap.String("version", Version),
			zap.String("git_commit", GitCommit))
		return
	}

	logger.Info("Starting Security Orchestrator",
		zap.String("version", Version),
		zap.String("environment", cfg.Environment))

	// Trust factor capabilities
	evaluator := trust.NewEvaluator(
		trust.NewJWTCredentialVerifier(cfg.ZeroTrust.JWTSecret, cfg.ZeroTrust.JWTIssuer),
		trust.NewMemoryDeviceRegistry(cfg.ZeroTrust.DeviceTrustScore, 0.5),
		trust.NewDenylistLocationChecker(0.9),
		trust.NewBaselineBehaviorModel(0.8),
		weightsFromConfig(cfg.ZeroTrust.FactorWeights),
		logger,
	)

	policyEngine := zerotrust.NewEngine(
		cfg.ZeroTrust,
		evaluator,
		zerotrust.StaticPolicySource{Policies: zerotrust.DefaultPolicies()},
		zerotrust.NewMemoryPermissionStore(),
		logger,
	)
	detector := detection.NewDetector(cfg.Detection, detection.HeuristicModelSource{}, logger)
	responder := response.NewEngine(cfg.Response, response.NewPlaybookRegistry(), logger)
	aggregator := analytics.NewAggregator(cfg.Analytics, logger)
	trail := audit.NewLogger(cfg.Audit, logger)

	provider, err := cryptoprov.NewAEADProvider(cfg.Crypto.Algorithm, cfg.Crypto.HybridMode)
	if err != nil {
		logger.Fatal("Failed to configure crypto provider", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	opts := []orchestrator.Option{orchestrator.WithMetrics(collector)}

	if cfg.Events.Enabled {
		publisher, err := events.NewRedisPublisher(context.Background(), cfg.Events, logger)
		if err != nil {
			logger.Fatal("Failed to connect event publisher", zap.Error(err))
		}
		opts = append(opts, orchestrator.WithPublisher(publisher))
	}
	if cfg.Archive.Enabled {
		store, err := archive.Open(cfg.Archive.DSN, logger)
		if err != nil {
			logger.Fatal("Failed to open archive store", zap.Error(err))
		}
		opts = append(opts, orchestrator.WithArchive(store))
		trail.SetSink(func(entry audit.Entry) {
			if err := store.SaveAuditEntry(entry); err != nil {
				logger.Warn("Audit archive failed", zap.Error(err))
			}
		})
	}

	orch := orchestrator.New(policyEngine, detector, responder, aggregator, provider, trail, logger, opts...)

	if err := orch.Start(); err != nil {
		logger.Fatal("Failed to start orchestrator", zap.Error(err))
	}

	hub := realtime.NewHub(logger)
	go hub.Run()

	handler := handlers.NewHandler(orch, hub, collector, registry, logger)
	srv := server.New(cfg.Server, handler, cfg.Environment, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	hub.Close()
	if err := orch.Stop(); err != nil {
		logger.Error("Orchestrator stop failed", zap.Error(err))
	}

	logger.Info("Security Orchestrator stopped")
}

func initLogger(environment string) *zap.Logger {
	var logger *zap.Logger
	var err error

	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}

func weightsFromConfig(raw map[string]float64) trust.Weights {
	if len(raw) == 0 {
		return trust.EqualWeights()
	}
	return trust.Weights{
		Credentials: raw["credentials"],
		Device:      raw["device"],
		Location:    raw["location"],
		Behavior:    raw["behavior"],
	}
}
