package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/config"
	"github.com/t77yq/outbreak-sentinel/internal/detection"
	"github.com/t77yq/outbreak-sentinel/internal/metrics"
	"github.com/t77yq/outbreak-sentinel/internal/monitor"
	"github.com/t77yq/outbreak-sentinel/internal/notify"
	"github.com/t77yq/outbreak-sentinel/internal/scheduler"
	"github.com/t77yq/outbreak-sentinel/internal/service"
	"github.com/t77yq/outbreak-sentinel/internal/storage"
)

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func connectNATS(cfg config.NATSConfig, name string, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ReconnectBufSize(5 * 1024 * 1024), // 5MB
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error",
				zap.String("subject", subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	url := nats.DefaultURL
	if len(cfg.URLs) > 0 {
		url = cfg.URLs[0]
		for _, u := range cfg.URLs[1:] {
			url += "," + u
		}
	}

	// Connect with retry
	var nc *nats.Conn
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(url, opts...)
		if err == nil {
			return nc, nil
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return nil, err
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sentinel-server",
	Short: "Outbreak detection service",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	nc, err := connectNATS(cfg.NATS, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	db, err := storage.Open(logger, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalog: stored rules win, the rules file only seeds an empty store
	seed, err := config.LoadRules(cfg.Engine.RulesFile)
	if err != nil {
		logger.Fatal("Failed to load rules", zap.Error(err))
	}
	catalog, err := service.LoadCatalog(ctx, db.Rules(), seed, logger)
	if err != nil {
		logger.Fatal("Failed to build rule catalog", zap.Error(err))
	}

	engine := detection.NewEngine(catalog,
		detection.WithLogger(logger),
		detection.WithWorkers(cfg.Engine.Workers),
		detection.WithTemplates(cfg.Engine.Templates()),
		detection.WithRecommendations(cfg.Engine.RecommendationTable()),
		detection.WithRecorder(metrics.EngineRecorder{}))

	alertManager := monitor.NewAlertManager(logger, js, engine, db.Reports(), db.Alerts())
	alertManager.AddChannel(notify.NewLogChannel(logger))
	if cfg.Notify.Email.Host != "" {
		alertManager.AddChannel(notify.NewEmailChannel(logger, notify.EmailConfig{
			Host:        cfg.Notify.Email.Host,
			Port:        cfg.Notify.Email.Port,
			Username:    cfg.Notify.Email.Username,
			Password:    cfg.Notify.Email.Password,
			From:        cfg.Notify.Email.From,
			Recipients:  cfg.Notify.Email.Recipients,
			MinSeverity: cfg.Notify.MinSeverity,
		}))
	}
	if err := alertManager.Start(ctx); err != nil {
		logger.Fatal("Failed to start alert manager", zap.Error(err))
	}

	reportService := service.NewReportService(js, db.Reports(), logger)
	if err := reportService.Start(ctx); err != nil {
		logger.Fatal("Failed to start report service", zap.Error(err))
	}

	ruleService := service.NewRuleService(nc, catalog, db.Rules(), logger)
	if err := ruleService.Start(ctx); err != nil {
		logger.Fatal("Failed to start rule service", zap.Error(err))
	}
	defer ruleService.Stop()

	evaluationScheduler := scheduler.NewEvaluationScheduler(alertManager, map[string]scheduler.Purger{
		"reports": db.Reports(),
		"alerts":  db.Alerts(),
	}, scheduler.Config{
		Evaluation: cfg.Schedule.Evaluation,
		Cleanup:    cfg.Schedule.Cleanup,
		Retention:  cfg.Storage.Retention,
	}, logger)
	if err := evaluationScheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	if err := evaluationScheduler.ServeTrigger(nc); err != nil {
		logger.Fatal("Failed to serve evaluation trigger", zap.Error(err))
	}

	collector := monitor.NewMetricsCollector(nc, js, cfg.Metrics.CollectInterval, logger)
	if err := collector.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	evaluationScheduler.Stop()
	reportService.Stop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shut down metrics server", zap.Error(err))
	}

	logger.Info("Server shutting down gracefully")
	return nil
}
