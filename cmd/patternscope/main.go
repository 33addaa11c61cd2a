package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skalibog/patternscope/internal/analysis/aggregator"
	"github.com/skalibog/patternscope/internal/analysis/predictor"
	"github.com/skalibog/patternscope/internal/api"
	"github.com/skalibog/patternscope/internal/cache"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/internal/exchange"
	"github.com/skalibog/patternscope/internal/metrics"
	"github.com/skalibog/patternscope/internal/storage"
	"github.com/skalibog/patternscope/internal/ui"
	"github.com/skalibog/patternscope/pkg/logger"
	"github.com/skalibog/patternscope/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	once := flag.String("once", "", "выполнить один анализ символа и вывести отчет в JSON")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	if err := logger.Init(logger.Options{
		Level:    cfg.Log.Level,
		File:     cfg.Log.File,
		JSONFile: cfg.Log.JSONFile,
		Truncate: cfg.Log.Truncate,
	}); err != nil {
		logger.Fatal("Ошибка инициализации логгера", zap.Error(err))
	}
	defer logger.Sync()

	logger.Info("Запуск PatternScope...")

	// Контекст с отменой по сигналу
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := exchange.NewBinanceClient(cfg.Binance)

	deps, closers := connectBackends(ctx, cfg)
	defer func() {
		var errs error
		for _, closer := range closers {
			errs = multierr.Append(errs, closer())
		}
		if errs != nil {
			logger.Error("Ошибки при закрытии хранилищ", zap.Errors("errors", multierr.Errors(errs)))
		}
	}()

	deps.Provider = client
	deps.Metrics = metrics.New()
	if !cfg.Analysis.Prediction.Disabled {
		deps.Predictor = predictor.WithFallback(predictor.NewStatistical(cfg.Analysis.Prediction, cfg.Trading.Interval))
	}

	analyzer := aggregator.NewAnalyzer(cfg.Analysis, cfg.Trading, deps)

	if *once != "" {
		if err := runOnce(ctx, analyzer, *once); err != nil {
			logger.Fatal("Ошибка анализа", zap.String("symbol", *once), zap.Error(err))
		}
		return
	}

	if cfg.API.Enabled {
		server := api.NewServer(cfg.API, analyzer, deps.Metrics.Handler())
		server.Start()
		defer func() {
			if err := server.Stop(context.Background()); err != nil {
				logger.Error("Ошибка остановки API", zap.Error(err))
			}
		}()
	}

	var userInterface *ui.TermUI
	if cfg.UI.Enabled {
		userInterface = ui.NewTermUI(ctx, cfg.UI)
	}

	go analysisLoop(ctx, analyzer, cfg.Analysis.IntervalSeconds, func(reports map[string]*models.Report) {
		if userInterface != nil {
			userInterface.UpdateReports(reports)
		}
	})

	if userInterface == nil {
		<-ctx.Done()
		logger.Info("Получен сигнал завершения, выход...")
		return
	}

	// UI блокирует основную горутину до выхода пользователя
	if err := userInterface.Run(); err != nil && ctx.Err() == nil {
		logger.Error("Ошибка UI", zap.Error(err))
	}
	stop()
}

// connectBackends подключает необязательные хранилища. Недоступное хранилище пропускается.
func connectBackends(ctx context.Context, cfg *config.Config) (aggregator.Dependencies, []func() error) {
	var deps aggregator.Dependencies
	var closers []func() error

	if cfg.Storage.URL != "" && cfg.Storage.Token != "" {
		store, err := storage.NewInfluxDBStorage(ctx, cfg.Storage)
		if err != nil {
			logger.Warn("InfluxDB недоступна, история не сохраняется", zap.Error(err))
		} else {
			deps.Storage = store
			closers = append(closers, store.Close)
		}
	}

	if cfg.Postgres.DSN != "" {
		repo, err := storage.NewPostgresRepository(ctx, cfg.Postgres, cfg.Analysis.Patterns.MinStoredAccuracy)
		if err != nil {
			logger.Warn("PostgreSQL недоступен, статистика паттернов отключена", zap.Error(err))
		} else {
			deps.Stats = repo
			closers = append(closers, repo.Close)
		}
	}

	if cfg.Redis.Addr != "" {
		reportCache, err := cache.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("Redis недоступен, кэш отчетов отключен", zap.Error(err))
		} else {
			deps.Cache = reportCache
			closers = append(closers, reportCache.Close)
		}
	}

	return deps, closers
}

// analysisLoop запускает анализ сразу и затем по таймеру
func analysisLoop(ctx context.Context, analyzer *aggregator.Analyzer, intervalSeconds int, publish func(map[string]*models.Report)) {
	interval := time.Duration(intervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reports, err := analyzer.GenerateReports(ctx)
		if err != nil {
			logger.Error("Ошибка генерации отчетов", zap.Error(err))
		}
		if len(reports) > 0 {
			publish(reports)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, analyzer *aggregator.Analyzer, symbol string) error {
	report, err := analyzer.Analyze(ctx, symbol)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
