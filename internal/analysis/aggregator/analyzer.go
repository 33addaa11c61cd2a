package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/patternscope/internal/analysis/engine"
	"github.com/skalibog/patternscope/internal/analysis/predictor"
	"github.com/skalibog/patternscope/internal/cache"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/internal/exchange"
	"github.com/skalibog/patternscope/internal/metrics"
	"github.com/skalibog/patternscope/internal/storage"
	"github.com/skalibog/patternscope/pkg/logger"
	"github.com/skalibog/patternscope/pkg/models"
	"go.uber.org/zap"
)

var (
	// ErrReportNotFound для символа еще нет ни одного отчета
	ErrReportNotFound = errors.New("отчет не найден")
	// ErrStatsUnavailable хранилище статистики паттернов не подключено
	ErrStatsUnavailable = errors.New("статистика паттернов недоступна")
)

// Dependencies внешние компоненты анализатора. Все, кроме Provider, необязательны.
type Dependencies struct {
	Provider  exchange.MarketDataProvider
	Storage   storage.Storage
	Stats     storage.PatternStatsRepository
	Cache     cache.ReportCache
	Predictor predictor.Predictor
	Metrics   *metrics.Metrics
}

// Analyzer объединяет получение данных, движок анализа и хранилища
type Analyzer struct {
	config  config.AnalysisConfig
	trading config.TradingConfig
	deps    Dependencies
	engine  *engine.Engine
	now     func() time.Time

	mu     sync.RWMutex
	latest map[string]*models.Report
}

// NewAnalyzer создает новый анализатор
func NewAnalyzer(cfg config.AnalysisConfig, trading config.TradingConfig, deps Dependencies) *Analyzer {
	return &Analyzer{
		config:  cfg,
		trading: trading,
		deps:    deps,
		engine:  engine.New(cfg),
		now:     time.Now,
		latest:  make(map[string]*models.Report),
	}
}

// Symbols возвращает отслеживаемые символы
func (a *Analyzer) Symbols() []string {
	return a.trading.Symbols
}

// GenerateReports строит отчеты для всех отслеживаемых символов
func (a *Analyzer) GenerateReports(ctx context.Context) (map[string]*models.Report, error) {
	results := make(map[string]*models.Report)
	var wg sync.WaitGroup
	var mutex sync.Mutex

	for _, symbol := range a.trading.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()

			report, err := a.Analyze(ctx, sym)
			if err != nil {
				// Логируем ошибку, но продолжаем для других символов
				logger.Error("Ошибка анализа символа", zap.String("symbol", sym), zap.Error(err))
				return
			}

			mutex.Lock()
			results[sym] = report
			mutex.Unlock()
		}(symbol)
	}

	wg.Wait()

	if len(results) == 0 && len(a.trading.Symbols) > 0 {
		return results, fmt.Errorf("не удалось построить ни одного отчета")
	}
	return results, nil
}

// Analyze выполняет полный прогон для одного символа.
// Ошибки хранилищ и кэша пишутся в лог и не прерывают прогон.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*models.Report, error) {
	start := time.Now()
	symbol = strings.ToUpper(symbol)

	snapshot, err := a.deps.Provider.Snapshot(ctx, symbol, a.trading.Interval, a.trading.CandleLimit)
	if err != nil {
		a.failure(metrics.StageFetch)
		return nil, fmt.Errorf("ошибка получения рыночных данных: %w", err)
	}

	oiHistory := a.persistMarketData(ctx, snapshot)

	report, err := a.engine.Analyze(engine.Input{
		Symbol:              symbol,
		Candles:             snapshot.Candles,
		Aux:                 snapshot.Aux,
		OpenInterestHistory: oiHistory,
		AsOf:                a.now(),
	})
	if err != nil {
		a.failure(metrics.StageEngine)
		return nil, fmt.Errorf("ошибка анализа %s: %w", symbol, err)
	}
	report.ID = uuid.NewString()

	logger.Debug("AGGREGATOR: Анализ завершен",
		zap.String("symbol", symbol),
		zap.Float64("rsi", report.Indicators.RSI),
		zap.Float64("velocity", report.Physics.MomentumVelocity),
		zap.Int("patterns", len(report.DetectedPatterns)))

	if a.deps.Predictor != nil && !a.config.Prediction.Disabled {
		closes, _, _ := engine.Series(snapshot.Candles)
		prediction, err := a.deps.Predictor.Predict(ctx, report, closes)
		if err != nil {
			a.failure(metrics.StagePredict)
			logger.Warn("Предупреждение: прогноз недоступен", zap.String("symbol", symbol), zap.Error(err))
		} else {
			report.Prediction = prediction
		}
	}

	a.persistReport(ctx, report)

	a.mu.Lock()
	a.latest[symbol] = report
	a.mu.Unlock()

	if a.deps.Metrics != nil {
		a.deps.Metrics.ObserveReport(report, time.Since(start))
	}

	return report, nil
}

// persistMarketData сохраняет свечи и открытый интерес и возвращает историю открытого интереса
func (a *Analyzer) persistMarketData(ctx context.Context, snapshot *models.MarketSnapshot) []models.OpenInterest {
	var fallback []models.OpenInterest
	if snapshot.OpenInterest != nil {
		fallback = []models.OpenInterest{*snapshot.OpenInterest}
	}

	if a.deps.Storage == nil {
		return fallback
	}

	if err := a.deps.Storage.SaveCandles(ctx, snapshot.Candles); err != nil {
		a.failure(metrics.StageStorage)
		logger.Warn("Предупреждение: не удалось сохранить свечи", zap.String("symbol", snapshot.Symbol), zap.Error(err))
	}

	if err := a.deps.Storage.SaveOpenInterest(ctx, snapshot.OpenInterest); err != nil {
		a.failure(metrics.StageStorage)
		logger.Warn("Предупреждение: не удалось сохранить открытый интерес", zap.String("symbol", snapshot.Symbol), zap.Error(err))
		return fallback
	}

	history, err := a.deps.Storage.GetOpenInterest(ctx, snapshot.Symbol, 2)
	if err != nil {
		a.failure(metrics.StageStorage)
		logger.Warn("Предупреждение: история открытого интереса недоступна", zap.String("symbol", snapshot.Symbol), zap.Error(err))
		return fallback
	}
	return history
}

// persistReport сохраняет отчет, статистику паттернов и кэш
func (a *Analyzer) persistReport(ctx context.Context, report *models.Report) {
	if a.deps.Storage != nil {
		if err := a.deps.Storage.SaveReport(ctx, report); err != nil {
			a.failure(metrics.StageStorage)
			logger.Warn("Предупреждение: не удалось сохранить отчет", zap.String("symbol", report.Symbol), zap.Error(err))
		}
	}

	if a.deps.Stats != nil {
		if err := a.deps.Stats.RecordPatterns(ctx, report.DetectedPatterns, report.Timestamp); err != nil {
			a.failure(metrics.StageStats)
			logger.Warn("Предупреждение: не удалось обновить статистику паттернов", zap.String("symbol", report.Symbol), zap.Error(err))
		}
	}

	if a.deps.Cache != nil {
		ttl := time.Duration(a.config.ReportCacheTTLSeconds) * time.Second
		if err := a.deps.Cache.Set(ctx, report, ttl); err != nil {
			a.failure(metrics.StageCache)
			logger.Warn("Предупреждение: не удалось записать отчет в кэш", zap.String("symbol", report.Symbol), zap.Error(err))
		}
	}
}

// LatestReport возвращает последний отчет: из кэша, из памяти или из хранилища
func (a *Analyzer) LatestReport(ctx context.Context, symbol string) (*models.Report, error) {
	symbol = strings.ToUpper(symbol)

	if a.deps.Cache != nil {
		report, err := a.deps.Cache.Get(ctx, symbol)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			a.failure(metrics.StageCache)
			logger.Warn("Предупреждение: кэш недоступен", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	a.mu.RLock()
	report, ok := a.latest[symbol]
	a.mu.RUnlock()
	if ok {
		return report, nil
	}

	if a.deps.Storage != nil {
		history, err := a.deps.Storage.GetReportHistory(ctx, symbol, 1)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения истории отчетов: %w", err)
		}
		if len(history) > 0 {
			return history[0], nil
		}
	}

	return nil, ErrReportNotFound
}

// ReportHistory возвращает историю отчетов символа
func (a *Analyzer) ReportHistory(ctx context.Context, symbol string, limit int) ([]*models.Report, error) {
	if a.deps.Storage == nil {
		return nil, ErrReportNotFound
	}
	return a.deps.Storage.GetReportHistory(ctx, strings.ToUpper(symbol), limit)
}

// TopPatterns возвращает лучшие паттерны по точности
func (a *Analyzer) TopPatterns(ctx context.Context, limit int) ([]models.PatternStat, error) {
	if a.deps.Stats == nil {
		return nil, ErrStatsUnavailable
	}
	return a.deps.Stats.TopPatterns(ctx, limit)
}

// LogPrediction записывает прогноз в журнал, подставляя значения по умолчанию
func (a *Analyzer) LogPrediction(ctx context.Context, p *models.PredictionLog) error {
	if a.deps.Stats == nil {
		return ErrStatsUnavailable
	}
	ApplyPredictionDefaults(p, a.now())
	return a.deps.Stats.InsertPrediction(ctx, p)
}

// ApplyPredictionDefaults заполняет незаданные поля записи прогноза
func ApplyPredictionDefaults(p *models.PredictionLog, now time.Time) {
	if p.TS.IsZero() {
		p.TS = now
	}
	if p.Symbol == "" {
		p.Symbol = "BTCUSDT"
	}
	if p.Probs == nil {
		p.Probs = map[string]float64{"increase": 0, "flat": 1, "decrease": 0}
	}
	if p.PatternHash == "" {
		p.PatternHash = "unknown"
	}
	if p.Features == nil {
		p.Features = map[string]any{"note": "no features provided"}
	}
}

func (a *Analyzer) failure(stage string) {
	if a.deps.Metrics != nil {
		a.deps.Metrics.Failure(stage)
	}
}
