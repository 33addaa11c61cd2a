package aggregator

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/skalibog/patternscope/internal/analysis/engine"
	"github.com/skalibog/patternscope/internal/analysis/predictor"
	"github.com/skalibog/patternscope/internal/cache"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/internal/metrics"
	"github.com/skalibog/patternscope/pkg/models"
)

type fakeProvider struct {
	err      error
	snapshot func(symbol string) *models.MarketSnapshot
}

func (f *fakeProvider) Snapshot(_ context.Context, symbol, interval string, limit int) (*models.MarketSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot(symbol), nil
}

func risingSnapshot(symbol string) *models.MarketSnapshot {
	candles := make([]models.Candle, 200)
	for i := range candles {
		candles[i] = models.Candle{
			Symbol:    symbol,
			Interval:  "5m",
			Timestamp: int64(i) * 300_000,
			Close:     100 + float64(i),
			Volume:    100,
		}
	}
	candles[199].Volume = 300
	return &models.MarketSnapshot{
		Symbol:       symbol,
		Interval:     "5m",
		Candles:      candles,
		Aux:          models.AuxiliaryMetrics{CurrentPrice: 299, FundingRate: 0.001},
		OpenInterest: &models.OpenInterest{Symbol: symbol, Value: 110},
	}
}

type fakeStorage struct {
	mu       sync.Mutex
	candles  int
	oi       []models.OpenInterest
	reports  []*models.Report
	saveErr  error
	previous float64
}

func (s *fakeStorage) SaveCandles(_ context.Context, candles []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles += len(candles)
	return s.saveErr
}

func (s *fakeStorage) GetCandles(context.Context, string, string, int) ([]models.Candle, error) {
	return nil, nil
}

func (s *fakeStorage) SaveOpenInterest(_ context.Context, oi *models.OpenInterest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if oi != nil {
		s.oi = append([]models.OpenInterest{*oi}, s.oi...)
	}
	return nil
}

func (s *fakeStorage) GetOpenInterest(_ context.Context, _ string, limit int) ([]models.OpenInterest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append([]models.OpenInterest{}, s.oi...)
	if s.previous != 0 {
		history = append(history, models.OpenInterest{Value: s.previous})
	}
	if len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (s *fakeStorage) SaveReport(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return s.saveErr
}

func (s *fakeStorage) GetReportHistory(_ context.Context, symbol string, limit int) ([]*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Report
	for i := len(s.reports) - 1; i >= 0 && len(out) < limit; i-- {
		if s.reports[i].Symbol == symbol {
			out = append(out, s.reports[i])
		}
	}
	return out, nil
}

func (s *fakeStorage) Close() error { return nil }

type fakeStats struct {
	mu          sync.Mutex
	recorded    []models.PatternRecord
	predictions []*models.PredictionLog
}

func (f *fakeStats) RecordPatterns(_ context.Context, records []models.PatternRecord, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, records...)
	return nil
}

func (f *fakeStats) TopPatterns(context.Context, int) ([]models.PatternStat, error) {
	return []models.PatternStat{{PatternHash: "High_Volume_Momentum_Breakout", Count: 1}}, nil
}

func (f *fakeStats) InsertPrediction(_ context.Context, p *models.PredictionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictions = append(f.predictions, p)
	return nil
}

func (f *fakeStats) Close() error { return nil }

type fakeCache struct {
	mu      sync.Mutex
	reports map[string]*models.Report
	ttl     time.Duration
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{reports: make(map[string]*models.Report)}
}

func (c *fakeCache) Set(_ context.Context, r *models.Report, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[r.Symbol] = r
	c.ttl = ttl
	return nil
}

func (c *fakeCache) Get(_ context.Context, symbol string) (*models.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	r, ok := c.reports[symbol]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return r, nil
}

func (c *fakeCache) Close() error { return nil }

func newTestAnalyzer(deps Dependencies, symbols ...string) *Analyzer {
	cfg := config.Default()
	trading := cfg.Trading
	if len(symbols) > 0 {
		trading.Symbols = symbols
	}
	a := NewAnalyzer(cfg.Analysis, trading, deps)
	a.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestAnalyze_FullPipeline(t *testing.T) {
	store := &fakeStorage{previous: 100}
	stats := &fakeStats{}
	c := newFakeCache()
	m := metrics.New()
	cfg := config.Default()

	a := newTestAnalyzer(Dependencies{
		Provider:  &fakeProvider{snapshot: risingSnapshot},
		Storage:   store,
		Stats:     stats,
		Cache:     c,
		Predictor: predictor.WithFallback(predictor.NewStatistical(cfg.Analysis.Prediction, cfg.Trading.Interval)),
		Metrics:   m,
	})

	report, err := a.Analyze(context.Background(), "btcusdt")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if report.ID == "" || report.Symbol != "BTCUSDT" {
		t.Errorf("report envelope = %q %q", report.ID, report.Symbol)
	}
	if len(report.DetectedPatterns) != 2 {
		t.Errorf("patterns = %+v", report.DetectedPatterns)
	}
	if math.Abs(report.Economic.OpenInterestChange-0.1) > 1e-12 {
		t.Errorf("oi change = %v, want 0.1", report.Economic.OpenInterestChange)
	}
	if report.Prediction == nil || len(report.Prediction.Predictions) != 4 {
		t.Fatalf("prediction = %+v", report.Prediction)
	}
	if !report.Prediction.MarketStance.BigManipulationDetected {
		t.Error("breakout with extreme funding must set manipulation flag")
	}

	if store.candles != 200 || len(store.reports) != 1 {
		t.Errorf("storage candles=%d reports=%d", store.candles, len(store.reports))
	}
	// Funding_Rate_Extreme ниже порога точности, но фильтрует репозиторий
	if len(stats.recorded) != 2 {
		t.Errorf("recorded = %+v", stats.recorded)
	}
	if c.reports["BTCUSDT"] != report || c.ttl != 300*time.Second {
		t.Errorf("cache ttl = %v", c.ttl)
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "patternscope_analysis_runs_total"); err != nil || n != 1 {
		t.Errorf("runs series = %d, %v", n, err)
	}
}

func TestAnalyze_FetchErrorAborts(t *testing.T) {
	m := metrics.New()
	store := &fakeStorage{}
	a := newTestAnalyzer(Dependencies{
		Provider: &fakeProvider{err: errors.New("exchange down")},
		Storage:  store,
		Metrics:  m,
	})

	if _, err := a.Analyze(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("expected error")
	}
	if len(store.reports) != 0 {
		t.Error("no report must be stored")
	}
	if _, err := a.LatestReport(context.Background(), "BTCUSDT"); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("err = %v, want ErrReportNotFound", err)
	}
}

func TestAnalyze_InvalidCandles(t *testing.T) {
	a := newTestAnalyzer(Dependencies{
		Provider: &fakeProvider{snapshot: func(symbol string) *models.MarketSnapshot {
			s := risingSnapshot(symbol)
			s.Candles[10].Close = math.NaN()
			return s
		}},
	})

	_, err := a.Analyze(context.Background(), "BTCUSDT")
	var invalid *engine.InvalidInputError
	if !errors.As(err, &invalid) || invalid.Index != 10 {
		t.Errorf("err = %v, want InvalidInputError at 10", err)
	}
}

func TestAnalyze_StorageErrorsDoNotAbort(t *testing.T) {
	a := newTestAnalyzer(Dependencies{
		Provider: &fakeProvider{snapshot: risingSnapshot},
		Storage:  &fakeStorage{saveErr: errors.New("influx down")},
	})

	report, err := a.Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("storage failure must not abort: %v", err)
	}
	if report.Prediction != nil {
		t.Error("no predictor configured, prediction must be nil")
	}
}

func TestGenerateReports(t *testing.T) {
	a := newTestAnalyzer(Dependencies{
		Provider: &fakeProvider{snapshot: risingSnapshot},
	}, "BTCUSDT", "ETHUSDT", "SOLUSDT")

	reports, err := a.GenerateReports(context.Background())
	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("reports = %d, want 3", len(reports))
	}
	for sym, r := range reports {
		if r.Symbol != sym {
			t.Errorf("report for %s has symbol %s", sym, r.Symbol)
		}
	}

	a = newTestAnalyzer(Dependencies{Provider: &fakeProvider{err: errors.New("down")}}, "BTCUSDT")
	if _, err := a.GenerateReports(context.Background()); err == nil {
		t.Error("expected error when every symbol fails")
	}
}

func TestLatestReport_Sources(t *testing.T) {
	c := newFakeCache()
	store := &fakeStorage{}
	a := newTestAnalyzer(Dependencies{
		Provider: &fakeProvider{snapshot: risingSnapshot},
		Storage:  store,
		Cache:    c,
	})

	report, err := a.Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}

	got, err := a.LatestReport(context.Background(), "btcusdt")
	if err != nil || got != report {
		t.Fatalf("cached report = %v, %v", got, err)
	}

	// кэш недоступен: отчет берется из памяти
	c.getErr = errors.New("redis down")
	if got, err := a.LatestReport(context.Background(), "BTCUSDT"); err != nil || got != report {
		t.Errorf("in-memory report = %v, %v", got, err)
	}

	// новый анализатор без памяти читает хранилище
	b := newTestAnalyzer(Dependencies{Provider: &fakeProvider{snapshot: risingSnapshot}, Storage: store})
	if got, err := b.LatestReport(context.Background(), "BTCUSDT"); err != nil || got.ID != report.ID {
		t.Errorf("stored report = %v, %v", got, err)
	}
}

func TestReportHistory(t *testing.T) {
	store := &fakeStorage{}
	a := newTestAnalyzer(Dependencies{Provider: &fakeProvider{snapshot: risingSnapshot}, Storage: store})

	first, err := a.Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}

	history, err := a.ReportHistory(context.Background(), "btcusdt", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].ID != second.ID || history[1].ID != first.ID {
		t.Errorf("history = %v", history)
	}

	empty := newTestAnalyzer(Dependencies{Provider: &fakeProvider{snapshot: risingSnapshot}})
	if _, err := empty.ReportHistory(context.Background(), "BTCUSDT", 5); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestLogPredictionDefaults(t *testing.T) {
	stats := &fakeStats{}
	a := newTestAnalyzer(Dependencies{Provider: &fakeProvider{snapshot: risingSnapshot}, Stats: stats})

	err := a.LogPrediction(context.Background(), &models.PredictionLog{Horizon: "1h", Label: "Flat"})
	if err != nil {
		t.Fatal(err)
	}
	p := stats.predictions[0]
	if p.Symbol != "BTCUSDT" || p.PatternHash != "unknown" || p.Probs["flat"] != 1 || p.TS.IsZero() {
		t.Errorf("prediction = %+v", p)
	}
	if p.Features["note"] != "no features provided" {
		t.Errorf("features = %v", p.Features)
	}

	empty := newTestAnalyzer(Dependencies{Provider: &fakeProvider{snapshot: risingSnapshot}})
	if err := empty.LogPrediction(context.Background(), &models.PredictionLog{}); !errors.Is(err, ErrStatsUnavailable) {
		t.Errorf("err = %v", err)
	}
	if _, err := empty.TopPatterns(context.Background(), 10); !errors.Is(err, ErrStatsUnavailable) {
		t.Errorf("err = %v", err)
	}
}
