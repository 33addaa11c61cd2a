// Package engine собирает конвейер анализа: индикаторы и импульс, затем паттерны и оценку качества.
// Движок не хранит состояния между вызовами и безопасен для параллельного использования.
package engine

import (
	"math"
	"time"

	"github.com/skalibog/patternscope/internal/analysis/derived"
	"github.com/skalibog/patternscope/internal/analysis/momentum"
	"github.com/skalibog/patternscope/internal/analysis/patterns"
	"github.com/skalibog/patternscope/internal/analysis/quality"
	"github.com/skalibog/patternscope/internal/analysis/technical"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

// Input входные данные одного прогона
type Input struct {
	Symbol  string
	Candles []models.Candle
	Aux     models.AuxiliaryMetrics
	// OpenInterestHistory от новых к старым, может быть пустой
	OpenInterestHistory []models.OpenInterest
	AsOf                time.Time
}

// Engine аналитический движок
type Engine struct {
	config    config.AnalysisConfig
	technical *technical.Analyzer
	detector  *patterns.Detector
}

// New создает движок с заданной конфигурацией
func New(cfg config.AnalysisConfig) *Engine {
	return &Engine{
		config:    cfg,
		technical: technical.NewAnalyzer(cfg.Technical),
		detector:  patterns.NewDetector(cfg.Patterns),
	}
}

// NewWithDetector создает движок с собственным детектором паттернов
func NewWithDetector(cfg config.AnalysisConfig, detector *patterns.Detector) *Engine {
	e := New(cfg)
	e.detector = detector
	return e
}

// Analyze выполняет полный прогон. Короткая история не является ошибкой;
// ошибка возвращается только для нечисловых цен закрытия и объемов.
func (e *Engine) Analyze(in Input) (*models.Report, error) {
	closes, volumes, err := Series(in.Candles)
	if err != nil {
		return nil, err
	}

	indicators := e.technical.Analyze(closes)
	physics := momentum.Analyze(closes)

	detected := e.detector.Detect(patterns.Inputs{
		Prices:      closes,
		Volumes:     volumes,
		RSI:         indicators.RSI,
		MACD:        indicators.MACD,
		FundingRate: in.Aux.FundingRate,
		Physics:     physics,
	})

	price := in.Aux.CurrentPrice
	if price == 0 && len(closes) > 0 {
		price = closes[len(closes)-1]
	}

	return &models.Report{
		Symbol:           in.Symbol,
		Timestamp:        in.AsOf,
		CurrentPrice:     price,
		MarketCap:        derived.MarketCap(price, e.config.Derived.CirculatingSupply),
		Volume24h:        in.Aux.Volume24h,
		FundingRate:      in.Aux.FundingRate,
		OpenInterest:     in.Aux.OpenInterest,
		Indicators:       indicators,
		Physics:          physics,
		Technical:        derived.Levels(price, indicators),
		Economic:         derived.Economic(e.config.Derived, in.Aux.FundingRate, in.OpenInterestHistory, volumes, physics),
		DetectedPatterns: detected,
		Quality:          quality.Summarize(detected),
	}, nil
}

// Series извлекает ряды цен закрытия и объемов, проверяя их на конечность
func Series(candles []models.Candle) (closes, volumes []float64, err error) {
	closes = make([]float64, len(candles))
	volumes = make([]float64, len(candles))

	for i, c := range candles {
		if !finite(c.Close) {
			return nil, nil, &InvalidInputError{Index: i, Field: "close", Value: c.Close}
		}
		if !finite(c.Volume) {
			return nil, nil, &InvalidInputError{Index: i, Field: "volume", Value: c.Volume}
		}
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	return closes, volumes, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
