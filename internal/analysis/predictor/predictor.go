// Package predictor строит прогнозы по горизонтам поверх готового отчета
package predictor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skalibog/patternscope/pkg/logger"
	"github.com/skalibog/patternscope/pkg/models"
	"go.uber.org/zap"
)

// Predictor формирует прогноз для отчета
type Predictor interface {
	Predict(ctx context.Context, report *models.Report, closes []float64) (*models.Prediction, error)
}

// Значения прогноза по умолчанию
const (
	FallbackConfidence = 0.5
	FallbackStdDev     = 0.025
	FallbackVaR95      = 0.05
	FallbackVaR99      = 0.08
)

// Позиции рынка и уровни риска
const (
	BiasBullish = "Bullish"
	BiasBearish = "Bearish"
	BiasNeutral = "Neutral"

	LevelLow    = "Low"
	LevelMedium = "Medium"
	LevelHigh   = "High"
)

// Fallback возвращает прогноз по умолчанию: Flat на всех горизонтах с уверенностью 0.5
func Fallback(price float64) *models.Prediction {
	predictions := make(map[string]models.HorizonPrediction, len(models.Horizons()))
	for _, h := range models.Horizons() {
		predictions[h] = models.HorizonPrediction{
			Direction:         models.DirectionFlat,
			Confidence:        FallbackConfidence,
			TargetPrice:       price,
			MathematicalBasis: "fallback",
		}
	}

	return &models.Prediction{
		Predictions: predictions,
		MarketStance: models.MarketStance{
			OverallBias: BiasNeutral,
			Confidence:  FallbackConfidence,
			RiskLevel:   LevelMedium,
		},
		VolatilityMetrics: models.VolatilityMetrics{
			StandardDeviation: FallbackStdDev,
			VaR95:             FallbackVaR95,
			VaR99:             FallbackVaR99,
			VolatilityRegime:  LevelMedium,
		},
	}
}

type fallbackPredictor struct {
	next Predictor
}

// WithFallback оборачивает предиктор: при ошибке или панике пишет в лог и возвращает Fallback
func WithFallback(next Predictor) Predictor {
	return &fallbackPredictor{next: next}
}

func (p *fallbackPredictor) Predict(ctx context.Context, report *models.Report, closes []float64) (result *models.Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника при построении прогноза", zap.String("symbol", symbolOf(report)), zap.Any("panic", r))
			result, err = Fallback(priceOf(report)), nil
		}
	}()

	prediction, err := p.next.Predict(ctx, report, closes)
	if err != nil || prediction == nil {
		logger.Warn("Используется прогноз по умолчанию", zap.String("symbol", symbolOf(report)), zap.Error(err))
		return Fallback(priceOf(report)), nil
	}
	return prediction, nil
}

func symbolOf(report *models.Report) string {
	if report == nil {
		return ""
	}
	return report.Symbol
}

func priceOf(report *models.Report) float64 {
	if report == nil {
		return 0
	}
	return report.CurrentPrice
}

// HorizonDuration возвращает длительность горизонта прогноза
func HorizonDuration(horizon string) (time.Duration, error) {
	return ParseInterval(horizon)
}

// ParseInterval разбирает интервал свечей в формате биржи: 1m, 5m, 1h, 4h, 1d, 1w
func ParseInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("некорректный интервал: %q", interval)
	}

	unit := interval[len(interval)-1:]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("некорректный интервал: %q", interval)
	}

	switch strings.ToLower(unit) {
	case "m":
		if unit == "M" {
			return time.Duration(n) * 30 * 24 * time.Hour, nil
		}
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("неизвестная единица интервала: %q", interval)
}
