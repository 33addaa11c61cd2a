package predictor

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/patternscope/internal/analysis/patterns"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

const (
	// VolatilityWindow число доходностей для расчета стандартного отклонения
	VolatilityWindow = 20

	z95 = 1.645
	z99 = 2.326

	lowVolatility  = 0.01
	highVolatility = 0.03

	// скорость ниже этого порога считается боковиком
	flatVelocity = 0.0005
	// штраф уверенности при расхождении скорости и MACD
	disagreementFactor = 0.9
	maxConfidence      = 0.99
)

// затухание уверенности с ростом горизонта
var horizonDecay = map[string]float64{
	models.Horizon10m: 1.0,
	models.Horizon30m: 0.97,
	models.Horizon1h:  0.94,
	models.Horizon24h: 0.85,
}

// Statistical строит прогноз из метрик отчета без внешних моделей
type Statistical struct {
	config   config.PredictionConfig
	interval string
}

// NewStatistical создает статистический предиктор для заданного интервала свечей
func NewStatistical(cfg config.PredictionConfig, interval string) *Statistical {
	return &Statistical{
		config:   cfg,
		interval: interval,
	}
}

// Predict реализует интерфейс Predictor
func (s *Statistical) Predict(ctx context.Context, report *models.Report, closes []float64) (*models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("пустой отчет")
	}

	step, err := ParseInterval(s.interval)
	if err != nil {
		return nil, fmt.Errorf("ошибка интервала свечей: %w", err)
	}

	price := report.CurrentPrice
	velocity := report.Physics.MomentumVelocity
	bias := Bias(velocity, report.Indicators.MACD)
	volatility := Volatility(closes)

	agreement := 1.0
	if bias == BiasNeutral {
		agreement = disagreementFactor
	}
	base := report.Quality.MathematicalConfidence * agreement

	predictions := make(map[string]models.HorizonPrediction, len(models.Horizons()))
	for _, h := range models.Horizons() {
		d, err := HorizonDuration(h)
		if err != nil {
			return nil, err
		}
		steps := float64(d) / float64(step)
		confidence := math.Min(maxConfidence, base*horizonDecay[h])

		direction := Direction(velocity)
		target := price * (1 + velocity*steps)
		if confidence < s.config.ConfidenceThreshold {
			direction = models.DirectionNoSignal
			target = price
		}

		predictions[h] = models.HorizonPrediction{
			Direction:   direction,
			Confidence:  confidence,
			TargetPrice: target,
			MathematicalBasis: fmt.Sprintf("v=%.5f, steps=%.0f, MACD=%.2f, sd=%.4f",
				velocity, steps, report.Indicators.MACD, volatility.StandardDeviation),
		}
	}

	return &models.Prediction{
		Predictions: predictions,
		MarketStance: models.MarketStance{
			OverallBias:             bias,
			Confidence:              math.Min(maxConfidence, base),
			RiskLevel:               volatility.VolatilityRegime,
			BigManipulationDetected: manipulation(report.DetectedPatterns),
		},
		VolatilityMetrics: volatility,
	}, nil
}

// Bias определяет общую позицию: совпадение знаков скорости и MACD
func Bias(velocity, macd float64) string {
	switch {
	case velocity > 0 && macd > 0:
		return BiasBullish
	case velocity < 0 && macd < 0:
		return BiasBearish
	default:
		return BiasNeutral
	}
}

// Direction переводит скорость в направление движения цены
func Direction(velocity float64) string {
	switch {
	case velocity > flatVelocity:
		return models.DirectionIncrease
	case velocity < -flatVelocity:
		return models.DirectionDecrease
	default:
		return models.DirectionFlat
	}
}

// Volatility рассчитывает стандартное отклонение процентных доходностей за последние VolatilityWindow значений.
// При нехватке данных возвращает значения по умолчанию.
func Volatility(closes []float64) models.VolatilityMetrics {
	returns := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	if len(returns) < 2 {
		return Fallback(0).VolatilityMetrics
	}

	period := VolatilityWindow
	if len(returns) < period {
		period = len(returns)
	}
	sd := talib.StdDev(returns, period, 1)
	last := sd[len(sd)-1]
	if math.IsNaN(last) {
		return Fallback(0).VolatilityMetrics
	}

	return models.VolatilityMetrics{
		StandardDeviation: last,
		VaR95:             z95 * last,
		VaR99:             z99 * last,
		VolatilityRegime:  Regime(last),
	}
}

// Regime классифицирует стандартное отклонение доходностей
func Regime(sd float64) string {
	switch {
	case sd < lowVolatility:
		return LevelLow
	case sd < highVolatility:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// всплеск объема вместе с экстремальным фандингом
func manipulation(records []models.PatternRecord) bool {
	var breakout, funding bool
	for _, r := range records {
		switch r.PatternName {
		case patterns.HighVolumeMomentumBreakout:
			breakout = true
		case patterns.FundingRateExtreme:
			funding = true
		}
	}
	return breakout && funding
}
