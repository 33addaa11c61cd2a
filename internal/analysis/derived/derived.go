// Package derived содержит вспомогательные скалярные метрики для отчетов и подсказок.
// Они не влияют на индикаторы и паттерны.
package derived

import (
	"math"

	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

// Константы уровней Фибоначчи
const (
	FibonacciResistanceRatio = 1.618
	FibonacciSupportRatio    = 0.618
)

// MarketCap оценивает капитализацию по фиксированному предложению монет
func MarketCap(price, supply float64) float64 {
	return price * supply
}

// FibonacciResistance уровень сопротивления
func FibonacciResistance(price float64) float64 {
	return price * FibonacciResistanceRatio
}

// FibonacciSupport уровень поддержки
func FibonacciSupport(price float64) float64 {
	return price * FibonacciSupportRatio
}

// LiquidityIndex отношение последнего объема к среднему за window значений (делитель всегда window).
// Возвращает 0, если среднее равно нулю.
func LiquidityIndex(volumes []float64, window int) float64 {
	if len(volumes) == 0 || window <= 0 {
		return 0
	}
	start := len(volumes) - window
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, v := range volumes[start:] {
		sum += v
	}
	avg := sum / float64(window)
	if avg == 0 {
		return 0
	}
	return volumes[len(volumes)-1] / avg
}

// SupplyDemandRatio прокси соотношения спроса и предложения
func SupplyDemandRatio(velocity float64) float64 {
	return math.Abs(velocity)
}

// OpenInterestChange относительное изменение открытого интереса между двумя последними значениями.
// history упорядочена от новых к старым, как ее возвращает хранилище.
func OpenInterestChange(history []models.OpenInterest) float64 {
	if len(history) < 2 {
		return 0
	}
	current := history[0].Value
	prev := history[1].Value
	if prev == 0 || math.IsNaN(prev) || math.IsNaN(current) {
		return 0
	}
	return (current - prev) / prev
}

// Levels собирает технические уровни отчета
func Levels(price float64, set models.IndicatorSet) models.TechnicalLevels {
	return models.TechnicalLevels{
		RSI:                 set.RSI,
		MACD:                set.MACD,
		BollingerUpper:      set.Bollinger.Upper,
		BollingerLower:      set.Bollinger.Lower,
		FibonacciResistance: FibonacciResistance(price),
		FibonacciSupport:    FibonacciSupport(price),
	}
}

// Economic собирает экономические факторы отчета
func Economic(cfg config.DerivedConfig, fundingRate float64, oiHistory []models.OpenInterest, volumes []float64, physics models.PhysicsMetrics) models.EconomicFactors {
	return models.EconomicFactors{
		FundingRate:        fundingRate,
		OpenInterestChange: OpenInterestChange(oiHistory),
		SupplyDemandRatio:  SupplyDemandRatio(physics.MomentumVelocity),
		LiquidityIndex:     LiquidityIndex(volumes, cfg.LiquidityWindow),
	}
}
