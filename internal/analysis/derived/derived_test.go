package derived

import (
	"math"
	"testing"
	"time"

	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

func TestScalarHelpers(t *testing.T) {
	if got := MarketCap(100, 19_700_000); got != 1_970_000_000 {
		t.Errorf("MarketCap = %v", got)
	}
	if got := FibonacciResistance(100); math.Abs(got-161.8) > 1e-9 {
		t.Errorf("resistance = %v", got)
	}
	if got := FibonacciSupport(100); math.Abs(got-61.8) > 1e-9 {
		t.Errorf("support = %v", got)
	}
	if got := SupplyDemandRatio(-0.004); got != 0.004 {
		t.Errorf("supply/demand = %v", got)
	}
}

func TestLiquidityIndex(t *testing.T) {
	volumes := []float64{1, 1, 1, 1, 1, 100, 100, 100, 100, 100, 100, 100, 100, 100, 300}
	// avg(last 10) = (9*100 + 300)/10 = 120
	if got := LiquidityIndex(volumes, 10); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("liquidity = %v, want 2.5", got)
	}
	if got := LiquidityIndex([]float64{0, 0, 0}, 10); got != 0 {
		t.Errorf("zero average must give 0, got %v", got)
	}
	if got := LiquidityIndex(nil, 10); got != 0 {
		t.Errorf("empty volumes must give 0, got %v", got)
	}
}

func TestOpenInterestChange(t *testing.T) {
	now := time.Now()
	history := []models.OpenInterest{
		{Value: 110, Timestamp: now},
		{Value: 100, Timestamp: now.Add(-time.Minute)},
		{Value: 50, Timestamp: now.Add(-2 * time.Minute)},
	}
	if got := OpenInterestChange(history); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("change = %v, want 0.1", got)
	}
	if got := OpenInterestChange(history[:1]); got != 0 {
		t.Errorf("single value must give 0, got %v", got)
	}
	if got := OpenInterestChange([]models.OpenInterest{{Value: 5}, {Value: 0}}); got != 0 {
		t.Errorf("zero previous must give 0, got %v", got)
	}
}

func TestEconomicAndLevels(t *testing.T) {
	cfg := config.Default().Analysis.Derived
	eco := Economic(cfg, 0.0003, nil, []float64{10, 10}, models.PhysicsMetrics{MomentumVelocity: 0.01})
	if eco.FundingRate != 0.0003 || eco.SupplyDemandRatio != 0.01 || eco.OpenInterestChange != 0 {
		t.Errorf("economic = %+v", eco)
	}
	// avg = 20/10 = 2, last = 10
	if math.Abs(eco.LiquidityIndex-5) > 1e-12 {
		t.Errorf("liquidity = %v, want 5", eco.LiquidityIndex)
	}

	lv := Levels(200, models.IndicatorSet{RSI: 55, MACD: 1, Bollinger: models.BollingerBands{Upper: 210, Lower: 190}})
	if lv.BollingerUpper != 210 || lv.BollingerLower != 190 || lv.RSI != 55 {
		t.Errorf("levels = %+v", lv)
	}
	if math.Abs(lv.FibonacciResistance-323.6) > 1e-9 {
		t.Errorf("resistance = %v", lv.FibonacciResistance)
	}
}
