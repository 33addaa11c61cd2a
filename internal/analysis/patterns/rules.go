package patterns

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

// Имена паттернов
const (
	RSIBearishDivergence       = "RSI_Bearish_Divergence"
	HighVolumeMomentumBreakout = "High_Volume_Momentum_Breakout"
	FundingRateExtreme         = "Funding_Rate_Extreme"
	MACDMomentumConfluence     = "MACD_Momentum_Confluence"
)

// Inputs данные, по которым оцениваются правила
type Inputs struct {
	Prices      []float64
	Volumes     []float64
	RSI         float64
	MACD        float64
	FundingRate float64
	Physics     models.PhysicsMetrics
}

// Rule одно независимое правило: условие срабатывания, оценка силы и константы статистики
type Rule struct {
	Name      string
	Cap       float64
	Frequency int
	Accuracy  float64
	Fires     func(in Inputs) bool
	Score     func(in Inputs) float64
	Signature func(in Inputs) string
}

// Strength возвращает силу, ограниченную диапазоном [0, Cap]
func (r Rule) Strength(in Inputs) float64 {
	s := r.Score(in)
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return math.Min(r.Cap, s)
}

// DefaultRules возвращает четыре правила в фиксированном порядке
func DefaultRules(cfg config.PatternConfig) []Rule {
	return []Rule{
		{
			Name:      RSIBearishDivergence,
			Cap:       0.95,
			Frequency: 23,
			Accuracy:  0.847,
			Fires: func(in Inputs) bool {
				return in.RSI > cfg.RSIOverbought && in.Physics.MomentumVelocity < 0
			},
			Score: func(in Inputs) float64 {
				return (in.RSI-cfg.RSIOverbought)/(100-cfg.RSIOverbought) + 0.5
			},
			Signature: func(in Inputs) string {
				return fmt.Sprintf("RSI(%s) > %s && MomentumVel(%s) < 0",
					fixed(in.RSI, 1), fixed(cfg.RSIOverbought, 0), fixed(in.Physics.MomentumVelocity, 4))
			},
		},
		{
			Name:      HighVolumeMomentumBreakout,
			Cap:       0.98,
			Frequency: 18,
			Accuracy:  0.823,
			Fires: func(in Inputs) bool {
				current, avg, ok := volumeStats(in.Volumes, cfg.VolumeWindow)
				return ok && current > avg*cfg.VolumeSpikeRatio &&
					math.Abs(in.Physics.MomentumVelocity) > cfg.BreakoutVelocity
			},
			Score: func(in Inputs) float64 {
				current, avg, ok := volumeStats(in.Volumes, cfg.VolumeWindow)
				if !ok || avg == 0 {
					return 0
				}
				return (current/avg - 1) + math.Abs(in.Physics.MomentumVelocity)*10
			},
			Signature: func(in Inputs) string {
				current, avg, _ := volumeStats(in.Volumes, cfg.VolumeWindow)
				ratio := 0.0
				if avg != 0 {
					ratio = current / avg
				}
				return fmt.Sprintf("Vol(%sx) && |MomVel|(%s) > %s",
					fixed(ratio, 2), fixed(math.Abs(in.Physics.MomentumVelocity), 4), decimal.NewFromFloat(cfg.BreakoutVelocity).String())
			},
		},
		{
			Name:      FundingRateExtreme,
			Cap:       0.92,
			Frequency: 31,
			Accuracy:  0.791,
			Fires: func(in Inputs) bool {
				return math.Abs(in.FundingRate) > cfg.FundingExtreme
			},
			Score: func(in Inputs) float64 {
				return math.Abs(in.FundingRate) * 2000
			},
			Signature: func(in Inputs) string {
				return fmt.Sprintf("|FundingRate|(%s) > %s",
					fixed(math.Abs(in.FundingRate), 6), decimal.NewFromFloat(cfg.FundingExtreme).String())
			},
		},
		{
			Name:      MACDMomentumConfluence,
			Cap:       0.89,
			Frequency: 45,
			Accuracy:  0.812,
			Fires: func(in Inputs) bool {
				return math.Abs(in.MACD) > cfg.MACDThreshold && sign(in.MACD) == sign(in.Physics.MomentumVelocity)
			},
			Score: func(in Inputs) float64 {
				return math.Abs(in.MACD)/100 + math.Abs(in.Physics.MomentumVelocity)*5
			},
			Signature: func(in Inputs) string {
				return fmt.Sprintf("MACD(%s) && MomVel same sign", fixed(in.MACD, 2))
			},
		},
	}
}

// volumeStats возвращает текущий объем и среднее за последние window значений.
// Делитель всегда равен window, даже если значений меньше.
func volumeStats(volumes []float64, window int) (current, avg float64, ok bool) {
	if len(volumes) == 0 || window <= 0 {
		return 0, 0, false
	}
	start := len(volumes) - window
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, v := range volumes[start:] {
		sum += v
	}
	return volumes[len(volumes)-1], sum / float64(window), true
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
