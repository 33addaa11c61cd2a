package technical

import (
	"math"

	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

// Нейтральное значение RSI при нехватке данных
const NeutralRSI = 50

// Analyzer реализует калькулятор технических индикаторов
type Analyzer struct {
	config config.TechnicalConfig
}

// NewAnalyzer создает новый калькулятор технических индикаторов
func NewAnalyzer(cfg config.TechnicalConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// Analyze рассчитывает RSI, MACD и полосы Боллинджера по ценам закрытия
func (a *Analyzer) Analyze(closes []float64) models.IndicatorSet {
	return models.IndicatorSet{
		RSI:       RSI(closes, a.config.RSIPeriod),
		MACD:      MACD(closes, a.config.MACDFast, a.config.MACDSlow),
		Bollinger: BollingerBands(closes, a.config.BBPeriod, a.config.BBMultiplier),
	}
}

// RSI рассчитывает индекс относительной силы по первым period изменениям окна.
// Окно берется от начала среза, а не от конца: вызывающая сторона сама выравнивает срез.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return NeutralRSI
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change >= 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD рассчитывает упрощенный MACD: разницу простых средних за fast и slow последних цен
func MACD(prices []float64, fast, slow int) float64 {
	if fast <= 0 || slow <= 0 || len(prices) < slow || len(prices) < fast {
		return 0
	}
	return mean(prices[len(prices)-fast:]) - mean(prices[len(prices)-slow:])
}

// BollingerBands рассчитывает полосы по популяционной дисперсии последних period цен
func BollingerBands(prices []float64, period int, k float64) models.BollingerBands {
	if period <= 0 || len(prices) < period {
		return models.BollingerBands{}
	}

	recent := prices[len(prices)-period:]
	sma := mean(recent)

	var variance float64
	for _, p := range recent {
		variance += (p - sma) * (p - sma)
	}
	variance /= float64(period)
	sd := math.Sqrt(variance)

	return models.BollingerBands{
		Upper:  sma + sd*k,
		Middle: sma,
		Lower:  sma - sd*k,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
