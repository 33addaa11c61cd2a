package technical

import (
	"math"
	"testing"

	"github.com/skalibog/patternscope/internal/config"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func TestRSI_ShortInputIsNeutral(t *testing.T) {
	for n := 0; n < 15; n++ {
		if got := RSI(rising(n), 14); got != NeutralRSI {
			t.Errorf("len=%d: RSI=%v, want 50", n, got)
		}
	}
}

func TestRSI_FlatIsHundred(t *testing.T) {
	// Нет изменений: avgLoss == 0
	if got := RSI(flat(30, 100), 14); got != 100 {
		t.Errorf("RSI=%v, want 100", got)
	}
}

func TestRSI_HandCalculated(t *testing.T) {
	// Изменения: +2, -1, +2, -1 → gains=4, losses=2, period=4
	// RS = 1/0.5 = 2 → RSI = 100 - 100/3 = 66.6667
	prices := []float64{10, 12, 11, 13, 12}
	assertClose(t, "RSI(4)", RSI(prices, 4), 100-100.0/3, 1e-9)
}

func TestRSI_UsesFirstWindowOfSlice(t *testing.T) {
	// Первые 15 цен растут, затем длинное падение. RSI смотрит только на начало окна,
	// поэтому падение в конце не влияет на результат. Это отличается от классического RSI.
	prices := rising(15)
	for i := 0; i < 50; i++ {
		prices = append(prices, 114-float64(i))
	}
	if got := RSI(prices, 14); got != 100 {
		t.Errorf("RSI=%v, want 100 (first-window alignment)", got)
	}
}

func TestRSI_Bounded(t *testing.T) {
	prices := []float64{100, 90, 95, 80, 85, 70, 75, 60, 65, 50, 55, 40, 45, 30, 35, 20}
	got := RSI(prices, 14)
	if got < 0 || got > 100 {
		t.Errorf("RSI=%v out of [0,100]", got)
	}
}

func TestMACD_ShortInputIsZero(t *testing.T) {
	for n := 0; n < 26; n++ {
		if got := MACD(rising(n), 12, 26); got != 0 {
			t.Errorf("len=%d: MACD=%v, want 0", n, got)
		}
	}
}

func TestMACD_SimpleAverageDifference(t *testing.T) {
	// close[i] = 100+i, len=200:
	// mean(last 12) = 299 - 5.5 = 293.5, mean(last 26) = 299 - 12.5 = 286.5
	assertClose(t, "MACD", MACD(rising(200), 12, 26), 7, 1e-9)
	assertClose(t, "MACD flat", MACD(flat(30, 250), 12, 26), 0, 1e-12)
}

func TestBollingerBands_ShortInputIsZero(t *testing.T) {
	bb := BollingerBands(rising(19), 20, 2)
	if bb.Upper != 0 || bb.Middle != 0 || bb.Lower != 0 {
		t.Errorf("bands = %+v, want all zero", bb)
	}
}

func TestBollingerBands_PopulationVariance(t *testing.T) {
	// Цены 2,4,4,4,5,5,7,9: среднее 5, популяционное sd = 2
	prices := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	bb := BollingerBands(prices, 8, 2)
	assertClose(t, "middle", bb.Middle, 5, 1e-12)
	assertClose(t, "upper", bb.Upper, 9, 1e-12)
	assertClose(t, "lower", bb.Lower, 1, 1e-12)
}

func TestBollingerBands_Ordering(t *testing.T) {
	series := [][]float64{rising(20), rising(100), flat(25, 42), {5, 1, 9, 3, 7, 2, 8, 4, 6, 0, 5, 1, 9, 3, 7, 2, 8, 4, 6, 0}}
	for i, prices := range series {
		bb := BollingerBands(prices, 20, 2)
		if !(bb.Lower <= bb.Middle && bb.Middle <= bb.Upper) {
			t.Errorf("series %d: bands out of order: %+v", i, bb)
		}
	}
}

func TestBollingerBands_FlatCollapses(t *testing.T) {
	bb := BollingerBands(flat(30, 100), 20, 2)
	assertClose(t, "upper", bb.Upper, 100, 1e-9)
	assertClose(t, "middle", bb.Middle, 100, 1e-9)
	assertClose(t, "lower", bb.Lower, 100, 1e-9)
}

func TestAnalyzer_UsesConfiguredPeriods(t *testing.T) {
	a := NewAnalyzer(config.TechnicalConfig{RSIPeriod: 4, MACDFast: 2, MACDSlow: 4, BBPeriod: 4, BBMultiplier: 1})
	prices := []float64{10, 12, 11, 13, 12}

	set := a.Analyze(prices)
	assertClose(t, "rsi", set.RSI, 100-100.0/3, 1e-9)
	// mean(13,12) - mean(12,11,13,12) = 12.5 - 12 = 0.5
	assertClose(t, "macd", set.MACD, 0.5, 1e-12)
	assertClose(t, "middle", set.Bollinger.Middle, 12, 1e-12)
}
