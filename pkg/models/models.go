package models

import (
	"time"
)

// Candle представляет свечу OHLCV. Timestamp хранится в миллисекундах эпохи.
type Candle struct {
	Symbol    string  `json:"symbol,omitempty"`
	Interval  string  `json:"interval,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time возвращает время открытия свечи
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// AuxiliaryMetrics представляет снимок вспомогательных рыночных метрик
type AuxiliaryMetrics struct {
	CurrentPrice   float64 `json:"current_price"`
	Volume24h      float64 `json:"volume_24h"`
	PriceChange24h float64 `json:"price_change_24h"`
	FundingRate    float64 `json:"funding_rate"`
	MarkPrice      float64 `json:"mark_price"`
	OpenInterest   float64 `json:"open_interest"`
}

// MarketSnapshot объединяет окно свечей и вспомогательные метрики одного запроса к бирже
type MarketSnapshot struct {
	Symbol   string
	Interval string
	Candles  []Candle
	Aux      AuxiliaryMetrics

	// OpenInterest nil, если биржа не вернула значение
	OpenInterest *OpenInterest
	FetchedAt    time.Time
}

// OpenInterest представляет сохраненное значение открытого интереса
type OpenInterest struct {
	Symbol    string
	Value     float64
	Timestamp time.Time
}

// BollingerBands полосы Боллинджера
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSet набор технических индикаторов одного прогона
type IndicatorSet struct {
	RSI       float64        `json:"rsi"`
	MACD      float64        `json:"macd"`
	Bollinger BollingerBands `json:"bollinger"`
}

// EnergyLevel уровень "энергии" импульса
type EnergyLevel string

const (
	EnergyLow    EnergyLevel = "Low"
	EnergyMedium EnergyLevel = "Medium"
	EnergyHigh   EnergyLevel = "High"
)

// PhysicsMetrics метрики импульсной "физики". Пустой EnergyLevel означает нехватку данных.
type PhysicsMetrics struct {
	MomentumVelocity     float64     `json:"momentum_velocity"`
	MomentumAcceleration float64     `json:"momentum_acceleration"`
	ForceIndex           float64     `json:"force_index"`
	WaveFrequency        float64     `json:"wave_frequency"`
	EnergyLevel          EnergyLevel `json:"energy_level,omitempty"`
}

// PatternRecord описывает одно сработавшее правило
type PatternRecord struct {
	PatternName           string  `json:"pattern_name"`
	Strength              float64 `json:"strength"`
	Frequency             int     `json:"frequency"`
	AccuracyRate          float64 `json:"accuracy_rate"`
	MathematicalSignature string  `json:"mathematical_signature"`
}

// AnalysisQuality сводка качества анализа
type AnalysisQuality struct {
	DataFreshness           string  `json:"data_freshness"`
	MathematicalConfidence  float64 `json:"mathematical_confidence"`
	PatternRecognitionScore float64 `json:"pattern_recognition_score"`
}

// TechnicalLevels уровни для отображения и подсказок
type TechnicalLevels struct {
	RSI                 float64 `json:"rsi"`
	MACD                float64 `json:"macd"`
	BollingerUpper      float64 `json:"bollinger_upper"`
	BollingerLower      float64 `json:"bollinger_lower"`
	FibonacciResistance float64 `json:"fibonacci_resistance"`
	FibonacciSupport    float64 `json:"fibonacci_support"`
}

// EconomicFactors экономические факторы рынка
type EconomicFactors struct {
	FundingRate        float64 `json:"funding_rate"`
	OpenInterestChange float64 `json:"open_interest_change"`
	SupplyDemandRatio  float64 `json:"supply_demand_ratio"`
	LiquidityIndex     float64 `json:"liquidity_index"`
}

// Report полный результат одного прогона анализа
type Report struct {
	ID               string          `json:"id"`
	Symbol           string          `json:"symbol"`
	Timestamp        time.Time       `json:"timestamp"`
	CurrentPrice     float64         `json:"current_price"`
	MarketCap        float64         `json:"market_cap"`
	Volume24h        float64         `json:"volume_24h"`
	FundingRate      float64         `json:"funding_rate"`
	OpenInterest     float64         `json:"open_interest"`
	Indicators       IndicatorSet    `json:"indicators"`
	Physics          PhysicsMetrics  `json:"physics_analysis"`
	Technical        TechnicalLevels `json:"technical_indicators"`
	Economic         EconomicFactors `json:"economic_factors"`
	DetectedPatterns []PatternRecord `json:"detected_patterns"`
	Quality          AnalysisQuality `json:"analysis_quality"`
	Prediction       *Prediction     `json:"prediction,omitempty"`
}

// Горизонты прогнозов
const (
	Horizon10m = "10m"
	Horizon30m = "30m"
	Horizon1h  = "1h"
	Horizon24h = "24h"
)

// Horizons возвращает горизонты в порядке возрастания
func Horizons() []string {
	return []string{Horizon10m, Horizon30m, Horizon1h, Horizon24h}
}

// Направления прогноза
const (
	DirectionIncrease = "Increase"
	DirectionDecrease = "Decrease"
	DirectionFlat     = "Flat"
	DirectionNoSignal = "No Signal"
)

// HorizonPrediction прогноз на один горизонт
type HorizonPrediction struct {
	Direction         string  `json:"direction"`
	Confidence        float64 `json:"confidence"`
	TargetPrice       float64 `json:"target_price"`
	MathematicalBasis string  `json:"mathematical_basis"`
}

// MarketStance общая позиция рынка
type MarketStance struct {
	OverallBias             string  `json:"overall_bias"`
	Confidence              float64 `json:"confidence"`
	RiskLevel               string  `json:"risk_level"`
	BigManipulationDetected bool    `json:"big_manipulation_detected"`
}

// VolatilityMetrics метрики волатильности
type VolatilityMetrics struct {
	StandardDeviation float64 `json:"standard_deviation"`
	VaR95             float64 `json:"var_95"`
	VaR99             float64 `json:"var_99"`
	VolatilityRegime  string  `json:"volatility_regime"`
}

// Prediction прогноз по горизонтам
type Prediction struct {
	Predictions       map[string]HorizonPrediction `json:"predictions"`
	MarketStance      MarketStance                 `json:"market_stance"`
	VolatilityMetrics VolatilityMetrics            `json:"volatility_metrics"`
}

// PatternStat накопленная статистика паттерна
type PatternStat struct {
	PatternHash   string    `db:"pattern_hash" json:"pattern_hash"`
	Count         int       `db:"count" json:"count"`
	Correct       int       `db:"correct" json:"correct"`
	Precision     float64   `db:"precision" json:"precision"`
	LastSeen      time.Time `db:"last_seen" json:"last_seen"`
	QualityRating string    `db:"-" json:"quality_rating"`
}

// PredictionLog запись журнала прогнозов
type PredictionLog struct {
	TS          time.Time          `json:"ts"`
	Symbol      string             `json:"symbol"`
	Horizon     string             `json:"horizon" validate:"required,oneof=10m 30m 1h 24h"`
	Label       string             `json:"label" validate:"required,oneof=Increase Decrease Flat 'No Signal'"`
	Confidence  float64            `json:"confidence"`
	Score       float64            `json:"score"`
	Probs       map[string]float64 `json:"probs"`
	GatePassed  bool               `json:"gate_passed"`
	PatternHash string             `json:"pattern_hash"`
	Features    map[string]any     `json:"features"`
}
