package quality

import (
	"math"

	"github.com/skalibog/patternscope/pkg/models"
)

const (
	// ConfidenceFloor нижняя граница математической уверенности
	ConfidenceFloor = 0.8
	// NeutralScore оценка распознавания при отсутствии паттернов
	NeutralScore = 0.5
	// Freshness признак свежести данных
	Freshness = "Real-time"
)

// Рейтинги качества накопленной статистики паттерна
const (
	RatingExcellent    = "Excellent"
	RatingGood         = "Good"
	RatingFair         = "Fair"
	RatingInsufficient = "Insufficient Data"
)

// Summarize сводит записи паттернов в оценку качества анализа
func Summarize(records []models.PatternRecord) models.AnalysisQuality {
	confidence := ConfidenceFloor
	score := NeutralScore

	if len(records) > 0 {
		var sum float64
		for _, r := range records {
			confidence = math.Max(confidence, r.AccuracyRate)
			sum += r.Strength
		}
		score = sum / float64(len(records))
	}

	return models.AnalysisQuality{
		DataFreshness:           Freshness,
		MathematicalConfidence:  confidence,
		PatternRecognitionScore: score,
	}
}

// Rating оценивает надежность статистики паттерна по числу наблюдений и точности
func Rating(count int, precision float64) string {
	switch {
	case count >= 50 && precision >= 0.8:
		return RatingExcellent
	case count >= 20 && precision >= 0.7:
		return RatingGood
	case count >= 10 && precision >= 0.6:
		return RatingFair
	default:
		return RatingInsufficient
	}
}
