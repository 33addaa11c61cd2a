package patterns

import (
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

// Detector проверяет набор независимых правил
type Detector struct {
	rules []Rule
}

// NewDetector создает детектор с правилами по умолчанию
func NewDetector(cfg config.PatternConfig) *Detector {
	return &Detector{
		rules: DefaultRules(cfg),
	}
}

// NewDetectorWithRules создает детектор с произвольным списком правил
func NewDetectorWithRules(rules []Rule) *Detector {
	return &Detector{rules: rules}
}

// Rules возвращает правила детектора
func (d *Detector) Rules() []Rule {
	return d.rules
}

// Detect возвращает записи всех сработавших правил. Правила не подавляют друг друга.
func (d *Detector) Detect(in Inputs) []models.PatternRecord {
	records := make([]models.PatternRecord, 0, len(d.rules))
	for _, rule := range d.rules {
		if !rule.Fires(in) {
			continue
		}
		records = append(records, models.PatternRecord{
			PatternName:           rule.Name,
			Strength:              rule.Strength(in),
			Frequency:             rule.Frequency,
			AccuracyRate:          rule.Accuracy,
			MathematicalSignature: rule.Signature(in),
		})
	}
	return records
}
