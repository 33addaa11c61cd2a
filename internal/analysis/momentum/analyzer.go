// Package momentum рассчитывает импульсную "физику" цены: скорость, ускорение и силу.
// Это метафора, а не физическая модель: масса в формуле силы равна текущей цене.
package momentum

import (
	"math"

	"github.com/skalibog/patternscope/pkg/models"
)

const (
	// MinSamples минимальная длина ряда для расчета
	MinSamples = 20
	// Window длина окна скорости
	Window = 12

	highEnergyVelocity   = 0.05
	mediumEnergyVelocity = 0.02
	frequencyScale       = 1000
)

// Analyze рассчитывает метрики импульса. При нехватке данных возвращает нулевые метрики без уровня энергии.
func Analyze(prices []float64) models.PhysicsMetrics {
	if len(prices) < MinSamples {
		return models.PhysicsMetrics{}
	}

	n := len(prices)
	recent := prices[n-Window:]

	// Предыдущее окно: prices[-24:-12], для коротких рядов начинается с нуля
	olderStart := n - 2*Window
	if olderStart < 0 {
		olderStart = 0
	}
	older := prices[olderStart : n-Window]

	velocity := Velocity(recent)
	acceleration := velocity - Velocity(older)

	return models.PhysicsMetrics{
		MomentumVelocity:     velocity,
		MomentumAcceleration: acceleration,
		ForceIndex:           acceleration * prices[n-1],
		WaveFrequency:        math.Abs(velocity) * frequencyScale,
		EnergyLevel:          Energy(velocity),
	}
}

// Velocity возвращает среднее относительное изменение соседних цен.
// Слагаемое с нулевым знаменателем считается равным нулю.
func Velocity(window []float64) float64 {
	if len(window) < 2 {
		return 0
	}

	var sum float64
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		sum += (window[i] - window[i-1]) / window[i-1]
	}
	return sum / float64(len(window)-1)
}

// Energy классифицирует модуль скорости
func Energy(velocity float64) models.EnergyLevel {
	v := math.Abs(velocity)
	switch {
	case v > highEnergyVelocity:
		return models.EnergyHigh
	case v > mediumEnergyVelocity:
		return models.EnergyMedium
	default:
		return models.EnergyLow
	}
}
