package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/patternscope/pkg/models"
)

func TestCandlePoint(t *testing.T) {
	c := models.Candle{Symbol: "BTCUSDT", Interval: "5m", Timestamp: 1735689600000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	line := write.PointToLineProtocol(candlePoint(c), time.Millisecond)

	for _, want := range []string{"candles,interval=5m,symbol=BTCUSDT", "close=1.5", "volume=10", " 1735689600000"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q does not contain %q", line, want)
		}
	}
}

func TestReportPoint(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &models.Report{
		ID:               "abc",
		Symbol:           "ETHUSDT",
		Timestamp:        ts,
		CurrentPrice:     3000,
		Physics:          models.PhysicsMetrics{EnergyLevel: models.EnergyMedium},
		DetectedPatterns: []models.PatternRecord{{PatternName: "x"}},
		Quality:          models.AnalysisQuality{MathematicalConfidence: 0.85, PatternRecognitionScore: 0.7},
	}
	p, err := reportPoint(r)
	if err != nil {
		t.Fatalf("reportPoint: %v", err)
	}
	line := write.PointToLineProtocol(p, time.Second)

	for _, want := range []string{"reports,symbol=ETHUSDT", `energy="Medium"`, "patterns=1i", "confidence=0.85", `id="abc"`, "payload="} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q does not contain %q", line, want)
		}
	}
}

func TestQueries(t *testing.T) {
	q := candlesQuery("market", "BTCUSDT", "1h", 200)
	for _, want := range []string{`from(bucket: "market")`, `r.symbol == "BTCUSDT"`, `r.interval == "1h"`, "limit(n: 200)"} {
		if !strings.Contains(q, want) {
			t.Errorf("candles query missing %q", want)
		}
	}

	q = latestQuery("market", measurementOpenInterest, "BTCUSDT", "-14d", 2)
	for _, want := range []string{"range(start: -14d)", `r._measurement == "open_interest"`, "desc: true", "limit(n: 2)"} {
		if !strings.Contains(q, want) {
			t.Errorf("latest query missing %q", want)
		}
	}
}
