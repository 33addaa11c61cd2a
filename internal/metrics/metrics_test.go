package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/skalibog/patternscope/pkg/models"
)

func TestObserveReport(t *testing.T) {
	m := New()
	report := &models.Report{
		Symbol: "BTCUSDT",
		DetectedPatterns: []models.PatternRecord{
			{PatternName: "Funding_Rate_Extreme"},
			{PatternName: "High_Volume_Momentum_Breakout"},
		},
		Quality: models.AnalysisQuality{MathematicalConfidence: 0.823, PatternRecognitionScore: 0.95},
	}

	m.ObserveReport(report, 120*time.Millisecond)
	m.ObserveReport(report, 80*time.Millisecond)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("BTCUSDT")); got != 2 {
		t.Errorf("runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.patterns.WithLabelValues("BTCUSDT", "Funding_Rate_Extreme")); got != 2 {
		t.Errorf("funding patterns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.confidence.WithLabelValues("BTCUSDT")); got != 0.823 {
		t.Errorf("confidence = %v", got)
	}
}

func TestFailureAndHandler(t *testing.T) {
	m := New()
	m.Failure(StageFetch)
	m.Failure(StageFetch)
	m.Failure(StageCache)

	if got := testutil.ToFloat64(m.failures.WithLabelValues(StageFetch)); got != 2 {
		t.Errorf("fetch failures = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `patternscope_analysis_failures_total{stage="cache"} 1`) {
		t.Errorf("metrics output missing failure counter:\n%s", rec.Body.String())
	}
}
