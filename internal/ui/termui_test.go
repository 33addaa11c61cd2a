package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

func TestFormatLogLine(t *testing.T) {
	line := `{"level":"INFO","ts":"01.01.2025 - 12:30:45.000000000+00:00","caller":"x.go:1","msg":"Анализ завершен","symbol":"BTCUSDT","patterns":2}`
	got := formatLogLine(line)
	want := "[12:30:45] [INFO] Анализ завершен (patterns: 2) (symbol: BTCUSDT)"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}

	if got := formatLogLine("plain text"); got != "plain text" {
		t.Errorf("non-JSON line must pass through, got %q", got)
	}
}

func TestLoadLogsFromFile_KeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json.log")
	var b strings.Builder
	for i := 0; i < maxLogLines+10; i++ {
		b.WriteString("line\n")
	}
	b.WriteString("last\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	ui := &TermUI{config: config.UIConfig{LogFile: path}}
	if err := ui.loadLogsFromFile(); err != nil {
		t.Fatal(err)
	}
	if len(ui.logs) != maxLogLines || ui.logs[len(ui.logs)-1] != "last" {
		t.Errorf("logs = %d, last = %q", len(ui.logs), ui.logs[len(ui.logs)-1])
	}

	missing := &TermUI{config: config.UIConfig{LogFile: filepath.Join(t.TempDir(), "none.log")}}
	if err := missing.loadLogsFromFile(); err != nil {
		t.Errorf("missing file must not be an error: %v", err)
	}
}

func testReports() map[string]*models.Report {
	return map[string]*models.Report{
		"ETHUSDT": {Symbol: "ETHUSDT", CurrentPrice: 3000, Physics: models.PhysicsMetrics{EnergyLevel: models.EnergyLow}},
		"BTCUSDT": {
			Symbol:           "BTCUSDT",
			CurrentPrice:     42000,
			DetectedPatterns: []models.PatternRecord{{PatternName: "Funding_Rate_Extreme", Strength: 0.92}},
			Prediction: &models.Prediction{Predictions: map[string]models.HorizonPrediction{
				models.Horizon1h: {Direction: models.DirectionIncrease, Confidence: 0.85, TargetPrice: 42100},
			}},
		},
	}
}

func TestRenderSections(t *testing.T) {
	reports := testReports()
	if got := sortedSymbols(reports); got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Errorf("symbols = %v", got)
	}

	out := renderReportsSection(reports, 0)
	for _, want := range []string{"BTCUSDT", "ETHUSDT", "42000.00", "> BTCUSDT"} {
		if !strings.Contains(out, want) {
			t.Errorf("reports section missing %q", want)
		}
	}

	details := renderDetailsSection(reports["BTCUSDT"])
	for _, want := range []string{"Funding_Rate_Extreme", "1h", "42100.00"} {
		if !strings.Contains(details, want) {
			t.Errorf("details section missing %q", want)
		}
	}

	if !strings.Contains(renderReportsSection(nil, 0), "Ожидание данных") {
		t.Error("empty reports must show waiting text")
	}
}

func TestUpdateNavigation(t *testing.T) {
	ui := &TermUI{reports: testReports()}
	m := bubbleModel{ui: ui}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if ui.selectedIndex != 1 {
		t.Errorf("selected = %d, want 1", ui.selectedIndex)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if ui.selectedIndex != 0 {
		t.Errorf("selected = %d, want 0", ui.selectedIndex)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Error("q must quit")
	}
}
