package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/logger"
	"github.com/skalibog/patternscope/pkg/models"
	"go.uber.org/zap"
)

const maxLogLines = 50

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	// Главный контейнер
	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#222222"))

	ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// TermUI представляет терминальный интерфейс
type TermUI struct {
	reports       map[string]*models.Report
	reportsMutex  sync.RWMutex
	logs          []string
	logsMutex     sync.RWMutex
	config        config.UIConfig
	program       *tea.Program
	selectedIndex int
	width         int
	height        int
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает интерфейс и запускает периодическое чтение логов до отмены ctx
func NewTermUI(ctx context.Context, cfg config.UIConfig) *TermUI {
	ui := &TermUI{
		reports: make(map[string]*models.Report),
		logs:    []string{"PatternScope запущен. Ожидание данных..."},
		config:  cfg,
		width:   120,
		height:  40,
	}
	ui.program = tea.NewProgram(bubbleModel{ui: ui}, tea.WithAltScreen(), tea.WithContext(ctx))

	// Загружаем логи из файла при запуске
	if err := ui.loadLogsFromFile(); err != nil {
		ui.logs = append(ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}

	refresh := time.Duration(cfg.RefreshRate) * time.Millisecond
	if refresh <= 0 {
		refresh = time.Second
	}

	go func() {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ui.loadLogsFromFile(); err != nil {
					logger.Warn("Ошибка загрузки логов", zap.Error(err))
					continue
				}
				ui.refresh()
			}
		}
	}()

	return ui
}

// Run запускает UI и блокируется до выхода пользователя
func (ui *TermUI) Run() error {
	if _, err := ui.program.Run(); err != nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

// UpdateReports заменяет отображаемые отчеты
func (ui *TermUI) UpdateReports(reports map[string]*models.Report) {
	ui.reportsMutex.Lock()
	for symbol, report := range reports {
		ui.reports[symbol] = report
	}
	ui.reportsMutex.Unlock()

	ui.refresh()
}

func (ui *TermUI) refresh() {
	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// loadLogsFromFile читает хвост JSON-лога
func (ui *TermUI) loadLogsFromFile() error {
	if ui.config.LogFile == "" {
		return nil
	}

	file, err := os.Open(ui.config.LogFile)
	if err != nil {
		if os.IsNotExist(err) {
			// Файл не существует, это не ошибка
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var logs []string
	for scanner.Scan() {
		logs = append(logs, formatLogLine(scanner.Text()))
		if len(logs) > maxLogLines {
			logs = logs[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(logs) > 0 {
		ui.logsMutex.Lock()
		ui.logs = logs
		ui.logsMutex.Unlock()
	}
	return nil
}

// formatLogLine превращает JSON-запись zap в строку вида "[15:04:05] [INFO] сообщение (ключ: значение)"
func formatLogLine(line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}

	level, _ := entry["level"].(string)
	ts, _ := entry["ts"].(string)
	msg, _ := entry["msg"].(string)

	level = ansiRegex.ReplaceAllString(level, "")

	timestamp := ""
	if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
		timestamp = t.Format("15:04:05")
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		if k != "level" && k != "ts" && k != "msg" && k != "caller" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", timestamp, level, msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " (%s: %v)", k, entry[k])
	}
	return b.String()
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			m.ui.selectedIndex = max(0, m.ui.selectedIndex-1)
		case "down":
			m.ui.reportsMutex.RLock()
			n := len(m.ui.reports)
			m.ui.reportsMutex.RUnlock()
			m.ui.selectedIndex = max(0, min(n-1, m.ui.selectedIndex+1))
		case "r":
			if err := m.ui.loadLogsFromFile(); err != nil {
				logger.Warn("Ошибка загрузки логов", zap.Error(err))
			}
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.reportsMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.reportsMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	symbols := sortedSymbols(m.ui.reports)

	var selected *models.Report
	if m.ui.selectedIndex < len(symbols) {
		selected = m.ui.reports[symbols[m.ui.selectedIndex]]
	}

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("PatternScope - анализ паттернов OHLCV"),
			"\n",
			renderReportsSection(m.ui.reports, m.ui.selectedIndex),
			"\n",
			renderDetailsSection(selected),
			"\n",
			renderLogsSection(m.ui.logs),
			"\n",
			footerStyle.Render("Клавиши: ↑/↓ - навигация, R - перезагрузить логи, Q - выход"),
		),
	)
}

func renderReportsSection(reports map[string]*models.Report, selectedIndex int) string {
	header := sectionHeaderStyle.Render("ОТЧЕТЫ")
	content := strings.Builder{}

	symbols := sortedSymbols(reports)
	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	} else {
		content.WriteString(fmt.Sprintf("  %-10s %12s %7s %9s %-8s %8s %6s\n",
			"Символ", "Цена", "RSI", "MACD", "Энергия", "Паттерны", "Оценка"))
		for i, symbol := range symbols {
			r := reports[symbol]
			line := fmt.Sprintf("  %-10s %12.2f %7.2f %9.2f %-8s %8d %6.2f",
				symbol,
				r.CurrentPrice,
				r.Indicators.RSI,
				r.Indicators.MACD,
				formatEnergy(r.Physics.EnergyLevel),
				len(r.DetectedPatterns),
				r.Quality.PatternRecognitionScore)

			// Выделяем выбранную строку
			if i == selectedIndex {
				line = selectedStyle.Render("> " + line[2:])
			}
			content.WriteString(line + "\n")
		}
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func renderDetailsSection(r *models.Report) string {
	header := sectionHeaderStyle.Render("ПАТТЕРНЫ И ПРОГНОЗ")
	content := strings.Builder{}

	if r == nil {
		content.WriteString("  Нет выбранного символа\n")
		return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
	}

	content.WriteString(fmt.Sprintf("  Скорость: %.5f  Ускорение: %.5f  Уверенность: %.3f\n",
		r.Physics.MomentumVelocity, r.Physics.MomentumAcceleration, r.Quality.MathematicalConfidence))

	if len(r.DetectedPatterns) == 0 {
		content.WriteString("  Паттерны не обнаружены\n")
	}
	for _, p := range r.DetectedPatterns {
		content.WriteString(fmt.Sprintf("  %-30s %.2f  %s\n", p.PatternName, p.Strength, p.MathematicalSignature))
	}

	if r.Prediction != nil {
		for _, h := range models.Horizons() {
			hp, ok := r.Prediction.Predictions[h]
			if !ok {
				continue
			}
			content.WriteString(fmt.Sprintf("  %-4s %s %.2f → %.2f\n",
				h, formatDirection(hp.Direction), hp.Confidence, hp.TargetPrice))
		}
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	start := 0
	if len(logs) > maxLogLines {
		start = len(logs) - maxLogLines
	}

	for _, line := range logs[start:] {
		// Выделение по уровню логирования
		switch {
		case strings.Contains(line, "[ERROR]"):
			line = lipgloss.NewStyle().Foreground(errorColor).Render(line)
		case strings.Contains(line, "[INFO]"):
			line = lipgloss.NewStyle().Foreground(successColor).Render(line)
		case strings.Contains(line, "[WARN]"):
			line = lipgloss.NewStyle().Foreground(warningColor).Render(line)
		case strings.Contains(line, "[DEBUG]"):
			line = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(line)
		}
		content.WriteString("  " + line + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func formatEnergy(level models.EnergyLevel) string {
	switch level {
	case models.EnergyHigh:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render(string(level))
	case models.EnergyMedium:
		return lipgloss.NewStyle().Foreground(warningColor).Render(string(level))
	case models.EnergyLow:
		return lipgloss.NewStyle().Foreground(successColor).Render(string(level))
	default:
		return "-"
	}
}

func formatDirection(direction string) string {
	switch direction {
	case models.DirectionIncrease:
		return lipgloss.NewStyle().Foreground(successColor).Render(direction)
	case models.DirectionDecrease:
		return lipgloss.NewStyle().Foreground(errorColor).Render(direction)
	default:
		return lipgloss.NewStyle().Foreground(warningColor).Render(direction)
	}
}

func sortedSymbols(reports map[string]*models.Report) []string {
	symbols := make([]string, 0, len(reports))
	for symbol := range reports {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
