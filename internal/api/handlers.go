package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/skalibog/patternscope/internal/analysis/aggregator"
	"github.com/skalibog/patternscope/internal/analysis/engine"
	"github.com/skalibog/patternscope/pkg/logger"
	"github.com/skalibog/patternscope/pkg/models"
	"go.uber.org/zap"
)

type symbolRequest struct {
	Symbol string `query:"symbol" default:"BTCUSDT" validate:"required,alphanum,max=20"`
}

type historyRequest struct {
	Symbol string `query:"symbol" default:"BTCUSDT" validate:"required,alphanum,max=20"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=500"`
}

type patternsRequest struct {
	Limit int `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

// Handler обработчики HTTP API
type Handler struct {
	svc Service
}

// NewHandler создает обработчики
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes регистрирует маршруты API
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/analysis", h.Analysis)
	g.GET("/analysis/latest", h.LatestAnalysis)
	g.GET("/analysis/history", h.AnalysisHistory)
	g.GET("/patterns", h.Patterns)
	g.POST("/predictions", h.LogPrediction)
}

// Analysis выполняет свежий анализ символа
func (h *Handler) Analysis(c echo.Context) error {
	req := &symbolRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequest(c, verr)
	}

	report, err := h.svc.Analyze(c.Request().Context(), req.Symbol)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "report": report})
}

// LatestAnalysis возвращает последний сохраненный отчет
func (h *Handler) LatestAnalysis(c echo.Context) error {
	req := &symbolRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequest(c, verr)
	}

	report, err := h.svc.LatestReport(c.Request().Context(), req.Symbol)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "report": report})
}

// AnalysisHistory возвращает сохраненные отчеты, новые первыми
func (h *Handler) AnalysisHistory(c echo.Context) error {
	req := &historyRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequest(c, verr)
	}

	reports, err := h.svc.ReportHistory(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "reports": reports, "count": len(reports)})
}

// Patterns возвращает лучшие паттерны по точности
func (h *Handler) Patterns(c echo.Context) error {
	req := &patternsRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequest(c, verr)
	}

	stats, err := h.svc.TopPatterns(c.Request().Context(), req.Limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "patterns": stats})
}

// LogPrediction записывает прогноз в журнал
func (h *Handler) LogPrediction(c echo.Context) error {
	req := &models.PredictionLog{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequest(c, verr)
	}

	if err := h.svc.LogPrediction(c.Request().Context(), req); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":      true,
		"message": "Prediction logged",
		"key": echo.Map{
			"ts":      req.TS,
			"symbol":  req.Symbol,
			"horizon": req.Horizon,
		},
	})
}

func badRequest(c echo.Context, errs []ValidationError) error {
	return c.JSON(http.StatusBadRequest, echo.Map{
		"ok":      false,
		"error":   joinMessages(errs),
		"details": errs,
	})
}

func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	var invalid *engine.InvalidInputError
	switch {
	case errors.Is(err, aggregator.ErrReportNotFound):
		status = http.StatusNotFound
	case errors.Is(err, aggregator.ErrStatsUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &invalid):
		status = http.StatusUnprocessableEntity
	default:
		logger.Error("Ошибка обработки запроса", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, echo.Map{"ok": false, "error": err.Error()})
}
