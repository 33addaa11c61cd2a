package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/logger"
	"github.com/skalibog/patternscope/pkg/models"
	"go.uber.org/zap"
)

// Service операции, которые API делегирует анализатору
type Service interface {
	Analyze(ctx context.Context, symbol string) (*models.Report, error)
	LatestReport(ctx context.Context, symbol string) (*models.Report, error)
	ReportHistory(ctx context.Context, symbol string, limit int) ([]*models.Report, error)
	TopPatterns(ctx context.Context, limit int) ([]models.PatternStat, error)
	LogPrediction(ctx context.Context, p *models.PredictionLog) error
}

// Server HTTP-сервер API
type Server struct {
	echo   *echo.Echo
	config config.APIConfig
}

// NewServer создает сервер и регистрирует маршруты. metrics может быть nil.
func NewServer(cfg config.APIConfig, svc Service, metrics http.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("HTTP запрос",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	NewHandler(svc).RegisterRoutes(e)

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	return &Server{
		echo:   e,
		config: cfg,
	}
}

// Start запускает сервер в отдельной горутине
func (s *Server) Start() {
	go func() {
		logger.Info("HTTP API запущен", zap.String("addr", s.config.Addr))
		if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Ошибка HTTP сервера", zap.Error(err))
		}
	}()
}

// Stop корректно останавливает сервер
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка остановки HTTP сервера: %w", err)
	}
	logger.Info("HTTP API остановлен")
	return nil
}

// Echo возвращает экземпляр echo
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
