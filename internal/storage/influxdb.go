// internal/storage/influxdb.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

// Storage интерфейс для работы с хранилищем временных рядов
type Storage interface {
	// Методы для свечей
	SaveCandles(ctx context.Context, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// Методы для открытого интереса
	SaveOpenInterest(ctx context.Context, oi *models.OpenInterest) error
	GetOpenInterest(ctx context.Context, symbol string, limit int) ([]models.OpenInterest, error)

	// Методы для отчетов
	SaveReport(ctx context.Context, report *models.Report) error
	GetReportHistory(ctx context.Context, symbol string, limit int) ([]*models.Report, error)

	Close() error
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPIBlocking
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(ctx context.Context, cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() error {
	s.client.Close()
	return nil
}

// SaveCandles сохраняет множество свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(candles))
	for _, candle := range candles {
		points = append(points, candlePoint(candle))
	}

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("ошибка записи свечей: %w", err)
	}
	return nil
}

// GetCandles получает исторические свечи в порядке от старых к новым
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	result, err := s.queryAPI.Query(ctx, candlesQuery(s.bucket, symbol, interval, limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	var candles []models.Candle
	for result.Next() {
		record := result.Record()

		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		closePrice, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candles = append(candles, models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			Timestamp: record.Time().UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	// Проверяем на ошибки при обработке результатов
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	// Запрос возвращает новые свечи первыми, движку нужен обратный порядок
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	return candles, nil
}

// SaveOpenInterest сохраняет открытый интерес
func (s *InfluxDBStorage) SaveOpenInterest(ctx context.Context, oi *models.OpenInterest) error {
	if oi == nil {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, openInterestPoint(oi)); err != nil {
		return fmt.Errorf("ошибка записи открытого интереса: %w", err)
	}
	return nil
}

// GetOpenInterest получает историю открытого интереса, новые значения первыми
func (s *InfluxDBStorage) GetOpenInterest(ctx context.Context, symbol string, limit int) ([]models.OpenInterest, error) {
	result, err := s.queryAPI.Query(ctx, latestQuery(s.bucket, measurementOpenInterest, symbol, "-14d", limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса открытого интереса: %w", err)
	}

	var history []models.OpenInterest
	for result.Next() {
		record := result.Record()
		value, _ := record.ValueByKey("value").(float64)

		history = append(history, models.OpenInterest{
			Symbol:    symbol,
			Value:     value,
			Timestamp: record.Time(),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return history, nil
}

// SaveReport сохраняет отчет: ключевые метрики отдельными полями и полный JSON
func (s *InfluxDBStorage) SaveReport(ctx context.Context, report *models.Report) error {
	point, err := reportPoint(report)
	if err != nil {
		return err
	}
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("ошибка записи отчета: %w", err)
	}
	return nil
}

// GetReportHistory получает историю отчетов, новые первыми
func (s *InfluxDBStorage) GetReportHistory(ctx context.Context, symbol string, limit int) ([]*models.Report, error) {
	result, err := s.queryAPI.Query(ctx, latestQuery(s.bucket, measurementReports, symbol, "-30d", limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории отчетов: %w", err)
	}

	var reports []*models.Report
	for result.Next() {
		payload, _ := result.Record().ValueByKey("payload").(string)
		if payload == "" {
			continue
		}

		var report models.Report
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, fmt.Errorf("ошибка разбора отчета: %w", err)
		}
		reports = append(reports, &report)
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return reports, nil
}

const (
	measurementCandles      = "candles"
	measurementOpenInterest = "open_interest"
	measurementReports      = "reports"
)

func candlePoint(candle models.Candle) *write.Point {
	return influxdb2.NewPoint(
		measurementCandles,
		map[string]string{
			"symbol":   candle.Symbol,
			"interval": candle.Interval,
		},
		map[string]interface{}{
			"open":   candle.Open,
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		},
		candle.Time(),
	)
}

func openInterestPoint(oi *models.OpenInterest) *write.Point {
	return influxdb2.NewPoint(
		measurementOpenInterest,
		map[string]string{
			"symbol": oi.Symbol,
		},
		map[string]interface{}{
			"value": oi.Value,
		},
		oi.Timestamp,
	)
}

func reportPoint(report *models.Report) (*write.Point, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации отчета: %w", err)
	}

	ts := report.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return influxdb2.NewPoint(
		measurementReports,
		map[string]string{
			"symbol": report.Symbol,
		},
		map[string]interface{}{
			"id":            report.ID,
			"price":         report.CurrentPrice,
			"rsi":           report.Indicators.RSI,
			"macd":          report.Indicators.MACD,
			"velocity":      report.Physics.MomentumVelocity,
			"energy":        string(report.Physics.EnergyLevel),
			"patterns":      len(report.DetectedPatterns),
			"confidence":    report.Quality.MathematicalConfidence,
			"pattern_score": report.Quality.PatternRecognitionScore,
			"payload":       string(payload),
		},
		ts,
	), nil
}

func candlesQuery(bucket, symbol, interval string, limit int) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, bucket, measurementCandles, symbol, interval, limit)
}

func latestQuery(bucket, measurement, symbol, start string, limit int) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: %s)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, bucket, start, measurement, symbol, limit)
}
