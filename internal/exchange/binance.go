package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/logger"
	"github.com/skalibog/patternscope/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketDataProvider источник рыночных данных для анализа
type MarketDataProvider interface {
	Snapshot(ctx context.Context, symbol, interval string, limit int) (*models.MarketSnapshot, error)
}

// BinanceClient клиент для взаимодействия с Binance
type BinanceClient struct {
	futures *futures.Client
	spot    *binance.Client
	config  config.BinanceConfig
}

// NewBinanceClient создает новый клиент Binance.
// Режим testnet в go-binance задается глобально и должен быть включен до создания клиентов.
func NewBinanceClient(cfg config.BinanceConfig) *BinanceClient {
	if cfg.Testnet {
		futures.UseTestnet = true
		binance.UseTestnet = true
	}

	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)
	spotClient := binance.NewClient(cfg.APIKey, cfg.APISecret)

	return &BinanceClient{
		futures: futuresClient,
		spot:    spotClient,
		config:  cfg,
	}
}

// Snapshot параллельно получает свечи, тикер, ставку финансирования и открытый интерес.
// Ошибка свечей прерывает запрос, остальные источники необязательны.
func (c *BinanceClient) Snapshot(ctx context.Context, symbol, interval string, limit int) (*models.MarketSnapshot, error) {
	snapshot := &models.MarketSnapshot{
		Symbol:    symbol,
		Interval:  interval,
		FetchedAt: time.Now(),
	}

	var (
		ticker  *models.AuxiliaryMetrics
		premium *models.AuxiliaryMetrics
		oi      *models.OpenInterest
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		candles, err := c.GetKlines(gctx, symbol, interval, limit)
		if err != nil {
			return err
		}
		snapshot.Candles = candles
		return nil
	})

	g.Go(func() error {
		t, err := c.GetTicker(gctx, symbol)
		if err != nil {
			logger.Warn("Тикер недоступен", zap.String("symbol", symbol), zap.Error(err))
			return nil
		}
		ticker = t
		return nil
	})

	g.Go(func() error {
		p, err := c.GetFundingRate(gctx, symbol)
		if err != nil {
			logger.Warn("Ставка финансирования недоступна", zap.String("symbol", symbol), zap.Error(err))
			return nil
		}
		premium = p
		return nil
	})

	g.Go(func() error {
		v, err := c.GetOpenInterest(gctx, symbol)
		if err != nil {
			logger.Warn("Открытый интерес недоступен", zap.String("symbol", symbol), zap.Error(err))
			return nil
		}
		oi = v
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ошибка получения данных %s: %w", symbol, err)
	}

	if ticker != nil {
		snapshot.Aux.CurrentPrice = ticker.CurrentPrice
		snapshot.Aux.Volume24h = ticker.Volume24h
		snapshot.Aux.PriceChange24h = ticker.PriceChange24h
	}
	if premium != nil {
		snapshot.Aux.FundingRate = premium.FundingRate
		snapshot.Aux.MarkPrice = premium.MarkPrice
	}
	if oi != nil {
		snapshot.Aux.OpenInterest = oi.Value
		snapshot.OpenInterest = oi
	}

	return snapshot, nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	var klines []*futures.Kline
	err := c.retry(ctx, "klines", func() error {
		var err error
		klines, err = c.futures.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(symbol, interval, k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// GetTicker получает цену и суточную статистику со спотового рынка
func (c *BinanceClient) GetTicker(ctx context.Context, symbol string) (*models.AuxiliaryMetrics, error) {
	var stats []*binance.PriceChangeStats
	err := c.retry(ctx, "ticker", func() error {
		var err error
		stats, err = c.spot.NewListPriceChangeStatsService().
			Symbol(symbol).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тикера: %w", err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("не найдены данные тикера для %s", symbol)
	}

	price, err := parseFloat("lastPrice", stats[0].LastPrice)
	if err != nil {
		return nil, err
	}
	volume, err := parseFloat("volume", stats[0].Volume)
	if err != nil {
		return nil, err
	}
	change, err := parseFloat("priceChangePercent", stats[0].PriceChangePercent)
	if err != nil {
		return nil, err
	}

	return &models.AuxiliaryMetrics{
		CurrentPrice:   price,
		Volume24h:      volume * price,
		PriceChange24h: change / 100,
	}, nil
}

// GetFundingRate получает текущую ставку финансирования и цену маркировки
func (c *BinanceClient) GetFundingRate(ctx context.Context, symbol string) (*models.AuxiliaryMetrics, error) {
	var rates []*futures.PremiumIndex
	err := c.retry(ctx, "premium index", func() error {
		var err error
		rates, err = c.futures.NewPremiumIndexService().
			Symbol(symbol).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ставки финансирования: %w", err)
	}

	if len(rates) == 0 {
		return nil, fmt.Errorf("не найдены данные о ставке финансирования для %s", symbol)
	}

	rate, err := parseFloat("lastFundingRate", rates[0].LastFundingRate)
	if err != nil {
		return nil, err
	}
	mark, err := parseFloat("markPrice", rates[0].MarkPrice)
	if err != nil {
		return nil, err
	}

	return &models.AuxiliaryMetrics{
		FundingRate: rate,
		MarkPrice:   mark,
	}, nil
}

// GetOpenInterest получает текущий открытый интерес
func (c *BinanceClient) GetOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	var oi *futures.OpenInterest
	err := c.retry(ctx, "open interest", func() error {
		var err error
		oi, err = c.futures.NewGetOpenInterestService().
			Symbol(symbol).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения открытого интереса: %w", err)
	}

	value, err := parseFloat("openInterest", oi.OpenInterest)
	if err != nil {
		return nil, err
	}

	return &models.OpenInterest{
		Symbol:    symbol,
		Value:     value,
		Timestamp: time.Now(),
	}, nil
}

// retry повторяет запрос с экспоненциальной задержкой
func (c *BinanceClient) retry(ctx context.Context, name string, fn func() error) error {
	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	b := &backoff.Backoff{
		Min:    time.Duration(c.config.RetryMinMs) * time.Millisecond,
		Max:    time.Duration(c.config.RetryMaxMs) * time.Millisecond,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := b.Duration()
		logger.Debug("Повтор запроса к бирже",
			zap.String("request", name),
			zap.Int("attempt", i+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func parseKline(symbol, interval string, k *futures.Kline) (models.Candle, error) {
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	names := [5]string{"open", "high", "low", "close", "volume"}
	var values [5]float64
	for i, s := range fields {
		v, err := parseFloat(names[i], s)
		if err != nil {
			return models.Candle{}, err
		}
		values[i] = v
	}

	return models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		Timestamp: k.OpenTime,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func parseFloat(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка парсинга поля %s: %w", field, err)
	}
	return v, nil
}
