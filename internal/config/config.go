package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/skalibog/patternscope/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`
	UI       UIConfig       `yaml:"ui"`
	Log      LogConfig      `yaml:"log"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	Testnet       bool   `yaml:"testnet"`
	RetryAttempts int    `yaml:"retry_attempts" default:"3"`
	RetryMinMs    int    `yaml:"retry_min_ms" default:"200"`
	RetryMaxMs    int    `yaml:"retry_max_ms" default:"2000"`
}

// TradingConfig содержит список символов и параметры окна свечей
type TradingConfig struct {
	Symbols     []string `yaml:"symbols" default:"[\"BTCUSDT\"]"`
	Interval    string   `yaml:"interval" default:"5m"`
	CandleLimit int      `yaml:"candle_limit" default:"200"`
}

// AnalysisConfig содержит настройки аналитического движка
type AnalysisConfig struct {
	IntervalSeconds       int              `yaml:"interval_seconds" default:"60"`
	ReportCacheTTLSeconds int              `yaml:"report_cache_ttl_seconds" default:"300"`
	Technical             TechnicalConfig  `yaml:"technical"`
	Patterns              PatternConfig    `yaml:"patterns"`
	Derived               DerivedConfig    `yaml:"derived"`
	Prediction            PredictionConfig `yaml:"prediction"`
}

// TechnicalConfig настройки технических индикаторов
type TechnicalConfig struct {
	RSIPeriod    int     `yaml:"rsi_period" default:"14"`
	MACDFast     int     `yaml:"macd_fast" default:"12"`
	MACDSlow     int     `yaml:"macd_slow" default:"26"`
	BBPeriod     int     `yaml:"bb_period" default:"20"`
	BBMultiplier float64 `yaml:"bb_multiplier" default:"2"`
}

// PatternConfig пороги правил детектора паттернов
type PatternConfig struct {
	RSIOverbought     float64 `yaml:"rsi_overbought" default:"70"`
	VolumeWindow      int     `yaml:"volume_window" default:"10"`
	VolumeSpikeRatio  float64 `yaml:"volume_spike_ratio" default:"1.5"`
	BreakoutVelocity  float64 `yaml:"breakout_velocity" default:"0.003"`
	FundingExtreme    float64 `yaml:"funding_extreme" default:"0.0005"`
	MACDThreshold     float64 `yaml:"macd_threshold" default:"50"`
	MinStoredAccuracy float64 `yaml:"min_stored_accuracy" default:"0.8"`
}

// DerivedConfig настройки производных метрик
type DerivedConfig struct {
	CirculatingSupply float64 `yaml:"circulating_supply" default:"19700000"`
	LiquidityWindow   int     `yaml:"liquidity_window" default:"10"`
}

// PredictionConfig настройки статистического прогноза
type PredictionConfig struct {
	Disabled            bool    `yaml:"disabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" default:"0.8"`
}

// StorageConfig настройки хранения временных рядов
type StorageConfig struct {
	URL          string `yaml:"url" default:"http://localhost:8086"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket" default:"patternscope"`
}

// PostgresConfig настройки базы статистики паттернов
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" default:"10"`
	MaxIdleConns int    `yaml:"max_idle_conns" default:"5"`
}

// RedisConfig настройки кэша отчетов
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"patternscope:"`
}

// APIConfig настройки HTTP API
type APIConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Addr         string   `yaml:"addr" default:":8080"`
	AllowOrigins []string `yaml:"allow_origins" default:"[\"*\"]"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RefreshRate int    `yaml:"refresh_rate_ms" default:"1000"`
	LogFile     string `yaml:"log_file" default:"app.json.log"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level    string `yaml:"level" default:"info"`
	File     string `yaml:"file" default:"app.log"`
	JSONFile string `yaml:"json_file" default:"app.json.log"`
	Truncate bool   `yaml:"truncate"`
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load загружает конфигурацию из файла, .env и переменных окружения
func Load(path string) (*Config, error) {
	// .env не обязателен
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Ошибка чтения .env", zap.Error(err))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("ошибка установки значений по умолчанию: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Any("analysis", config.Analysis))
	logger.Info("Загружена конфигурация", zap.Strings("symbols", config.Trading.Symbols))
	return &config, nil
}

// applyEnv переопределяет секреты из окружения
func (c *Config) applyEnv() {
	overrideString(&c.Binance.APIKey, "BINANCE_API_KEY")
	overrideString(&c.Binance.APISecret, "BINANCE_API_SECRET")
	overrideString(&c.Storage.Token, "INFLUX_TOKEN")
	overrideString(&c.Storage.URL, "INFLUX_URL")
	overrideString(&c.Postgres.DSN, "POSTGRES_DSN")
	overrideString(&c.Redis.Addr, "REDIS_ADDR")
	overrideString(&c.Redis.Password, "REDIS_PASSWORD")

	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("не указаны символы для анализа")
	}
	if c.Trading.CandleLimit <= 0 {
		return fmt.Errorf("candle_limit должен быть положительным: %d", c.Trading.CandleLimit)
	}
	return c.Analysis.Validate()
}

// Validate проверяет параметры аналитического движка
func (a AnalysisConfig) Validate() error {
	t := a.Technical
	if t.RSIPeriod <= 0 || t.BBPeriod <= 0 || t.MACDFast <= 0 || t.MACDSlow <= 0 {
		return fmt.Errorf("периоды индикаторов должны быть положительными: %+v", t)
	}
	if t.MACDFast >= t.MACDSlow {
		return fmt.Errorf("macd_fast (%d) должен быть меньше macd_slow (%d)", t.MACDFast, t.MACDSlow)
	}
	if t.BBMultiplier < 0 {
		return fmt.Errorf("bb_multiplier не может быть отрицательным: %v", t.BBMultiplier)
	}
	if a.Patterns.VolumeWindow <= 0 || a.Derived.LiquidityWindow <= 0 {
		return fmt.Errorf("окна объема должны быть положительными")
	}
	return nil
}
