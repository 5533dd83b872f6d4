package config

import (
	"os"

	"github.com/skalibog/fxma/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	UI       UIConfig       `yaml:"ui"`
	LogLevel string         `yaml:"log_level"`
}

// ExchangeConfig содержит настройки подключения к источнику котировок
type ExchangeConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
	// Соответствие валютной пары тикеру биржи, например "EUR/USD" -> "EURUSDT"
	SymbolMap map[string]string `yaml:"symbol_map"`
	// Максимальный возраст последней свечи, после которого рынок считается закрытым
	FreshnessSec int `yaml:"freshness_sec"`
	// TTL живого тика из WebSocket-фида
	TickTTLMs int `yaml:"tick_ttl_ms"`
}

// ScannerConfig содержит настройки цикла сканирования пар
type ScannerConfig struct {
	Pairs           []string `yaml:"pairs"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	// Пауза между запросами к источнику данных (квоты провайдера)
	RequestDelayMs int `yaml:"request_delay_ms"`
	// Период фоновой оценки завершившихся сигналов
	EvaluateSeconds int `yaml:"evaluate_seconds"`
	// Количество свечей, запрашиваемых на таймфрейм
	MaxCandles int `yaml:"max_candles"`
}

// AnalysisConfig содержит настройки оценочного конвейера
type AnalysisConfig struct {
	Indicators IndicatorConfig `yaml:"indicators"`
	Structure  StructureConfig `yaml:"structure"`
	Weights    ScoringWeights  `yaml:"weights"`
	Fusion     FusionConfig    `yaml:"fusion"`
	Expiry     ExpiryConfig    `yaml:"expiry"`
	// Минимальное окно для ненейтральной оценки таймфрейма
	MinCandles int `yaml:"min_candles"`
}

// IndicatorConfig настройки индикаторов
type IndicatorConfig struct {
	EMAFast    int `yaml:"ema_fast"`
	EMASlow    int `yaml:"ema_slow"`
	MACDSignal int `yaml:"macd_signal"`
	EMATrend   int `yaml:"ema_trend"`
	RSIPeriod  int `yaml:"rsi_period"`
	ATRPeriod  int `yaml:"atr_period"`
}

// StructureConfig настройки структурного анализа
type StructureConfig struct {
	SwingLookback int     `yaml:"swing_lookback"`
	LevelLookback int     `yaml:"level_lookback"`
	ATRPeriod     int     `yaml:"atr_period"`
	BOSMargin     float64 `yaml:"bos_margin"`
	RejectionATR  float64 `yaml:"rejection_atr"`
	NearLevelATR  float64 `yaml:"near_level_atr"`
}

// ScoringWeights — именованный, версионируемый набор весов голосов.
// Передаётся в оценщик таймфреймов явно, чтобы поведение было
// воспроизводимым, а не размазанным по константам.
type ScoringWeights struct {
	Version    string  `yaml:"version"`
	Trend      float64 `yaml:"trend"`
	MACD       float64 `yaml:"macd"`
	RSI        float64 `yaml:"rsi"`
	Momentum   float64 `yaml:"momentum"`
	Reversal   float64 `yaml:"reversal"`
	Divergence float64 `yaml:"divergence"`
	Pattern    float64 `yaml:"pattern"`
}

// FusionConfig настройки слияния таймфреймов
type FusionConfig struct {
	LevelPenalty    float64 `yaml:"level_penalty"`
	ReversalBonus   float64 `yaml:"reversal_bonus"`
	RejectionBonus  float64 `yaml:"rejection_bonus"`
	AgreeBonus      float64 `yaml:"agree_bonus"`
	ConfluenceBonus float64 `yaml:"confluence_bonus"`
	MinProbability  float64 `yaml:"min_probability"`
	MaxProbability  float64 `yaml:"max_probability"`
}

// ExpiryConfig настройки выбора экспирации
type ExpiryConfig struct {
	VolatilityWindow  int     `yaml:"volatility_window"`
	DefaultVolatility float64 `yaml:"default_volatility"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки терминального интерфейса
type UIConfig struct {
	RefreshRateMs int  `yaml:"refresh_rate_ms"`
	ShowLogs      bool `yaml:"show_logs"`
}

// DefaultWeights — веса V3 balanced
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		Version:    "v3-balanced",
		Trend:      1.0,
		MACD:       1.8,
		RSI:        2.0,
		Momentum:   1.5,
		Reversal:   2.3,
		Divergence: 0.8,
		Pattern:    0.7,
	}
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	return &Config{
		LogLevel: "debug",
		Exchange: ExchangeConfig{
			FreshnessSec: 3600,
			TickTTLMs:    2500,
		},
		Scanner: ScannerConfig{
			IntervalSeconds: 20,
			RequestDelayMs:  800,
			EvaluateSeconds: 300,
			MaxCandles:      120,
		},
		Analysis: AnalysisConfig{
			MinCandles: 60,
			Indicators: IndicatorConfig{
				EMAFast:    12,
				EMASlow:    26,
				MACDSignal: 9,
				EMATrend:   14,
				RSIPeriod:  8,
				ATRPeriod:  14,
			},
			Structure: StructureConfig{
				SwingLookback: 3,
				LevelLookback: 40,
				ATRPeriod:     14,
				BOSMargin:     0.001,
				RejectionATR:  0.5,
				NearLevelATR:  1.2,
			},
			Weights: DefaultWeights(),
			Fusion: FusionConfig{
				LevelPenalty:    4,
				ReversalBonus:   6,
				RejectionBonus:  6,
				AgreeBonus:      3,
				ConfluenceBonus: 2,
				MinProbability:  35,
				MaxProbability:  92,
			},
			Expiry: ExpiryConfig{
				VolatilityWindow:  10,
				DefaultVolatility: 0.0004,
			},
		},
		UI: UIConfig{
			RefreshRateMs: 1000,
			ShowLogs:      true,
		},
	}
}

// Load загружает конфигурацию из файла поверх значений по умолчанию
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("Ошибка чтения файла конфигурации", zap.Error(err))
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		logger.Fatal("Ошибка разбора файла конфигурации", zap.Error(err))
	}

	logger.Info("Загружена конфигурация",
		zap.String("path", path),
		zap.Any("pairs", config.Scanner.Pairs),
		zap.String("weights", config.Analysis.Weights.Version))
	return config, nil
}
