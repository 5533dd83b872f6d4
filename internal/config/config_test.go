package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	if w.Version != "v3-balanced" {
		t.Fatalf("версия весов = %s, ожидалась v3-balanced", w.Version)
	}
	if w.Trend != 1.0 || w.MACD != 1.8 || w.RSI != 2.0 ||
		w.Momentum != 1.5 || w.Reversal != 2.3 || w.Divergence != 0.8 || w.Pattern != 0.7 {
		t.Fatalf("веса по умолчанию изменились: %+v", w)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Analysis.MinCandles != 60 {
		t.Fatalf("MinCandles = %d, ожидалось 60", cfg.Analysis.MinCandles)
	}
	if cfg.Analysis.Fusion.MinProbability != 35 || cfg.Analysis.Fusion.MaxProbability != 92 {
		t.Fatalf("границы вероятности = %v..%v, ожидалось 35..92",
			cfg.Analysis.Fusion.MinProbability, cfg.Analysis.Fusion.MaxProbability)
	}
	if cfg.Analysis.Expiry.DefaultVolatility != 0.0004 {
		t.Fatalf("волатильность по умолчанию = %v", cfg.Analysis.Expiry.DefaultVolatility)
	}
	if cfg.Exchange.FreshnessSec != 3600 {
		t.Fatalf("порог свежести = %d, ожидалось 3600", cfg.Exchange.FreshnessSec)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	raw := `
log_level: info
scanner:
  pairs:
    - EUR/USD
    - GBP/USD
  interval_seconds: 30
analysis:
  min_candles: 40
  weights:
    version: custom
    trend: 2.0
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("не удалось записать файл: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %s, ожидался info", cfg.LogLevel)
	}
	if len(cfg.Scanner.Pairs) != 2 || cfg.Scanner.Pairs[0] != "EUR/USD" {
		t.Fatalf("пары = %v", cfg.Scanner.Pairs)
	}
	if cfg.Scanner.IntervalSeconds != 30 {
		t.Fatalf("интервал = %d, ожидалось 30", cfg.Scanner.IntervalSeconds)
	}
	if cfg.Analysis.MinCandles != 40 {
		t.Fatalf("MinCandles = %d, ожидалось 40", cfg.Analysis.MinCandles)
	}
	if cfg.Analysis.Weights.Trend != 2.0 {
		t.Fatalf("вес тренда = %v, ожидалось 2.0", cfg.Analysis.Weights.Trend)
	}

	// Незатронутые секции сохраняют значения по умолчанию
	if cfg.Analysis.Indicators.RSIPeriod != 8 {
		t.Fatalf("RSIPeriod = %d, ожидалось 8", cfg.Analysis.Indicators.RSIPeriod)
	}
	if cfg.Scanner.EvaluateSeconds != 300 {
		t.Fatalf("EvaluateSeconds = %d, ожидалось 300", cfg.Scanner.EvaluateSeconds)
	}
}
