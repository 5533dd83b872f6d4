package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

// ErrMarketStale сообщает, что последняя свеча старше порога свежести:
// рынок закрыт или фид остановился. Ошибка доводится до вызывающего
// как причина пропуска пары.
var ErrMarketStale = errors.New("рынок закрыт: нет свежих котировок")

// Интервалы биржи по таймфреймам анализа
var intervalMap = map[string]string{
	models.TFM1:  "1m",
	models.TFM5:  "5m",
	models.TFM15: "15m",
}

// Длительности таймфреймов
var timeframeDuration = map[string]time.Duration{
	models.TFM1:  time.Minute,
	models.TFM5:  5 * time.Minute,
	models.TFM15: 15 * time.Minute,
}

// BinanceClient — источник котировок; реализует доступ к свечам,
// которого требует оценочный конвейер
type BinanceClient struct {
	spot      *binance.Client
	symbols   map[string]string
	freshness time.Duration
}

// NewBinanceClient создает новый клиент биржи
func NewBinanceClient(cfg config.ExchangeConfig) (*BinanceClient, error) {
	spotClient := binance.NewClient(cfg.APIKey, cfg.APISecret)

	if cfg.Testnet {
		spotClient.SetApiEndpoint("https://testnet.binance.vision")
	}

	return &BinanceClient{
		spot:      spotClient,
		symbols:   cfg.SymbolMap,
		freshness: time.Duration(cfg.FreshnessSec) * time.Second,
	}, nil
}

// Symbol возвращает биржевой тикер для валютной пары
func (c *BinanceClient) Symbol(pair string) string {
	if s, ok := c.symbols[pair]; ok {
		return s
	}
	return strings.ReplaceAll(pair, "/", "")
}

// GetKlines получает исторические свечи, отсортированные по возрастанию времени
func (c *BinanceClient) GetKlines(ctx context.Context, pair, timeframe string, limit int) ([]*models.Candle, error) {
	interval, ok := intervalMap[timeframe]
	if !ok {
		return nil, fmt.Errorf("неизвестный таймфрейм: %s", timeframe)
	}

	klines, err := c.spot.NewKlinesService().
		Symbol(c.Symbol(pair)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей %s %s: %w", pair, timeframe, err)
	}

	candles := make([]*models.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(pair, timeframe, k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// CheckFreshness проверяет возраст последней свечи
func (c *BinanceClient) CheckFreshness(candles []*models.Candle, now time.Time) error {
	if len(candles) == 0 {
		return ErrMarketStale
	}
	last := candles[len(candles)-1]
	age := now.Sub(last.OpenTime.Add(timeframeDuration[last.Timeframe]))
	if c.freshness > 0 && age > c.freshness {
		return fmt.Errorf("%w: последняя свеча %s назад", ErrMarketStale, age.Round(time.Second))
	}
	return nil
}

func parseKline(pair, timeframe string, k *binance.Kline) (*models.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи %s: %w", pair, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи %s: %w", pair, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи %s: %w", pair, err)
	}
	close, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи %s: %w", pair, err)
	}

	return &models.Candle{
		Pair:      pair,
		Timeframe: timeframe,
		OpenTime:  time.Unix(k.OpenTime/1000, 0).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
	}, nil
}
