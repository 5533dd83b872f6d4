package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/fxma/internal/analysis/entry"
	"github.com/skalibog/fxma/internal/analysis/expiry"
	"github.com/skalibog/fxma/internal/analysis/fusion"
	"github.com/skalibog/fxma/internal/analysis/scorer"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/internal/exchange"
	"github.com/skalibog/fxma/internal/storage"
	"github.com/skalibog/fxma/pkg/logger"
	"github.com/skalibog/fxma/pkg/models"
	"go.uber.org/zap"
)

// Analyzer объединяет оценочный конвейер: счёт по таймфреймам, слияние,
// выбор экспирации и цены входа, журналирование актуальных сигналов
type Analyzer struct {
	cfg      config.AnalysisConfig
	store    storage.Storage
	client   *exchange.BinanceClient
	scorer   *scorer.Scorer
	fusion   *fusion.Engine
	expiry   *expiry.Selector
	entry    *entry.Resolver
	live     entry.LivePriceFunc
	pairs    []string
	maxBars  int
}

// NewAnalyzer создает новый анализатор.
// live может быть nil — тогда цена входа берётся только из свечей.
func NewAnalyzer(cfg config.AnalysisConfig, store storage.Storage, client *exchange.BinanceClient, live entry.LivePriceFunc, scannerCfg config.ScannerConfig) *Analyzer {
	var fetch entry.FetchFunc
	if client != nil {
		fetch = func(ctx context.Context, pair string, count int) ([]*models.Candle, error) {
			return client.GetKlines(ctx, pair, models.TFM1, count)
		}
	}

	return &Analyzer{
		cfg:     cfg,
		store:   store,
		client:  client,
		scorer:  scorer.New(cfg),
		fusion:  fusion.New(cfg.Fusion),
		expiry:  expiry.New(cfg.Expiry),
		entry:   entry.New(fetch),
		live:    live,
		pairs:   scannerCfg.Pairs,
		maxBars: scannerCfg.MaxCandles,
	}
}

// ScorePair оценивает пару по переданным окнам свечей и возвращает
// рекомендацию. Вызов детерминирован: одинаковые свечи дают одинаковые
// числовые поля. Пригодный сигнал с ценой входа записывается в журнал.
func (a *Analyzer) ScorePair(ctx context.Context, pair string, series map[string][]*models.Candle) (*models.Recommendation, error) {
	// Таймфреймы считаются параллельно: оценка чистая и не делит состояние
	var wg sync.WaitGroup
	results := make(map[string]*models.TimeframeResult, 3)
	var mu sync.Mutex

	for _, tf := range []string{models.TFM1, models.TFM5, models.TFM15} {
		candles := series[tf]
		if len(candles) == 0 {
			continue
		}
		wg.Add(1)
		go func(tf string, candles []*models.Candle) {
			defer wg.Done()
			res := a.scorer.Score(candles, tf)
			mu.Lock()
			results[tf] = res
			mu.Unlock()
			logger.Debug("AGGREGATOR: Таймфрейм оценен",
				zap.String("pair", pair), zap.String("tf", tf),
				zap.String("direction", string(res.Direction)), zap.Float64("score", res.Score))
		}(tf, candles)
	}
	wg.Wait()

	direction, prob, err := a.fusion.Fuse(results[models.TFM1], results[models.TFM5], results[models.TFM15])
	if err != nil {
		return nil, err
	}

	m1 := series[models.TFM1]
	volatility := a.expiry.Volatility(m1)
	expiryMin := 0
	if direction != models.DirNone {
		expiryMin = a.expiry.Select(prob, volatility)
	}

	entryPrice := a.entry.Resolve(ctx, pair, direction, m1, results[models.TFM1], a.live)

	rec := &models.Recommendation{
		Pair:          pair,
		Direction:     direction,
		Probability:   prob,
		ExpiryMinutes: expiryMin,
		EntryPrice:    entryPrice,
		Timestamp:     time.Now().UTC(),
		Timeframes:    results,
	}

	// Журналируется только пригодный сигнал: есть направление, экспирация
	// и цена входа. Отсутствие цены подавляет запись, но не рекомендацию.
	if direction != models.DirNone && expiryMin > 0 && entryPrice != nil {
		if err := a.persist(ctx, rec, results[models.TFM1]); err != nil {
			logger.Warn("Не удалось сохранить сигнал", zap.String("pair", pair), zap.Error(err))
		}
	}

	return rec, nil
}

// Analyze загружает окна свечей пары из хранилища, проверяет свежесть M1
// и выполняет оценку
func (a *Analyzer) Analyze(ctx context.Context, pair string) (*models.Recommendation, error) {
	series := make(map[string][]*models.Candle, 3)
	for _, tf := range []string{models.TFM1, models.TFM5, models.TFM15} {
		candles, err := a.store.GetCandles(ctx, pair, tf, a.maxBars)
		if err != nil {
			return nil, err
		}
		series[tf] = candles
	}

	if a.client != nil {
		if err := a.client.CheckFreshness(series[models.TFM1], time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	return a.ScorePair(ctx, pair, series)
}

// GenerateSignals оценивает все отслеживаемые пары.
// Ошибки отдельных пар превращаются в нейтральную рекомендацию
// с человекочитаемой причиной — пользователь никогда не видит стектрейс.
func (a *Analyzer) GenerateSignals(ctx context.Context) map[string]*models.Recommendation {
	recs := make(map[string]*models.Recommendation, len(a.pairs))

	for _, pair := range a.pairs {
		rec, err := a.Analyze(ctx, pair)
		if err != nil {
			recs[pair] = &models.Recommendation{
				Pair:      pair,
				Direction: models.DirNone,
				Timestamp: time.Now().UTC(),
				Reason:    reasonFor(err),
			}
			logger.Warn("Пара пропущена", zap.String("pair", pair), zap.Error(err))
			continue
		}
		recs[pair] = rec
	}

	return recs
}

func (a *Analyzer) persist(ctx context.Context, rec *models.Recommendation, m1 *models.TimeframeResult) error {
	record := &models.SignalRecord{
		ID:            uuid.NewString(),
		Pair:          rec.Pair,
		Direction:     rec.Direction,
		Probability:   rec.Probability,
		ExpiryMinutes: rec.ExpiryMinutes,
		EntryPrice:    *rec.EntryPrice,
		CreatedAt:     rec.Timestamp,
		Components:    components(m1),
	}
	return a.store.SaveSignal(ctx, record)
}

// components — снимок признаков M1 на момент сигнала
func components(m1 *models.TimeframeResult) map[string]float64 {
	if m1 == nil {
		return nil
	}
	return map[string]float64{
		"score":        m1.Score,
		"ema_vote":     float64(m1.EMAVote),
		"macd_vote":    float64(m1.MACDVote),
		"rsi":          m1.RSI,
		"rsi_vote":     float64(m1.RSIVote),
		"impulse":      m1.Impulse,
		"impulse_vote": m1.ImpulseVote,
		"strength":     m1.StructureStrength,
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, exchange.ErrMarketStale):
		return "Рынок закрыт: нет свежих котировок"
	case errors.Is(err, fusion.ErrNoData):
		return "Недостаточно данных M1 для анализа"
	default:
		return "Ошибка данных: " + err.Error()
	}
}
