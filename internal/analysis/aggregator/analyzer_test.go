package aggregator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

// fakeStorage — хранилище в памяти для тестов анализатора
type fakeStorage struct {
	candles    map[string][]*models.Candle
	candlesErr error
	saved      []*models.SignalRecord
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{candles: make(map[string][]*models.Candle)}
}

func (f *fakeStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	return nil
}

func (f *fakeStorage) GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]*models.Candle, error) {
	if f.candlesErr != nil {
		return nil, f.candlesErr
	}
	return f.candles[pair+"/"+timeframe], nil
}

func (f *fakeStorage) SaveSignal(ctx context.Context, rec *models.SignalRecord) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStorage) PendingSignals(ctx context.Context) ([]*models.SignalRecord, error) {
	return nil, nil
}

func (f *fakeStorage) MarkEvaluated(ctx context.Context, id string, result models.Result, priceAtExpiry float64) error {
	return nil
}

func (f *fakeStorage) Stats(ctx context.Context, since time.Time) (*models.SignalStats, error) {
	return &models.SignalStats{}, nil
}

func (f *fakeStorage) Close() {}

func newCandle(tf string, i int, high, low, close float64) *models.Candle {
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	return &models.Candle{
		Pair:      "EUR/USD",
		Timeframe: tf,
		OpenTime:  start.Add(time.Duration(i) * time.Minute),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
	}
}

func flatCandles(tf string, n int, price float64) []*models.Candle {
	candles := make([]*models.Candle, n)
	for i := range candles {
		candles[i] = newCandle(tf, i, price, price, price)
	}
	return candles
}

// rallyFixture — пробойное окно: вершина 1.1030, откат к 1.0990,
// ралли с закрытием далеко выше полосы вето свинг-хая
func rallyFixture(tf string) []*models.Candle {
	candles := make([]*models.Candle, 0, 80)
	for i := 0; i < 55; i++ {
		close := 1.1000 + float64(i)*0.00002
		candles = append(candles, newCandle(tf, i, close+0.0002, close-0.0002, close))
	}
	candles = append(candles, newCandle(tf, 55, 1.1030, 1.1008, 1.1012))
	for i := 56; i < 60; i++ {
		close := 1.1012 - float64(i-55)*0.0004
		candles = append(candles, newCandle(tf, i, close+0.0002, close-0.0002, close))
	}
	candles = append(candles, newCandle(tf, 60, 1.0998, 1.0990, 1.0994))
	for i := 61; i < 80; i++ {
		close := 1.0994 + float64(i-60)*0.00035
		candles = append(candles, newCandle(tf, i, close+0.0002, close-0.0002, close))
	}
	return candles
}

func newTestAnalyzer(store *fakeStorage, pairs ...string) *Analyzer {
	cfg := config.Default()
	cfg.Scanner.Pairs = pairs
	return NewAnalyzer(cfg.Analysis, store, nil, nil, cfg.Scanner)
}

func TestScorePairNoM1Data(t *testing.T) {
	a := newTestAnalyzer(newFakeStorage())
	series := map[string][]*models.Candle{
		models.TFM5: rallyFixture(models.TFM5),
	}

	if _, err := a.ScorePair(context.Background(), "EUR/USD", series); err == nil {
		t.Fatalf("без окна M1 ожидалась ошибка")
	}
}

func TestScorePairFlatSeriesNeutral(t *testing.T) {
	store := newFakeStorage()
	a := newTestAnalyzer(store)
	series := map[string][]*models.Candle{
		models.TFM1:  flatCandles(models.TFM1, 80, 1.1),
		models.TFM5:  flatCandles(models.TFM5, 80, 1.1),
		models.TFM15: flatCandles(models.TFM15, 80, 1.1),
	}

	rec, err := a.ScorePair(context.Background(), "EUR/USD", series)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if rec.Direction != models.DirNone {
		t.Fatalf("Direction = %s, ожидался NONE", rec.Direction)
	}
	if rec.Probability != 50 {
		t.Fatalf("вероятность = %v, ожидалось 50", rec.Probability)
	}
	if rec.ExpiryMinutes != 0 {
		t.Fatalf("экспирация = %d, ожидался 0", rec.ExpiryMinutes)
	}
	if len(store.saved) != 0 {
		t.Fatalf("нейтральная рекомендация не должна журналироваться")
	}
	if rec.EntryPrice == nil || *rec.EntryPrice != 1.1 {
		t.Fatalf("цена входа = %v, ожидалось закрытие 1.1", rec.EntryPrice)
	}
}

func TestScorePairBreakoutPersistsSignal(t *testing.T) {
	store := newFakeStorage()
	a := newTestAnalyzer(store)
	series := map[string][]*models.Candle{
		models.TFM1: rallyFixture(models.TFM1),
	}

	rec, err := a.ScorePair(context.Background(), "EUR/USD", series)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if rec.Direction != models.DirBuy {
		t.Fatalf("Direction = %s, ожидался BUY", rec.Direction)
	}
	if rec.Probability < 68 || rec.Probability > 92 {
		t.Fatalf("вероятность = %v, ожидалась в торговом диапазоне [68, 92]", rec.Probability)
	}
	if rec.ExpiryMinutes == 0 {
		t.Fatalf("для торгуемого сигнала ожидалась экспирация")
	}
	if rec.EntryPrice == nil {
		t.Fatalf("ожидалась цена входа")
	}

	if len(store.saved) != 1 {
		t.Fatalf("сохранено %d сигналов, ожидался 1", len(store.saved))
	}
	saved := store.saved[0]
	if saved.ID == "" {
		t.Fatalf("у записи должен быть идентификатор")
	}
	if saved.Pair != "EUR/USD" || saved.Direction != models.DirBuy {
		t.Fatalf("запись не совпадает с рекомендацией: %+v", saved)
	}
	if saved.EntryPrice != *rec.EntryPrice {
		t.Fatalf("цена входа записи = %v, в рекомендации %v", saved.EntryPrice, *rec.EntryPrice)
	}
	if saved.Evaluated {
		t.Fatalf("новая запись не может быть оценённой")
	}
	if len(saved.Components) == 0 {
		t.Fatalf("ожидался снимок компонентов M1")
	}
}

func TestScorePairDeterministic(t *testing.T) {
	series := map[string][]*models.Candle{
		models.TFM1:  rallyFixture(models.TFM1),
		models.TFM5:  rallyFixture(models.TFM5),
		models.TFM15: rallyFixture(models.TFM15),
	}

	a := newTestAnalyzer(newFakeStorage())
	first, err := a.ScorePair(context.Background(), "EUR/USD", series)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	second, err := a.ScorePair(context.Background(), "EUR/USD", series)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if first.Direction != second.Direction {
		t.Fatalf("направления разошлись: %s против %s", first.Direction, second.Direction)
	}
	if first.Probability != second.Probability {
		t.Fatalf("вероятности разошлись: %v против %v", first.Probability, second.Probability)
	}
	if first.ExpiryMinutes != second.ExpiryMinutes {
		t.Fatalf("экспирации разошлись: %d против %d", first.ExpiryMinutes, second.ExpiryMinutes)
	}
	if *first.EntryPrice != *second.EntryPrice {
		t.Fatalf("цены входа разошлись: %v против %v", *first.EntryPrice, *second.EntryPrice)
	}
	for _, tf := range []string{models.TFM1, models.TFM5, models.TFM15} {
		if first.Timeframes[tf].Score != second.Timeframes[tf].Score {
			t.Fatalf("счёт %s разошёлся: %v против %v",
				tf, first.Timeframes[tf].Score, second.Timeframes[tf].Score)
		}
	}
}

func TestGenerateSignalsStorageErrorGivesReason(t *testing.T) {
	store := newFakeStorage()
	store.candlesErr = errors.New("хранилище недоступно")
	a := newTestAnalyzer(store, "EUR/USD")

	recs := a.GenerateSignals(context.Background())
	rec := recs["EUR/USD"]
	if rec == nil {
		t.Fatalf("рекомендация должна быть для каждой пары")
	}
	if rec.Direction != models.DirNone {
		t.Fatalf("Direction = %s, ожидался NONE", rec.Direction)
	}
	if !strings.HasPrefix(rec.Reason, "Ошибка данных") {
		t.Fatalf("причина = %q, ожидался префикс 'Ошибка данных'", rec.Reason)
	}
}

func TestGenerateSignalsEmptyStorageGivesNoDataReason(t *testing.T) {
	a := newTestAnalyzer(newFakeStorage(), "EUR/USD")

	recs := a.GenerateSignals(context.Background())
	rec := recs["EUR/USD"]
	if rec == nil {
		t.Fatalf("рекомендация должна быть для каждой пары")
	}
	if rec.Reason != "Недостаточно данных M1 для анализа" {
		t.Fatalf("причина = %q", rec.Reason)
	}
}
