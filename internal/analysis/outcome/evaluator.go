package outcome

import (
	"context"
	"time"

	"github.com/skalibog/fxma/internal/storage"
	"github.com/skalibog/fxma/pkg/logger"
	"github.com/skalibog/fxma/pkg/models"
	"go.uber.org/zap"
)

// evalBars — сколько свечей M1 запрашивается для поиска бара экспирации
const evalBars = 300

// FetchFunc — получение свечей для сверки сигнала с реальностью
type FetchFunc func(ctx context.Context, pair, timeframe string, limit int) ([]*models.Candle, error)

// Result — итог оценки одного сигнала
type Result struct {
	ID            string
	Result        models.Result
	PriceAtExpiry float64
}

// Evaluator сверяет отложенные сигналы с фактическим движением цены.
// Переходы только вперёд: PENDING -> WIN/LOSE/ERROR, оценённая запись
// больше никогда не меняется.
type Evaluator struct {
	store storage.Storage
	fetch FetchFunc
}

// New создает новый оценщик результатов
func New(store storage.Storage, fetch FetchFunc) *Evaluator {
	return &Evaluator{store: store, fetch: fetch}
}

// EvaluatePending оценивает все сигналы, чья экспирация уже наступила.
// Проход строго последовательный: на журнале в каждый момент один писатель.
// Вызывается внешним планировщиком, сам себя не перезапускает.
func (e *Evaluator) EvaluatePending(ctx context.Context, now time.Time) ([]Result, error) {
	records, err := e.store.PendingSignals(ctx)
	if err != nil {
		return nil, err
	}

	var evaluated []Result
	for _, rec := range records {
		// Повторная оценка уже оценённой записи — no-op
		if rec.Evaluated {
			continue
		}

		target := rec.CreatedAt.Add(time.Duration(rec.ExpiryMinutes) * time.Minute)
		if now.Before(target) {
			// Экспирация ещё не наступила — это не ошибка
			continue
		}

		res, price := e.evaluate(ctx, rec, target)
		if res == "" {
			// Бар экспирации ещё не пришёл — сигнал остаётся PENDING
			continue
		}

		if err := e.store.MarkEvaluated(ctx, rec.ID, res, price); err != nil {
			logger.Error("Не удалось пометить сигнал",
				zap.String("id", rec.ID), zap.Error(err))
			continue
		}

		evaluated = append(evaluated, Result{ID: rec.ID, Result: res, PriceAtExpiry: price})
		logger.Info("Сигнал оценен",
			zap.String("pair", rec.Pair),
			zap.String("direction", string(rec.Direction)),
			zap.String("result", string(res)))
	}

	return evaluated, nil
}

// evaluate возвращает итог сигнала и цену на экспирации.
// Пустой итог означает, что бар экспирации ещё не существует.
func (e *Evaluator) evaluate(ctx context.Context, rec *models.SignalRecord, target time.Time) (models.Result, float64) {
	candles, err := e.fetch(ctx, rec.Pair, models.TFM1, evalBars)
	if err != nil || len(candles) == 0 {
		// Недоступность данных — терминальная ошибка записи,
		// автоматических повторов здесь нет
		logger.Warn("Нет данных для оценки сигнала",
			zap.String("pair", rec.Pair), zap.Error(err))
		return models.ResultError, 0
	}

	// Первая свеча со временем не раньше целевого момента
	var at *models.Candle
	for _, c := range candles {
		if !c.OpenTime.Before(target) {
			at = c
			break
		}
	}
	if at == nil {
		return "", 0
	}

	win := (rec.Direction == models.DirBuy && at.Close > rec.EntryPrice) ||
		(rec.Direction == models.DirSell && at.Close < rec.EntryPrice)
	if win {
		return models.ResultWin, at.Close
	}
	return models.ResultLose, at.Close
}
