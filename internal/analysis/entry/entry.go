package entry

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/skalibog/fxma/pkg/models"
)

// pipPrecision — точность котировок форекс-пар
const pipPrecision = 5

// FetchFunc — минимальный дозапрос последних свечей M1 для запасной цепочки
type FetchFunc func(ctx context.Context, pair string, count int) ([]*models.Candle, error)

// LivePriceFunc — снимок живой цены от внешнего фида; может отсутствовать
type LivePriceFunc func(pair string) (float64, bool)

// Resolver выбирает точную цену входа по фитилю последней свечи M1,
// при наличии живого тика смешивая её в более выгодную сторону
type Resolver struct {
	fetch FetchFunc
}

// New создает новый резолвер цены входа.
// fetch может быть nil — тогда запасная цепочка короче на один шаг.
func New(fetch FetchFunc) *Resolver {
	return &Resolver{fetch: fetch}
}

// Resolve возвращает цену входа либо nil, когда данных нет совсем.
// nil подавляет запись сигнала в журнал, но не мешает вернуть
// направление и вероятность вызывающему.
func (r *Resolver) Resolve(ctx context.Context, pair string, direction models.Direction, m1 []*models.Candle, flags *models.TimeframeResult, live LivePriceFunc) *float64 {
	price := r.computed(ctx, pair, direction, m1, flags)
	if price == nil {
		return nil
	}

	// Смешивание с живым тиком: всегда в более выгодную сторону
	if live != nil {
		if tick, ok := live(pair); ok {
			switch direction {
			case models.DirBuy:
				if tick < *price {
					*price = tick
				}
			case models.DirSell:
				if tick > *price {
					*price = tick
				}
			}
		}
	}

	rounded := round(*price)
	return &rounded
}

func (r *Resolver) computed(ctx context.Context, pair string, direction models.Direction, m1 []*models.Candle, flags *models.TimeframeResult) *float64 {
	if len(m1) == 0 {
		return r.fallback(ctx, pair)
	}
	last := m1[len(m1)-1]

	var price float64
	switch direction {
	case models.DirBuy:
		if flags != nil && (flags.ReversalUp || flags.RejectionUp) {
			// Подтверждённый отскок — входим по экстремуму фитиля
			price = last.Low
		} else {
			price = (last.Low + last.Close) / 2
		}
	case models.DirSell:
		if flags != nil && (flags.ReversalDown || flags.RejectionDown) {
			price = last.High
		} else {
			price = (last.High + last.Close) / 2
		}
	default:
		price = last.Close
	}
	return &price
}

// fallback — явная запасная цепочка: свежий минимальный дозапрос
// последнего закрытия, затем nil. Каждый шаг наблюдаем и тестируем,
// без глухих перехватов.
func (r *Resolver) fallback(ctx context.Context, pair string) *float64 {
	if r.fetch == nil {
		return nil
	}
	candles, err := r.fetch(ctx, pair, 3)
	if err != nil || len(candles) == 0 {
		return nil
	}
	price := candles[len(candles)-1].Close
	return &price
}

func round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(pipPrecision).Float64()
	return f
}
