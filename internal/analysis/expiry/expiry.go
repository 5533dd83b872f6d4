package expiry

import (
	"math"

	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

// Selector выбирает рекомендуемую экспирацию по вероятности
// и краткосрочной волатильности M1
type Selector struct {
	cfg config.ExpiryConfig
}

// New создает новый выбор экспирации
func New(cfg config.ExpiryConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Select возвращает экспирацию в минутах; 0 — вход не рекомендуется.
// Таблица читается сверху вниз, срабатывает первое условие.
// Ветки по волатильности внутри каждой полки сейчас сходятся к одному
// значению; это наблюдаемое поведение, и оно сохраняется как есть —
// задокументированного намерения различать их нет.
func (s *Selector) Select(probability, volatility float64) int {
	switch {
	case probability >= 85:
		if volatility > 0.0007 {
			return 3
		} else if volatility > 0.0003 {
			return 3
		}
		return 3
	case probability >= 75:
		if volatility > 0.0007 {
			return 4
		} else if volatility > 0.0003 {
			return 4
		}
		return 4
	case probability >= 68:
		if volatility > 0.0007 {
			return 4
		} else if volatility > 0.0003 {
			return 4
		}
		return 4
	default:
		// Сигнал слабый — вход не советуем
		return 0
	}
}

// Volatility — среднее абсолютное изменение закрытия за последние свечи M1.
// При нехватке данных возвращается значение по умолчанию.
func (s *Selector) Volatility(candles []*models.Candle) float64 {
	window := s.cfg.VolatilityWindow
	if len(candles) < window+1 {
		return s.cfg.DefaultVolatility
	}

	sum := 0.0
	start := len(candles) - window
	for i := start; i < len(candles); i++ {
		sum += math.Abs(candles[i].Close - candles[i-1].Close)
	}
	return sum / float64(window)
}
