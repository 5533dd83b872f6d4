package fusion

import (
	"errors"
	"math"

	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

// ErrNoData возвращается, когда по M1 нет пригодного результата:
// вероятность в этом случае не выдумывается
var ErrNoData = errors.New("нет пригодного результата M1")

// Engine сливает результаты таймфреймов в общее направление
// и калиброванную вероятность
type Engine struct {
	cfg config.FusionConfig
}

// New создает новый движок слияния
func New(cfg config.FusionConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Fuse объединяет результаты M1/M5/M15. M1 обязателен, старшие таймфреймы
// необязательны: отсутствующие не голосуют и не дают бонусов слияния.
func (e *Engine) Fuse(m1, m5, m15 *models.TimeframeResult) (models.Direction, float64, error) {
	if m1 == nil {
		return models.DirNone, 0, ErrNoData
	}

	direction := e.direction(m1, m5, m15)
	prob := e.probability(m1, m5, m15, direction)
	return direction, prob, nil
}

// direction: M1 — исполнительный таймфрейм, его направление приоритетно.
// При нейтральном M1 решает большинство доступных таймфреймов,
// ничья — NONE.
func (e *Engine) direction(m1, m5, m15 *models.TimeframeResult) models.Direction {
	if m1.Direction != models.DirNone {
		return m1.Direction
	}

	buy, sell := 0, 0
	for _, r := range []*models.TimeframeResult{m1, m5, m15} {
		if r == nil {
			continue
		}
		switch r.Direction {
		case models.DirBuy:
			buy++
		case models.DirSell:
			sell++
		}
	}

	if buy > sell {
		return models.DirBuy
	}
	if sell > buy {
		return models.DirSell
	}
	return models.DirNone
}

// probability калибрует вероятность: плавное tanh-отображение счёта M1
// в (15, 85) до поправок, затем аддитивные независимые поправки
// и жёсткий зажим. Верхняя граница — намеренный потолок:
// почти-достоверных сигналов не бывает.
func (e *Engine) probability(m1, m5, m15 *models.TimeframeResult, direction models.Direction) float64 {
	prob := 50.0 + 35.0*math.Tanh(m1.Score/1.6)

	// Торговля против близкого уровня снижает уверенность
	if m1.NearSupport && direction == models.DirSell {
		prob -= e.cfg.LevelPenalty
	}
	if m1.NearResistance && direction == models.DirBuy {
		prob -= e.cfg.LevelPenalty
	}

	// Подтверждающий разворот и отбой — независимые бонусы
	if direction == models.DirBuy && m1.ReversalUp {
		prob += e.cfg.ReversalBonus
	}
	if direction == models.DirSell && m1.ReversalDown {
		prob += e.cfg.ReversalBonus
	}
	if direction == models.DirBuy && m1.RejectionUp {
		prob += e.cfg.RejectionBonus
	}
	if direction == models.DirSell && m1.RejectionDown {
		prob += e.cfg.RejectionBonus
	}

	// Согласие старших таймфреймов
	if direction != models.DirNone {
		same5 := m5 != nil && m5.Direction == direction
		same15 := m15 != nil && m15.Direction == direction
		if same5 {
			prob += e.cfg.AgreeBonus
		}
		if same15 {
			prob += e.cfg.AgreeBonus
		}
		if same5 && same15 {
			prob += e.cfg.ConfluenceBonus
		}
	}

	return math.Max(e.cfg.MinProbability, math.Min(prob, e.cfg.MaxProbability))
}
