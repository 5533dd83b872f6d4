package structure

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

// Типы структурных событий
const (
	TypeNone          = "NONE"
	TypeCHoCHUp       = "CHoCH_UP"
	TypeCHoCHDown     = "CHoCH_DOWN"
	TypeBOSUp         = "BOS_UP"
	TypeBOSDown       = "BOS_DOWN"
	TypeRejectionUp   = "REJECTION_UP"
	TypeRejectionDown = "REJECTION_DOWN"
)

// Reversal представляет разворотное событие относительно последнего свинга
type Reversal struct {
	Up        bool
	Down      bool
	Type      string
	Strength  float64
	SwingHigh float64
	SwingLow  float64
	Found     bool
}

// Levels представляет SMC-уровни текущего окна:
// подтверждённые свинги, классификацию последнего закрытия
// и фитильные отбои от уровней.
type Levels struct {
	SwingHigh     float64
	SwingLow      float64
	Type          string
	Strength      float64
	RejectionUp   bool
	RejectionDown bool
	Found         bool
}

func neutralReversal() *Reversal {
	return &Reversal{Type: TypeNone}
}

func neutralLevels() *Levels {
	return &Levels{Type: TypeNone}
}

// DetectReversal классифицирует последнее закрытие относительно последнего
// подтверждённого свинга: CHoCH при закрытии за уровнем, BOS — если закрытие
// ушло за уровень больше чем на запас прочности.
// Короткое окно или отсутствие свинга — нейтральный результат, не ошибка.
func DetectReversal(candles []*models.Candle, cfg config.StructureConfig) *Reversal {
	lookback := cfg.SwingLookback
	if len(candles) < lookback*4 {
		return neutralReversal()
	}

	hiIdx := lastSwingHigh(candles, lookback, len(candles)-lookback*2)
	loIdx := lastSwingLow(candles, lookback, len(candles)-lookback*2)
	if hiIdx < 0 || loIdx < 0 {
		return neutralReversal()
	}

	swingHigh := candles[hiIdx].High
	swingLow := candles[loIdx].Low
	close := candles[len(candles)-1].Close

	r := &Reversal{
		Type:      TypeNone,
		SwingHigh: swingHigh,
		SwingLow:  swingLow,
		Found:     true,
	}

	if close > swingHigh {
		r.Up = true
		r.Strength = (close - swingHigh) / swingHigh
		r.Type = TypeCHoCHUp
	}
	if close < swingLow {
		r.Down = true
		r.Strength = (swingLow - close) / swingLow
		r.Type = TypeCHoCHDown
	}

	// Уровни могут пересекаться на тонком диапазоне — выбираем дальний пробой
	if r.Up && r.Down {
		if math.Abs(close-swingHigh) > math.Abs(close-swingLow) {
			r.Down = false
			r.Type = TypeCHoCHUp
		} else {
			r.Up = false
			r.Type = TypeCHoCHDown
		}
	}

	if r.Up && close > swingHigh*(1+cfg.BOSMargin) {
		r.Type = TypeBOSUp
	}
	if r.Down && close < swingLow*(1-cfg.BOSMargin) {
		r.Type = TypeBOSDown
	}

	return r
}

// DetectLevels находит последние подтверждённые свинги и классифицирует
// текущую свечу: пробой (BOS/CHoCH) либо фитильный отбой, когда максимум или
// минимум заходит за уровень в пределах допуска ATR, а закрытие — нет.
func DetectLevels(candles []*models.Candle, cfg config.StructureConfig) *Levels {
	lookback := cfg.SwingLookback
	if len(candles) < lookback*3 {
		return neutralLevels()
	}

	hiIdx := lastSwingHigh(candles, lookback, len(candles)-6)
	loIdx := lastSwingLow(candles, lookback, len(candles)-6)
	if hiIdx < 0 || loIdx < 0 {
		return neutralLevels()
	}

	swingHigh := candles[hiIdx].High
	swingLow := candles[loIdx].Low

	last := candles[len(candles)-1]
	close := last.Close
	tolerance := atrLast(candles, cfg.ATRPeriod) * cfg.RejectionATR

	l := &Levels{
		SwingHigh: swingHigh,
		SwingLow:  swingLow,
		Found:     true,
	}

	chochUp := close > swingHigh
	chochDown := close < swingLow
	bosUp := close > swingHigh*(1+cfg.BOSMargin)
	bosDown := close < swingLow*(1-cfg.BOSMargin)

	if last.High >= swingHigh-tolerance && close < swingHigh {
		l.RejectionDown = true
		l.Strength = (last.High - close) / (swingHigh + 1e-9)
	}
	if last.Low <= swingLow+tolerance && close > swingLow {
		l.RejectionUp = true
		l.Strength = (close - last.Low) / (swingLow + 1e-9)
	}

	switch {
	case bosUp:
		l.Type = TypeBOSUp
	case bosDown:
		l.Type = TypeBOSDown
	case chochUp:
		l.Type = TypeCHoCHUp
	case chochDown:
		l.Type = TypeCHoCHDown
	case l.RejectionUp:
		l.Type = TypeRejectionUp
	case l.RejectionDown:
		l.Type = TypeRejectionDown
	default:
		l.Type = TypeNone
	}

	return l
}

// SwingLevels собирает локальные экстремумы последних lookback свечей
// и возвращает поддержку (минимальный свинг-лоу) и сопротивление
// (максимальный свинг-хай).
func SwingLevels(candles []*models.Candle, lookback int) (support, resistance float64, ok bool) {
	n := len(candles)
	if n < lookback+5 {
		return 0, 0, false
	}

	var haveHigh, haveLow bool
	for i := 2; i < lookback; i++ {
		idx := n - i
		if idx-1 < 0 || idx+1 >= n {
			continue
		}
		c := candles[idx]
		if c.High > candles[idx-1].High && c.High > candles[idx+1].High {
			if !haveHigh || c.High > resistance {
				resistance = c.High
			}
			haveHigh = true
		}
		if c.Low < candles[idx-1].Low && c.Low < candles[idx+1].Low {
			if !haveLow || c.Low < support {
				support = c.Low
			}
			haveLow = true
		}
	}

	return support, resistance, haveHigh && haveLow
}

// lastSwingHigh ищет с конца первую точку, чей максимум наибольший
// в симметричном окне lookback свечей вокруг неё.
func lastSwingHigh(candles []*models.Candle, lookback, from int) int {
	for i := from; i > lookback; i-- {
		if i+lookback >= len(candles) {
			continue
		}
		isMax := true
		for j := i - lookback; j <= i+lookback; j++ {
			if candles[j].High > candles[i].High {
				isMax = false
				break
			}
		}
		if isMax {
			return i
		}
	}
	return -1
}

func lastSwingLow(candles []*models.Candle, lookback, from int) int {
	for i := from; i > lookback; i-- {
		if i+lookback >= len(candles) {
			continue
		}
		isMin := true
		for j := i - lookback; j <= i+lookback; j++ {
			if candles[j].Low < candles[i].Low {
				isMin = false
				break
			}
		}
		if isMin {
			return i
		}
	}
	return -1
}

// atrLast возвращает последний ATR; если окно короче периода,
// откатывается на диапазон последней свечи.
func atrLast(candles []*models.Candle, period int) float64 {
	n := len(candles)
	last := candles[n-1]
	if n <= period {
		return last.High - last.Low
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	atr := talib.Atr(highs, lows, closes, period)
	v := atr[n-1]
	if v <= 0 || math.IsNaN(v) {
		return last.High - last.Low
	}
	return v
}
