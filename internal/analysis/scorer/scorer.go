package scorer

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/skalibog/fxma/internal/analysis/indicators"
	"github.com/skalibog/fxma/internal/analysis/structure"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

// atrK — нормализатор импульса относительно среднего диапазона свечи
const atrK = 0.5

// Свечные паттерны
const (
	PatternNone          = "NONE"
	PatternBullishEngulf = "BULLISH_ENGULF"
	PatternBearishEngulf = "BEARISH_ENGULF"
	PatternHammer        = "HAMMER"
)

// Scorer оценивает один таймфрейм: собирает голоса индикаторов и структуры
// во взвешенную сумму и применяет структурные вето на M1
type Scorer struct {
	cfg config.AnalysisConfig
}

// New создает новый оценщик таймфреймов
func New(cfg config.AnalysisConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score оценивает окно свечей одного таймфрейма.
// Окно короче минимума даёт нейтральный результат — это контракт,
// на который полагается слияние таймфреймов.
func (s *Scorer) Score(candles []*models.Candle, tf string) *models.TimeframeResult {
	if len(candles) < s.cfg.MinCandles {
		return models.Neutral(tf)
	}

	ind := indicators.Compute(candles, s.cfg.Indicators)
	last := candles[len(candles)-1]
	price := last.Close
	w := s.cfg.Weights

	res := &models.TimeframeResult{
		Timeframe:     tf,
		Direction:     models.DirNone,
		Pattern:       PatternNone,
		StructureType: structure.TypeNone,
		RSI:           ind.RSI,
		DivBuy:        ind.DivBuy,
		DivSell:       ind.DivSell,
	}

	// ===================== Тренд по EMA =====================
	trendUp := ind.EMAFast > ind.EMASlow
	trendDown := ind.EMAFast < ind.EMASlow
	if trendUp {
		res.EMAVote = 1
	} else if trendDown {
		res.EMAVote = -1
	}

	// ===================== MACD =====================
	// Голос подавляется, когда расхождение меньше 30% гистограммы:
	// выпрямляющийся MACD не должен голосовать
	res.MACDDiff = ind.MACD - ind.MACDSignal
	if math.Abs(res.MACDDiff) >= math.Abs(ind.MACDHist)*0.3 {
		if res.MACDDiff > 0 {
			res.MACDVote = 1
		} else if res.MACDDiff < 0 {
			res.MACDVote = -1
		}
	}

	// ===================== RSI (трендовый) =====================
	if ind.RSI > 55 && ind.RSI > ind.RSIPrev && trendUp {
		res.RSIVote = 1
	} else if ind.RSI < 40 && ind.RSI < ind.RSIPrev && trendDown {
		res.RSIVote = -1
	}

	// ===================== Импульс через ATR =====================
	res.Impulse = s.impulse(candles)
	switch {
	case res.Impulse > 0.7:
		res.ImpulseVote = 1
	case res.Impulse < -0.7:
		res.ImpulseVote = -1
	case res.Impulse > 0.4:
		res.ImpulseVote = 0.5
	case res.Impulse < -0.4:
		res.ImpulseVote = -0.5
	}

	// ===================== Разворот =====================
	rev := structure.DetectReversal(candles, s.cfg.Structure)
	res.ReversalUp = rev.Up
	res.ReversalDown = rev.Down
	revVote := 0
	if rev.Up {
		revVote = 1
	} else if rev.Down {
		revVote = -1
	}
	revWeightFactor := math.Min(1.0+rev.Strength*10.0, 2.0)

	// ===================== Свечной паттерн =====================
	res.Pattern = detectPattern(candles)
	patVote := 0
	switch res.Pattern {
	case PatternBullishEngulf, PatternHammer:
		patVote = 1
	case PatternBearishEngulf:
		patVote = -1
	}

	// ===================== Взвешенная сумма =====================
	total := 0.0
	total += float64(res.EMAVote) * w.Trend
	total += float64(res.MACDVote) * w.MACD
	total += float64(res.RSIVote) * w.RSI
	total += res.ImpulseVote * w.Momentum
	if revVote != 0 {
		total += float64(revVote) * w.Reversal * revWeightFactor
	}
	if ind.DivBuy {
		total += w.Divergence
	} else if ind.DivSell {
		total -= w.Divergence
	}
	total += float64(patVote) * w.Pattern

	if total > 0.5 {
		res.Direction = models.DirBuy
	} else if total < -0.5 {
		res.Direction = models.DirSell
	}

	// ===================== M1: уровни и вето =====================
	// Сырые голоса индикаторов ненадёжны именно у структурных разворотных
	// точек, поэтому на исполнительном таймфрейме структура имеет право вето
	if tf == models.TFM1 {
		support, resistance, ok := structure.SwingLevels(candles, s.cfg.Structure.LevelLookback)
		if ok {
			eps := s.nearLevelEps(candles, price)
			if price >= support && price-support <= eps {
				res.NearSupport = true
			}
			if price <= resistance && resistance-price <= eps {
				res.NearResistance = true
			}
		}

		smc := structure.DetectLevels(candles, s.cfg.Structure)
		res.StructureType = smc.Type
		res.StructureStrength = smc.Strength
		res.SwingHigh = smc.SwingHigh
		res.SwingLow = smc.SwingLow
		res.RejectionUp = smc.RejectionUp
		res.RejectionDown = smc.RejectionDown

		if res.Direction == models.DirBuy && res.NearResistance {
			res.Direction = models.DirNone
			total -= 3
		}
		if res.Direction == models.DirSell && res.NearSupport {
			res.Direction = models.DirNone
			total += 3
		}

		// Покупка впритык к свинг-хаю (полоса ±0.2%) отменяется;
		// уверенный пробой выше полосы вето не трогает
		if res.Direction == models.DirBuy && smc.SwingHigh > 0 &&
			price >= smc.SwingHigh*0.998 && price <= smc.SwingHigh*1.002 {
			res.Direction = models.DirNone
			total -= 2
		}
		if res.Direction == models.DirSell && smc.SwingLow > 0 &&
			price <= smc.SwingLow*1.002 && price >= smc.SwingLow*0.998 {
			res.Direction = models.DirNone
			total += 2
		}

		if res.RejectionDown {
			res.Direction = models.DirSell
			total -= 3
		}
		if res.RejectionUp {
			res.Direction = models.DirBuy
			total += 3
		}

		if (res.NearResistance || res.NearSupport) && math.Abs(total) < 2 {
			res.Direction = models.DirNone
		}
	}

	res.Score = math.Round(total*10000) / 10000
	return res
}

// impulse — z-нормированное изменение цены за 3 свечи
// относительно среднего диапазона
func (s *Scorer) impulse(candles []*models.Candle) float64 {
	n := len(candles)
	if n < 4 {
		return 0
	}
	atr := rangeATR(candles, s.cfg.Indicators.ATRPeriod)
	if atr <= 0 || math.IsNaN(atr) {
		return 0
	}
	return (candles[n-1].Close - candles[n-4].Close) / (atr * atrK)
}

// nearLevelEps — допуск близости к уровню: ATR*k либо доля цены,
// когда ATR недоступен
func (s *Scorer) nearLevelEps(candles []*models.Candle, price float64) float64 {
	atr := rangeATR(candles, s.cfg.Indicators.ATRPeriod)
	if atr > 0 && !math.IsNaN(atr) {
		return atr * s.cfg.Structure.NearLevelATR
	}
	return price * 0.0005
}

// rangeATR — скользящее среднее диапазона high-low
func rangeATR(candles []*models.Candle, period int) float64 {
	n := len(candles)
	if n <= period {
		return 0
	}
	ranges := make([]float64, n)
	for i, c := range candles {
		ranges[i] = c.High - c.Low
	}
	sma := talib.Sma(ranges, period)
	return sma[n-1]
}

// detectPattern распознаёт поглощение и молот по двум последним свечам
func detectPattern(candles []*models.Candle) string {
	n := len(candles)
	if n < 2 {
		return PatternNone
	}
	last := candles[n-1]
	prev := candles[n-2]

	// Бычье поглощение
	if last.Close > last.Open && last.Open < prev.Close && last.Close > prev.Open {
		return PatternBullishEngulf
	}

	// Медвежье поглощение
	if last.Close < last.Open && last.Open > prev.Close && last.Close < prev.Open {
		return PatternBearishEngulf
	}

	body := math.Abs(last.Close - last.Open)
	lowerShadow := math.Min(last.Open, last.Close) - last.Low
	upperShadow := last.High - math.Max(last.Open, last.Close)

	// Молот
	if lowerShadow > body*2 && upperShadow < body*0.5 {
		return PatternHammer
	}

	return PatternNone
}
