package indicators

import (
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

// Set представляет рассчитанные индикаторы по одному таймфрейму.
// Все значения относятся к последней свече окна.
type Set struct {
	EMAFast  float64
	EMASlow  float64
	EMATrend float64

	MACD       float64
	MACDSignal float64
	MACDHist   float64
	MACDSlope  float64

	RSI     float64
	RSIPrev float64

	DivBuy  bool
	DivSell bool
}

// Compute рассчитывает индикаторы по окну свечей.
// Окно должно содержать хотя бы две свечи; проверку минимальной длины
// выполняет вызывающий оценщик.
func Compute(candles []*models.Candle, cfg config.IndicatorConfig) *Set {
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	emaFast := ewma(closes, cfg.EMAFast)
	emaSlow := ewma(closes, cfg.EMASlow)
	emaTrend := ewma(closes, cfg.EMATrend)

	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	macdSignal := ewma(macd, cfg.MACDSignal)
	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = macd[i] - macdSignal[i]
	}

	rsi := wilderRSI(closes, cfg.RSIPeriod)

	n := len(closes)
	set := &Set{
		EMAFast:    emaFast[n-1],
		EMASlow:    emaSlow[n-1],
		EMATrend:   emaTrend[n-1],
		MACD:       macd[n-1],
		MACDSignal: macdSignal[n-1],
		MACDHist:   hist[n-1],
		RSI:        rsi[n-1],
	}
	if n >= 2 {
		set.MACDSlope = hist[n-1] - hist[n-2]
		set.RSIPrev = rsi[n-2]
	}

	set.DivBuy, set.DivSell = detectDivergence(hist, highs, lows)
	return set
}

// ewma рассчитывает экспоненциальное скользящее среднее
// с альфой 2/(span+1), затравка — первое значение ряда.
func ewma(values []float64, span int) []float64 {
	result := make([]float64, len(values))
	if len(values) == 0 {
		return result
	}
	alpha := 2.0 / (float64(span) + 1.0)
	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = alpha*values[i] + (1-alpha)*result[i-1]
	}
	return result
}

// wilderRSI рассчитывает RSI со сглаживанием Уайлдера (com = period-1).
// При нулевых потерях RS не определён — RSI фиксируется на 100,
// NaN в конвейер не попадает.
func wilderRSI(closes []float64, period int) []float64 {
	result := make([]float64, len(closes))
	if len(closes) < 2 {
		return result
	}

	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64

	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		if i == 1 {
			avgGain = gain
			avgLoss = loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}

		if avgLoss == 0 {
			result[i] = 100
		} else {
			rs := avgGain / avgLoss
			result[i] = 100 - 100/(1+rs)
		}
	}
	return result
}

// detectDivergence ищет расхождение между двумя последними локальными
// экстремумами гистограммы MACD и последними экстремумами цены:
// цена обновляет экстремум, а гистограмма — нет.
func detectDivergence(hist, highs, lows []float64) (divBuy, divSell bool) {
	n := len(hist)
	if n < 4 {
		return false, false
	}

	var localMins, localMaxs []float64
	for i := 1; i < n-1; i++ {
		if hist[i] < hist[i-1] && hist[i] < hist[i+1] {
			localMins = append(localMins, hist[i])
		}
		if hist[i] > hist[i-1] && hist[i] > hist[i+1] {
			localMaxs = append(localMaxs, hist[i])
		}
	}

	if len(localMins) >= 2 {
		last, prev := localMins[len(localMins)-1], localMins[len(localMins)-2]
		if last > prev && lows[n-1] < lows[n-2] {
			divBuy = true
		}
	}
	if len(localMaxs) >= 2 {
		last, prev := localMaxs[len(localMaxs)-1], localMaxs[len(localMaxs)-2]
		if last < prev && highs[n-1] > highs[n-2] {
			divSell = true
		}
	}
	return divBuy, divSell
}
