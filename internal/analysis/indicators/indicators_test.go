package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

func testConfig() config.IndicatorConfig {
	return config.IndicatorConfig{
		EMAFast:    12,
		EMASlow:    26,
		MACDSignal: 9,
		EMATrend:   14,
		RSIPeriod:  8,
		ATRPeriod:  14,
	}
}

func candlesFromCloses(closes []float64) []*models.Candle {
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = &models.Candle{
			Pair:      "EUR/USD",
			Timeframe: models.TFM1,
			OpenTime:  start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		}
	}
	return candles
}

func TestEWMAFlatSeries(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 1.1
	}
	result := ewma(values, 12)
	for i, v := range result {
		if v != 1.1 {
			t.Fatalf("ewma плоского ряда на позиции %d = %v, ожидалось 1.1", i, v)
		}
	}
}

func TestEWMARecursion(t *testing.T) {
	// Затравка — первое значение, alpha = 2/(span+1)
	values := []float64{1.0, 2.0}
	result := ewma(values, 3)
	if result[0] != 1.0 {
		t.Fatalf("затравка = %v, ожидалось 1.0", result[0])
	}
	want := 0.5*2.0 + 0.5*1.0
	if math.Abs(result[1]-want) > 1e-12 {
		t.Fatalf("ewma[1] = %v, ожидалось %v", result[1], want)
	}
}

func TestRSIClampOnZeroLosses(t *testing.T) {
	// Монотонный рост: потерь нет, RS не определён — RSI фиксируется на 100
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 1.1 + float64(i)*0.001
	}
	rsi := wilderRSI(closes, 8)
	last := rsi[len(rsi)-1]
	if last != 100 {
		t.Fatalf("RSI = %v, ожидалось 100", last)
	}
	if math.IsNaN(last) || math.IsInf(last, 0) {
		t.Fatalf("RSI не должен быть NaN/Inf")
	}
}

func TestRSIWithinBounds(t *testing.T) {
	closes := []float64{1.1, 1.102, 1.099, 1.103, 1.101, 1.105, 1.1, 1.097, 1.102, 1.104, 1.1, 1.098}
	rsi := wilderRSI(closes, 8)
	for i := 1; i < len(rsi); i++ {
		if rsi[i] < 0 || rsi[i] > 100 {
			t.Fatalf("RSI[%d] = %v вне диапазона [0,100]", i, rsi[i])
		}
	}
}

func TestComputeFlatSeriesNeutral(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 1.1
	}
	set := Compute(candlesFromCloses(closes), testConfig())

	if set.MACD != 0 || set.MACDSignal != 0 || set.MACDHist != 0 {
		t.Fatalf("MACD плоского ряда должен быть нулевым: %+v", set)
	}
	if set.DivBuy || set.DivSell {
		t.Fatalf("дивергенций на плоском ряду быть не должно")
	}
	if set.EMAFast != 1.1 || set.EMASlow != 1.1 {
		t.Fatalf("EMA плоского ряда = %v/%v, ожидалось 1.1", set.EMAFast, set.EMASlow)
	}
}

func TestDetectDivergenceBullish(t *testing.T) {
	// Гистограмма: второй локальный минимум выше первого,
	// цена при этом обновляет минимум — бычья дивергенция
	hist := []float64{0, -1.0, 0, 0, -0.4, 0, 0}
	lows := []float64{1.1, 1.1, 1.1, 1.1, 1.1, 1.095, 1.090}
	highs := make([]float64, len(hist))

	divBuy, divSell := detectDivergence(hist, highs, lows)
	if !divBuy {
		t.Fatalf("ожидалась бычья дивергенция")
	}
	if divSell {
		t.Fatalf("медвежья дивергенция не ожидалась")
	}
}

func TestDetectDivergenceBearish(t *testing.T) {
	hist := []float64{0, 1.0, 0, 0, 0.4, 0, 0}
	highs := []float64{1.1, 1.1, 1.1, 1.1, 1.1, 1.105, 1.110}
	lows := make([]float64, len(hist))

	divBuy, divSell := detectDivergence(hist, highs, lows)
	if !divSell {
		t.Fatalf("ожидалась медвежья дивергенция")
	}
	if divBuy {
		t.Fatalf("бычья дивергенция не ожидалась")
	}
}

func TestDetectDivergenceRequiresTwoExtrema(t *testing.T) {
	hist := []float64{0, -1.0, 0, 0}
	lows := []float64{1.1, 1.1, 1.1, 1.09}
	highs := make([]float64, len(hist))

	divBuy, divSell := detectDivergence(hist, highs, lows)
	if divBuy || divSell {
		t.Fatalf("одного экстремума недостаточно для дивергенции")
	}
}
