package entry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skalibog/fxma/pkg/models"
)

func lastCandle(high, low, close float64) []*models.Candle {
	return []*models.Candle{{
		Pair:      "EUR/USD",
		Timeframe: models.TFM1,
		OpenTime:  time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
	}}
}

func flags(reversalUp, rejectionUp, reversalDown, rejectionDown bool) *models.TimeframeResult {
	res := models.Neutral(models.TFM1)
	res.ReversalUp = reversalUp
	res.RejectionUp = rejectionUp
	res.ReversalDown = reversalDown
	res.RejectionDown = rejectionDown
	return res
}

func TestResolveBuyReversalUsesWickLow(t *testing.T) {
	r := New(nil)
	m1 := lastCandle(1.10450, 1.10370, 1.10420)

	price := r.Resolve(context.Background(), "EUR/USD", models.DirBuy, m1, flags(true, false, false, false), nil)
	if price == nil {
		t.Fatalf("ожидалась цена входа")
	}
	if *price != 1.10370 {
		t.Fatalf("цена = %v, ожидался минимум фитиля 1.10370", *price)
	}
}

func TestResolveBuyWithoutFlagsUsesMidpoint(t *testing.T) {
	r := New(nil)
	m1 := lastCandle(1.10450, 1.10370, 1.10420)

	price := r.Resolve(context.Background(), "EUR/USD", models.DirBuy, m1, flags(false, false, false, false), nil)
	if price == nil {
		t.Fatalf("ожидалась цена входа")
	}
	want := (1.10370 + 1.10420) / 2
	if *price != want {
		t.Fatalf("цена = %v, ожидалась середина %v", *price, want)
	}
}

func TestResolveSellRejectionUsesWickHigh(t *testing.T) {
	r := New(nil)
	m1 := lastCandle(1.10450, 1.10370, 1.10400)

	price := r.Resolve(context.Background(), "EUR/USD", models.DirSell, m1, flags(false, false, false, true), nil)
	if price == nil {
		t.Fatalf("ожидалась цена входа")
	}
	if *price != 1.10450 {
		t.Fatalf("цена = %v, ожидался максимум фитиля 1.10450", *price)
	}
}

func TestResolveNoneUsesClose(t *testing.T) {
	r := New(nil)
	m1 := lastCandle(1.10450, 1.10370, 1.10400)

	price := r.Resolve(context.Background(), "EUR/USD", models.DirNone, m1, nil, nil)
	if price == nil || *price != 1.10400 {
		t.Fatalf("цена = %v, ожидалось закрытие 1.10400", price)
	}
}

func TestResolveLiveTickImprovesBuy(t *testing.T) {
	r := New(nil)
	m1 := lastCandle(1.10450, 1.10370, 1.10420)
	live := func(pair string) (float64, bool) { return 1.10350, true }

	price := r.Resolve(context.Background(), "EUR/USD", models.DirBuy, m1, flags(true, false, false, false), live)
	if price == nil || *price != 1.10350 {
		t.Fatalf("цена = %v, живой тик ниже должен выигрывать для покупки", price)
	}
}

func TestResolveLiveTickWorseIgnoredForBuy(t *testing.T) {
	r := New(nil)
	m1 := lastCandle(1.10450, 1.10370, 1.10420)
	live := func(pair string) (float64, bool) { return 1.10500, true }

	price := r.Resolve(context.Background(), "EUR/USD", models.DirBuy, m1, flags(true, false, false, false), live)
	if price == nil || *price != 1.10370 {
		t.Fatalf("цена = %v, худший тик не должен сдвигать вход", price)
	}
}

func TestResolveLiveTickImprovesSell(t *testing.T) {
	r := New(nil)
	m1 := lastCandle(1.10450, 1.10370, 1.10400)
	live := func(pair string) (float64, bool) { return 1.10480, true }

	price := r.Resolve(context.Background(), "EUR/USD", models.DirSell, m1, flags(false, false, false, true), live)
	if price == nil || *price != 1.10480 {
		t.Fatalf("цена = %v, живой тик выше должен выигрывать для продажи", price)
	}
}

func TestResolveRoundsToPipPrecision(t *testing.T) {
	r := New(nil)
	// Середина (low+close)/2 даёт шестой знак
	m1 := lastCandle(1.10450, 1.10371, 1.10420)

	price := r.Resolve(context.Background(), "EUR/USD", models.DirBuy, m1, flags(false, false, false, false), nil)
	if price == nil {
		t.Fatalf("ожидалась цена входа")
	}
	if *price != 1.10396 {
		t.Fatalf("цена = %v, ожидалось округление до 1.10396", *price)
	}
}

func TestResolveEmptyWindowFallsBackToFetch(t *testing.T) {
	fetched := lastCandle(1.10450, 1.10370, 1.10410)
	r := New(func(ctx context.Context, pair string, count int) ([]*models.Candle, error) {
		return fetched, nil
	})

	price := r.Resolve(context.Background(), "EUR/USD", models.DirBuy, nil, nil, nil)
	if price == nil || *price != 1.10410 {
		t.Fatalf("цена = %v, ожидалось закрытие дозапроса 1.10410", price)
	}
}

func TestResolveEmptyWindowFetchErrorGivesNil(t *testing.T) {
	r := New(func(ctx context.Context, pair string, count int) ([]*models.Candle, error) {
		return nil, errors.New("источник недоступен")
	})

	if price := r.Resolve(context.Background(), "EUR/USD", models.DirBuy, nil, nil, nil); price != nil {
		t.Fatalf("цена = %v, ожидался nil", *price)
	}
}

func TestResolveEmptyWindowNoFetchGivesNil(t *testing.T) {
	r := New(nil)
	if price := r.Resolve(context.Background(), "EUR/USD", models.DirBuy, nil, nil, nil); price != nil {
		t.Fatalf("цена = %v, ожидался nil", *price)
	}
}
