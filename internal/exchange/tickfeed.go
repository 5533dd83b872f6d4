package exchange

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/logger"
	"github.com/skalibog/fxma/pkg/models"
	"go.uber.org/zap"
)

// TickFeed — независимый сборщик живых цен. Владеет своим состоянием
// и отдаёт наружу только снимок на момент запроса: никакого общего
// изменяемого кэша у оценочного конвейера нет.
type TickFeed struct {
	mu     sync.RWMutex
	ticks  map[string]models.Tick
	ttl    time.Duration
	client *BinanceClient
	pairs  []string
}

// NewTickFeed создает новый фид живых цен
func NewTickFeed(cfg config.ExchangeConfig, client *BinanceClient, pairs []string) *TickFeed {
	return &TickFeed{
		ticks:  make(map[string]models.Tick),
		ttl:    time.Duration(cfg.TickTTLMs) * time.Millisecond,
		client: client,
		pairs:  pairs,
	}
}

// Start запускает подписки на лучшие цены и блокируется до отмены контекста
func (f *TickFeed) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, pair := range f.pairs {
		wg.Add(1)
		go func(pair string) {
			defer wg.Done()
			f.streamPair(ctx, pair)
		}(pair)
	}
	wg.Wait()
}

// streamPair держит подписку на пару, переподключаясь с экспоненциальной паузой
func (f *TickFeed) streamPair(ctx context.Context, pair string) {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Jitter: true,
	}

	symbol := f.client.Symbol(pair)
	for {
		if ctx.Err() != nil {
			return
		}

		doneC, stopC, err := binance.WsBookTickerServe(symbol, func(event *binance.WsBookTickerEvent) {
			bid, errBid := strconv.ParseFloat(event.BestBidPrice, 64)
			ask, errAsk := strconv.ParseFloat(event.BestAskPrice, 64)
			if errBid != nil || errAsk != nil {
				return
			}
			f.store(pair, (bid+ask)/2)
		}, func(err error) {
			logger.Warn("Ошибка потока тиков", zap.String("pair", pair), zap.Error(err))
		})
		if err != nil {
			d := b.Duration()
			logger.Warn("Не удалось подписаться на тики",
				zap.String("pair", pair), zap.Error(err), zap.Duration("retry_in", d))
			select {
			case <-time.After(d):
				continue
			case <-ctx.Done():
				return
			}
		}

		b.Reset()
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			// Поток закрылся — переподключаемся
		}
	}
}

func (f *TickFeed) store(pair string, price float64) {
	f.mu.Lock()
	f.ticks[pair] = models.Tick{
		Pair:      pair,
		Price:     price,
		Timestamp: time.Now(),
	}
	f.mu.Unlock()
}

// LivePrice возвращает живую цену пары, если тик не старше TTL
func (f *TickFeed) LivePrice(pair string) (float64, bool) {
	f.mu.RLock()
	tick, ok := f.ticks[pair]
	f.mu.RUnlock()

	if !ok || time.Since(tick.Timestamp) > f.ttl {
		return 0, false
	}
	return tick.Price, true
}
