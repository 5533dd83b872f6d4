package exchange

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/internal/storage"
	"github.com/skalibog/fxma/pkg/logger"
	"github.com/skalibog/fxma/pkg/models"
	"go.uber.org/zap"
)

// DataCollector — фоновый сборщик рыночных данных
type DataCollector interface {
	Start(ctx context.Context) error
	Stop()
}

// CandleCollector периодически запрашивает свечи по всем парам
// и таймфреймам и складывает их в хранилище.
// Запросы идут последовательно с фиксированной паузой —
// квоты провайдера данных соблюдаются здесь, а не в ядре оценки.
type CandleCollector struct {
	client *BinanceClient
	store  storage.Storage
	pairs  []string
	delay  time.Duration
	limit  int
	stopCh chan struct{}
}

// NewCandleCollector создает новый сборщик свечей
func NewCandleCollector(client *BinanceClient, store storage.Storage, cfg config.ScannerConfig) *CandleCollector {
	return &CandleCollector{
		client: client,
		store:  store,
		pairs:  cfg.Pairs,
		delay:  time.Duration(cfg.RequestDelayMs) * time.Millisecond,
		limit:  cfg.MaxCandles,
		stopCh: make(chan struct{}),
	}
}

// Start блокируется и собирает свечи до отмены контекста
func (c *CandleCollector) Start(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    5 * time.Second,
		Max:    5 * time.Minute,
		Jitter: true,
	}

	for {
		if err := c.collectOnce(ctx); err != nil {
			d := b.Duration()
			logger.Warn("Сбор свечей завершился с ошибкой",
				zap.Error(err), zap.Duration("retry_in", d))
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			case <-c.stopCh:
				return nil
			}
			continue
		}
		b.Reset()

		select {
		case <-time.After(time.Minute):
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		}
	}
}

// Stop останавливает сборщик
func (c *CandleCollector) Stop() {
	close(c.stopCh)
}

func (c *CandleCollector) collectOnce(ctx context.Context) error {
	for _, pair := range c.pairs {
		for _, tf := range []string{models.TFM1, models.TFM5, models.TFM15} {
			candles, err := c.client.GetKlines(ctx, pair, tf, c.limit)
			if err != nil {
				return err
			}
			if err := c.store.SaveCandles(ctx, candles); err != nil {
				return err
			}

			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
