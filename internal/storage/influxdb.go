package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/models"
)

// Storage — журнал сигналов и кэш свечей.
// Журнал работает в режиме "дописать, затем обновить один раз":
// сигнал добавляется при рекомендации и ровно один раз помечается
// результатом оценки. Удалением записей ядро не занимается.
type Storage interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]*models.Candle, error)

	SaveSignal(ctx context.Context, rec *models.SignalRecord) error
	PendingSignals(ctx context.Context) ([]*models.SignalRecord, error)
	MarkEvaluated(ctx context.Context, id string, result models.Result, priceAtExpiry float64) error
	Stats(ctx context.Context, since time.Time) (*models.SignalStats, error)

	Close()
}

// InfluxDBStorage реализует интерфейс Storage поверх InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет пачку свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"pair":      candle.Pair,
				"timeframe": candle.Timeframe,
			},
			map[string]interface{}{
				"open":  candle.Open,
				"high":  candle.High,
				"low":   candle.Low,
				"close": candle.Close,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// GetCandles возвращает последние свечи пары, отсортированные по возрастанию времени
func (s *InfluxDBStorage) GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]*models.Candle, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.pair == "%s")
			|> filter(fn: (r) => r.timeframe == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
			|> sort(columns: ["_time"])
	`, s.bucket, pair, timeframe, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	var candles []*models.Candle
	for result.Next() {
		record := result.Record()

		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		close, _ := record.ValueByKey("close").(float64)

		candles = append(candles, &models.Candle{
			Pair:      pair,
			Timeframe: timeframe,
			OpenTime:  record.Time(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return candles, nil
}

// SaveSignal дописывает новый сигнал в журнал
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, rec *models.SignalRecord) error {
	fields := map[string]interface{}{
		"direction":       string(rec.Direction),
		"probability":     rec.Probability,
		"expiry_min":      rec.ExpiryMinutes,
		"entry_price":     rec.EntryPrice,
		"evaluated":       rec.Evaluated,
		"result":          string(rec.Result),
		"price_at_expiry": rec.PriceAtExpiry,
	}
	// Снимок компонентов сохраняется рядом с сигналом,
	// чтобы позже сверять рекомендацию с реальностью по признакам
	for name, value := range rec.Components {
		fields["comp_"+name] = value
	}

	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"id":   rec.ID,
			"pair": rec.Pair,
		},
		fields,
		rec.CreatedAt,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// PendingSignals возвращает неоценённые сигналы
func (s *InfluxDBStorage) PendingSignals(ctx context.Context) ([]*models.SignalRecord, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> filter(fn: (r) => r.evaluated == false)
			|> sort(columns: ["_time"])
	`, s.bucket)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса ожидающих сигналов: %w", err)
	}

	var records []*models.SignalRecord
	for result.Next() {
		record := result.Record()
		records = append(records, recordToSignal(record.Time(), record.Values()))
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return records, nil
}

// MarkEvaluated помечает сигнал результатом оценки.
// Запись выполняется в ту же серию с тем же временем, поэтому поля
// сливаются с исходной точкой — журнал остаётся с одной записью на сигнал.
func (s *InfluxDBStorage) MarkEvaluated(ctx context.Context, id string, result models.Result, priceAtExpiry float64) error {
	rec, err := s.signalByID(ctx, id)
	if err != nil {
		return err
	}

	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"id":   rec.ID,
			"pair": rec.Pair,
		},
		map[string]interface{}{
			"evaluated":       true,
			"result":          string(result),
			"price_at_expiry": priceAtExpiry,
		},
		rec.CreatedAt,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// Stats считает статистику по оценённым сигналам с указанного момента
func (s *InfluxDBStorage) Stats(ctx context.Context, since time.Time) (*models.SignalStats, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: %s)
			|> filter(fn: (r) => r._measurement == "signals")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> filter(fn: (r) => r.evaluated == true)
	`, s.bucket, since.UTC().Format(time.RFC3339))

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса статистики: %w", err)
	}

	stats := &models.SignalStats{}
	for result.Next() {
		res, _ := result.Record().ValueByKey("result").(string)
		switch models.Result(res) {
		case models.ResultWin:
			stats.Wins++
		case models.ResultLose:
			stats.Losses++
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	stats.Total = stats.Wins + stats.Losses
	if stats.Total > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (s *InfluxDBStorage) signalByID(ctx context.Context, id string) (*models.SignalRecord, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.id == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> limit(n: 1)
	`, s.bucket, id)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса сигнала %s: %w", id, err)
	}

	if !result.Next() {
		return nil, fmt.Errorf("сигнал %s не найден", id)
	}
	rec := recordToSignal(result.Record().Time(), result.Record().Values())
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}
	return rec, nil
}

func recordToSignal(ts time.Time, values map[string]interface{}) *models.SignalRecord {
	id, _ := values["id"].(string)
	pair, _ := values["pair"].(string)
	direction, _ := values["direction"].(string)
	probability, _ := values["probability"].(float64)
	entryPrice, _ := values["entry_price"].(float64)
	evaluated, _ := values["evaluated"].(bool)
	res, _ := values["result"].(string)
	priceAtExpiry, _ := values["price_at_expiry"].(float64)

	expiry := 0
	if v, ok := values["expiry_min"].(int64); ok {
		expiry = int(v)
	}

	return &models.SignalRecord{
		ID:            id,
		Pair:          pair,
		Direction:     models.Direction(direction),
		Probability:   probability,
		ExpiryMinutes: expiry,
		EntryPrice:    entryPrice,
		CreatedAt:     ts,
		Evaluated:     evaluated,
		Result:        models.Result(res),
		PriceAtExpiry: priceAtExpiry,
	}
}
