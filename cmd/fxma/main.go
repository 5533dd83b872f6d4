package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skalibog/fxma/internal/analysis/aggregator"
	"github.com/skalibog/fxma/internal/analysis/outcome"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/internal/exchange"
	"github.com/skalibog/fxma/internal/storage"
	"github.com/skalibog/fxma/internal/ui"
	"github.com/skalibog/fxma/pkg/logger"
	"github.com/skalibog/fxma/pkg/models"
	"go.uber.org/zap"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	logger.Init("debug")
	defer logger.GetLogger().Sync()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Создаем контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище
	store, err := storage.NewInfluxDBStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Exchange)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Фид живых цен — независимый сборщик со своим состоянием
	tickFeed := exchange.NewTickFeed(cfg.Exchange, client, cfg.Scanner.Pairs)
	go tickFeed.Start(ctx)

	// Сборщик свечей
	collector := exchange.NewCandleCollector(client, store, cfg.Scanner)
	go func() {
		defer collector.Stop()
		if err := collector.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Сборщик свечей остановился", zap.Error(err))
		}
	}()

	// Создаем анализатор и оценщик результатов
	analyzer := aggregator.NewAnalyzer(cfg.Analysis, store, client, tickFeed.LivePrice, cfg.Scanner)
	evaluator := outcome.New(store, func(ctx context.Context, pair, timeframe string, limit int) ([]*models.Candle, error) {
		return client.GetKlines(ctx, pair, timeframe, limit)
	})

	// Инициализируем UI
	userInterface := ui.NewTermUI(cfg.UI)

	// Цикл сканирования пар
	go func() {
		// Отложенный старт для накопления данных
		time.Sleep(5 * time.Second)

		ticker := time.NewTicker(time.Duration(cfg.Scanner.IntervalSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				recs := analyzer.GenerateSignals(ctx)
				if len(recs) > 0 {
					userInterface.UpdateRecommendations(recs)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Фоновая оценка завершившихся сигналов.
	// Один последовательный проход за раз: на журнале один писатель.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Scanner.EvaluateSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				results, err := evaluator.EvaluatePending(ctx, time.Now().UTC())
				if err != nil {
					logger.Warn("Ошибка оценки сигналов", zap.Error(err))
					continue
				}
				if len(results) > 0 {
					logger.Info("Оценка завершена", zap.Int("evaluated", len(results)))
				}
				if stats, err := store.Stats(ctx, time.Now().Add(-24*time.Hour)); err == nil {
					userInterface.UpdateStats(*stats)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Запускаем UI в основном потоке (блокирующий вызов)
	userInterface.Start()
}
