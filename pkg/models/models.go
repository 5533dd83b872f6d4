package models

import (
	"time"
)

// Direction определяет направление сигнала
type Direction string

const (
	DirBuy  Direction = "BUY"
	DirSell Direction = "SELL"
	DirNone Direction = "NONE"
)

// Result определяет итог оценки сигнала
type Result string

const (
	ResultWin   Result = "WIN"
	ResultLose  Result = "LOSE"
	ResultError Result = "ERROR"
)

// Таймфреймы анализа
const (
	TFM1  = "M1"
	TFM5  = "M5"
	TFM15 = "M15"
)

// Candle представляет свечу
type Candle struct {
	Pair      string
	Timeframe string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// Tick представляет последнюю живую цену от внешнего фида
type Tick struct {
	Pair      string
	Price     float64
	Timestamp time.Time
}

// TimeframeResult представляет результат оценки одного таймфрейма.
// Создаётся заново при каждом вызове и после возврата не изменяется.
type TimeframeResult struct {
	Timeframe string
	Direction Direction
	Score     float64

	// Голоса индикаторов
	EMAVote     int
	MACDDiff    float64
	MACDVote    int
	RSI         float64
	RSIVote     int
	Impulse     float64
	ImpulseVote float64
	DivBuy      bool
	DivSell     bool
	Pattern     string

	// Структурные признаки
	ReversalUp        bool
	ReversalDown      bool
	RejectionUp       bool
	RejectionDown     bool
	NearSupport       bool
	NearResistance    bool
	StructureType     string
	StructureStrength float64
	SwingHigh         float64 // 0 — уровень не найден
	SwingLow          float64
}

// Neutral возвращает нейтральный результат для таймфрейма.
// Короткое окно — не ошибка: конвейер оценки всегда деградирует мягко.
func Neutral(tf string) *TimeframeResult {
	return &TimeframeResult{
		Timeframe:     tf,
		Direction:     DirNone,
		Pattern:       "NONE",
		StructureType: "NONE",
	}
}

// Recommendation представляет итоговую торговую рекомендацию по паре
type Recommendation struct {
	Pair          string
	Direction     Direction
	Probability   float64
	ExpiryMinutes int      // 0 — вход не рекомендуется
	EntryPrice    *float64 // nil — цена входа не определена
	Timestamp     time.Time
	Reason        string // человекочитаемая причина при Direction == NONE

	// Результаты по таймфреймам (снимок признаков для журнала)
	Timeframes map[string]*TimeframeResult
}

// SignalRecord представляет сохранённый сигнал для последующей оценки.
// Жизненный цикл: создаётся с Evaluated=false, изменяется ровно один раз
// оценщиком результатов, после чего больше не меняется.
type SignalRecord struct {
	ID            string
	Pair          string
	Direction     Direction
	Probability   float64
	ExpiryMinutes int
	EntryPrice    float64
	CreatedAt     time.Time
	Evaluated     bool
	Result        Result
	PriceAtExpiry float64

	// Снимок компонентов M1 на момент сигнала
	Components map[string]float64
}

// SignalStats представляет статистику по оценённым сигналам
type SignalStats struct {
	Total   int
	Wins    int
	Losses  int
	WinRate float64
}
