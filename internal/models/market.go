package models

import "time"

// MarketEvent — снапшот одной пары в один момент времени.
// Производит ingest, потребляется по broadcast. Не мутируется после публикации.
type MarketEvent struct {
	Pair      string
	Timestamp time.Time // source-stamped, из биржевого фрейма
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
}

// Spread возвращает текущий спред bid/ask.
func (e MarketEvent) Spread() float64 {
	return e.Ask - e.Bid
}

// Pairs — группа пар, на которые подписан стрим. Выводится из конфига стратегий.
type Pairs []string
