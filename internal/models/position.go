package models

import "time"

// TradingMode фиксируется на всё время жизни процесса.
type TradingMode string

const (
	ModeLive  TradingMode = "live"
	ModePaper TradingMode = "paper"
)

func ParseTradingMode(s string) (TradingMode, bool) {
	switch TradingMode(s) {
	case ModeLive:
		return ModeLive, true
	case ModePaper:
		return ModePaper, true
	}
	return "", false
}

// Position — открытая экспозиция. Инварианты: не более одной позиции на
// (pair, side) в рамках режима; quantity > 0; entry_price > 0.
type Position struct {
	ID         string
	Pair       string
	Side       Side
	EntryPrice float64
	Quantity   float64
	Mode       TradingMode
	OpenedAt   time.Time
}

// Trade — закрытая позиция. Неизменяема после записи.
// PnLUSD = (exit - entry) * quantity * sign(side).
type Trade struct {
	ID         string
	Pair       string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnLUSD     float64
	Mode       TradingMode
	OpenedAt   time.Time
	ClosedAt   time.Time
}
