package strategy

import "trade_core/internal/models"

// RSIStrategy торгует пересечения порогов RSI. Edge-triggered: сигнал только
// в момент пересечения, удержание уровня ничего не эмитит — иначе шумная
// серия надаёт сигналов на каждом тике.
type RSIStrategy struct {
	name     string
	pair     string
	quantity float64
	rsi      RSI

	prev    float64
	hasPrev bool
}

func NewRSIStrategy(name, pair string, quantity float64, period int, overbought, oversold float64) *RSIStrategy {
	return &RSIStrategy{
		name:     name,
		pair:     pair,
		quantity: quantity,
		rsi:      NewRSI(period, overbought, oversold),
	}
}

func (s *RSIStrategy) Name() string { return s.name }

func (s *RSIStrategy) Evaluate(events []models.MarketEvent) *models.Signal {
	closes := lastPrices(events)
	value, ok := s.rsi.Compute(closes)
	if !ok {
		return nil
	}

	defer func() {
		s.prev = value
		s.hasPrev = true
	}()

	if !s.hasPrev {
		return nil
	}

	// пересечение вниз через oversold → покупка
	if s.prev >= s.rsi.Oversold && value < s.rsi.Oversold {
		return &models.Signal{
			Pair:     s.pair,
			Side:     models.SideBuy,
			Quantity: s.quantity,
			Strategy: s.name,
		}
	}
	// пересечение вверх через overbought → продажа
	if s.prev <= s.rsi.Overbought && value > s.rsi.Overbought {
		return &models.Signal{
			Pair:     s.pair,
			Side:     models.SideSell,
			Quantity: s.quantity,
			Strategy: s.name,
		}
	}
	return nil
}

func lastPrices(events []models.MarketEvent) []float64 {
	res := make([]float64, 0, len(events))
	for _, e := range events {
		res = append(res, e.Last)
	}
	return res
}
