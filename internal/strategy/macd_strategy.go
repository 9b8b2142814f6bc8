package strategy

import "trade_core/internal/models"

// MACDStrategy эмитит Bullish/Bearish ровно на тике пересечения MACD-линии
// с сигнальной. До стабилизации EMA (slow+signal точек) молчит.
type MACDStrategy struct {
	name     string
	pair     string
	quantity float64
	macd     MACD
}

func NewMACDStrategy(name, pair string, quantity float64, fast, slow, signal int) *MACDStrategy {
	return &MACDStrategy{
		name:     name,
		pair:     pair,
		quantity: quantity,
		macd:     NewMACD(fast, slow, signal),
	}
}

func (s *MACDStrategy) Name() string { return s.name }

func (s *MACDStrategy) Evaluate(events []models.MarketEvent) *models.Signal {
	v, ok := s.macd.Compute(lastPrices(events))
	if !ok {
		return nil
	}

	switch {
	case v.PrevMACD <= v.PrevSignal && v.CurrMACD > v.CurrSignal:
		return &models.Signal{
			Pair:     s.pair,
			Side:     models.SideBuy,
			Quantity: s.quantity,
			Strategy: s.name,
		}
	case v.PrevMACD >= v.PrevSignal && v.CurrMACD < v.CurrSignal:
		return &models.Signal{
			Pair:     s.pair,
			Side:     models.SideSell,
			Quantity: s.quantity,
			Strategy: s.name,
		}
	}
	return nil
}
