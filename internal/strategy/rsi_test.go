package strategy

import (
	"testing"
	"time"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventsFromPrices(pair string, prices []float64) []models.MarketEvent {
	res := make([]models.MarketEvent, 0, len(prices))
	for i, p := range prices {
		res = append(res, models.MarketEvent{
			Pair:      pair,
			Timestamp: time.Unix(int64(i), 0),
			Bid:       p - 0.5,
			Ask:       p + 0.5,
			Last:      p,
		})
	}
	return res
}

// replay прогоняет серию инкрементально, как это делает реестр.
func replay(s Strategy, events []models.MarketEvent) []models.Signal {
	var signals []models.Signal
	for i := range events {
		if sig := s.Evaluate(events[:i+1]); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals
}

func TestRSIReturnsNothingUntilWarm(t *testing.T) {
	rsi := NewRSI(14, 70, 30)
	prices := make([]float64, 14) // нужно period+1
	for i := range prices {
		prices[i] = 100
	}
	_, ok := rsi.Compute(prices)
	assert.False(t, ok)

	_, ok = rsi.Compute(append(prices, 100))
	assert.True(t, ok)
}

func TestRSIExtremes(t *testing.T) {
	rsi := NewRSI(3, 70, 30)

	up, ok := rsi.Compute([]float64{10, 11, 12, 13, 14})
	require.True(t, ok)
	assert.InDelta(t, 100.0, up, 1e-9)

	down, ok := rsi.Compute([]float64{14, 13, 12, 11, 10})
	require.True(t, ok)
	assert.InDelta(t, 0.0, down, 1e-9)
}

func TestRSIStrategyBuysOnceOnCrossBelowOversold(t *testing.T) {
	s := NewRSIStrategy("rsi-test", "BTCUSDT", 0.01, 3, 70, 30)

	// рост (RSI высоко), затем монотонное падение: ровно одно пересечение вниз
	prices := []float64{100, 101, 102, 103, 104}
	for p := 103.0; p > 80; p -= 1.5 {
		prices = append(prices, p)
	}

	signals := replay(s, eventsFromPrices("BTCUSDT", prices))

	var buys int
	for _, sig := range signals {
		if sig.Side == models.SideBuy {
			buys++
			assert.Equal(t, "BTCUSDT", sig.Pair)
			assert.Equal(t, 0.01, sig.Quantity)
			assert.Equal(t, "rsi-test", sig.Strategy)
		}
	}
	// edge-triggered: уровень ниже порога сам по себе сигналов не даёт
	assert.Equal(t, 1, buys)
}

func TestRSIStrategySellsOnceOnCrossAboveOverbought(t *testing.T) {
	s := NewRSIStrategy("rsi-test", "BTCUSDT", 0.01, 3, 70, 30)

	// падение, затем монотонный рост: одно пересечение вверх через 70
	prices := []float64{100, 99, 98, 97, 96}
	for p := 97.0; p < 120; p += 1.5 {
		prices = append(prices, p)
	}

	signals := replay(s, eventsFromPrices("BTCUSDT", prices))

	var sells int
	for _, sig := range signals {
		if sig.Side == models.SideSell {
			sells++
		}
	}
	assert.Equal(t, 1, sells)
}
