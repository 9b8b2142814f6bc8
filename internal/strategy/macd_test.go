package strategy

import (
	"testing"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACDSilentUntilStabilized(t *testing.T) {
	macd := NewMACD(12, 26, 9)
	prices := make([]float64, 34) // нужно slow+signal = 35
	for i := range prices {
		prices[i] = 100
	}
	_, ok := macd.Compute(prices)
	assert.False(t, ok)

	_, ok = macd.Compute(append(prices, 100))
	assert.True(t, ok)
}

func TestMACDStrategyBullishAfterReversal(t *testing.T) {
	s := NewMACDStrategy("macd-test", "ETHUSDT", 0.1, 3, 6, 3)

	// вниз, потом резко вверх: MACD-линия пересекает сигнальную снизу вверх
	var prices []float64
	for i := 0; i < 20; i++ {
		prices = append(prices, 100-float64(i)*0.5)
	}
	for i := 0; i < 20; i++ {
		prices = append(prices, 90.5+float64(i)*2)
	}

	signals := replay(s, eventsFromPrices("ETHUSDT", prices))

	var buyIdx = -1
	for i, sig := range signals {
		if sig.Side == models.SideBuy {
			buyIdx = i
			assert.Equal(t, "macd-test", sig.Strategy)
			break
		}
	}
	require.GreaterOrEqual(t, buyIdx, 0, "expected a bullish crossover signal after the reversal")
}

func TestMACDStrategyBearishAfterReversal(t *testing.T) {
	s := NewMACDStrategy("macd-test", "ETHUSDT", 0.1, 3, 6, 3)

	var prices []float64
	for i := 0; i < 20; i++ {
		prices = append(prices, 100+float64(i)*0.5)
	}
	for i := 0; i < 20; i++ {
		prices = append(prices, 109.5-float64(i)*2)
	}

	signals := replay(s, eventsFromPrices("ETHUSDT", prices))

	var sawSell bool
	for _, sig := range signals {
		if sig.Side == models.SideSell {
			sawSell = true
		}
	}
	assert.True(t, sawSell, "expected a bearish crossover signal after the reversal")
}

func TestMACDNoCrossoverOnSteadyTrend(t *testing.T) {
	s := NewMACDStrategy("macd-test", "ETHUSDT", 0.1, 3, 6, 3)

	// идеально линейный тренд: разница EMA постоянна, MACD-линия совпадает
	// с сигнальной — медвежьих пересечений нет
	var prices []float64
	for i := 0; i < 40; i++ {
		prices = append(prices, 100+float64(i))
	}

	signals := replay(s, eventsFromPrices("ETHUSDT", prices))
	for _, sig := range signals {
		assert.NotEqual(t, models.SideSell, sig.Side, "steady uptrend must not produce bearish signals")
	}
}
