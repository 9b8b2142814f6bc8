package strategy

import (
	"testing"
	"time"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStrategy фиксирует, какие срезы событий видела.
type recordingStrategy struct {
	name  string
	pair  string
	seen  [][]models.MarketEvent
	every bool
}

func (r *recordingStrategy) Name() string { return r.name }

func (r *recordingStrategy) Evaluate(events []models.MarketEvent) *models.Signal {
	r.seen = append(r.seen, events)
	if !r.every {
		return nil
	}
	return &models.Signal{Pair: r.pair, Side: models.SideBuy, Quantity: 1, Strategy: r.name}
}

func TestRegistryRoutesEventsByPair(t *testing.T) {
	btc := &recordingStrategy{name: "btc-strat", pair: "BTCUSDT"}
	eth := &recordingStrategy{name: "eth-strat", pair: "ETHUSDT"}
	reg := NewRegistry(map[string][]Strategy{
		"BTCUSDT": {btc},
		"ETHUSDT": {eth},
	})

	reg.Process(models.MarketEvent{Pair: "BTCUSDT", Last: 100, Timestamp: time.Now()})
	reg.Process(models.MarketEvent{Pair: "BTCUSDT", Last: 101, Timestamp: time.Now()})
	reg.Process(models.MarketEvent{Pair: "ETHUSDT", Last: 50, Timestamp: time.Now()})

	// пары видят непересекающиеся потоки
	require.Len(t, btc.seen, 2)
	require.Len(t, eth.seen, 1)
	assert.Len(t, btc.seen[1], 2) // история пары накапливается
	for _, ev := range btc.seen[1] {
		assert.Equal(t, "BTCUSDT", ev.Pair)
	}
}

func TestRegistryCollectsSignals(t *testing.T) {
	btc := &recordingStrategy{name: "btc-strat", pair: "BTCUSDT", every: true}
	reg := NewRegistry(map[string][]Strategy{"BTCUSDT": {btc}})

	signals := reg.Process(models.MarketEvent{Pair: "BTCUSDT", Last: 100})
	require.Len(t, signals, 1)
	assert.Equal(t, "btc-strat", signals[0].Strategy)

	// события чужой пары сигналов не дают
	assert.Empty(t, reg.Process(models.MarketEvent{Pair: "SOLUSDT", Last: 5}))
}

func TestRegistryHistoryBounded(t *testing.T) {
	btc := &recordingStrategy{name: "btc-strat", pair: "BTCUSDT"}
	reg := NewRegistry(map[string][]Strategy{"BTCUSDT": {btc}})

	for i := 0; i < maxHistory+50; i++ {
		reg.Process(models.MarketEvent{Pair: "BTCUSDT", Last: float64(i)})
	}
	last := btc.seen[len(btc.seen)-1]
	assert.Len(t, last, maxHistory)
}

func TestBuildRejectsUnknownType(t *testing.T) {
	_, err := Build(Config{Type: "arima", Pair: "BTCUSDT", Quantity: 1})
	assert.Error(t, err)
}

func TestBuildDefaultsParams(t *testing.T) {
	s, err := Build(Config{Type: "rsi", Pair: "BTCUSDT", Quantity: 0.01})
	require.NoError(t, err)
	assert.Equal(t, "rsi-BTCUSDT", s.Name())
}
