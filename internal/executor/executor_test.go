package executor

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"trade_core/internal/bus"
	"trade_core/internal/exchange"
	"trade_core/internal/ledger"
	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type stubSettler struct {
	mu    sync.Mutex
	calls []float64
}

func (s *stubSettler) OnOrderSettled(_ models.Order, realizedPnL float64) {
	s.mu.Lock()
	s.calls = append(s.calls, realizedPnL)
	s.mu.Unlock()
}

func (s *stubSettler) settled() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.calls...)
}

func newTestExecutor(t *testing.T) (*Executor, *exchange.PaperClient, *ledger.Ledger, *stubSettler, *bus.Subscription[models.Event]) {
	t.Helper()

	eventsBus := bus.New[models.Event](32)
	sub := eventsBus.Subscribe("test")
	l := ledger.New(models.ModePaper, ledger.NewMemoryStore(), eventsBus)
	require.NoError(t, l.Load(context.Background()))

	paper := exchange.NewPaperClient(10_000, 0)
	settler := &stubSettler{}
	e := New(paper, l, settler, eventsBus)
	return e, paper, l, settler, sub
}

func observe(p *exchange.PaperClient, pair string, bid, ask float64) {
	p.ObserveMarket(models.MarketEvent{Pair: pair, Bid: bid, Ask: ask, Last: bid, Timestamp: time.Now().UTC()})
}

func TestBuyFillOpensLedgerPosition(t *testing.T) {
	e, paper, l, settler, sub := newTestExecutor(t)
	observe(paper, "BTCUSDT", 19990, 20000)

	e.execute(context.Background(), models.Order{
		Pair: "BTCUSDT", Side: models.SideBuy, Quantity: 0.04,
		Kind: models.OrderKindMarket, Origin: models.OriginStrategy,
	})

	positions := l.OpenPositions()
	require.Len(t, positions, 1)
	assert.InDelta(t, 20000.0, positions[0].EntryPrice, 1e-9)

	ev := <-sub.C()
	filled, ok := ev.(models.OrderFilledEvent)
	require.True(t, ok, "expected OrderFilledEvent, got %T", ev)
	assert.Equal(t, "BTCUSDT", filled.Fill.Pair)

	require.Len(t, settler.settled(), 1)
	assert.Zero(t, settler.settled()[0])
}

func TestSellFillRealizesPnL(t *testing.T) {
	e, paper, l, settler, _ := newTestExecutor(t)
	ctx := context.Background()

	_, err := l.UpsertOnBuy(ctx, models.Fill{
		Pair: "BTCUSDT", Side: models.SideBuy,
		ExecutedPrice: 20000, ExecutedQuantity: 0.04, ExecutedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	observe(paper, "BTCUSDT", 22100, 22101)
	e.execute(ctx, models.Order{
		Pair: "BTCUSDT", Side: models.SideSell, Quantity: 0.04,
		Kind: models.OrderKindMarket, Origin: models.OriginTakeProfit,
	})

	assert.Empty(t, l.OpenPositions())
	require.Len(t, settler.settled(), 1)
	assert.InDelta(t, 84.0, settler.settled()[0], 1e-9) // (22100-20000)*0.04
}

func TestFailedSubmitEmitsOrderFailedWithoutRetry(t *testing.T) {
	e, _, l, settler, sub := newTestExecutor(t)

	// цены по паре не наблюдались — paper-клиент отклоняет
	e.execute(context.Background(), models.Order{
		Pair: "DOGEUSDT", Side: models.SideBuy, Quantity: 1,
		Kind: models.OrderKindMarket, Origin: models.OriginStrategy,
	})

	ev := <-sub.C()
	failed, ok := ev.(models.OrderFailedEvent)
	require.True(t, ok, "expected OrderFailedEvent, got %T", ev)
	assert.Equal(t, models.OriginStrategy, failed.Origin)

	assert.Empty(t, l.OpenPositions())
	// счётчик снят ровно один раз: ретраев нет
	assert.Len(t, settler.settled(), 1)
}

func TestRunShardsByPairFIFO(t *testing.T) {
	e, paper, l, _, _ := newTestExecutor(t)
	observe(paper, "BTCUSDT", 99, 100)
	observe(paper, "ETHUSDT", 49, 50)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders := make(chan models.Order, 8)
	go e.Run(ctx, orders)

	orders <- models.Order{Pair: "BTCUSDT", Side: models.SideBuy, Quantity: 1, Kind: models.OrderKindMarket}
	orders <- models.Order{Pair: "ETHUSDT", Side: models.SideBuy, Quantity: 2, Kind: models.OrderKindMarket}
	orders <- models.Order{Pair: "BTCUSDT", Side: models.SideSell, Quantity: 1, Kind: models.OrderKindMarket}

	// BTC: открыт и закрыт в порядке подачи; ETH: остался открыт
	require.Eventually(t, func() bool {
		positions := l.OpenPositions()
		return len(positions) == 1 && positions[0].Pair == "ETHUSDT"
	}, 2*time.Second, 10*time.Millisecond)

	drainCtx, drainCancel := context.WithTimeout(ctx, time.Second)
	defer drainCancel()
	assert.True(t, e.Drain(drainCtx))
}

func TestAuditPositionsReconcilesExchangeState(t *testing.T) {
	e, paper, l, _, sub := newTestExecutor(t)
	ctx := context.Background()

	// леджер знает BTC, биржа — ещё и ETH
	_, err := l.UpsertOnBuy(ctx, models.Fill{
		Pair: "BTCUSDT", Side: models.SideBuy,
		ExecutedPrice: 20000, ExecutedQuantity: 0.04, ExecutedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	observe(paper, "ETHUSDT", 2500, 2501)
	_, err = paper.SubmitOrder(ctx, models.Order{Pair: "ETHUSDT", Side: models.SideBuy, Quantity: 0.5})
	require.NoError(t, err)

	require.NoError(t, e.AuditPositions(ctx))

	positions := l.OpenPositions()
	assert.Len(t, positions, 2)

	var sawOrphan bool
	for len(sub.C()) > 0 {
		if ev, ok := (<-sub.C()).(models.OrphanedPositionEvent); ok {
			assert.Equal(t, "BTCUSDT", ev.Position.Pair)
			sawOrphan = true
		}
	}
	assert.True(t, sawOrphan, "local-only position must be reported as orphaned")
}
