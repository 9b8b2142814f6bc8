package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"trade_core/internal/bus"
	"trade_core/internal/config"
	"trade_core/internal/exchange"
	"trade_core/internal/executor"
	"trade_core/internal/ledger"
	"trade_core/internal/models"
	"trade_core/internal/risk"
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

type rig struct {
	sup    *Supervisor
	handle *Handle
	state  *models.StateVar
	risk   *risk.Manager
	ledger *ledger.Ledger
	orders chan models.Order
	events *bus.Bus[models.Event]
}

func newRig(t *testing.T) *rig {
	t.Helper()

	eventsBus := bus.New[models.Event](64)
	l := ledger.New(models.ModePaper, ledger.NewMemoryStore(), eventsBus)
	require.NoError(t, l.Load(context.Background()))

	state := models.NewStateVar()
	orders := make(chan models.Order, risk.MaxOpenOrders*2)
	riskMgr := risk.NewManager(config.RiskParams{
		StopLossPct:    0.05,
		TakeProfitPct:  0.10,
		MaxExposureUSD: 1000,
		MaxDrawdownPct: 0.20,
	}, 10_000, models.NewExposureOverrides(), state, l, orders, eventsBus)

	paper := exchange.NewPaperClient(10_000, 0)
	exec := executor.New(paper, l, riskMgr, eventsBus)

	commands := make(chan models.Command, 16)
	sup := NewSupervisor(state, commands, eventsBus, riskMgr, exec, l)
	handle := NewHandle(state, commands, eventsBus, riskMgr, l)

	return &rig{sup: sup, handle: handle, state: state, risk: riskMgr, ledger: l, orders: orders, events: eventsBus}
}

func TestInitialStateIsStopped(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, models.StateStopped, r.state.Get())
}

func TestStartStopPauseResumeTable(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	// Stopped: pause/resume — отказ, start — ок
	assert.False(t, r.sup.dispatch(ctx, models.CmdPause).OK)
	assert.False(t, r.sup.dispatch(ctx, models.CmdResume).OK)
	require.True(t, r.sup.dispatch(ctx, models.CmdStart).OK)
	assert.Equal(t, models.StateRunning, r.state.Get())

	// Running: повторный start — отказ с объяснением
	ack := r.sup.dispatch(ctx, models.CmdStart)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Reason, "already")

	require.True(t, r.sup.dispatch(ctx, models.CmdPause).OK)
	assert.Equal(t, models.StatePaused, r.state.Get())

	assert.False(t, r.sup.dispatch(ctx, models.CmdPause).OK)
	require.True(t, r.sup.dispatch(ctx, models.CmdResume).OK)
	assert.Equal(t, models.StateRunning, r.state.Get())

	require.True(t, r.sup.dispatch(ctx, models.CmdStop).OK)
	assert.Equal(t, models.StateStopped, r.state.Get())

	assert.False(t, r.sup.dispatch(ctx, models.CmdStop).OK)
}

func TestResetDrawdownDeniedWhenNormal(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.True(t, r.sup.dispatch(ctx, models.CmdStart).OK)
	ack := r.sup.dispatch(ctx, models.CmdResetDrawdown)
	assert.False(t, ack.OK)
}

func TestResetDrawdownRecoversEngineHalt(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.state.Set(models.StateHalted)
	require.True(t, r.sup.dispatch(ctx, models.CmdResetDrawdown).OK)
	assert.Equal(t, models.StateRunning, r.state.Get())
}

func TestStopEmitsClosingOrders(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.True(t, r.sup.dispatch(ctx, models.CmdStart).OK)
	_, err := r.ledger.UpsertOnBuy(ctx, models.Fill{
		Pair: "BTCUSDT", Side: models.SideBuy,
		ExecutedPrice: 20000, ExecutedQuantity: 0.04, ExecutedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.True(t, r.sup.dispatch(ctx, models.CmdStop).OK)
	assert.Equal(t, models.StateStopped, r.state.Get())

	require.Len(t, r.orders, 1)
	order := <-r.orders
	assert.Equal(t, models.SideSell, order.Side)
	assert.Equal(t, 0.04, order.Quantity)
}

func TestStateChangesAreBroadcast(t *testing.T) {
	r := newRig(t)
	sub := r.events.Subscribe("watcher")
	ctx := context.Background()

	require.True(t, r.sup.dispatch(ctx, models.CmdStart).OK)

	ev := <-sub.C()
	change, ok := ev.(models.StateChangedEvent)
	require.True(t, ok)
	assert.Equal(t, models.StateStopped, change.From)
	assert.Equal(t, models.StateRunning, change.To)
}

func TestPersistenceDivergenceHaltsEngine(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.sup.Run(ctx)
	require.True(t, r.handle.Send(ctx, models.CmdStart).OK)

	r.events.Publish(models.PersistenceDivergenceEvent{Pair: "BTCUSDT", Detail: "insert failed"})

	require.Eventually(t, func() bool {
		return r.state.Get() == models.StateHalted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleSnapshot(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.ledger.UpsertOnBuy(ctx, models.Fill{
		Pair: "BTCUSDT", Side: models.SideBuy,
		ExecutedPrice: 100, ExecutedQuantity: 1, ExecutedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	snap := r.handle.Snapshot()
	assert.Equal(t, models.StateStopped, snap.State)
	assert.Len(t, snap.Positions, 1)
	assert.Zero(t, snap.OpenOrderCount)
	assert.False(t, snap.Halted)
}
