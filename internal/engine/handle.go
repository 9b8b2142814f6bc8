package engine

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/ledger"
	"trade_core/internal/models"
	"trade_core/internal/risk"
)

// Handle — фасад движка для внешних коллабораторов (чат-бот, дашборд):
// команды, снапшот, подписка на события. Ничего из этого не даёт пути
// к exchange-клиенту или каналу ордеров.
type Handle struct {
	state     *models.StateVar
	commands  chan<- models.Command
	eventsBus *bus.Bus[models.Event]
	risk      *risk.Manager
	ledger    *ledger.Ledger
}

func NewHandle(
	state *models.StateVar,
	commands chan models.Command,
	eventsBus *bus.Bus[models.Event],
	riskMgr *risk.Manager,
	l *ledger.Ledger,
) *Handle {
	return &Handle{
		state:     state,
		commands:  commands,
		eventsBus: eventsBus,
		risk:      riskMgr,
		ledger:    l,
	}
}

// Send отправляет команду и ждёт подтверждение. Канал команд ограничен и
// с обратным давлением: при забитом канале вызывающий ждёт.
func (h *Handle) Send(ctx context.Context, cmd models.CommandType) models.CommandAck {
	reply := make(chan models.CommandAck, 1)
	select {
	case h.commands <- models.Command{Type: cmd, Reply: reply}:
	case <-ctx.Done():
		return models.CommandAck{OK: false, Reason: "engine unavailable"}
	}

	select {
	case ack := <-reply:
		return ack
	case <-ctx.Done():
		return models.CommandAck{OK: false, Reason: "engine unavailable"}
	}
}

// Snapshot — синхронное чтение текущего состояния для дашборда.
type Snapshot struct {
	State          models.EngineState
	Positions      []models.Position
	UnrealizedPnL  float64
	RealizedPnL24h float64
	OpenOrderCount int
	Drawdown       float64
	Halted         bool
}

func (h *Handle) Snapshot() Snapshot {
	ls := h.ledger.Snapshot()
	acc := h.risk.Accounting()
	return Snapshot{
		State:          h.state.Get(),
		Positions:      ls.Positions,
		UnrealizedPnL:  ls.UnrealizedPnL,
		RealizedPnL24h: ls.RealizedPnL24h,
		OpenOrderCount: acc.OpenOrderCount,
		Drawdown:       acc.Drawdown,
		Halted:         acc.Halted,
	}
}

// Subscribe — подписка на broadcast событий. Медленный подписчик теряет
// старые события, но никогда не тормозит ордерный путь.
func (h *Handle) Subscribe(name string) *bus.Subscription[models.Event] {
	return h.eventsBus.Subscribe(name)
}

func (h *Handle) State() models.EngineState { return h.state.Get() }
