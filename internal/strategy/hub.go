package strategy

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

// Hub гонит рыночные события через актуальный реестр и сливает сигналы в
// единый канал риск-менеджера. Когда движок не Running — события копятся в
// истории, но сигналы не эмитятся.
type Hub struct {
	loader *Loader
	state  *models.StateVar
	out    chan<- models.Signal
}

func NewHub(loader *Loader, state *models.StateVar, out chan<- models.Signal) *Hub {
	return &Hub{loader: loader, state: state, out: out}
}

func (h *Hub) Run(ctx context.Context, sub *bus.Subscription[models.MarketEvent]) {
	logger.Info("strategy hub running")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}

			signals := h.loader.Registry().Process(ev)
			if h.state.Get() != models.StateRunning {
				continue // история обновлена, сигналы подавлены
			}

			for _, sig := range signals {
				// блокирующая отправка: если риск/экзекьютор встали, сигналы
				// копятся здесь, а кольцо шины начнёт резать старые события.
				// Терять наблюдения лучше, чем ставить в очередь протухшие ордера.
				select {
				case h.out <- sig:
					logger.Info("signal %s %s qty=%v from %q", sig.Pair, sig.Side, sig.Quantity, sig.Strategy)
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
