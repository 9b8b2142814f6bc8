package notify

import (
	"context"
	"fmt"

	"trade_core/internal/bus"
	"trade_core/internal/models"
)

// Forward читает broadcast событий и превращает их в операторские алерты.
// Обычный внешний подписчик: отстаёт — теряет старые события.
func Forward(ctx context.Context, n Notifier, sub *bus.Subscription[models.Event]) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if msg := format(ev); msg != "" {
				n.Send(msg)
			}
		}
	}
}

func format(ev models.Event) string {
	switch e := ev.(type) {
	case models.TriggerEvent:
		switch e.Kind {
		case models.TriggerStopLoss:
			return fmt.Sprintf("⚠️ Stop-loss triggered on %s. Closing position.", e.Pair)
		case models.TriggerTakeProfit:
			return fmt.Sprintf("✅ Take-profit triggered on %s. Closing position.", e.Pair)
		case models.TriggerDrawdownHalt:
			return "🛑 Max drawdown breached. New exposure halted — send reset_drawdown to resume."
		}
	case models.RejectionEvent:
		return fmt.Sprintf("🚫 Signal rejected: %s %s qty=%v (%s)", e.Signal.Pair, e.Signal.Side, e.Signal.Quantity, e.Reason)
	case models.OrderFilledEvent:
		return fmt.Sprintf("💰 Filled %s %s qty=%v @ %.4f", e.Fill.Pair, e.Fill.Side, e.Fill.ExecutedQuantity, e.Fill.ExecutedPrice)
	case models.OrderFailedEvent:
		return fmt.Sprintf("🚨 Order failed on %s: %s", e.Order.Pair, e.Reason)
	case models.PersistenceDivergenceEvent:
		return fmt.Sprintf("🆘 Persistence divergence on %s: %s. Engine halted, manual intervention required.", e.Pair, e.Detail)
	case models.OrphanedPositionEvent:
		return fmt.Sprintf("❓ Orphaned position %s %s qty=%v — ledger knows it, exchange does not.", e.Position.Pair, e.Position.Side, e.Position.Quantity)
	case models.StateChangedEvent:
		return fmt.Sprintf("ℹ️ Engine: %s → %s", e.From, e.To)
	case models.StreamUnavailableEvent:
		return fmt.Sprintf("🚨 Market stream unavailable: %s", e.Detail)
	}
	return ""
}
