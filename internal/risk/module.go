package risk

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/config"
	"trade_core/internal/ledger"
	"trade_core/internal/models"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("risk",
		fx.Provide(
			// канал одобренных ордеров; ёмкость привязана к потолку
			func() chan models.Order {
				return make(chan models.Order, MaxOpenOrders*2)
			},
			func(
				cfg *config.Config,
				overrides *models.ExposureOverrides,
				state *models.StateVar,
				l *ledger.Ledger,
				orders chan models.Order,
				eventsBus *bus.Bus[models.Event],
			) *Manager {
				return NewManager(cfg.Risk, cfg.PaperBalanceUSD, overrides, state, l, orders, eventsBus)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			m *Manager,
			signals chan models.Signal,
			marketBus *bus.Bus[models.MarketEvent],
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					m.SeedPeak(startCtx)
					sub := marketBus.Subscribe("risk-manager")
					go m.Run(ctx, signals, sub)
					return nil
				},
			})
		}),
	)
}
