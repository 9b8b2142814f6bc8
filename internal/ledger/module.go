package ledger

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/config"
	"trade_core/internal/models"
	"trade_core/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("ledger",
		fx.Provide(
			func(tm db.TxManager) Store {
				return NewPgStore(tm)
			},
			func(cfg *config.Config, store Store, eventsBus *bus.Bus[models.Event]) *Ledger {
				return New(cfg.Mode, store, eventsBus)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			l *Ledger,
			marketBus *bus.Bus[models.MarketEvent],
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					if err := l.Load(startCtx); err != nil {
						return err
					}
					sub := marketBus.Subscribe("ledger")
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case ev, ok := <-sub.C():
								if !ok {
									return
								}
								l.ObserveMarket(ev)
							}
						}
					}()
					return nil
				},
			})
		}),
	)
}
