package executor

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/exchange"
	"trade_core/internal/ingest"
	"trade_core/internal/ledger"
	"trade_core/internal/models"
	"trade_core/internal/risk"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("executor",
		fx.Provide(
			func(
				client exchange.Client,
				l *ledger.Ledger,
				m *risk.Manager,
				eventsBus *bus.Bus[models.Event],
			) *Executor {
				return New(client, l, m, eventsBus)
			},
			// аудитор позиций для ingest: клиентом владеет только экзекьютор
			func(e *Executor) ingest.PositionAuditor {
				return e
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			e *Executor,
			orders chan models.Order,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go e.Run(ctx, orders)
					return nil
				},
			})
		}),
	)
}
