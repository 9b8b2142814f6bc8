package ingest

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/models"

	"go.uber.org/fx"
)

const marketBusCapacity = 1024

func Module() fx.Option {
	return fx.Module("ingest",
		fx.Provide(
			// общая broadcast-шина рыночных событий
			func(eventsBus *bus.Bus[models.Event]) *bus.Bus[models.MarketEvent] {
				b := bus.New[models.MarketEvent](marketBusCapacity)
				b.OnLag(func(name string, dropped int) {
					eventsBus.Publish(models.LaggedConsumerEvent{
						Subscriber: name,
						Dropped:    dropped,
					})
				})
				return b
			},
			New,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			in *Ingestor,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					return in.Start(ctx)
				},
			})
		}),
	)
}
