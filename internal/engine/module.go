package engine

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/models"

	"go.uber.org/fx"
)

const (
	eventsBusCapacity = 256
	commandChanCap    = 16
)

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			models.NewStateVar,
			// broadcast событий для внешних подписчиков: лосси для отстающих
			func() *bus.Bus[models.Event] {
				return bus.New[models.Event](eventsBusCapacity)
			},
			func() chan models.Command {
				return make(chan models.Command, commandChanCap)
			},
			NewSupervisor,
			NewHandle,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			s *Supervisor,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go s.Run(ctx)
					return nil
				},
			})
		}),
	)
}
