package strategy

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/config"
	"trade_core/internal/models"

	"go.uber.org/fx"
)

const signalChanCapacity = 256

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			models.NewExposureOverrides,
			func(cfg *config.Config, overrides *models.ExposureOverrides) (*Loader, error) {
				return NewLoader(cfg.StrategyConfigPath, overrides)
			},
			// общий канал сигналов для всех стратегий
			func() chan models.Signal {
				return make(chan models.Signal, signalChanCapacity)
			},
			// пары для подписки стрима выводятся из стратегий
			func(l *Loader) models.Pairs {
				return l.Registry().Pairs()
			},
			func(l *Loader, state *models.StateVar, signals chan models.Signal) *Hub {
				return NewHub(l, state, signals)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			hub *Hub,
			loader *Loader,
			marketBus *bus.Bus[models.MarketEvent],
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					loader.Watch()
					sub := marketBus.Subscribe("strategy-engine")
					go hub.Run(ctx, sub)
					return nil
				},
			})
		}),
	)
}
