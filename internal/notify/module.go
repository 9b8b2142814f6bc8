package notify

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/config"
	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) Notifier {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					logger.Info("no telegram config, alerts go to stdout")
					return NewStdout()
				}
				t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					logger.Error("telegram init failed, falling back to stdout: %v", err)
					return NewStdout()
				}
				return t
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			n Notifier,
			eventsBus *bus.Bus[models.Event],
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					sub := eventsBus.Subscribe("notifier")
					go Forward(ctx, n, sub)
					return nil
				},
			})
		}),
	)
}
