package exchange

import (
	"context"

	"trade_core/internal/bus"
	"trade_core/internal/config"
	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"go.uber.org/fx"
)

// Module предоставляет exchange.Client по режиму из конфига. Помимо
// провайдера здесь только одно: в paper-режиме клиент подписывается на
// market-шину, чтобы знать последние bid/ask для симуляции филлов.
func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			func(cfg *config.Config) Client {
				switch cfg.Mode {
				case models.ModeLive:
					logger.Info("live mode: binance client")
					return NewBinanceClient(cfg.Binance.APIKey, cfg.Binance.APISecret)
				default:
					logger.Info("paper mode: simulated client")
					return NewPaperClient(cfg.PaperBalanceUSD, cfg.PaperSlippageBps)
				}
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			client Client,
			marketBus *bus.Bus[models.MarketEvent],
			ctx context.Context,
		) {
			paper, ok := client.(*PaperClient)
			if !ok {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					sub := marketBus.Subscribe("paper-client")
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case ev, open := <-sub.C():
								if !open {
									return
								}
								paper.ObserveMarket(ev)
							}
						}
					}()
					return nil
				},
			})
		}),
	)
}
