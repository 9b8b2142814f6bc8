package main

import (
	"context"
	"log"

	"trade_core/internal/config"
	"trade_core/internal/engine"
	"trade_core/internal/exchange"
	"trade_core/internal/executor"
	"trade_core/internal/ingest"
	"trade_core/internal/ledger"
	"trade_core/internal/notify"
	"trade_core/internal/postgres"
	"trade_core/internal/risk"
	"trade_core/internal/strategy"
	"trade_core/pkg/logger"
	"trade_core/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	logger.SetServiceName("trade-core")

	_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: "127.0.0.1", Port: 6831})
	if err != nil {
		logger.Error("tracer init: %v", err)
	} else {
		defer closeTracer()
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		engine.Module(),
		ledger.Module(),
		exchange.Module(),
		strategy.Module(),
		risk.Module(),
		executor.Module(),
		ingest.Module(),
		notify.Module(),
	)
	app.Run()
}
