package strategy

import (
	"fmt"

	"github.com/pkg/errors"
)

// Config — одна стратегия из файла стратегий.
type Config struct {
	Type     string             `mapstructure:"type"`
	Name     string             `mapstructure:"name"`
	Pair     string             `mapstructure:"pair"`
	Quantity float64            `mapstructure:"quantity"`
	Params   map[string]float64 `mapstructure:"params"`
	// risk_overrides: точечные послабления/ужесточения для сигналов
	// этой стратегии (сейчас поддержана только экспозиция)
	RiskOverrides *RiskOverrides `mapstructure:"risk_overrides"`
}

type RiskOverrides struct {
	MaxExposureUSD float64 `mapstructure:"max_exposure_usd"`
}

// Build собирает стратегию по типу. Неизвестный тип — ошибка: на старте это
// выход процесса, на hot-reload — откат к прежнему реестру.
func Build(c Config) (Strategy, error) {
	name := c.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s", c.Type, c.Pair)
	}
	if c.Pair == "" {
		return nil, errors.New("strategy pair is required")
	}
	if c.Quantity <= 0 {
		return nil, errors.Errorf("strategy %q: quantity must be positive", name)
	}

	switch c.Type {
	case "rsi":
		return NewRSIStrategy(
			name, c.Pair, c.Quantity,
			int(param(c.Params, "period", 14)),
			param(c.Params, "overbought", 70),
			param(c.Params, "oversold", 30),
		), nil
	case "macd":
		return NewMACDStrategy(
			name, c.Pair, c.Quantity,
			int(param(c.Params, "fast", 12)),
			int(param(c.Params, "slow", 26)),
			int(param(c.Params, "signal", 9)),
		), nil
	default:
		return nil, errors.Errorf("unknown strategy type %q", c.Type)
	}
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
