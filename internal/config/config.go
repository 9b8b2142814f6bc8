package config

import (
	"log"
	"os"
	"strconv"

	"trade_core/internal/models"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tradingModeENV    = "TRADING_MODE"
	databaseDSN       = "DATABASE_DSN"
	binanceKeyENV     = "BINANCE_API_KEY"
	binanceSecretENV  = "BINANCE_API_SECRET"
	telegramTokenENV  = "TELEGRAM_TOKEN"
)

// Config резолвится один раз на старте и неизменен до конца жизни процесса.
// Исключение — файл стратегий: его раннер перечитывает на лету (viper watch).
type Config struct {
	// live | paper; всё остальное — немедленный выход процесса
	Mode models.TradingMode `yaml:"trading_mode"`

	DB string `yaml:"db_dsn"`

	Binance struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"binance"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Paper-клиент
	PaperSlippageBps float64 `yaml:"paper_slippage_bps"` // 10 bps = 0.10%
	PaperBalanceUSD  float64 `yaml:"paper_balance_usd"`

	Risk RiskParams `yaml:"risk"`

	// Путь к yaml со списком стратегий (hot-reload)
	StrategyConfigPath string `yaml:"strategy_config"`
}

// RiskParams — пользовательские параметры риска. Жёсткий потолок открытых
// ордеров сюда не входит: он compile-time константа в internal/risk.
type RiskParams struct {
	StopLossPct   float64 `yaml:"stop_loss_pct"`   // доля, напр. 0.05 => 5%
	TakeProfitPct float64 `yaml:"take_profit_pct"` // доля
	// Экспозиция одного трейда: либо абсолют в USD, либо доля портфеля.
	// Если задана доля — она имеет приоритет.
	MaxExposureUSD float64 `yaml:"max_exposure_usd"`
	MaxExposurePct float64 `yaml:"max_exposure_pct"`
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		PaperSlippageBps:   10,
		PaperBalanceUSD:    10_000,
		StrategyConfigPath: "configs/strategies.yaml",
		Risk: RiskParams{
			StopLossPct:    0.05,
			TakeProfitPct:  0.10,
			MaxExposureUSD: 1_000,
			MaxDrawdownPct: 0.20,
		},
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if v := os.Getenv(tradingModeENV); v != "" {
		config.Mode = models.TradingMode(v)
	}
	mode, ok := models.ParseTradingMode(string(config.Mode))
	if !ok {
		log.Fatalf("trading_mode must be 'live' or 'paper', got %q", config.Mode)
	}
	config.Mode = mode

	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if v := os.Getenv(binanceKeyENV); v != "" {
		config.Binance.APIKey = v
	}
	if v := os.Getenv(binanceSecretENV); v != "" {
		config.Binance.APISecret = v
	}
	if v := os.Getenv(telegramTokenENV); v != "" {
		config.Telegram.Token = v
	}

	config.PaperSlippageBps = floatFromEnv("PAPER_SLIPPAGE_BPS", config.PaperSlippageBps)
	config.Jaeger.Port = intFromEnv("JAEGER_PORT", config.Jaeger.Port)

	if config.Mode == models.ModeLive && (config.Binance.APIKey == "" || config.Binance.APISecret == "") {
		log.Fatalf("live mode requires %s and %s", binanceKeyENV, binanceSecretENV)
	}

	if config.Risk.StopLossPct <= 0 || config.Risk.TakeProfitPct <= 0 || config.Risk.MaxDrawdownPct <= 0 {
		log.Fatalf("risk percentages must be positive: %+v", config.Risk)
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
