package strategy

import (
	"sync"

	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Loader читает файл стратегий и держит актуальный реестр. Файл под viper
// watch: правка на диске пересобирает реестр на лету, без рестарта. Ошибка
// при reload не фатальна — остаёмся на прежнем реестре.
type Loader struct {
	v         *viper.Viper
	overrides *models.ExposureOverrides

	mu      sync.RWMutex
	current *Registry
}

func NewLoader(path string, overrides *models.ExposureOverrides) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read strategy config")
	}

	l := &Loader{v: v, overrides: overrides}
	reg, err := l.build()
	if err != nil {
		return nil, err
	}
	l.current = reg
	return l, nil
}

func (l *Loader) build() (*Registry, error) {
	var configs []Config
	if err := l.v.UnmarshalKey("strategies", &configs); err != nil {
		return nil, errors.Wrap(err, "unmarshal strategies")
	}
	if len(configs) == 0 {
		return nil, errors.New("no strategies configured")
	}

	byPair := make(map[string][]Strategy)
	exposure := make(map[string]float64)
	for _, c := range configs {
		s, err := Build(c)
		if err != nil {
			return nil, err
		}
		byPair[c.Pair] = append(byPair[c.Pair], s)
		if c.RiskOverrides != nil && c.RiskOverrides.MaxExposureUSD > 0 {
			exposure[s.Name()] = c.RiskOverrides.MaxExposureUSD
		}
		logger.Info("registered strategy %q on %s", s.Name(), c.Pair)
	}

	l.overrides.Replace(exposure)
	return NewRegistry(byPair), nil
}

// Watch включает hot-reload файла стратегий.
func (l *Loader) Watch() {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		reg, err := l.build()
		if err != nil {
			logger.Error("strategy reload failed, keeping previous registry: %v", err)
			return
		}
		l.mu.Lock()
		l.current = reg
		l.mu.Unlock()
		logger.Info("strategy registry reloaded")
	})
	l.v.WatchConfig()
}

func (l *Loader) Registry() *Registry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}
