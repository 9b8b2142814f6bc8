package strategy

import (
	"sync"

	"trade_core/internal/models"
)

const maxHistory = 512

// Registry — карта pair → стратегии. Каждое рыночное событие уходит только
// стратегиям своей пары; истории пар не пересекаются.
type Registry struct {
	mu      sync.Mutex
	byPair  map[string][]Strategy
	history map[string][]models.MarketEvent
}

func NewRegistry(byPair map[string][]Strategy) *Registry {
	return &Registry{
		byPair:  byPair,
		history: make(map[string][]models.MarketEvent),
	}
}

// Process накапливает историю пары и собирает сигналы её стратегий.
func (r *Registry) Process(ev models.MarketEvent) []models.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	strategies := r.byPair[ev.Pair]
	if len(strategies) == 0 {
		return nil
	}

	h := append(r.history[ev.Pair], ev)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	r.history[ev.Pair] = h

	var signals []models.Signal
	for _, s := range strategies {
		if sig := s.Evaluate(h); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals
}

// Pairs — пары, на которые подписаны стратегии (для стрима).
func (r *Registry) Pairs() models.Pairs {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make(models.Pairs, 0, len(r.byPair))
	for p := range r.byPair {
		res = append(res, p)
	}
	return res
}
