package ledger

import (
	"context"
	"sync"
	"time"

	"trade_core/internal/models"
)

// MemoryStore — стор без базы: для тестов и локальной обкатки пайплайна.
// Семантика повторяет PgStore, включая атомарность CloseAndRecord.
type MemoryStore struct {
	mu        sync.Mutex
	positions map[string]models.Position
	trades    []models.Trade
	meta      map[string]float64

	// FailWrites — включает имитацию отказа персистентности
	// (для проверки PersistenceDivergence-пути).
	FailWrites bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]models.Position),
		meta:      make(map[string]float64),
	}
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errWriteFailed
	}
	s.positions[p.ID] = p
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errWriteFailed
	}
	delete(s.positions, id)
	return nil
}

func (s *MemoryStore) CloseAndRecord(_ context.Context, positionID string, remaining *models.Position, trade models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errWriteFailed
	}
	if remaining == nil {
		delete(s.positions, positionID)
	} else {
		s.positions[positionID] = *remaining
	}
	s.trades = append(s.trades, trade)
	return nil
}

func (s *MemoryStore) LoadPositions(_ context.Context, mode models.TradingMode) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []models.Position
	for _, p := range s.positions {
		if p.Mode == mode {
			res = append(res, p)
		}
	}
	return res, nil
}

func (s *MemoryStore) RecentTrades(_ context.Context, mode models.TradingMode, since time.Time) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []models.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if t.Mode == mode && t.ClosedAt.After(since) {
			res = append(res, t)
		}
	}
	return res, nil
}

func (s *MemoryStore) LoadPeakValue(_ context.Context, mode models.TradingMode) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.meta[peakKey(mode)]
	return v, ok, nil
}

func (s *MemoryStore) SavePeakValue(_ context.Context, mode models.TradingMode, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errWriteFailed
	}
	s.meta[peakKey(mode)] = v
	return nil
}

// Trades — копия всех записанных трейдов (для ассертов).
func (s *MemoryStore) Trades() []models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Trade(nil), s.trades...)
}
