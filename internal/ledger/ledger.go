package ledger

import (
	"context"
	"sync"
	"time"

	"trade_core/internal/bus"
	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger — единственный источник правды по открытым позициям и закрытым
// трейдам. Память первична, запись в стор сквозная; если стор упал после
// успешного филла — филл остаётся в памяти, наружу уходит фатальный
// PersistenceDivergence, супервизор стопит новые ордера.
type Ledger struct {
	mode      models.TradingMode
	store     Store
	eventsBus *bus.Bus[models.Event]

	mu        sync.RWMutex
	positions map[string]models.Position // key: pair|side
	trades    []models.Trade             // закрытые за последние сутки, новые в конце
	lastPx    map[string]models.MarketEvent
}

func New(mode models.TradingMode, store Store, eventsBus *bus.Bus[models.Event]) *Ledger {
	return &Ledger{
		mode:      mode,
		store:     store,
		eventsBus: eventsBus,
		positions: make(map[string]models.Position),
		lastPx:    make(map[string]models.MarketEvent),
	}
}

func key(pair string, side models.Side) string {
	return pair + "|" + string(side)
}

// Load поднимает открытые позиции и суточные трейды из стора. Зовётся один
// раз на старте, до подключения стрима.
func (l *Ledger) Load(ctx context.Context) error {
	positions, err := l.store.LoadPositions(ctx, l.mode)
	if err != nil {
		return err
	}
	trades, err := l.store.RecentTrades(ctx, l.mode, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range positions {
		l.positions[key(p.Pair, p.Side)] = p
	}
	// RecentTrades отдаёт новые первыми — разворачиваем в хронологию
	for i := len(trades) - 1; i >= 0; i-- {
		l.trades = append(l.trades, trades[i])
	}
	logger.Info("ledger loaded: %d positions, %d trades in last 24h", len(positions), len(trades))
	return nil
}

// ObserveMarket запоминает последние bid/ask для расчёта нереализованного PnL.
func (l *Ledger) ObserveMarket(ev models.MarketEvent) {
	l.mu.Lock()
	l.lastPx[ev.Pair] = ev
	l.mu.Unlock()
}

// UpsertOnBuy применяет покупку: открывает лонг либо усредняет существующий.
// Инвариант «не больше одной позиции на (pair, side)» держится ключом мапы.
func (l *Ledger) UpsertOnBuy(ctx context.Context, fill models.Fill) (string, error) {
	l.mu.Lock()

	k := key(fill.Pair, models.SideBuy)
	pos, exists := l.positions[k]
	if exists {
		total := pos.Quantity + fill.ExecutedQuantity
		entry := decimal.NewFromFloat(pos.EntryPrice).Mul(decimal.NewFromFloat(pos.Quantity)).
			Add(decimal.NewFromFloat(fill.ExecutedPrice).Mul(decimal.NewFromFloat(fill.ExecutedQuantity))).
			Div(decimal.NewFromFloat(total))
		pos.EntryPrice = entry.InexactFloat64()
		pos.Quantity = total
	} else {
		pos = models.Position{
			ID:         uuid.NewString(),
			Pair:       fill.Pair,
			Side:       models.SideBuy,
			EntryPrice: fill.ExecutedPrice,
			Quantity:   fill.ExecutedQuantity,
			Mode:       l.mode,
			OpenedAt:   fill.ExecutedAt,
		}
	}
	l.positions[k] = pos
	l.mu.Unlock()

	if err := l.store.UpsertPosition(ctx, pos); err != nil {
		l.divergence(fill.Pair, err)
	}
	return pos.ID, nil
}

// CloseOnSell закрывает лонг (полностью или частично), считает PnL и пишет
// трейд. Удаление позиции и вставка трейда — одна транзакция в сторе.
func (l *Ledger) CloseOnSell(ctx context.Context, fill models.Fill) (models.Trade, error) {
	l.mu.Lock()

	k := key(fill.Pair, models.SideBuy)
	pos, exists := l.positions[k]
	if !exists {
		l.mu.Unlock()
		return models.Trade{}, ErrNoOpenPosition
	}

	closedQty := fill.ExecutedQuantity
	if closedQty > pos.Quantity {
		closedQty = pos.Quantity
	}

	// pnl = (exit - entry) * qty * sign(side); денежная арифметика — decimal
	pnl := decimal.NewFromFloat(fill.ExecutedPrice).
		Sub(decimal.NewFromFloat(pos.EntryPrice)).
		Mul(decimal.NewFromFloat(closedQty)).
		Mul(decimal.NewFromFloat(pos.Side.Sign()))

	trade := models.Trade{
		ID:         uuid.NewString(),
		Pair:       pos.Pair,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.ExecutedPrice,
		Quantity:   closedQty,
		PnLUSD:     pnl.InexactFloat64(),
		Mode:       l.mode,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   fill.ExecutedAt,
	}

	var remaining *models.Position
	if closedQty < pos.Quantity {
		pos.Quantity -= closedQty
		l.positions[k] = pos
		cp := pos
		remaining = &cp
	} else {
		delete(l.positions, k)
	}
	l.trades = append(l.trades, trade)
	l.pruneTradesLocked()
	l.mu.Unlock()

	if err := l.store.CloseAndRecord(ctx, pos.ID, remaining, trade); err != nil {
		l.divergence(fill.Pair, err)
	}
	return trade, nil
}

// Reconcile — идемпотентный мердж позиций биржи в леджер. Биржевые позиции,
// которых у нас нет, принимаются; локальные без подтверждения биржи только
// логируются как OrphanedPosition — без явного закрывающего филла леджер
// позицию не удаляет.
func (l *Ledger) Reconcile(ctx context.Context, exchangePositions []models.Position) {
	seen := make(map[string]bool, len(exchangePositions))

	var adopted []models.Position
	l.mu.Lock()
	for _, p := range exchangePositions {
		k := key(p.Pair, p.Side)
		seen[k] = true
		if _, ok := l.positions[k]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.Mode = l.mode
		l.positions[k] = p
		adopted = append(adopted, p)
	}
	var orphans []models.Position
	for k, p := range l.positions {
		if !seen[k] {
			orphans = append(orphans, p)
		}
	}
	l.mu.Unlock()

	for _, p := range adopted {
		logger.Warn("reconcile: adopted exchange position %s %s qty=%v", p.Pair, p.Side, p.Quantity)
		if err := l.store.UpsertPosition(ctx, p); err != nil {
			l.divergence(p.Pair, err)
		}
	}
	for _, p := range orphans {
		logger.Warn("reconcile: orphaned local position %s %s qty=%v", p.Pair, p.Side, p.Quantity)
		l.eventsBus.Publish(models.OrphanedPositionEvent{Position: p})
	}
}

// Snapshot — лёгкое чтение для дашборда и чат-бота.
type Snapshot struct {
	Positions      []models.Position
	UnrealizedPnL  float64
	RealizedPnL24h float64
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{Positions: make([]models.Position, 0, len(l.positions))}

	unreal := decimal.Zero
	for _, p := range l.positions {
		snap.Positions = append(snap.Positions, p)
		ev, ok := l.lastPx[p.Pair]
		if !ok {
			continue
		}
		// лонг маркируем по bid, шорт по ask
		mark := ev.Bid
		if p.Side == models.SideSell {
			mark = ev.Ask
		}
		unreal = unreal.Add(
			decimal.NewFromFloat(mark).
				Sub(decimal.NewFromFloat(p.EntryPrice)).
				Mul(decimal.NewFromFloat(p.Quantity)).
				Mul(decimal.NewFromFloat(p.Side.Sign())),
		)
	}
	snap.UnrealizedPnL = unreal.InexactFloat64()

	cutoff := time.Now().Add(-24 * time.Hour)
	realized := decimal.Zero
	for _, t := range l.trades {
		if t.ClosedAt.After(cutoff) {
			realized = realized.Add(decimal.NewFromFloat(t.PnLUSD))
		}
	}
	snap.RealizedPnL24h = realized.InexactFloat64()
	return snap
}

// OpenPositions — копия открытых позиций (читатели: риск, аудит).
func (l *Ledger) OpenPositions() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	res := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		res = append(res, p)
	}
	return res
}

// PeakValue / SavePeakValue — персистентный пик портфеля для drawdown-брейкера.
func (l *Ledger) PeakValue(ctx context.Context) (float64, bool) {
	v, ok, err := l.store.LoadPeakValue(ctx, l.mode)
	if err != nil {
		logger.Error("load peak value: %v", err)
		return 0, false
	}
	return v, ok
}

func (l *Ledger) SavePeakValue(ctx context.Context, v float64) {
	if err := l.store.SavePeakValue(ctx, l.mode, v); err != nil {
		logger.Error("save peak value: %v", err)
	}
}

func (l *Ledger) pruneTradesLocked() {
	cutoff := time.Now().Add(-24 * time.Hour)
	firstLive := 0
	for firstLive < len(l.trades) && !l.trades[firstLive].ClosedAt.After(cutoff) {
		firstLive++
	}
	if firstLive > 0 {
		l.trades = append([]models.Trade(nil), l.trades[firstLive:]...)
	}
}

func (l *Ledger) divergence(pair string, err error) {
	logger.Error("persistence divergence on %s: %v", pair, err)
	l.eventsBus.Publish(models.PersistenceDivergenceEvent{
		Pair:   pair,
		Detail: err.Error(),
	})
}
