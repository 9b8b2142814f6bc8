package risk

import (
	"context"
	"math"
	"sync"

	"trade_core/internal/bus"
	"trade_core/internal/config"
	"trade_core/internal/ledger"
	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

// MaxOpenOrders — жёсткий потолок одновременно открытых ордеров.
// Compile-time константа, в конфиг не выносится: последний рубеж против
// разогнавшейся стратегии.
const MaxOpenOrders = 5

type substate int32

const (
	substateNormal substate = iota
	substateHalted
)

// Manager — обязательный шлюз между сигналами и экзекьютором. Orders
// конструирует только он; другого пути к каналу ордеров нет.
type Manager struct {
	cfg       config.RiskParams
	overrides *models.ExposureOverrides
	state     *models.StateVar
	ledger    *ledger.Ledger
	orders    chan<- models.Order
	eventsBus *bus.Bus[models.Event]

	mu         sync.Mutex
	sub        substate
	lastPx     map[string]models.MarketEvent
	openOrders int
	baseUSD    float64
	realized   float64
	current    float64
	peak       float64
	// закрытия, уже отправленные экзекьютору, чтобы не дублировать
	// триггерные ордера на каждом тике до филла. key: pair|side позиции
	inFlightCloses map[string]bool
}

func NewManager(
	cfg config.RiskParams,
	baseUSD float64,
	overrides *models.ExposureOverrides,
	state *models.StateVar,
	l *ledger.Ledger,
	orders chan<- models.Order,
	eventsBus *bus.Bus[models.Event],
) *Manager {
	return &Manager{
		cfg:            cfg,
		overrides:      overrides,
		state:          state,
		ledger:         l,
		orders:         orders,
		eventsBus:      eventsBus,
		lastPx:         make(map[string]models.MarketEvent),
		baseUSD:        baseUSD,
		current:        baseUSD,
		peak:           baseUSD,
		inFlightCloses: make(map[string]bool),
	}
}

// SeedPeak подтягивает персистентный пик портфеля (переживает рестарты;
// сбрасывается только командой ResetDrawdown).
func (m *Manager) SeedPeak(ctx context.Context) {
	if v, ok := m.ledger.PeakValue(ctx); ok && v > 0 {
		m.mu.Lock()
		m.peak = v
		m.mu.Unlock()
		logger.Info("risk: peak value restored: %.2f", v)
	}
}

// Run обрабатывает оба входа: сигналы стратегий и рыночные события для
// мониторинга открытых позиций.
func (m *Manager) Run(ctx context.Context, signals <-chan models.Signal, market *bus.Subscription[models.MarketEvent]) {
	logger.Info("risk manager running, hard ceiling=%d", MaxOpenOrders)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.handleSignal(ctx, sig)
		case ev, ok := <-market.C():
			if !ok {
				return
			}
			m.handleMarketEvent(ctx, ev)
		}
	}
}

// ── Сигнальный путь: правила по порядку, первый отказ выигрывает ──────────

func (m *Manager) handleSignal(ctx context.Context, sig models.Signal) {
	m.mu.Lock()

	// 1. гейт состояния движка
	st := m.state.Get()
	if m.sub == substateHalted || st == models.StateHalted {
		m.mu.Unlock()
		m.reject(sig, models.RejectDrawdownHalted, "new exposure blocked until ResetDrawdown")
		return
	}
	if st != models.StateRunning {
		m.mu.Unlock()
		return // paused/stopped: молча дропаем
	}

	// 2. жёсткий потолок
	if m.openOrders >= MaxOpenOrders {
		m.mu.Unlock()
		m.reject(sig, models.RejectHardCeilingReached, "")
		return
	}

	// 3. валидность количества
	if sig.Quantity <= 0 || math.IsNaN(sig.Quantity) || isSubnormal(sig.Quantity) {
		m.mu.Unlock()
		m.reject(sig, models.RejectInvalidQuantity, "")
		return
	}

	// референсная цена: ask для покупки, bid для продажи
	ev, known := m.lastPx[sig.Pair]
	if !known {
		m.mu.Unlock()
		m.reject(sig, models.RejectUnknownPair, "no market data observed")
		return
	}
	refPrice := ev.Ask
	if sig.Side == models.SideSell {
		refPrice = ev.Bid
	}

	// 4. экспозиция
	limit := m.exposureLimitLocked(sig.Strategy)
	if sig.Quantity*refPrice > limit {
		m.mu.Unlock()
		m.reject(sig, models.RejectExposureLimitExceeded, "")
		return
	}

	// 5. близость к стоп-лоссу (только покупки): вход не должен оказаться
	// внутри стоп-полосы уже на текущем спреде
	if sig.Side == models.SideBuy {
		if refPrice*(1-m.cfg.StopLossPct) >= refPrice-ev.Spread() {
			m.mu.Unlock()
			m.reject(sig, models.RejectStopLossProximity, "")
			return
		}
	}

	order := models.Order{
		Pair:           sig.Pair,
		Side:           sig.Side,
		Quantity:       sig.Quantity,
		ReferencePrice: refPrice,
		Kind:           models.OrderKindMarket,
		Origin:         models.OriginStrategy,
	}
	m.openOrders++ // оптимистично; откат на филле или ошибке сабмита
	m.mu.Unlock()

	logger.Info("order approved: %s %s qty=%v ref=%v", order.Pair, order.Side, order.Quantity, refPrice)
	select {
	case m.orders <- order:
	case <-ctx.Done():
	}
}

// exposureLimitLocked резолвит лимит: пер-стратегийный override, иначе доля
// портфеля, иначе абсолют.
func (m *Manager) exposureLimitLocked(strategyName string) float64 {
	if v, ok := m.overrides.Get(strategyName); ok {
		return v
	}
	if m.cfg.MaxExposurePct > 0 {
		return m.cfg.MaxExposurePct * m.current
	}
	return m.cfg.MaxExposureUSD
}

// ── Прайс-монитор: SL/TP по открытым позициям на каждом событии ───────────

func (m *Manager) handleMarketEvent(ctx context.Context, ev models.MarketEvent) {
	m.mu.Lock()
	m.lastPx[ev.Pair] = ev
	m.mu.Unlock()

	for _, p := range m.ledger.OpenPositions() {
		if p.Pair != ev.Pair || p.EntryPrice <= 0 {
			continue
		}

		// лонг оцениваем по bid (выходить придётся в него), шорт по ask
		var lossPct, gainPct float64
		if p.Side == models.SideBuy {
			lossPct = (p.EntryPrice - ev.Bid) / p.EntryPrice
			gainPct = (ev.Bid - p.EntryPrice) / p.EntryPrice
		} else {
			lossPct = (ev.Ask - p.EntryPrice) / p.EntryPrice
			gainPct = (p.EntryPrice - ev.Ask) / p.EntryPrice
		}

		switch {
		case lossPct >= m.cfg.StopLossPct:
			m.triggerClose(ctx, p, ev, models.OriginStopLoss, models.TriggerStopLoss)
		case gainPct >= m.cfg.TakeProfitPct:
			m.triggerClose(ctx, p, ev, models.OriginTakeProfit, models.TriggerTakeProfit)
		}
	}

	m.updateValuation(ctx)
}

// triggerClose эмитит безусловное закрытие позиции. Правила количества и
// экспозиции не применяются, но гейт состояния — да, а жёсткий потолок —
// всегда (политика: потолок не обходит никто).
func (m *Manager) triggerClose(ctx context.Context, p models.Position, ev models.MarketEvent, origin models.OrderOrigin, kind models.TriggerKind) {
	st := m.state.Get()
	if st != models.StateRunning && st != models.StateStopping {
		return
	}

	k := p.Pair + "|" + string(p.Side)
	m.mu.Lock()
	if m.inFlightCloses[k] {
		m.mu.Unlock()
		return
	}
	if m.openOrders >= MaxOpenOrders {
		m.mu.Unlock()
		m.reject(models.Signal{Pair: p.Pair, Side: p.Side.Opposite(), Quantity: p.Quantity, Strategy: string(origin)},
			models.RejectHardCeilingReached, "triggered close delayed by hard ceiling")
		return
	}
	m.inFlightCloses[k] = true
	m.openOrders++
	m.mu.Unlock()

	refPrice := ev.Bid
	if p.Side == models.SideSell {
		refPrice = ev.Ask
	}
	order := models.Order{
		Pair:           p.Pair,
		Side:           p.Side.Opposite(),
		Quantity:       p.Quantity,
		ReferencePrice: refPrice,
		Kind:           models.OrderKindMarket,
		Origin:         origin,
	}

	logger.Warn("%s on %s: closing qty=%v at ref=%v", kind, p.Pair, p.Quantity, refPrice)
	m.eventsBus.Publish(models.TriggerEvent{Kind: kind, Pair: p.Pair})

	select {
	case m.orders <- order:
	case <-ctx.Done():
	}
}

// ── Drawdown circuit breaker ──────────────────────────────────────────────

// updateValuation пересчитывает стоимость портфеля (база + реализованный +
// нереализованный PnL) и проверяет просадку от пика.
func (m *Manager) updateValuation(ctx context.Context) {
	unrealized := 0.0
	for _, p := range m.ledger.OpenPositions() {
		m.mu.Lock()
		ev, ok := m.lastPx[p.Pair]
		m.mu.Unlock()
		if !ok {
			continue
		}
		mark := ev.Bid
		if p.Side == models.SideSell {
			mark = ev.Ask
		}
		unrealized += (mark - p.EntryPrice) * p.Quantity * p.Side.Sign()
	}

	m.mu.Lock()
	m.current = m.baseUSD + m.realized + unrealized

	// пик не убывает, пока движок работает
	peakAdvanced := false
	if m.state.Get() == models.StateRunning && m.current > m.peak {
		m.peak = m.current
		peakAdvanced = true
	}

	haltNow := false
	var drawdown float64
	if m.peak > 0 {
		drawdown = (m.peak - m.current) / m.peak
		if drawdown >= m.cfg.MaxDrawdownPct && m.sub != substateHalted {
			m.sub = substateHalted
			haltNow = true
		}
	}
	peak := m.peak
	m.mu.Unlock()

	if peakAdvanced {
		m.ledger.SavePeakValue(ctx, peak)
	}
	if haltNow {
		logger.Error("drawdown %.2f%% breached limit — halting new exposure", drawdown*100)
		m.eventsBus.Publish(models.TriggerEvent{Kind: models.TriggerDrawdownHalt, Detail: "new exposure halted"})
	}
}

// ResetDrawdown — операторская команда: расчищает Halted и пересеивает пик
// текущей стоимостью. Возвращает true, если был активен halt.
func (m *Manager) ResetDrawdown(ctx context.Context) bool {
	m.mu.Lock()
	wasHalted := m.sub == substateHalted
	m.sub = substateNormal
	m.peak = m.current
	peak := m.peak
	m.mu.Unlock()

	m.ledger.SavePeakValue(ctx, peak)
	if wasHalted {
		logger.Info("drawdown halt cleared, peak reseeded to %.2f", peak)
	}
	return wasHalted
}

// Halted — внутренний substate (не путать с engine-level Halted).
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub == substateHalted
}

// CloseAllPositions эмитит рыночные закрытия всех открытых позиций —
// используется супервизором на фазе Stopping. Потолок здесь не применяется:
// это принудительный выход из экспозиции, а не новая экспозиция.
func (m *Manager) CloseAllPositions(ctx context.Context) int {
	positions := m.ledger.OpenPositions()
	for _, p := range positions {
		m.mu.Lock()
		ev := m.lastPx[p.Pair]
		m.openOrders++
		m.mu.Unlock()

		refPrice := ev.Bid
		if p.Side == models.SideSell {
			refPrice = ev.Ask
		}
		order := models.Order{
			Pair:           p.Pair,
			Side:           p.Side.Opposite(),
			Quantity:       p.Quantity,
			ReferencePrice: refPrice,
			Kind:           models.OrderKindMarket,
		}
		select {
		case m.orders <- order:
		case <-ctx.Done():
			return len(positions)
		}
	}
	return len(positions)
}

// OnOrderSettled — обратный вызов экзекьютора: ордер исполнен или провален.
// Снимает оптимистичный инкремент и учитывает реализованный PnL.
func (m *Manager) OnOrderSettled(order models.Order, realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openOrders > 0 {
		m.openOrders--
	}
	m.realized += realizedPnL

	// закрытие долетело (или провалилось) — триггер можно заводить снова
	closedKey := order.Pair + "|" + string(order.Side.Opposite())
	delete(m.inFlightCloses, closedKey)
}

// Accounting — срез портфельной бухгалтерии для снапшота.
type Accounting struct {
	CurrentValue   float64
	PeakValue      float64
	Drawdown       float64
	OpenOrderCount int
	Halted         bool
}

func (m *Manager) Accounting() Accounting {
	m.mu.Lock()
	defer m.mu.Unlock()

	dd := 0.0
	if m.peak > 0 {
		dd = (m.peak - m.current) / m.peak
	}
	return Accounting{
		CurrentValue:   m.current,
		PeakValue:      m.peak,
		Drawdown:       dd,
		OpenOrderCount: m.openOrders,
		Halted:         m.sub == substateHalted,
	}
}

func (m *Manager) reject(sig models.Signal, reason models.RejectionReason, detail string) {
	logger.Warn("signal rejected: %s %s qty=%v reason=%s %s", sig.Pair, sig.Side, sig.Quantity, reason, detail)
	m.eventsBus.Publish(models.RejectionEvent{Signal: sig, Reason: reason, Detail: detail})
}

// isSubnormal — денормализованный float: слишком мал, чтобы доверять
// арифметике нотионала.
func isSubnormal(f float64) bool {
	bits := math.Float64bits(f)
	exp := (bits >> 52) & 0x7ff
	frac := bits & ((1 << 52) - 1)
	return exp == 0 && frac != 0
}
