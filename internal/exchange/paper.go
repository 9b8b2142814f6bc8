package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/google/uuid"
)

// PaperClient симулирует биржу: исполнение синхронное, транспортных ошибок
// не бывает. Покупки наливаются по ask*(1+slippage), продажи по
// bid*(1-slippage) против последнего MarketEvent по паре.
type PaperClient struct {
	mu         sync.RWMutex
	lastEvents map[string]models.MarketEvent
	positions  map[string]models.Position // key: pair|side
	balanceUSD float64
	slipBps    float64
}

func NewPaperClient(balanceUSD, slippageBps float64) *PaperClient {
	logger.Info("paper client: balance=%.2f slippage=%.1f bps", balanceUSD, slippageBps)
	return &PaperClient{
		lastEvents: make(map[string]models.MarketEvent),
		positions:  make(map[string]models.Position),
		balanceUSD: balanceUSD,
		slipBps:    slippageBps,
	}
}

// ObserveMarket обновляет последнюю цену пары. Подписчик market-шины
// дергает это на каждом событии.
func (p *PaperClient) ObserveMarket(ev models.MarketEvent) {
	p.mu.Lock()
	p.lastEvents[ev.Pair] = ev
	p.mu.Unlock()
}

func posKey(pair string, side models.Side) string {
	return pair + "|" + string(side)
}

func (p *PaperClient) SubmitOrder(_ context.Context, order models.Order) (models.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ev, ok := p.lastEvents[order.Pair]
	if !ok {
		return models.Fill{}, &RejectedError{
			Reason: fmt.Sprintf("no market data observed for %s yet", order.Pair),
		}
	}

	var fillPrice float64
	switch order.Side {
	case models.SideBuy:
		fillPrice = ev.Ask * (1 + p.slipBps/10_000)
	case models.SideSell:
		fillPrice = ev.Bid * (1 - p.slipBps/10_000)
	}

	fill := models.Fill{
		Pair:             order.Pair,
		Side:             order.Side,
		ExecutedPrice:    fillPrice,
		ExecutedQuantity: order.Quantity,
		ExecutedAt:       time.Now().UTC(),
		ExchangeID:       "paper-" + uuid.NewString(),
	}

	// симулируем инвентарь: buy открывает/усредняет лонг, sell его закрывает
	longKey := posKey(order.Pair, models.SideBuy)
	switch order.Side {
	case models.SideBuy:
		if pos, exists := p.positions[longKey]; exists {
			total := pos.Quantity + order.Quantity
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + fillPrice*order.Quantity) / total
			pos.Quantity = total
			p.positions[longKey] = pos
		} else {
			p.positions[longKey] = models.Position{
				ID:         uuid.NewString(),
				Pair:       order.Pair,
				Side:       models.SideBuy,
				EntryPrice: fillPrice,
				Quantity:   order.Quantity,
				Mode:       models.ModePaper,
				OpenedAt:   fill.ExecutedAt,
			}
		}
		p.balanceUSD -= fillPrice * order.Quantity
	case models.SideSell:
		if pos, exists := p.positions[longKey]; exists {
			if order.Quantity >= pos.Quantity {
				delete(p.positions, longKey)
			} else {
				pos.Quantity -= order.Quantity
				p.positions[longKey] = pos
			}
		}
		p.balanceUSD += fillPrice * order.Quantity
	}

	return fill, nil
}

func (p *PaperClient) OpenPositions(_ context.Context) ([]models.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	res := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		res = append(res, pos)
	}
	return res, nil
}

// BalanceUSD — симулированный баланс (для снапшотов и логов).
func (p *PaperClient) BalanceUSD() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balanceUSD
}
