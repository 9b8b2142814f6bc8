package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"trade_core/internal/bus"
	"trade_core/internal/exchange"
	"trade_core/internal/ledger"
	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

const (
	submitTimeout = 10 * time.Second
	shardCapacity = 16
)

// Executor — единственный потребитель канала одобренных ордеров и
// единственный владелец exchange-клиента. Внутри шардирован по паре:
// FIFO в рамках пары, медленный сабмит одной пары не тормозит другие.
type Executor struct {
	client    exchange.Client
	ledger    *ledger.Ledger
	settle    Settler
	eventsBus *bus.Bus[models.Event]

	mu       sync.Mutex
	shards   map[string]chan models.Order
	inFlight atomic.Int64
	wg       sync.WaitGroup
}

// Settler получает обратный вызов по каждому завершённому ордеру
// (реализует риск-менеджер: снимает оптимистичный счётчик, учитывает PnL).
type Settler interface {
	OnOrderSettled(order models.Order, realizedPnL float64)
}

func New(client exchange.Client, l *ledger.Ledger, settle Settler, eventsBus *bus.Bus[models.Event]) *Executor {
	return &Executor{
		client:    client,
		ledger:    l,
		settle:    settle,
		eventsBus: eventsBus,
		shards:    make(map[string]chan models.Order),
	}
}

// Run раскидывает ордера по шардам пар.
func (e *Executor) Run(ctx context.Context, orders <-chan models.Order) {
	logger.Info("order executor running")
	for {
		select {
		case <-ctx.Done():
			return
		case order, ok := <-orders:
			if !ok {
				return
			}
			e.inFlight.Add(1)
			e.shard(ctx, order.Pair) <- order
		}
	}
}

func (e *Executor) shard(ctx context.Context, pair string) chan models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.shards[pair]
	if !ok {
		ch = make(chan models.Order, shardCapacity)
		e.shards[pair] = ch
		e.wg.Add(1)
		go e.shardWorker(ctx, ch)
	}
	return ch
}

func (e *Executor) shardWorker(ctx context.Context, orders <-chan models.Order) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-orders:
			e.execute(ctx, order)
			e.inFlight.Add(-1)
		}
	}
}

func (e *Executor) execute(ctx context.Context, order models.Order) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executor.submit_order")
	span.SetTag("pair", order.Pair)
	span.SetTag("side", string(order.Side))
	span.SetTag("origin", string(order.Origin))
	defer span.Finish()

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	fill, err := e.client.SubmitOrder(submitCtx, order)
	cancel()

	if submitCtx.Err() == context.DeadlineExceeded {
		err = &exchange.TransportError{Retryable: true, Err: submitCtx.Err()}
	}
	if err != nil {
		// ретраев нет: повтор сабмита — риск двойного филла, это политика
		// уровня оператора, не экзекьютора
		logger.Error("order submit failed %s %s: %v", order.Pair, order.Side, err)
		e.eventsBus.Publish(models.OrderFailedEvent{
			Order:  order,
			Origin: order.Origin,
			Reason: err.Error(),
		})
		e.settle.OnOrderSettled(order, 0)
		return
	}

	realized := e.applyFill(ctx, order, fill)
	logger.Info("order filled %s %s qty=%v price=%v", fill.Pair, fill.Side, fill.ExecutedQuantity, fill.ExecutedPrice)
	e.eventsBus.Publish(models.OrderFilledEvent{Order: order, Fill: fill})
	e.settle.OnOrderSettled(order, realized)
}

// applyFill проводит филл через леджер. Покупка открывает/усредняет позицию,
// продажа закрывает и возвращает реализованный PnL.
func (e *Executor) applyFill(ctx context.Context, order models.Order, fill models.Fill) float64 {
	switch fill.Side {
	case models.SideBuy:
		if _, err := e.ledger.UpsertOnBuy(ctx, fill); err != nil {
			logger.Error("apply buy fill %s: %v", fill.Pair, err)
		}
		return 0
	default:
		trade, err := e.ledger.CloseOnSell(ctx, fill)
		if err != nil {
			logger.Error("apply sell fill %s: %v", fill.Pair, err)
			return 0
		}
		return trade.PnLUSD
	}
}

// AuditPositions — сверка леджера с биржей; зовётся на старте и после
// каждого реконнекта стрима. Живёт здесь, потому что только экзекьютор
// владеет клиентом.
func (e *Executor) AuditPositions(ctx context.Context) error {
	positions, err := e.client.OpenPositions(ctx)
	if err != nil {
		return err
	}
	e.ledger.Reconcile(ctx, positions)
	return nil
}

// Drain ждёт, пока все принятые ордера дойдут до терминального состояния.
// Используется супервизором в фазе Stopping.
func (e *Executor) Drain(ctx context.Context) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if e.inFlight.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
