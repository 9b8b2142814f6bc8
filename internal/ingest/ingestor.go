package ingest

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"trade_core/internal/bus"
	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
)

const (
	streamBaseURL = "wss://fstream.binance.com/stream"

	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
	// Binance закрывает сессии примерно раз в сутки — плановый реконнект через
	// 24 ч после начала чтения текущего соединения.
	sessionRollover = 24 * time.Hour
	connectDeadline = 5 * time.Second
)

// PositionAuditor запускает сверку леджера с биржей. Реализует экзекьютор —
// единственный владелец exchange-клиента.
type PositionAuditor interface {
	AuditPositions(ctx context.Context) error
}

// Ingestor владеет жизненным циклом стрима: один постоянный WebSocket на всю
// группу пар, декодирование фреймов в MarketEvent, публикация в broadcast-шину.
type Ingestor struct {
	pairs     models.Pairs
	marketBus *bus.Bus[models.MarketEvent]
	eventsBus *bus.Bus[models.Event]
	auditor   PositionAuditor
	dialer    *websocket.Dialer

	mu   sync.Mutex
	book map[string]*pairBook
}

// pairBook — последние bid/ask/last по паре; событие уходит наружу, только
// когда есть обе стороны книги и цена сделки.
type pairBook struct {
	bid, ask, last, volume float64
}

func New(
	pairs models.Pairs,
	marketBus *bus.Bus[models.MarketEvent],
	eventsBus *bus.Bus[models.Event],
	auditor PositionAuditor,
) *Ingestor {
	return &Ingestor{
		pairs:     pairs,
		marketBus: marketBus,
		eventsBus: eventsBus,
		auditor:   auditor,
		dialer:    &websocket.Dialer{},
		book:      make(map[string]*pairBook),
	}
}

func (in *Ingestor) streamURL() string {
	streams := make([]string, 0, len(in.pairs)*2)
	for _, p := range in.pairs {
		lower := strings.ToLower(p)
		streams = append(streams, lower+"@bookTicker", lower+"@aggTrade")
	}
	return streamBaseURL + "?streams=" + strings.Join(streams, "/")
}

// Start устанавливает первое соединение. Если за connectDeadline не успели —
// наружу уходит ошибка и StreamUnavailable, супервизор решает, что делать.
func (in *Ingestor) Start(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectDeadline)
	defer cancel()

	conn, _, err := in.dialer.DialContext(dialCtx, in.streamURL(), nil)
	if err != nil {
		in.eventsBus.Publish(models.StreamUnavailableEvent{Detail: err.Error()})
		return pkgerrors.Wrap(err, "stream unavailable")
	}

	// аудит позиций до того, как начнём эмитить события
	if err := in.auditor.AuditPositions(ctx); err != nil {
		logger.Error("startup position audit: %v", err)
	}

	go in.run(ctx, conn)
	return nil
}

// run читает фреймы до обрыва, затем реконнектится с экспоненциальным
// бэкоффом и full jitter. Каждый реконнект (включая плановый суточный
// rollover) прогоняет аудит позиций до возобновления эмиссии.
func (in *Ingestor) run(ctx context.Context, conn *websocket.Conn) {
	backoff := initialBackoff

	for {
		if conn != nil {
			in.readLoop(ctx, conn)
			_ = conn.Close()
			conn = nil
		}

		if ctx.Err() != nil {
			return
		}

		// full jitter: спим случайную долю текущего бэкоффа
		sleep := time.Duration(rand.Float64() * float64(backoff))
		logger.Warn("stream disconnected, reconnect in %v", sleep)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}

		next, _, err := in.dialer.DialContext(ctx, in.streamURL(), nil)
		if err != nil {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff
		conn = next

		// аудит до возобновления эмиссии событий
		if err := in.auditor.AuditPositions(ctx); err != nil {
			logger.Error("post-reconnect position audit: %v", err)
		}
	}
}

// readLoop возвращается при любой ошибке чтения или по истечении суточной сессии.
func (in *Ingestor) readLoop(ctx context.Context, conn *websocket.Conn) {
	rollover := time.NewTimer(sessionRollover)
	defer rollover.Stop()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- msg:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rollover.C:
			logger.Info("scheduled session rollover, reconnecting")
			return
		case err := <-readErr:
			logger.Warn("stream read: %v", err)
			return
		case msg := <-frames:
			if ev, ok := in.decodeFrame(msg); ok {
				in.marketBus.Publish(ev)
			}
		}
	}
}
