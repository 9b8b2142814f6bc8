package ingest

import (
	"strconv"
	"strings"
	"time"

	"trade_core/internal/models"

	"github.com/bytedance/sonic"
)

// combinedFrame — обёртка combined-стрима: {"stream":"...","data":{...}}.
type combinedFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		EventTime int64  `json:"E"`

		// bookTicker
		BestBid string `json:"b"`
		BestAsk string `json:"a"`

		// aggTrade
		Price     string `json:"p"`
		Quantity  string `json:"q"`
		TradeTime int64  `json:"T"`
	} `json:"data"`
}

// decodeFrame разбирает фрейм и обновляет книгу пары. Событие возвращается,
// только когда по паре известны обе стороны книги и последняя сделка.
func (in *Ingestor) decodeFrame(msg []byte) (models.MarketEvent, bool) {
	var frame combinedFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return models.MarketEvent{}, false
	}
	sym := strings.ToUpper(frame.Data.Symbol)
	if sym == "" {
		return models.MarketEvent{}, false
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	b := in.book[sym]
	if b == nil {
		b = &pairBook{}
		in.book[sym] = b
	}

	ts := frame.Data.EventTime
	switch frame.Data.EventType {
	case "bookTicker":
		if bid, err := strconv.ParseFloat(frame.Data.BestBid, 64); err == nil && bid > 0 {
			b.bid = bid
		}
		if ask, err := strconv.ParseFloat(frame.Data.BestAsk, 64); err == nil && ask > 0 {
			b.ask = ask
		}
	case "aggTrade":
		if px, err := strconv.ParseFloat(frame.Data.Price, 64); err == nil && px > 0 {
			b.last = px
		}
		if qty, err := strconv.ParseFloat(frame.Data.Quantity, 64); err == nil {
			b.volume = qty
		}
		if frame.Data.TradeTime > 0 {
			ts = frame.Data.TradeTime
		}
	default:
		return models.MarketEvent{}, false
	}

	if b.bid <= 0 || b.ask <= 0 || b.last <= 0 {
		return models.MarketEvent{}, false
	}

	stamp := time.Now().UTC()
	if ts > 0 {
		stamp = time.UnixMilli(ts).UTC()
	}

	return models.MarketEvent{
		Pair:      sym,
		Timestamp: stamp,
		Bid:       b.bid,
		Ask:       b.ask,
		Last:      b.last,
		Volume:    b.volume,
	}, true
}
