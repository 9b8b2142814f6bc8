package ingest

import (
	"testing"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngestor() *Ingestor {
	return New(models.Pairs{"BTCUSDT"}, nil, nil, nil)
}

func TestDecodeWaitsForFullBook(t *testing.T) {
	in := newTestIngestor()

	// только книга — последней сделки ещё нет, событие не эмитится
	_, ok := in.decodeFrame([]byte(`{"stream":"btcusdt@bookTicker","data":{"e":"bookTicker","s":"BTCUSDT","b":"19990.10","a":"20000.20","E":1700000000000}}`))
	assert.False(t, ok)

	// пришла сделка — теперь есть bid/ask/last
	ev, ok := in.decodeFrame([]byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"19995.00","q":"0.25","T":1700000001000}}`))
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", ev.Pair)
	assert.InDelta(t, 19990.10, ev.Bid, 1e-9)
	assert.InDelta(t, 20000.20, ev.Ask, 1e-9)
	assert.InDelta(t, 19995.00, ev.Last, 1e-9)
	assert.InDelta(t, 0.25, ev.Volume, 1e-9)
	assert.Equal(t, int64(1700000001000), ev.Timestamp.UnixMilli())
}

func TestDecodeUpdatesBookOnSubsequentTicks(t *testing.T) {
	in := newTestIngestor()

	_, _ = in.decodeFrame([]byte(`{"stream":"btcusdt@bookTicker","data":{"e":"bookTicker","s":"BTCUSDT","b":"100","a":"101"}}`))
	_, _ = in.decodeFrame([]byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"100.5","q":"1"}}`))

	ev, ok := in.decodeFrame([]byte(`{"stream":"btcusdt@bookTicker","data":{"e":"bookTicker","s":"BTCUSDT","b":"102","a":"103"}}`))
	require.True(t, ok)
	assert.InDelta(t, 102.0, ev.Bid, 1e-9)
	assert.InDelta(t, 100.5, ev.Last, 1e-9) // last переживает обновление книги
}

func TestDecodeIgnoresForeignFrames(t *testing.T) {
	in := newTestIngestor()

	_, ok := in.decodeFrame([]byte(`{"result":null,"id":1}`))
	assert.False(t, ok)

	_, ok = in.decodeFrame([]byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate","s":"BTCUSDT"}}`))
	assert.False(t, ok)

	_, ok = in.decodeFrame([]byte(`not json`))
	assert.False(t, ok)
}

func TestStreamURLCoversAllPairs(t *testing.T) {
	in := New(models.Pairs{"BTCUSDT", "ETHUSDT"}, nil, nil, nil)
	url := in.streamURL()
	assert.Contains(t, url, "btcusdt@bookTicker")
	assert.Contains(t, url, "btcusdt@aggTrade")
	assert.Contains(t, url, "ethusdt@aggTrade")
}
