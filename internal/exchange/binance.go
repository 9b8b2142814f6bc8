package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const binanceBaseURL = "https://fapi.binance.com"

// BinanceClient — REST-клиент Binance futures: постановка ордеров и позиции.
// Подпись запросов HMAC-SHA256 по query-строке.
type BinanceClient struct {
	http      *http.Client
	apiKey    string
	apiSecret string
	mode      models.TradingMode
}

func NewBinanceClient(apiKey, apiSecret string) *BinanceClient {
	return &BinanceClient{
		http:      &http.Client{Timeout: 10 * time.Second},
		apiKey:    apiKey,
		apiSecret: apiSecret,
		mode:      models.ModeLive,
	}
}

func (c *BinanceClient) sign(query string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *BinanceClient) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()
	query += "&signature=" + c.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, binanceBaseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, c.apiError(resp.StatusCode, rb)
	}
	return rb, nil
}

// apiError мапит ответ Binance в типизированную ошибку сабмита.
func (c *BinanceClient) apiError(status int, body []byte) error {
	var e struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = sonic.Unmarshal(body, &e)

	switch {
	case e.Code == -2019 || strings.Contains(strings.ToLower(e.Msg), "insufficient"):
		return ErrInsufficientFunds
	case status >= 500 || status == 429:
		return &TransportError{Retryable: true, Err: fmt.Errorf("http %d: %s", status, string(body))}
	default:
		return &RejectedError{Reason: fmt.Sprintf("code=%d msg=%s", e.Code, e.Msg)}
	}
}

func (c *BinanceClient) SubmitOrder(ctx context.Context, order models.Order) (models.Fill, error) {
	params := url.Values{}
	params.Set("symbol", order.Pair)
	params.Set("side", string(order.Side))
	params.Set("type", string(order.Kind))
	params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
	if order.Kind == models.OrderKindLimit {
		params.Set("price", strconv.FormatFloat(order.ReferencePrice, 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	}
	params.Set("newOrderRespType", "RESULT")

	rb, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return models.Fill{}, err
	}

	var respData struct {
		OrderID     int64  `json:"orderId"`
		AvgPrice    string `json:"avgPrice"`
		ExecutedQty string `json:"executedQty"`
		UpdateTime  int64  `json:"updateTime"`
		Status      string `json:"status"`
	}
	if err := sonic.Unmarshal(rb, &respData); err != nil {
		return models.Fill{}, errors.Wrap(err, "decode order response")
	}
	if respData.Status != "FILLED" && respData.Status != "PARTIALLY_FILLED" {
		return models.Fill{}, &RejectedError{Reason: "status " + respData.Status}
	}

	price, _ := strconv.ParseFloat(respData.AvgPrice, 64)
	qty, _ := strconv.ParseFloat(respData.ExecutedQty, 64)

	return models.Fill{
		Pair:             order.Pair,
		Side:             order.Side,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedAt:       time.UnixMilli(respData.UpdateTime),
		ExchangeID:       strconv.FormatInt(respData.OrderID, 10),
	}, nil
}

// OpenPositions вытаскивает открытые позиции и мапит их в models.Position.
func (c *BinanceClient) OpenPositions(ctx context.Context) ([]models.Position, error) {
	rb, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", url.Values{})
	if err != nil {
		return nil, err
	}

	var respData []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
		UpdateTime  int64  `json:"updateTime"`
	}
	if err := sonic.Unmarshal(rb, &respData); err != nil {
		return nil, errors.Wrap(err, "decode positions response")
	}

	res := make([]models.Position, 0, len(respData))
	for _, d := range respData {
		amt, _ := strconv.ParseFloat(d.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(d.EntryPrice, 64)

		side := models.SideBuy
		if amt < 0 {
			side = models.SideSell
			amt = -amt
		}
		res = append(res, models.Position{
			ID:         fmt.Sprintf("binance-%s-%s", d.Symbol, strings.ToLower(string(side))),
			Pair:       d.Symbol,
			Side:       side,
			EntryPrice: entry,
			Quantity:   amt,
			Mode:       c.mode,
			OpenedAt:   time.UnixMilli(d.UpdateTime),
		})
	}
	logger.Info("binance: %d open positions on exchange", len(res))
	return res, nil
}
