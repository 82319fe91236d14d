package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/models"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -----------------------------------------------------------------------------
// BridgeClient talks to a small HTTP bridge running next to the MetaTrader
// terminal. Every call is POST {base}/{endpoint} with a JSON body and answers
// {"result": ...}; a null result means the terminal returned nothing.
//
// Bar and deal timestamps come back in the terminal's server clock and are
// shifted by ClockOffsetSeconds before leaving this type.
// -----------------------------------------------------------------------------

type BridgeClient struct {
	baseURL string
	cfg     models.MUpstreamConfig
	offset  int64
	network interfaces.INetworkManager
	logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewBridgeClient(cfg models.MUpstreamConfig, network interfaces.INetworkManager, log *logger.Logger) *BridgeClient {
	if log == nil {
		log = logger.NewNop()
	}
	var offset int64
	if cfg.ClockOffsetSeconds != nil {
		offset = *cfg.ClockOffsetSeconds
	}
	return &BridgeClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		offset:  offset,
		network: network,
		logger:  log,
	}
}

// -----------------------------------------------------------------------------

type envelope struct {
	Result jsoniter.RawMessage `json:"result"`
}

type rateRow struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// call posts payload to endpoint and decodes the result into out. It returns
// false if the result was null.
func (b *BridgeClient) call(ctx context.Context, endpoint string, payload interface{}, out interface{}) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	raw, err := b.network.PostJSON(ctx, b.baseURL+"/"+endpoint, body)
	if err != nil {
		return false, helpers.NewUpstreamUnavailable(endpoint, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, helpers.NewUpstreamUnavailable(endpoint, fmt.Errorf("decode response: %w", err))
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return false, helpers.NewUpstreamUnavailable(endpoint, fmt.Errorf("decode result: %w", err))
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) Connect(ctx context.Context) error {
	var ok bool
	_, err := b.call(ctx, "initialize", map[string]interface{}{
		"path":     b.cfg.TerminalPath,
		"login":    b.cfg.Login,
		"password": b.cfg.Password,
		"server":   b.cfg.Server,
		"timeout":  b.cfg.TimeoutMs,
	}, &ok)
	if err != nil {
		return err
	}
	if !ok {
		code, msg := b.LastError(ctx)
		return fmt.Errorf("terminal initialize refused: code=%d message=%s", code, msg)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) LatestBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.MBar, error) {
	var rows []rateRow
	// Position 1 skips the bar still forming.
	found, err := b.call(ctx, "rates_from_pos", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": string(tf),
		"start_pos": 1,
		"count":     count,
	}, &rows)
	if err != nil || !found {
		return nil, err
	}
	return b.toBars(symbol, tf, rows), nil
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) RangeBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.MBar, error) {
	var rows []rateRow
	found, err := b.call(ctx, "rates_range", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": string(tf),
		"date_from": from.Unix(),
		"date_to":   to.Unix(),
	}, &rows)
	if err != nil || !found {
		return nil, err
	}
	return b.toBars(symbol, tf, rows), nil
}

func (b *BridgeClient) toBars(symbol string, tf models.Timeframe, rows []rateRow) []models.MBar {
	bars := make([]models.MBar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, models.MBar{
			Symbol:    symbol,
			Timeframe: tf,
			Period:    tf.Period(),
			CloseTime: r.Time + b.offset,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
		})
	}
	return bars
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) Tick(ctx context.Context, symbol string) (*models.MTick, error) {
	var tick models.MTick
	found, err := b.call(ctx, "symbol_info_tick", map[string]string{"symbol": symbol}, &tick)
	if err != nil || !found {
		return nil, err
	}
	tick.Time += b.offset
	return &tick, nil
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) SymbolInfo(ctx context.Context, symbol string) (*models.MSymbolInfo, error) {
	var info models.MSymbolInfo
	found, err := b.call(ctx, "symbol_info", map[string]string{"symbol": symbol}, &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) SelectSymbol(ctx context.Context, symbol string) (bool, error) {
	var ok bool
	_, err := b.call(ctx, "symbol_select", map[string]interface{}{"symbol": symbol, "enable": true}, &ok)
	return ok, err
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) SendOrder(ctx context.Context, order models.MUpstreamOrder) (*models.MOrderResult, error) {
	var result models.MOrderResult
	found, err := b.call(ctx, "order_send", order, &result)
	if err != nil || !found {
		return nil, err
	}
	return &result, nil
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) LastError(ctx context.Context) (int, string) {
	var pair []interface{}
	found, err := b.call(ctx, "last_error", struct{}{}, &pair)
	if err != nil {
		return -1, err.Error()
	}
	if !found || len(pair) < 2 {
		return 0, ""
	}
	code, _ := pair[0].(float64)
	msg, _ := pair[1].(string)
	return int(code), msg
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) HistoryDeals(ctx context.Context, from, to time.Time) ([]models.MDeal, error) {
	var deals []models.MDeal
	found, err := b.call(ctx, "history_deals_get", map[string]int64{
		"date_from": from.Unix(),
		"date_to":   to.Unix(),
	}, &deals)
	if err != nil {
		return nil, err
	}
	// An empty history is []; null means the query itself failed.
	if !found {
		code, msg := b.LastError(ctx)
		return nil, helpers.NewUpstreamUnavailable("history_deals_get",
			fmt.Errorf("terminal returned no history: code=%d message=%s", code, msg))
	}
	if deals == nil {
		deals = []models.MDeal{}
	}
	for i := range deals {
		deals[i].Time += b.offset
		if deals[i].OpenTime != 0 {
			deals[i].OpenTime += b.offset
		}
	}
	return deals, nil
}

// -----------------------------------------------------------------------------

func (b *BridgeClient) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := b.call(ctx, "shutdown", struct{}{}, nil)
	return err
}
