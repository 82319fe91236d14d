package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/interfaces"
	"mt-gateway/src/models"
	"mt-gateway/src/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureNotifier) Enqueue(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
}

type captureJournal struct {
	audits []models.MOrderAudit
}

func (j *captureJournal) Initialize() error                         { return nil }
func (j *captureJournal) SaveBars([]models.MBar) error              { return nil }
func (j *captureJournal) SaveClosedDeals([]models.MClosedDeal) error { return nil }
func (j *captureJournal) Close() error                              { return nil }
func (j *captureJournal) SaveOrderAudit(a models.MOrderAudit) error {
	j.audits = append(j.audits, a)
	return nil
}

// rejectingTerminal answers order_send with a configurable result.
type rejectingTerminal struct {
	*upstream.SimTerminal
	result *models.MOrderResult
}

func (r *rejectingTerminal) SendOrder(ctx context.Context, o models.MUpstreamOrder) (*models.MOrderResult, error) {
	return r.result, nil
}

func (r *rejectingTerminal) LastError(ctx context.Context) (int, string) {
	return 10016, "Invalid stops"
}

var fixedNow = time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC)

func ordersConfig() models.MOrdersConfig {
	return models.MOrdersConfig{
		MaxPriceDrift: 0.0002, MinDistancePoints: 2, MinStopDistancePoints: 10,
		Deviation: 30, PendingExpirationHours: 168, RetcodeDone: 10009,
	}
}

func newRouter(t *testing.T, term interfaces.IUpstream) (*Router, *captureNotifier, *captureJournal) {
	t.Helper()
	session := upstream.NewSession(term, models.MUpstreamConfig{ConnectAttempts: 1}, nil)

	n, j := &captureNotifier{}, &captureJournal{}
	r := NewRouter(session, ordersConfig(), n, j, nil)
	r.now = func() time.Time { return fixedNow }
	return r, n, j
}

func TestPlace_PendingOrderRouted(t *testing.T) {
	sim := upstream.NewSimTerminal(func() time.Time { return fixedNow })
	r, notifier, journal := newRouter(t, sim)

	tick, err := sim.Tick(context.Background(), "EURUSD")
	require.NoError(t, err)

	req := models.MOrderRequest{Symbol: "EURUSD", Volume: 0.1, Direction: models.DirectionBuy,
		Price: tick.Ask - 0.0050, StopLoss: tick.Ask - 0.0100, TakeProfit: tick.Ask + 0.0100, Kind: models.OrderKindPending}
	resp, err := r.Place(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.OrderTypeBuyLimit, resp.OrderType)
	assert.Equal(t, "Pending order placed successfully", resp.Message)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour).Unix(), resp.Expiration)

	orders := sim.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, 30, orders[0].Deviation)
	assert.True(t, orders[0].TimeGTC)
	assert.True(t, orders[0].FillOrKill)
	assert.True(t, orders[0].Pending)

	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0], "Order Placed")
	require.Len(t, journal.audits, 1)
	assert.Equal(t, "placed", journal.audits[0].Outcome)
}

func TestPlace_UnknownSymbolRejected(t *testing.T) {
	sim := upstream.NewSimTerminal(func() time.Time { return fixedNow })
	sim.RemoveSymbol("XYZABC")
	r, notifier, _ := newRouter(t, sim)

	_, err := r.Place(context.Background(), models.MOrderRequest{Symbol: "XYZABC", Volume: 1,
		Direction: models.DirectionBuy, Price: 1, StopLoss: 0.9, TakeProfit: 1.1, Kind: models.OrderKindMarket})

	require.Error(t, err)
	assert.Equal(t, "Symbol XYZABC not available", err.Error())
	assert.Equal(t, 400, helpers.HTTPStatus(err))
	assert.Empty(t, sim.Orders())
	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0], "Order Rejected")
}

func TestPlace_ValidationRejectionSendsNothing(t *testing.T) {
	sim := upstream.NewSimTerminal(func() time.Time { return fixedNow })
	r, _, journal := newRouter(t, sim)

	tick, _ := sim.Tick(context.Background(), "EURUSD")
	_, err := r.Place(context.Background(), models.MOrderRequest{Symbol: "EURUSD", Volume: 1,
		Direction: models.DirectionBuy, Price: tick.Ask + 0.01, StopLoss: tick.Ask - 0.01,
		TakeProfit: tick.Ask + 0.02, Kind: models.OrderKindMarket})

	require.Error(t, err)
	assert.Equal(t, 400, helpers.HTTPStatus(err))
	assert.Empty(t, sim.Orders())
	assert.Equal(t, "rejected", journal.audits[0].Outcome)
}

func TestPlace_UpstreamRetcodePassedThrough(t *testing.T) {
	term := &rejectingTerminal{
		SimTerminal: upstream.NewSimTerminal(func() time.Time { return fixedNow }),
		result:      &models.MOrderResult{Retcode: 10016, Comment: "Invalid stops"},
	}
	r, _, journal := newRouter(t, term)

	tick, _ := term.Tick(context.Background(), "EURUSD")
	_, err := r.Place(context.Background(), models.MOrderRequest{Symbol: "EURUSD", Volume: 1,
		Direction: models.DirectionBuy, Price: tick.Ask, StopLoss: tick.Ask - 0.01,
		TakeProfit: tick.Ask + 0.01, Kind: models.OrderKindMarket})

	var rejected *helpers.OrderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 10016, rejected.Retcode)
	assert.Equal(t, 10016, rejected.Code)
	assert.Equal(t, "Invalid stops", rejected.Message)
	assert.Equal(t, "Invalid stops", rejected.Comment)
	assert.Equal(t, 400, helpers.HTTPStatus(err))
	assert.Equal(t, 10016, journal.audits[0].Retcode)
}

func TestPlace_NoResultIsInternalError(t *testing.T) {
	term := &rejectingTerminal{SimTerminal: upstream.NewSimTerminal(func() time.Time { return fixedNow })}
	r, _, journal := newRouter(t, term)

	tick, _ := term.Tick(context.Background(), "EURUSD")
	_, err := r.Place(context.Background(), models.MOrderRequest{Symbol: "EURUSD", Volume: 1,
		Direction: models.DirectionBuy, Price: tick.Ask, StopLoss: tick.Ask - 0.01,
		TakeProfit: tick.Ask + 0.01, Kind: models.OrderKindMarket})

	var noResult *helpers.NoResultError
	require.ErrorAs(t, err, &noResult)
	assert.Equal(t, 500, helpers.HTTPStatus(err))
	assert.Equal(t, "failed", journal.audits[0].Outcome)
}

func TestPlace_UpstreamDownIsInternalError(t *testing.T) {
	sim := upstream.NewSimTerminal(nil)
	sim.SetOffline(true)
	r, _, _ := newRouter(t, sim)

	_, err := r.Place(context.Background(), models.MOrderRequest{Symbol: "EURUSD", Volume: 1,
		Direction: models.DirectionBuy, Price: 1, StopLoss: 0.9, TakeProfit: 1.1, Kind: models.OrderKindMarket})

	assert.True(t, helpers.IsUpstreamUnavailable(err))
	assert.Equal(t, 500, helpers.HTTPStatus(err))
}

func TestNormalize(t *testing.T) {
	_, err := Normalize(map[string]interface{}{"symbol": "eurusd", "volume": 0.1, "direction": "BUY", "sl": 1.0, "tp": 2.0}, models.OrderKindMarket)
	assert.EqualError(t, err, "Missing required field: price")

	_, err = Normalize(map[string]interface{}{"symbol": "eurusd", "volume": 0.1, "direction": "HOLD", "sl": 1.0, "tp": 2.0, "price": 1.5}, models.OrderKindMarket)
	assert.EqualError(t, err, "Invalid direction - use BUY/SELL")

	_, err = Normalize(map[string]interface{}{"symbol": "eurusd", "volume": nil, "direction": "buy", "sl": 1.0, "tp": 2.0, "price": 1.5}, models.OrderKindMarket)
	assert.EqualError(t, err, "Missing required field: volume")

	req, err := Normalize(map[string]interface{}{"symbol": "eurusd", "volume": 0.1, "direction": "sell", "sl": 1.0, "tp": 2.0, "price": 1.5}, models.OrderKindPending)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", req.Symbol)
	assert.Equal(t, models.DirectionSell, req.Direction)
	assert.Equal(t, models.OrderKindPending, req.Kind)
}

func TestInterpretResult(t *testing.T) {
	assert.NoError(t, InterpretResult(&models.MOrderResult{Retcode: 10009}, 10009, 0, ""))
	assert.IsType(t, &helpers.NoResultError{}, InterpretResult(nil, 10009, -1, "x"))
	assert.IsType(t, &helpers.OrderRejectedError{}, InterpretResult(&models.MOrderResult{Retcode: 10004}, 10009, 0, ""))
}
