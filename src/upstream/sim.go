package upstream

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/models"
)

var errSimOffline = errors.New("simulated terminal offline")

// -----------------------------------------------------------------------------
// SimTerminal is an in-process terminal for development and tests. Prices are
// a deterministic function of symbol and time, so repeated queries for the
// same window agree. Orders always fill.
// -----------------------------------------------------------------------------

type SimTerminal struct {
	mu         sync.Mutex
	now        func() time.Time
	offline    bool
	connects   int
	nextTicket uint64
	orders     []models.MUpstreamOrder
	deals      []models.MDeal
	unknown    map[string]bool
}

func NewSimTerminal(now func() time.Time) *SimTerminal {
	if now == nil {
		now = time.Now
	}
	return &SimTerminal{now: now, nextTicket: 100000, unknown: map[string]bool{}}
}

// SetOffline makes every call fail until cleared.
func (s *SimTerminal) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// RemoveSymbol makes the symbol unknown to the terminal.
func (s *SimTerminal) RemoveSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknown[strings.ToUpper(symbol)] = true
}

// AddDeal records a history deal.
func (s *SimTerminal) AddDeal(d models.MDeal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals = append(s.deals, d)
}

// Orders returns the orders received so far.
func (s *SimTerminal) Orders() []models.MUpstreamOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MUpstreamOrder(nil), s.orders...)
}

// Connects returns how many times Connect succeeded.
func (s *SimTerminal) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *SimTerminal) check() error {
	if s.offline {
		return helpers.NewUpstreamUnavailable("sim", errSimOffline)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *SimTerminal) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.connects++
	return nil
}

func (s *SimTerminal) Disconnect() error {
	return nil
}

// -----------------------------------------------------------------------------

// priceAt returns a reproducible mid price for symbol at unix time t.
func priceAt(symbol string, t int64) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	seed := h.Sum64()

	base := 1.0 + float64(seed%1000)/1000.0
	if strings.Contains(symbol, "JPY") {
		base *= 100
	}
	phase := float64(seed%360) * math.Pi / 180
	wave := math.Sin(float64(t)/3600.0+phase)*0.004 + math.Sin(float64(t)/97.0)*0.0004
	return round(base*(1+wave), 5)
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

func (s *SimTerminal) bar(symbol string, tf models.Timeframe, start int64) models.MBar {
	step := tf.Seconds()
	open := priceAt(symbol, start)
	closeP := priceAt(symbol, start+step)
	high, low := math.Max(open, closeP), math.Min(open, closeP)
	mid := priceAt(symbol, start+step/2)
	high, low = math.Max(high, mid), math.Min(low, mid)
	return models.MBar{
		Symbol:    symbol,
		Timeframe: tf,
		Period:    tf.Period(),
		CloseTime: start + step,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
	}
}

// -----------------------------------------------------------------------------

func (s *SimTerminal) LatestBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.MBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.unknown[symbol] || count <= 0 {
		return nil, nil
	}

	step := tf.Seconds()
	lastClose := (s.now().Unix() / step) * step
	bars := make([]models.MBar, 0, count)
	for i := count; i >= 1; i-- {
		bars = append(bars, s.bar(symbol, tf, lastClose-int64(i)*step))
	}
	return bars, nil
}

func (s *SimTerminal) RangeBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.MBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.unknown[symbol] {
		return nil, nil
	}

	step := tf.Seconds()
	end := to.Unix()
	if now := s.now().Unix(); end > now {
		end = now
	}
	var bars []models.MBar
	for start := (from.Unix() / step) * step; start+step <= end; start += step {
		if start < from.Unix() {
			continue
		}
		bars = append(bars, s.bar(symbol, tf, start))
	}
	return bars, nil
}

// -----------------------------------------------------------------------------

func (s *SimTerminal) Tick(ctx context.Context, symbol string) (*models.MTick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.unknown[symbol] {
		return nil, nil
	}
	now := s.now().Unix()
	mid := priceAt(symbol, now)
	spread := 0.00010
	if strings.Contains(symbol, "JPY") {
		spread = 0.010
	}
	return &models.MTick{Ask: round(mid+spread/2, 5), Bid: round(mid-spread/2, 5), Time: now}, nil
}

func (s *SimTerminal) SymbolInfo(ctx context.Context, symbol string) (*models.MSymbolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.unknown[symbol] {
		return nil, nil
	}
	if strings.Contains(symbol, "JPY") {
		return &models.MSymbolInfo{Digits: 3, Point: 0.001}, nil
	}
	return &models.MSymbolInfo{Digits: 5, Point: 0.00001}, nil
}

func (s *SimTerminal) SelectSymbol(ctx context.Context, symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	return !s.unknown[symbol], nil
}

// -----------------------------------------------------------------------------

func (s *SimTerminal) SendOrder(ctx context.Context, order models.MUpstreamOrder) (*models.MOrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	s.nextTicket++
	s.orders = append(s.orders, order)

	result := &models.MOrderResult{Retcode: 10009, Ticket: s.nextTicket, Price: order.Price, Comment: "Request executed"}
	if !order.Pending {
		result.Deal = s.nextTicket
	}
	return result, nil
}

func (s *SimTerminal) LastError(ctx context.Context) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return -10004, "No IPC connection"
	}
	return 1, "Success"
}

func (s *SimTerminal) HistoryDeals(ctx context.Context, from, to time.Time) ([]models.MDeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := []models.MDeal{}
	for _, d := range s.deals {
		if d.Time >= from.Unix() && d.Time < to.Unix() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}
