package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mt-gateway/src/helpers"
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
	closed []models.MClosedDeal
}

func (j *captureJournal) Initialize() error             { return nil }
func (j *captureJournal) SaveBars([]models.MBar) error  { return nil }
func (j *captureJournal) Close() error                  { return nil }
func (j *captureJournal) SaveOrderAudit(models.MOrderAudit) error {
	return nil
}
func (j *captureJournal) SaveClosedDeals(d []models.MClosedDeal) error {
	j.closed = append(j.closed, d...)
	return nil
}

// flakyHistory fails HistoryDeals while down is set and answers with no
// history at all while blank is set.
type flakyHistory struct {
	*upstream.SimTerminal
	down  bool
	blank bool
	calls int64
}

func (f *flakyHistory) HistoryDeals(ctx context.Context, from, to time.Time) ([]models.MDeal, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.down {
		return nil, helpers.NewUpstreamUnavailable("history_deals_get", errors.New("timeout"))
	}
	if f.blank {
		return nil, nil
	}
	return f.SimTerminal.HistoryDeals(ctx, from, to)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func closing(ticket uint64, symbol string, reason int, at time.Time) models.MDeal {
	return models.MDeal{
		Ticket: ticket, Symbol: symbol, Entry: models.DealEntryOut, Type: models.DealTypeSell,
		Reason: reason, Volume: 0.1, Price: 1.1, OpenPrice: 1.2, StopLoss: 1.19, TakeProfit: 1.22,
		OpenTime: at.Add(-time.Hour).Unix(), Time: at.Unix(),
	}
}

func newTestReconciler(term *flakyHistory, c *clock) (*Reconciler, *captureNotifier, *captureJournal) {
	session := upstream.NewSession(term, models.MUpstreamConfig{ConnectAttempts: 3, ConnectBackoffMs: 1}, nil)
	n, j := &captureNotifier{}, &captureJournal{}
	r := newWithClock(session, n, j, models.MReconcilerConfig{IntervalSeconds: 30}, nil, c.now)
	return r, n, j
}

func TestSweep_CountsClosuresAndAdvancesCheckpoint(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	term := &flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now)}
	r, notifier, journal := newTestReconciler(term, c)

	at := start.Add(10 * time.Second)
	term.AddDeal(closing(1, "X", models.DealReasonSL, at))
	term.AddDeal(closing(2, "X", models.DealReasonTP, at.Add(time.Second)))
	term.AddDeal(closing(3, "X", models.DealReasonSL, at.Add(2*time.Second)))
	term.AddDeal(closing(4, "X", models.DealReasonSL, at.Add(3*time.Second)))
	term.AddDeal(closing(5, "X", models.DealReasonTP, at.Add(4*time.Second)))
	term.AddDeal(models.MDeal{Ticket: 6, Symbol: "X", Entry: models.DealEntryIn, Time: at.Unix()})

	c.t = start.Add(30 * time.Second)
	require.NoError(t, r.Sweep(context.Background()))

	stats := r.Stats()
	assert.Equal(t, models.MCloseStats{Total: 5, StopLossCount: 3, TakeProfitCount: 2}, stats.BySymbol["X"])
	assert.Equal(t, 5, stats.Global.Total)
	assert.Equal(t, c.t, r.Checkpoint())
	assert.Equal(t, start.Unix(), stats.Since)

	require.Len(t, notifier.msgs, 5)
	assert.Contains(t, notifier.msgs[4], "Closed: 5 | SL: 3 | TP: 2")
	assert.Len(t, journal.closed, 5)
	assert.Equal(t, models.DirectionBuy, journal.closed[0].Direction)
	assert.Equal(t, 1.2, journal.closed[0].EntryPrice)
}

func TestSweep_FailureKeepsCheckpoint(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	term := &flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now), down: true}
	r, notifier, _ := newTestReconciler(term, c)

	term.AddDeal(closing(1, "X", models.DealReasonSL, start.Add(5*time.Second)))
	c.t = start.Add(30 * time.Second)

	err := r.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, start, r.Checkpoint())
	assert.Empty(t, notifier.msgs)
	_, lastErr := r.Health()
	assert.NotEmpty(t, lastErr)

	// Next sweep covers the same window.
	term.down = false
	c.t = start.Add(60 * time.Second)
	require.NoError(t, r.Sweep(context.Background()))
	assert.Len(t, notifier.msgs, 1)
	assert.Equal(t, c.t, r.Checkpoint())
}

func TestSweep_MissingHistoryKeepsCheckpoint(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	term := &flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now), blank: true}
	r, notifier, _ := newTestReconciler(term, c)

	term.AddDeal(closing(1, "X", models.DealReasonTP, start.Add(5*time.Second)))
	c.t = start.Add(30 * time.Second)

	err := r.Sweep(context.Background())
	assert.True(t, helpers.IsUpstreamUnavailable(err))
	assert.Equal(t, start, r.Checkpoint())
	assert.Empty(t, notifier.msgs)

	term.blank = false
	c.t = start.Add(60 * time.Second)
	require.NoError(t, r.Sweep(context.Background()))
	assert.Len(t, notifier.msgs, 1)
	assert.Equal(t, c.t, r.Checkpoint())
}

func TestSweep_EmptyHistoryAdvancesCheckpoint(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	r, notifier, _ := newTestReconciler(&flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now)}, c)

	c.t = start.Add(30 * time.Second)
	require.NoError(t, r.Sweep(context.Background()))
	assert.Equal(t, c.t, r.Checkpoint())
	assert.Empty(t, notifier.msgs)
}

func TestSweep_ConnectExhaustedSkips(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	sim := upstream.NewSimTerminal(c.now)
	sim.SetOffline(true)
	r, _, _ := newTestReconciler(&flakyHistory{SimTerminal: sim}, c)

	c.t = start.Add(30 * time.Second)
	assert.True(t, helpers.IsUpstreamUnavailable(r.Sweep(context.Background())))
	assert.Equal(t, start, r.Checkpoint())
}

func TestSweep_DuplicateTicketsCountedOnce(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	term := &flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now)}
	r, notifier, _ := newTestReconciler(term, c)

	term.AddDeal(closing(9, "Y", models.DealReasonTP, start.Add(time.Second)))
	term.AddDeal(closing(9, "Y", models.DealReasonTP, start.Add(time.Second)))
	c.t = start.Add(30 * time.Second)
	require.NoError(t, r.Sweep(context.Background()))

	assert.Equal(t, 1, r.Stats().Global.Total)
	assert.Len(t, notifier.msgs, 1)
}

func TestSweep_ForgetsOldTickets(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	term := &flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now)}
	r, _, _ := newTestReconciler(term, c)

	term.AddDeal(closing(1, "X", models.DealReasonSL, start.Add(10*time.Second)))
	c.t = start.Add(30 * time.Second)
	require.NoError(t, r.Sweep(context.Background()))
	r.mu.Lock()
	assert.Len(t, r.seen, 1)
	r.mu.Unlock()

	term.AddDeal(closing(2, "X", models.DealReasonTP, start.Add(72*time.Hour)))
	c.t = start.Add(72*time.Hour + 30*time.Second)
	require.NoError(t, r.Sweep(context.Background()))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.seen, 1)
	assert.Contains(t, r.seen, uint64(2))
	assert.Equal(t, 2, r.global.Total)
}

func TestSweep_YearChangeResetsStats(t *testing.T) {
	start := time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC)
	c := &clock{t: start}
	term := &flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now)}
	r, notifier, _ := newTestReconciler(term, c)

	term.AddDeal(closing(1, "X", models.DealReasonSL, start.Add(10*time.Second)))
	c.t = start.Add(30 * time.Second)
	require.NoError(t, r.Sweep(context.Background()))
	assert.Equal(t, 1, r.Stats().Global.Total)

	term.AddDeal(closing(2, "X", models.DealReasonTP, start.Add(70*time.Second)))
	c.t = start.Add(90 * time.Second)
	require.NoError(t, r.Sweep(context.Background()))

	stats := r.Stats()
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), stats.Since)
	assert.Equal(t, models.MCloseStats{Total: 1, TakeProfitCount: 1}, stats.Global)
	// closure, year summary, closure
	require.Len(t, notifier.msgs, 3)
	assert.Contains(t, notifier.msgs[1], "Closed positions since 2023-12-31")
}

func TestClassify(t *testing.T) {
	_, ok := Classify(models.MDeal{Entry: models.DealEntryIn})
	assert.False(t, ok)

	cd, ok := Classify(models.MDeal{Entry: models.DealEntryOutBy, Type: models.DealTypeBuy, Reason: 3, Price: 1.5})
	require.True(t, ok)
	assert.Equal(t, models.CloseReasonManual, cd.CloseReason)
	assert.Equal(t, models.DirectionSell, cd.Direction)
	assert.Equal(t, 1.5, cd.EntryPrice)

	cd, _ = Classify(models.MDeal{Entry: models.DealEntryInOut, Reason: models.DealReasonTP})
	assert.Equal(t, models.CloseReasonTakeProfit, cd.CloseReason)
}

func TestStatsStart(t *testing.T) {
	process := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, process, StatsStart(process, process.Add(time.Hour)))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), StatsStart(process, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRun_KeepsSweepingAfterFailuresUntilCancelled(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	term := &flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now), down: true}
	r, _, _ := newTestReconciler(term, c)
	r.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt64(&term.calls) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	calls := atomic.LoadInt64(&term.calls)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt64(&term.calls))
	assert.Equal(t, start, r.Checkpoint())
}

func TestRun_WaitsIntervalBetweenSweeps(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	term := &flakyHistory{SimTerminal: upstream.NewSimTerminal(c.now)}
	r, _, _ := newTestReconciler(term, c)
	r.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt64(&term.calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&term.calls))

	cancel()
	<-done
}
