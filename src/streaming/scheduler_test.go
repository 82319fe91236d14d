package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/models"
	"mt-gateway/src/registry"
	"mt-gateway/src/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingTerminal returns the two newest bars of an ever-advancing series,
// so consecutive polls overlap by one bar.
type steppingTerminal struct {
	*upstream.SimTerminal
	calls int64
	fail  atomic.Bool
}

func (s *steppingTerminal) LatestBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.MBar, error) {
	if s.fail.Load() {
		return nil, helpers.NewUpstreamUnavailable("rates_from_pos", context.DeadlineExceeded)
	}
	n := atomic.AddInt64(&s.calls, 1)
	return []models.MBar{
		{Symbol: symbol, Timeframe: tf, CloseTime: (n + 1) * 60},
		{Symbol: symbol, Timeframe: tf, CloseTime: n * 60},
	}, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	bars   map[string][]models.MBar
	errors []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{bars: map[string][]models.MBar{}}
}

func (f *fakeTransport) EmitBar(id string, b models.MBar) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bars[id] = append(f.bars[id], b)
	return true
}

func (f *fakeTransport) EmitStatus(id, msg string) {}

func (f *fakeTransport) EmitError(id, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

func (f *fakeTransport) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bars[id])
}

func (f *fakeTransport) snapshot(id string) []models.MBar {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.MBar(nil), f.bars[id]...)
}

func newTestScheduler(t *testing.T, term *steppingTerminal, transport *fakeTransport) (*Scheduler, *registry.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	session := upstream.NewSession(term, models.MUpstreamConfig{ConnectAttempts: 1}, nil)
	sched := NewScheduler(ctx, session, transport, nil, models.MStreamingConfig{PollPeriodSeconds: 60, BarsPerPoll: 2}, nil)
	sched.period = 10 * time.Millisecond
	return sched, registry.New(sched, nil)
}

func TestScheduler_DeliversStrictlyIncreasingBars(t *testing.T) {
	term := &steppingTerminal{SimTerminal: upstream.NewSimTerminal(nil)}
	transport := newFakeTransport()
	_, reg := newTestScheduler(t, term, transport)

	_, err := reg.Subscribe("c1", []models.MSubscriptionRequest{{Symbol: "EURUSD", Timeframe: "M1"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return transport.count("c1") >= 6 }, 2*time.Second, 5*time.Millisecond)
	reg.Unsubscribe("c1")

	bars := transport.snapshot("c1")
	seen := map[int64]bool{}
	for i, b := range bars {
		assert.False(t, seen[b.CloseTime], "closeTime %d delivered twice", b.CloseTime)
		seen[b.CloseTime] = true
		if i > 0 {
			assert.Greater(t, b.CloseTime, bars[i-1].CloseTime)
		}
	}
}

func TestScheduler_NoEmissionAfterUnsubscribe(t *testing.T) {
	term := &steppingTerminal{SimTerminal: upstream.NewSimTerminal(nil)}
	transport := newFakeTransport()
	sched, reg := newTestScheduler(t, term, transport)

	s, err := reg.Subscribe("c1", []models.MSubscriptionRequest{{Symbol: "EURUSD", Timeframe: "M1"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return transport.count("c1") > 0 }, 2*time.Second, 5*time.Millisecond)

	reg.Unsubscribe("c1")
	after := transport.count("c1")

	sched.Wait()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, transport.count("c1"))
	assert.Equal(t, registry.TaskStopped, s.TaskState())
}

func TestScheduler_UpstreamFailureEndsTask(t *testing.T) {
	term := &steppingTerminal{SimTerminal: upstream.NewSimTerminal(nil)}
	term.fail.Store(true)
	transport := newFakeTransport()
	sched, reg := newTestScheduler(t, term, transport)

	s, err := reg.Subscribe("c1", []models.MSubscriptionRequest{{Symbol: "EURUSD", Timeframe: "M1"}})
	require.NoError(t, err)

	sched.Wait()
	assert.False(t, s.Active())
	assert.Equal(t, registry.TaskStopped, s.TaskState())
	assert.Equal(t, 0, transport.count("c1"))
	require.Len(t, transport.errors, 1)
	assert.Contains(t, transport.errors[0], "upstream unavailable")
}

type countingJournal struct {
	bars int64
}

func (j *countingJournal) Initialize() error { return nil }
func (j *countingJournal) SaveBars(b []models.MBar) error {
	atomic.AddInt64(&j.bars, int64(len(b)))
	return nil
}
func (j *countingJournal) SaveClosedDeals([]models.MClosedDeal) error { return nil }
func (j *countingJournal) SaveOrderAudit(models.MOrderAudit) error    { return nil }
func (j *countingJournal) Close() error                               { return nil }

func runJournaled(t *testing.T, journalBars bool) (*countingJournal, *fakeTransport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	term := &steppingTerminal{SimTerminal: upstream.NewSimTerminal(nil)}
	transport := newFakeTransport()
	journal := &countingJournal{}
	session := upstream.NewSession(term, models.MUpstreamConfig{ConnectAttempts: 1}, nil)
	sched := NewScheduler(ctx, session, transport, journal, models.MStreamingConfig{
		PollPeriodSeconds: 60,
		BarsPerPoll:       2,
		JournalBars:       journalBars,
	}, nil)
	sched.period = 10 * time.Millisecond
	reg := registry.New(sched, nil)

	_, err := reg.Subscribe("c1", []models.MSubscriptionRequest{{Symbol: "EURUSD", Timeframe: "M1"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return transport.count("c1") >= 3 }, 2*time.Second, 5*time.Millisecond)
	reg.Unsubscribe("c1")
	sched.Wait()
	return journal, transport
}

func TestScheduler_BarsNotJournaledByDefault(t *testing.T) {
	journal, _ := runJournaled(t, false)
	assert.Equal(t, int64(0), atomic.LoadInt64(&journal.bars))
}

func TestScheduler_JournalBarsWhenEnabled(t *testing.T) {
	journal, transport := runJournaled(t, true)
	assert.Equal(t, int64(transport.count("c1")), atomic.LoadInt64(&journal.bars))
}

type closedGate struct{}

func (closedGate) IsOpen(string, time.Time) bool { return false }

func TestScheduler_ClosedMarketSkipsPolling(t *testing.T) {
	term := &steppingTerminal{SimTerminal: upstream.NewSimTerminal(nil)}
	transport := newFakeTransport()
	sched, reg := newTestScheduler(t, term, transport)
	sched.WithGate(closedGate{})

	s, err := reg.Subscribe("c1", []models.MSubscriptionRequest{{Symbol: "EURUSD", Timeframe: "M1"}})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	assert.True(t, s.Active())
	assert.Equal(t, int64(0), atomic.LoadInt64(&term.calls))
	reg.Unsubscribe("c1")
	sched.Wait()
}

func TestNextBoundary(t *testing.T) {
	at := func(h, m, s, ms int) time.Time {
		return time.Date(2024, 3, 5, h, m, s, ms*int(time.Millisecond), time.UTC)
	}

	assert.Equal(t, at(10, 16, 0, 0), NextBoundary(at(10, 15, 42, 500), time.Minute))
	assert.Equal(t, at(10, 16, 0, 0), NextBoundary(at(10, 15, 42, 0), 20*time.Second))
	assert.Equal(t, at(10, 15, 40, 0), NextBoundary(at(10, 15, 21, 0), 20*time.Second))
	assert.Equal(t, at(10, 16, 0, 0), NextBoundary(at(10, 15, 40, 0), 20*time.Second))
}
