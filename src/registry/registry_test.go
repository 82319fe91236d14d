package registry

import (
	"math/rand"
	"sync"
	"testing"

	"mt-gateway/src/helpers"
	"mt-gateway/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLauncher struct {
	mu       sync.Mutex
	launched []*Session
}

func (l *recordingLauncher) Launch(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, s)
}

func (l *recordingLauncher) all() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.launched...)
}

func m1(symbol string) models.MSubscriptionRequest {
	return models.MSubscriptionRequest{Symbol: symbol, Timeframe: "PERIOD_M1"}
}

func bar(closeTime int64) models.MBar {
	return models.MBar{Symbol: "EURUSD", Timeframe: models.TimeframeM1, CloseTime: closeTime}
}

func TestSubscribe_ReplacesPreviousSession(t *testing.T) {
	launcher := &recordingLauncher{}
	r := New(launcher, nil)

	first, err := r.Subscribe("c1", []models.MSubscriptionRequest{m1("eurusd")})
	require.NoError(t, err)
	second, err := r.Subscribe("c1", []models.MSubscriptionRequest{m1("gbpusd"), m1("eurusd")})
	require.NoError(t, err)

	assert.False(t, first.Active())
	assert.Equal(t, TaskStopping, first.TaskState())
	assert.True(t, second.Active())
	assert.Len(t, launcher.all(), 2)

	select {
	case <-first.Done():
	default:
		t.Fatal("old session not signalled")
	}

	subs := second.Subscriptions()
	require.Len(t, subs, 2)
	assert.Equal(t, "GBPUSD", subs[0].Symbol)
	assert.Equal(t, models.TimeframeM1, subs[0].Timeframe)
	assert.Equal(t, int64(0), subs[1].LastDeliveredCloseTime)
}

func TestSubscribe_InvalidTimeframeLeavesStateUntouched(t *testing.T) {
	r := New(&recordingLauncher{}, nil)
	existing, err := r.Subscribe("c1", []models.MSubscriptionRequest{m1("EURUSD")})
	require.NoError(t, err)

	_, err = r.Subscribe("c1", []models.MSubscriptionRequest{{Symbol: "EURUSD", Timeframe: "M7"}})
	require.Error(t, err)
	assert.Equal(t, 400, helpers.HTTPStatus(err))
	assert.True(t, existing.Active())
}

func TestSubscribe_DuplicateTupleKeptOnce(t *testing.T) {
	r := New(nil, nil)
	s, err := r.Subscribe("c1", []models.MSubscriptionRequest{m1("EURUSD"), {Symbol: "eurusd", Timeframe: "M1"}})
	require.NoError(t, err)
	assert.Len(t, s.Subscriptions(), 1)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	r := New(nil, nil)
	s, err := r.Subscribe("c1", []models.MSubscriptionRequest{m1("EURUSD")})
	require.NoError(t, err)
	key := s.Subscriptions()[0].Key()

	emitted := 0
	emit := func(models.MBar) bool { emitted++; return true }

	assert.Len(t, s.Deliver(key, []models.MBar{bar(60)}, emit), 1)
	assert.True(t, r.Unsubscribe("c1"))
	assert.Nil(t, s.Deliver(key, []models.MBar{bar(120)}, emit))
	assert.Equal(t, 1, emitted)

	_, ok := r.Get("c1")
	assert.False(t, ok)
	assert.False(t, r.Unsubscribe("c1"))
}

func TestDeliver_DropsStaleAndDuplicates(t *testing.T) {
	s := newSession("c1", []models.MSubscription{{Symbol: "EURUSD", Timeframe: models.TimeframeM1}})
	key := "EURUSD_M1"

	var got []int64
	emit := func(b models.MBar) bool { got = append(got, b.CloseTime); return true }

	s.Deliver(key, []models.MBar{bar(180), bar(120)}, emit)
	s.Deliver(key, []models.MBar{bar(180)}, emit)
	s.Deliver(key, []models.MBar{bar(60), bar(240)}, emit)

	assert.Equal(t, []int64{120, 180, 240}, got)
	assert.Equal(t, int64(240), s.Subscriptions()[0].LastDeliveredCloseTime)
}

func TestDeliver_RefusedEmitKeepsCursor(t *testing.T) {
	s := newSession("c1", []models.MSubscription{{Symbol: "EURUSD", Timeframe: models.TimeframeM1}})
	key := "EURUSD_M1"

	delivered := s.Deliver(key, []models.MBar{bar(60), bar(120)}, func(b models.MBar) bool { return b.CloseTime < 120 })
	assert.Len(t, delivered, 1)
	assert.Equal(t, int64(60), s.Subscriptions()[0].LastDeliveredCloseTime)

	delivered = s.Deliver(key, []models.MBar{bar(120)}, func(models.MBar) bool { return true })
	assert.Len(t, delivered, 1)
}

func TestDeliver_RandomCyclesAreStrictlyIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := newSession("c1", []models.MSubscription{{Symbol: "EURUSD", Timeframe: models.TimeframeM1}})

	var emitted []int64
	seen := map[int64]bool{}
	emit := func(b models.MBar) bool {
		emitted = append(emitted, b.CloseTime)
		return true
	}

	for cycle := 0; cycle < 500; cycle++ {
		n := rng.Intn(4)
		bars := make([]models.MBar, 0, n)
		for i := 0; i < n; i++ {
			bars = append(bars, bar(int64(rng.Intn(200))*60))
		}
		s.Deliver("EURUSD_M1", bars, emit)
	}

	for i, ts := range emitted {
		assert.False(t, seen[ts], "closeTime %d emitted twice", ts)
		seen[ts] = true
		if i > 0 {
			assert.Greater(t, ts, emitted[i-1])
		}
	}
}

func TestRegistry_ConcurrentSubscribeLeavesOneActiveSession(t *testing.T) {
	launcher := &recordingLauncher{}
	r := New(launcher, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 4 {
				r.Unsubscribe("c1")
				return
			}
			_, _ = r.Subscribe("c1", []models.MSubscriptionRequest{m1("EURUSD")})
		}(i)
	}
	wg.Wait()

	active := 0
	for _, s := range launcher.all() {
		if s.Active() {
			active++
		}
	}
	current, ok := r.Get("c1")
	if ok {
		assert.Equal(t, 1, active)
		assert.True(t, current.Active())
	} else {
		assert.Equal(t, 0, active)
	}
}

func TestRegistry_ListAndStopAll(t *testing.T) {
	r := New(nil, nil)
	_, _ = r.Subscribe("b", []models.MSubscriptionRequest{m1("EURUSD")})
	_, _ = r.Subscribe("a", []models.MSubscriptionRequest{m1("GBPUSD")})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ConnectionID)
	assert.Equal(t, string(TaskPending), list[0].TaskState)

	r.StopAll()
	assert.Empty(t, r.List())
}
