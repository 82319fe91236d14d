package registry

import (
	"sort"
	"sync"

	"mt-gateway/src/models"
)

type TaskState string

const (
	TaskPending  TaskState = "Pending"
	TaskRunning  TaskState = "Running"
	TaskStopping TaskState = "Stopping"
	TaskStopped  TaskState = "Stopped"
)

// -----------------------------------------------------------------------------
// Session is one connection's subscription set. All reads and writes of the
// delivery cursors and the active flag happen under mu, and Deliver emits
// while holding it, so once Stop returns nothing more is emitted.
// -----------------------------------------------------------------------------

type Session struct {
	ID string

	mu     sync.Mutex
	active bool
	state  TaskState
	keys   []string
	subs   map[string]*models.MSubscription
	done   chan struct{}
}

func newSession(id string, requests []models.MSubscription) *Session {
	s := &Session{
		ID:     id,
		active: true,
		state:  TaskPending,
		subs:   make(map[string]*models.MSubscription, len(requests)),
		done:   make(chan struct{}),
	}
	for i := range requests {
		sub := requests[i]
		sub.ConnectionID = id
		sub.LastDeliveredCloseTime = 0
		if _, dup := s.subs[sub.Key()]; dup {
			continue
		}
		s.keys = append(s.keys, sub.Key())
		s.subs[sub.Key()] = &sub
	}
	return s
}

// -----------------------------------------------------------------------------

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Done is closed when the session is stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscriptions returns a copy in subscription order.
func (s *Session) Subscriptions() []models.MSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MSubscription, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, *s.subs[k])
	}
	return out
}

// -----------------------------------------------------------------------------

// Deliver emits the bars newer than the subscription's cursor, oldest first,
// and advances the cursor to the newest one emitted. Stale and duplicate bars
// are dropped. If emit refuses a bar, delivery stops there and the cursor
// stays before it. Returns the bars emitted.
func (s *Session) Deliver(key string, bars []models.MBar, emit func(models.MBar) bool) []models.MBar {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[key]
	if !s.active || !ok || len(bars) == 0 {
		return nil
	}

	sorted := append([]models.MBar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CloseTime < sorted[j].CloseTime })

	var delivered []models.MBar
	for _, bar := range sorted {
		if bar.CloseTime <= sub.LastDeliveredCloseTime {
			continue
		}
		if !emit(bar) {
			break
		}
		sub.LastDeliveredCloseTime = bar.CloseTime
		delivered = append(delivered, bar)
	}
	return delivered
}

// -----------------------------------------------------------------------------

// Stop deactivates the session and wakes its task. Safe to call twice.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	if s.state == TaskRunning || s.state == TaskPending {
		s.state = TaskStopping
	}
	close(s.done)
}

// -----------------------------------------------------------------------------

func (s *Session) SetTaskState(state TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == TaskRunning && !s.active {
		return
	}
	s.state = state
}

func (s *Session) TaskState() TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) info() models.MSessionInfo {
	subs := s.Subscriptions()
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.MSessionInfo{
		ConnectionID:  s.ID,
		Active:        s.active,
		TaskState:     string(s.state),
		Subscriptions: subs,
	}
}
