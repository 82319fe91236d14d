package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"mt-gateway/src/helpers"
	"mt-gateway/src/logger"
	"mt-gateway/src/models"
)

// TaskLauncher starts the polling task for a session. Launch must not block.
type TaskLauncher interface {
	Launch(s *Session)
}

// -----------------------------------------------------------------------------
// Registry maps connection ids to sessions. Subscribe and Unsubscribe hold the
// registry lock for their whole duration, so for any connection the old task is
// stopped before a replacement is launched and no two tasks are live at once.
// -----------------------------------------------------------------------------

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	launcher TaskLauncher
	logger   *logger.Logger
}

func New(launcher TaskLauncher, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		launcher: launcher,
		logger:   log,
	}
}

// -----------------------------------------------------------------------------

// ParseSubscriptions validates client requests. Symbols are upper-cased.
func ParseSubscriptions(requests []models.MSubscriptionRequest) ([]models.MSubscription, error) {
	if len(requests) == 0 {
		return nil, helpers.NewValidation("No subscriptions requested")
	}
	subs := make([]models.MSubscription, 0, len(requests))
	for _, r := range requests {
		symbol := strings.ToUpper(strings.TrimSpace(r.Symbol))
		if symbol == "" {
			return nil, helpers.NewValidation("Missing required field: symbol")
		}
		tf, err := models.ParseTimeframe(r.Timeframe)
		if err != nil {
			return nil, helpers.NewValidation("Invalid timeframe: %s", r.Timeframe)
		}
		subs = append(subs, models.MSubscription{Symbol: symbol, Timeframe: tf})
	}
	return subs, nil
}

// -----------------------------------------------------------------------------

// Subscribe replaces the connection's subscription set. Any previous session
// is stopped first; the new one starts with every cursor at zero.
func (r *Registry) Subscribe(connectionID string, requests []models.MSubscriptionRequest) (*Session, error) {
	subs, err := ParseSubscriptions(requests)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[connectionID]; ok {
		old.Stop()
		r.logger.Info("Replaced stream for %s", connectionID)
	}

	session := newSession(connectionID, subs)
	r.sessions[connectionID] = session
	if r.launcher != nil {
		r.launcher.Launch(session)
	}
	r.logger.Info("Stream started for %s: %s", connectionID, describe(session.Subscriptions()))
	return session, nil
}

// -----------------------------------------------------------------------------

// Unsubscribe stops and forgets the connection's session.
func (r *Registry) Unsubscribe(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[connectionID]
	if !ok {
		return false
	}
	session.Stop()
	delete(r.sessions, connectionID)
	r.logger.Info("Stream removed for %s", connectionID)
	return true
}

// -----------------------------------------------------------------------------

func (r *Registry) Get(connectionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connectionID]
	return s, ok
}

// List describes every known session, sorted by connection id.
func (r *Registry) List() []models.MSessionInfo {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]models.MSessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// StopAll stops every session; used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Stop()
		delete(r.sessions, id)
	}
}

func describe(subs []models.MSubscription) string {
	parts := make([]string, 0, len(subs))
	for _, s := range subs {
		parts = append(parts, fmt.Sprintf("%s/%s", s.Symbol, s.Timeframe))
	}
	return strings.Join(parts, ", ")
}
