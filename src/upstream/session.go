package upstream

import (
	"context"
	"sync"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/metrics"
	"mt-gateway/src/models"
)

// -----------------------------------------------------------------------------

// Session owns the single terminal connection. Every caller (stream tasks,
// order requests, the reconciler) goes through Do, which holds the lock for
// the whole connect-operate sequence.
type Session struct {
	mu        sync.Mutex
	terminal  interfaces.IUpstream
	connected bool
	policy    helpers.RetryPolicy
	logger    *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSession(terminal interfaces.IUpstream, cfg models.MUpstreamConfig, log *logger.Logger) *Session {
	if log == nil {
		log = logger.NewNop()
	}
	return &Session{
		terminal: terminal,
		policy: helpers.RetryPolicy{
			Attempts: cfg.ConnectAttempts,
			Delay:    time.Duration(cfg.ConnectBackoffMs) * time.Millisecond,
		},
		logger: log,
	}
}

// -----------------------------------------------------------------------------

// Do runs fn with exclusive access to the terminal, connecting first if
// needed. Connection failures and any upstream-unavailable error returned by fn
// drop the connection so the next caller starts fresh.
func (s *Session) Do(ctx context.Context, op string, fn func(interfaces.IUpstream) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.UpstreamDurations.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if !s.connected {
		err := helpers.RetryWithBackoff(ctx, s.logger, "terminal connect", s.policy, func() error {
			return s.terminal.Connect(ctx)
		})
		if err != nil {
			s.logger.Error("Terminal connection failed after %d attempts: %v", s.policy.Attempts, err)
			return helpers.NewUpstreamUnavailable("connect", err)
		}
		s.connected = true
		s.logger.Info("Terminal connected")
	}

	err := fn(s.terminal)
	if err != nil && helpers.IsUpstreamUnavailable(err) {
		s.logger.Warning("Dropping terminal connection after %s failure: %v", op, err)
		s.disconnectLocked()
	}
	return err
}

// -----------------------------------------------------------------------------

// Connected reports whether the session currently holds a live connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// -----------------------------------------------------------------------------

// Close disconnects; a later Do reconnects.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked()
}

func (s *Session) disconnectLocked() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	if err := s.terminal.Disconnect(); err != nil {
		s.logger.Warning("Terminal shutdown error: %v", err)
		return err
	}
	return nil
}
