package streaming

import (
	"context"
	"sync"
	"time"

	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/metrics"
	"mt-gateway/src/models"
	"mt-gateway/src/registry"
	"mt-gateway/src/upstream"
)

// MarketGate reports whether a symbol is trading at a given time.
type MarketGate interface {
	IsOpen(symbol string, at time.Time) bool
}

// -----------------------------------------------------------------------------
// Scheduler runs one polling task per session. Each cycle fetches the latest
// closed bars for every subscription and forwards the new ones, then sleeps to
// the next multiple of the period on the UTC clock. A failed upstream call
// ends the task; the client has to start a new stream.
// -----------------------------------------------------------------------------

type Scheduler struct {
	ctx         context.Context
	session     *upstream.Session
	transport   interfaces.IStreamTransport
	journal     interfaces.IJournal
	journalBars bool
	gate        MarketGate
	period      time.Duration
	barsPerPoll int
	now         func() time.Time
	logger      *logger.Logger
	wg          sync.WaitGroup
}

func NewScheduler(ctx context.Context, session *upstream.Session, transport interfaces.IStreamTransport, journal interfaces.IJournal, cfg models.MStreamingConfig, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		ctx:         ctx,
		session:     session,
		transport:   transport,
		journal:     journal,
		journalBars: cfg.JournalBars,
		period:      time.Duration(cfg.PollPeriodSeconds) * time.Second,
		barsPerPoll: cfg.BarsPerPoll,
		now:         time.Now,
		logger:      log,
	}
}

// WithGate skips subscriptions whose market is closed.
func (s *Scheduler) WithGate(gate MarketGate) *Scheduler {
	s.gate = gate
	return s
}

// SetTransport wires the transport after construction; the server and the
// scheduler reference each other.
func (s *Scheduler) SetTransport(t interfaces.IStreamTransport) {
	s.transport = t
}

// -----------------------------------------------------------------------------

// Launch implements registry.TaskLauncher.
func (s *Scheduler) Launch(session *registry.Session) {
	s.wg.Add(1)
	go s.run(session)
}

// Wait blocks until every task has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// -----------------------------------------------------------------------------

func (s *Scheduler) run(session *registry.Session) {
	defer s.wg.Done()

	session.SetTaskState(registry.TaskRunning)
	metrics.StreamTasks.Inc()
	cause := "inactive"
	defer func() {
		session.SetTaskState(registry.TaskStopped)
		metrics.StreamTasks.Dec()
		metrics.StreamTerminations.WithLabelValues(cause).Inc()
		s.logger.Info("Stream task for %s stopped (%s)", session.ID, cause)
	}()

	for {
		if !session.Active() {
			return
		}

		if err := s.cycle(session); err != nil {
			cause = "upstream_error"
			s.logger.Error("Polling error for %s: %v", session.ID, err)
			if session.Active() {
				s.transport.EmitError(session.ID, "Candle stream stopped: upstream unavailable")
			}
			session.Stop()
			return
		}

		now := s.now()
		timer := time.NewTimer(NextBoundary(now, s.period).Sub(now))
		select {
		case <-timer.C:
		case <-session.Done():
			timer.Stop()
			return
		case <-s.ctx.Done():
			timer.Stop()
			cause = "shutdown"
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Scheduler) cycle(session *registry.Session) error {
	for _, sub := range session.Subscriptions() {
		if !session.Active() {
			return nil
		}
		if s.gate != nil && !s.gate.IsOpen(sub.Symbol, s.now()) {
			continue
		}

		var bars []models.MBar
		err := s.session.Do(s.ctx, "latest_bars", func(u interfaces.IUpstream) error {
			var err error
			bars, err = u.LatestBars(s.ctx, sub.Symbol, sub.Timeframe, s.barsPerPoll)
			return err
		})
		if err != nil {
			return err
		}
		if len(bars) == 0 {
			continue
		}

		delivered := session.Deliver(sub.Key(), bars, func(b models.MBar) bool {
			return s.transport.EmitBar(session.ID, b)
		})
		if len(delivered) == 0 {
			continue
		}

		metrics.BarsDelivered.WithLabelValues(sub.Symbol, string(sub.Timeframe)).Add(float64(len(delivered)))
		if s.journalBars && s.journal != nil {
			if err := s.journal.SaveBars(delivered); err != nil {
				s.logger.Warning("Failed to journal bars for %s: %v", sub.Key(), err)
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// NextBoundary is the next instant after now that is a whole multiple of
// period on the UTC clock.
func NextBoundary(now time.Time, period time.Duration) time.Time {
	return now.UTC().Truncate(period).Add(period)
}
