package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/metrics"
	"mt-gateway/src/models"
	"mt-gateway/src/notify"
	"mt-gateway/src/upstream"
)

var errNoHistory = errors.New("terminal returned no deal history")

// Counted tickets are forgotten once their close time is older than this.
const seenRetention = 48 * time.Hour

// -----------------------------------------------------------------------------
// Reconciler periodically pulls history deals since its checkpoint, counts the
// closures and announces each one. The checkpoint lives in memory only and
// moves only after a sweep succeeds, so a failed window is covered again by
// the next sweep. After a restart it starts from the restart time.
// -----------------------------------------------------------------------------

type Reconciler struct {
	session  *upstream.Session
	notifier interfaces.INotifier
	journal  interfaces.IJournal
	interval time.Duration
	now      func() time.Time
	logger   *logger.Logger

	mu           sync.Mutex
	processStart time.Time
	checkpoint   time.Time
	statsStart   time.Time
	global       models.MCloseStats
	bySymbol     map[string]models.MCloseStats
	seen         map[uint64]int64 // ticket -> close time
	sweeps       int
	lastErr      string
}

func New(session *upstream.Session, notifier interfaces.INotifier, journal interfaces.IJournal, cfg models.MReconcilerConfig, log *logger.Logger) *Reconciler {
	return newWithClock(session, notifier, journal, cfg, log, time.Now)
}

func newWithClock(session *upstream.Session, notifier interfaces.INotifier, journal interfaces.IJournal, cfg models.MReconcilerConfig, log *logger.Logger, now func() time.Time) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	start := now().UTC()
	return &Reconciler{
		session:      session,
		notifier:     notifier,
		journal:      journal,
		interval:     time.Duration(cfg.IntervalSeconds) * time.Second,
		now:          now,
		logger:       log,
		processStart: start,
		checkpoint:   start,
		statsStart:   StatsStart(start, start),
		bySymbol:     make(map[string]models.MCloseStats),
		seen:         make(map[uint64]int64),
	}
}

// -----------------------------------------------------------------------------

// Run sweeps every interval until ctx is cancelled. The interval is measured
// from the end of one sweep to the start of the next.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("Closed-position monitor started (interval %s, checkpoint %s)", r.interval, r.Checkpoint().Format(time.RFC3339))
	for {
		_ = r.Sweep(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("Closed-position monitor stopped")
			return
		case <-time.After(r.interval):
		}
	}
}

// -----------------------------------------------------------------------------

// Sweep processes the window [checkpoint, now). On error nothing is counted
// and the checkpoint stays put.
func (r *Reconciler) Sweep(ctx context.Context) error {
	now := r.now().UTC()
	from := r.Checkpoint()

	var deals []models.MDeal
	digits := map[string]int{}
	err := r.session.Do(ctx, "history_deals", func(u interfaces.IUpstream) error {
		var err error
		deals, err = u.HistoryDeals(ctx, from, now)
		if err != nil {
			return err
		}
		if deals == nil {
			return helpers.NewUpstreamUnavailable("history_deals", errNoHistory)
		}
		for _, d := range deals {
			if _, ok := digits[d.Symbol]; ok || !d.IsClosing() {
				continue
			}
			info, err := u.SymbolInfo(ctx, d.Symbol)
			if err != nil {
				return err
			}
			if info != nil {
				digits[d.Symbol] = info.Digits
			}
		}
		return nil
	})
	if err != nil {
		metrics.ReconcilerSweeps.WithLabelValues("skipped").Inc()
		r.logger.Error("Position check skipped: %v", err)
		r.mu.Lock()
		r.lastErr = err.Error()
		r.mu.Unlock()
		return err
	}

	r.process(deals, digits, now)
	metrics.ReconcilerSweeps.WithLabelValues("ok").Inc()
	return nil
}

// -----------------------------------------------------------------------------

func (r *Reconciler) process(deals []models.MDeal, digits map[string]int, now time.Time) {
	r.mu.Lock()
	r.rollStatsLocked(now)

	var closed []models.MClosedDeal
	var messages []string
	for _, d := range deals {
		cd, ok := Classify(d)
		if !ok {
			continue
		}
		if _, dup := r.seen[cd.Ticket]; dup {
			continue
		}
		r.seen[cd.Ticket] = cd.CloseTime
		r.countLocked(cd)

		precision, ok := digits[cd.Symbol]
		if !ok {
			precision = 5
		}
		messages = append(messages, notify.FormatClosedPosition(cd, precision, r.snapshotLocked()))
		closed = append(closed, cd)
		metrics.ClosedDeals.WithLabelValues(cd.Symbol, string(cd.CloseReason)).Inc()
	}

	r.pruneSeenLocked(now)
	r.checkpoint = now
	r.sweeps++
	r.lastErr = ""
	r.mu.Unlock()

	for _, msg := range messages {
		if r.notifier != nil {
			r.notifier.Enqueue(msg)
		}
	}
	if len(closed) > 0 {
		r.logger.Info("Processed %d closed positions", len(closed))
		if r.journal != nil {
			if err := r.journal.SaveClosedDeals(closed); err != nil {
				r.logger.Warning("Failed to journal closed deals: %v", err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (r *Reconciler) countLocked(cd models.MClosedDeal) {
	sym := r.bySymbol[cd.Symbol]
	sym.Total++
	r.global.Total++
	switch cd.CloseReason {
	case models.CloseReasonStopLoss:
		sym.StopLossCount++
		r.global.StopLossCount++
	case models.CloseReasonTakeProfit:
		sym.TakeProfitCount++
		r.global.TakeProfitCount++
	}
	r.bySymbol[cd.Symbol] = sym
}

func (r *Reconciler) pruneSeenLocked(now time.Time) {
	cutoff := now.Add(-seenRetention).Unix()
	for ticket, closedAt := range r.seen {
		if closedAt < cutoff {
			delete(r.seen, ticket)
		}
	}
}

// rollStatsLocked resets the counters when the stats start moves, which
// happens at the first sweep of a new calendar year.
func (r *Reconciler) rollStatsLocked(now time.Time) {
	start := StatsStart(r.processStart, now)
	if start.Equal(r.statsStart) {
		return
	}
	if r.global.Total > 0 && r.notifier != nil {
		r.notifier.Enqueue(notify.FormatStats(r.snapshotLocked()))
	}
	r.statsStart = start
	r.global = models.MCloseStats{}
	r.bySymbol = make(map[string]models.MCloseStats)
	r.seen = make(map[uint64]int64)
}

// StatsStart is the later of process start and the start of now's UTC year.
func StatsStart(processStart, now time.Time) time.Time {
	yearStart := time.Date(now.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	if processStart.After(yearStart) {
		return processStart.UTC()
	}
	return yearStart
}

func (r *Reconciler) snapshotLocked() models.MStatsSnapshot {
	by := make(map[string]models.MCloseStats, len(r.bySymbol))
	for k, v := range r.bySymbol {
		by[k] = v
	}
	return models.MStatsSnapshot{Since: r.statsStart.Unix(), Global: r.global, BySymbol: by}
}

// -----------------------------------------------------------------------------

func (r *Reconciler) Stats() models.MStatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) Checkpoint() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkpoint
}

// Health reports completed sweeps and the last error, empty if the last sweep succeeded.
func (r *Reconciler) Health() (int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweeps, r.lastErr
}
