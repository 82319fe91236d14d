package grpc_control

import (
	"context"
	"time"

	"mt-gateway/src/logger"
	"mt-gateway/src/models"
	"mt-gateway/src/notify"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// -----------------------------------------------------------------------------
// Collaborators, narrowed to what the control plane reads.
// -----------------------------------------------------------------------------

type SessionLister interface {
	List() []models.MSessionInfo
}

type UpstreamState interface {
	Connected() bool
}

type NotifierState interface {
	Status() notify.Status
}

type ReconcilerState interface {
	Stats() models.MStatsSnapshot
	Checkpoint() time.Time
	Health() (int, string)
}

// -----------------------------------------------------------------------------

// ControlService answers read-only operational queries about the gateway.
type ControlService struct {
	Sessions   SessionLister
	Upstream   UpstreamState
	Notifier   NotifierState   // nil when notifications are disabled
	Reconciler ReconcilerState // nil when the reconciler is disabled
	Logger     *logger.Logger

	started time.Time
	now     func() time.Time
}

// NewControlService creates a new instance of ControlService
func NewControlService(sessions SessionLister, up UpstreamState, notifier NotifierState, rec ReconcilerState, log *logger.Logger) *ControlService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ControlService{
		Sessions:   sessions,
		Upstream:   up,
		Notifier:   notifier,
		Reconciler: rec,
		Logger:     log,
		started:    time.Now(),
		now:        time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) Health(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]interface{}{
		"status":             "ok",
		"upstream_connected": s.Upstream.Connected(),
		"sessions":           len(s.Sessions.List()),
		"uptime_seconds":     s.now().Sub(s.started).Seconds(),
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListSessions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	infos := s.Sessions.List()
	sessions := make([]interface{}, 0, len(infos))
	for _, info := range infos {
		subs := make([]interface{}, 0, len(info.Subscriptions))
		for _, sub := range info.Subscriptions {
			subs = append(subs, map[string]interface{}{
				"symbol":                    sub.Symbol,
				"timeframe":                 string(sub.Timeframe),
				"last_delivered_close_time": sub.LastDeliveredCloseTime,
			})
		}
		sessions = append(sessions, map[string]interface{}{
			"connection_id": info.ConnectionID,
			"active":        info.Active,
			"task_state":    info.TaskState,
			"subscriptions": subs,
		})
	}
	return toStruct(map[string]interface{}{"sessions": sessions})
}

// -----------------------------------------------------------------------------

func (s *ControlService) NotifierStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.Notifier == nil {
		return toStruct(map[string]interface{}{"enabled": false})
	}
	st := s.Notifier.Status()
	return toStruct(map[string]interface{}{
		"enabled":  true,
		"state":    st.State,
		"failures": st.Failures,
		"queued":   st.Queued,
		"sent":     st.Sent,
		"failed":   st.Failed,
		"dropped":  st.Dropped,
		"rejected": st.Rejected,
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) ReconcilerStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.Reconciler == nil {
		return toStruct(map[string]interface{}{"enabled": false})
	}

	snap := s.Reconciler.Stats()
	sweeps, lastErr := s.Reconciler.Health()
	bySymbol := make(map[string]interface{}, len(snap.BySymbol))
	for sym, st := range snap.BySymbol {
		bySymbol[sym] = statsMap(st)
	}
	return toStruct(map[string]interface{}{
		"enabled":    true,
		"since":      snap.Since,
		"checkpoint": s.Reconciler.Checkpoint().UTC().Unix(),
		"sweeps":     sweeps,
		"last_error": lastErr,
		"global":     statsMap(snap.Global),
		"by_symbol":  bySymbol,
	})
}

// -----------------------------------------------------------------------------

func statsMap(st models.MCloseStats) map[string]interface{} {
	return map[string]interface{}{
		"total":      st.Total,
		"stoploss":   st.StopLossCount,
		"takeprofit": st.TakeProfitCount,
	}
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
