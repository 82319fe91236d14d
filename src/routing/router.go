package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/metrics"
	"mt-gateway/src/models"
	"mt-gateway/src/notify"
	"mt-gateway/src/upstream"
)

// -----------------------------------------------------------------------------
// Router validates order requests against live market state and submits them
// to the terminal. Every outcome is mirrored to the notifier and the journal.
// -----------------------------------------------------------------------------

type Router struct {
	session  *upstream.Session
	cfg      models.MOrdersConfig
	rules    Rules
	notifier interfaces.INotifier
	journal  interfaces.IJournal
	logger   *logger.Logger
	now      func() time.Time
}

func NewRouter(session *upstream.Session, cfg models.MOrdersConfig, notifier interfaces.INotifier, journal interfaces.IJournal, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewNop()
	}
	rules := RulesFromConfig(cfg)
	log.Info("Order rules: %s", rules)
	return &Router{
		session:  session,
		cfg:      cfg,
		rules:    rules,
		notifier: notifier,
		journal:  journal,
		logger:   log,
		now:      time.Now,
	}
}

// -----------------------------------------------------------------------------

// Normalize checks required fields of a decoded JSON body and canonicalizes
// symbol and direction. A field present with a null value counts as missing.
func Normalize(raw map[string]interface{}, kind models.OrderKind) (models.MOrderRequest, error) {
	for _, field := range []string{"symbol", "volume", "direction", "sl", "tp", "price"} {
		if v, ok := raw[field]; !ok || v == nil {
			return models.MOrderRequest{}, helpers.NewValidation("Missing required field: %s", field)
		}
	}

	symbol, ok := raw["symbol"].(string)
	if !ok || strings.TrimSpace(symbol) == "" {
		return models.MOrderRequest{}, helpers.NewValidation("Missing required field: symbol")
	}
	direction, ok := raw["direction"].(string)
	if !ok {
		return models.MOrderRequest{}, helpers.NewValidation("Invalid direction - use BUY/SELL")
	}

	req := models.MOrderRequest{
		Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		Direction: models.Direction(strings.ToUpper(direction)),
		Kind:      kind,
	}
	if req.Direction != models.DirectionBuy && req.Direction != models.DirectionSell {
		return models.MOrderRequest{}, helpers.NewValidation("Invalid direction - use BUY/SELL")
	}

	var err error
	if req.Volume, err = number(raw, "volume"); err != nil {
		return models.MOrderRequest{}, err
	}
	if req.Price, err = number(raw, "price"); err != nil {
		return models.MOrderRequest{}, err
	}
	if req.StopLoss, err = number(raw, "sl"); err != nil {
		return models.MOrderRequest{}, err
	}
	if req.TakeProfit, err = number(raw, "tp"); err != nil {
		return models.MOrderRequest{}, err
	}
	if req.Volume <= 0 {
		return models.MOrderRequest{}, helpers.NewValidation("Invalid volume: %v", req.Volume)
	}
	return req, nil
}

func number(raw map[string]interface{}, field string) (float64, error) {
	switch v := raw[field].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, helpers.NewValidation("Invalid value for field: %s", field)
	}
}

// -----------------------------------------------------------------------------

// Place runs the full order flow under the upstream lock.
func (r *Router) Place(ctx context.Context, req models.MOrderRequest) (*models.MOrderResponse, error) {
	var decision models.MOrderDecision
	var digits = 5
	var response *models.MOrderResponse

	err := r.session.Do(ctx, "order_send", func(u interfaces.IUpstream) error {
		selected, err := u.SelectSymbol(ctx, req.Symbol)
		if err != nil {
			return err
		}
		if !selected {
			return helpers.NewValidation("Symbol %s not available", req.Symbol)
		}

		tick, err := u.Tick(ctx, req.Symbol)
		if err != nil {
			return err
		}
		if tick == nil {
			return helpers.NewValidation("Failed to get market price")
		}

		info, err := u.SymbolInfo(ctx, req.Symbol)
		if err != nil {
			return err
		}
		if info == nil {
			return helpers.NewValidation("Symbol info unavailable for %s", req.Symbol)
		}
		digits = info.Digits

		decision = Decide(req, *tick, *info, r.rules)
		if decision.Rejected {
			return helpers.NewValidation("%s", decision.Reason)
		}

		order := r.buildOrder(req, decision)
		result, err := u.SendOrder(ctx, order)
		if err != nil {
			return err
		}

		var code int
		var message string
		if result == nil || result.Retcode != r.cfg.RetcodeDone {
			code, message = u.LastError(ctx)
		}
		if err := InterpretResult(result, r.cfg.RetcodeDone, code, message); err != nil {
			return err
		}

		response = &models.MOrderResponse{
			Message:    successMessage(decision.OrderType),
			Ticket:     result.Ticket,
			Symbol:     req.Symbol,
			Direction:  req.Direction,
			OrderType:  decision.OrderType,
			EntryPrice: decision.AdjustedPrice,
			StopLoss:   decision.AdjustedSL,
			TakeProfit: decision.AdjustedTP,
			Expiration: order.Expiration,
		}
		return nil
	})

	r.record(req, decision, response, err, digits)
	return response, err
}

// -----------------------------------------------------------------------------

func (r *Router) buildOrder(req models.MOrderRequest, d models.MOrderDecision) models.MUpstreamOrder {
	now := r.now()
	order := models.MUpstreamOrder{
		Symbol:      req.Symbol,
		Volume:      req.Volume,
		Type:        d.OrderType,
		Pending:     d.OrderType.IsPending(),
		Price:       d.AdjustedPrice,
		StopLoss:    d.AdjustedSL,
		TakeProfit:  d.AdjustedTP,
		Deviation:   r.cfg.Deviation,
		TimeGTC:     true,
		FillOrKill:  true,
		Magic:       r.cfg.Magic,
		Comment:     "mt-gateway",
		SubmittedAt: now,
	}
	if order.Pending {
		order.Expiration = now.Add(time.Duration(r.cfg.PendingExpirationHours) * time.Hour).Unix()
	}
	return order
}

// -----------------------------------------------------------------------------

// InterpretResult maps the terminal's answer onto the error taxonomy. Only
// retcodeDone is success; anything else is passed through untouched.
func InterpretResult(result *models.MOrderResult, retcodeDone int, code int, message string) error {
	if result == nil {
		return &helpers.NoResultError{Code: code, Message: message}
	}
	if result.Retcode != retcodeDone {
		return &helpers.OrderRejectedError{
			Retcode: result.Retcode,
			Code:    code,
			Message: message,
			Comment: result.Comment,
		}
	}
	return nil
}

func successMessage(t models.OrderType) string {
	if t.IsPending() {
		return "Pending order placed successfully"
	}
	return "Market order executed successfully"
}

// -----------------------------------------------------------------------------

func (r *Router) record(req models.MOrderRequest, d models.MOrderDecision, resp *models.MOrderResponse, err error, digits int) {
	audit := models.MOrderAudit{
		Request:   req,
		OrderType: d.OrderType,
		CreatedAt: r.now().UTC(),
	}

	switch {
	case err == nil:
		audit.Outcome = "placed"
		audit.Ticket = resp.Ticket
		r.logger.Info("Order placed: %s %s %s ticket=%d", req.Symbol, req.Direction, d.OrderType, resp.Ticket)
		if r.notifier != nil {
			r.notifier.Enqueue(notify.FormatOrderPlaced(*resp, req.Volume, digits))
		}
	case helpers.HTTPStatus(err) < 500:
		audit.Outcome = "rejected"
		audit.Reason = err.Error()
		var rejected *helpers.OrderRejectedError
		if errors.As(err, &rejected) {
			audit.Retcode = rejected.Retcode
		}
		r.logger.Warning("Order rejected: %s %s: %v", req.Symbol, req.Direction, err)
		if r.notifier != nil {
			r.notifier.Enqueue(notify.FormatOrderRejected(req, err.Error()))
		}
	default:
		audit.Outcome = "failed"
		audit.Reason = err.Error()
		r.logger.Error("Order failed: %s %s: %v", req.Symbol, req.Direction, err)
		if r.notifier != nil {
			r.notifier.Enqueue(notify.FormatOrderRejected(req, err.Error()))
		}
	}

	metrics.Orders.WithLabelValues(string(req.Kind), audit.Outcome).Inc()

	if r.journal != nil {
		if jerr := r.journal.SaveOrderAudit(audit); jerr != nil {
			r.logger.Warning("Failed to journal order audit: %v", jerr)
		}
	}
}

// -----------------------------------------------------------------------------

// String is used in logs.
func (r Rules) String() string {
	return fmt.Sprintf("drift=%g minDist=%gpt minStop=%gpt", r.MaxPriceDrift, r.MinDistancePoints, r.MinStopDistancePoints)
}
