package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/interfaces"
	"mt-gateway/src/models"
	"mt-gateway/src/routing"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Request decoding
// -----------------------------------------------------------------------------

func bindBody(c *gin.Context) (map[string]interface{}, bool) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil || raw == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return nil, false
	}
	return raw, true
}

// requireStrings checks the fields in order and returns them trimmed.
func requireStrings(raw map[string]interface{}, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := raw[f].(string)
		if !ok || strings.TrimSpace(v) == "" {
			return nil, helpers.NewValidation("Missing required field: %s", f)
		}
		out[f] = strings.TrimSpace(v)
	}
	return out, nil
}

// isoLayouts are tried in order. Timestamps without a zone are UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, helpers.NewValidation("Invalid ISO date format")
}

// -----------------------------------------------------------------------------
// Error responses
// -----------------------------------------------------------------------------

func (s *GatewayServer) writeError(c *gin.Context, err error) {
	var validation *helpers.ValidationError
	var rejected *helpers.OrderRejectedError
	var noResult *helpers.NoResultError

	status := helpers.HTTPStatus(err)
	switch {
	case errors.As(err, &validation):
		c.JSON(status, gin.H{"error": validation.Reason})
	case errors.As(err, &rejected):
		c.JSON(status, gin.H{
			"error":   "Order rejected",
			"retcode": rejected.Retcode,
			"code":    rejected.Code,
			"message": rejected.Message,
			"comment": rejected.Comment,
		})
	case errors.As(err, &noResult):
		c.JSON(status, gin.H{
			"error":   "Order failed - no response from terminal",
			"code":    noResult.Code,
			"message": noResult.Message,
		})
	case helpers.IsUpstreamUnavailable(err):
		s.Logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "Terminal connection failed"})
	default:
		s.Logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "Internal server error"})
	}
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

func (s *GatewayServer) placeOrder(kind models.OrderKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bindBody(c)
		if !ok {
			return
		}
		req, err := routing.Normalize(raw, kind)
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp, err := s.router.Place(c.Request.Context(), req)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// -----------------------------------------------------------------------------
// Candle ranges
// -----------------------------------------------------------------------------

// fetchRange selects the symbol and reads [from, to] under the upstream lock.
// An empty result is not an error.
func (s *GatewayServer) fetchRange(c *gin.Context, symbol string, tf models.Timeframe, from, to time.Time) {
	var bars []models.MBar
	err := s.session.Do(c.Request.Context(), "rates_range", func(u interfaces.IUpstream) error {
		selected, err := u.SelectSymbol(c.Request.Context(), symbol)
		if err != nil {
			return err
		}
		if !selected {
			return helpers.NewValidation("Symbol %s not available", symbol)
		}
		bars, err = u.RangeBars(c.Request.Context(), symbol, tf, from, to)
		return err
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if bars == nil {
		bars = []models.MBar{}
	}
	c.JSON(http.StatusOK, gin.H{"candles": bars})
}

// candleWindow decodes symbol, start and optionally end. A missing end means now.
func (s *GatewayServer) candleWindow(c *gin.Context, raw map[string]interface{}, needEnd bool) (string, time.Time, time.Time, bool) {
	fields := []string{"symbol", "start"}
	if needEnd {
		fields = append(fields, "end")
	}
	vals, err := requireStrings(raw, fields...)
	if err != nil {
		s.writeError(c, err)
		return "", time.Time{}, time.Time{}, false
	}

	start, err := parseISO(vals["start"])
	if err != nil {
		s.writeError(c, err)
		return "", time.Time{}, time.Time{}, false
	}
	end := s.now().UTC()
	if needEnd {
		if end, err = parseISO(vals["end"]); err != nil {
			s.writeError(c, err)
			return "", time.Time{}, time.Time{}, false
		}
	}
	return strings.ToUpper(vals["symbol"]), start, end, true
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) candlesBetween(c *gin.Context) {
	raw, ok := bindBody(c)
	if !ok {
		return
	}
	vals, err := requireStrings(raw, "timeframe")
	if err != nil {
		s.writeError(c, err)
		return
	}
	tf, err := models.ParseTimeframe(vals["timeframe"])
	if err != nil {
		s.writeError(c, helpers.NewValidation("Invalid timeframe: %s", vals["timeframe"]))
		return
	}
	symbol, start, end, ok := s.candleWindow(c, raw, true)
	if !ok {
		return
	}
	s.fetchRange(c, symbol, tf, start, end)
}

func (s *GatewayServer) lastWeekCandles1D(c *gin.Context) {
	raw, ok := bindBody(c)
	if !ok {
		return
	}
	if symbol, start, end, ok := s.candleWindow(c, raw, true); ok {
		s.fetchRange(c, symbol, models.TimeframeD1, start, end)
	}
}

func (s *GatewayServer) lastDayCandles1M(c *gin.Context) {
	raw, ok := bindBody(c)
	if !ok {
		return
	}
	if symbol, start, end, ok := s.candleWindow(c, raw, false); ok {
		s.fetchRange(c, symbol, models.TimeframeM1, start, end)
	}
}

func (s *GatewayServer) getCandlesIn(c *gin.Context) {
	raw, ok := bindBody(c)
	if !ok {
		return
	}
	if symbol, start, end, ok := s.candleWindow(c, raw, true); ok {
		s.fetchRange(c, symbol, models.TimeframeM1, start, end)
	}
}
