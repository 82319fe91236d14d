package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"mt-gateway/src/logger"
	"mt-gateway/src/models"
	"mt-gateway/src/registry"
	"mt-gateway/src/routing"
	"mt-gateway/src/upstream"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -----------------------------------------------------------------------------
// GatewayServer
// -----------------------------------------------------------------------------

type GatewayServer struct {
	Config *models.MConfig
	Logger *logger.Logger

	engine     *gin.Engine
	httpServer *http.Server
	session    *upstream.Session
	router     *routing.Router
	registry   *registry.Registry
	now        func() time.Time

	// WebSocket clients keyed by connection id
	clients   map[string]*Client
	clientsMu sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewGatewayServer(cfg *models.MConfig, session *upstream.Session, router *routing.Router, reg *registry.Registry, log *logger.Logger) *GatewayServer {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &GatewayServer{
		Config:   cfg,
		Logger:   log,
		engine:   gin.New(),
		session:  session,
		router:   router,
		registry: reg,
		now:      time.Now,
		clients:  make(map[string]*Client),
	}

	s.engine.Use(gin.Recovery(), s.requestLog())

	// CORS for local dashboards
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *GatewayServer) setupRoutes() {
	// Orders
	s.engine.POST("/place_order", s.placeOrder(models.OrderKindMarket))
	s.engine.POST("/place_limit_order", s.placeOrder(models.OrderKindPending))

	// Candle ranges
	s.engine.POST("/candles_between", s.candlesBetween)
	s.engine.POST("/last_week_candles_1d", s.lastWeekCandles1D)
	s.engine.POST("/last_day_candles_1m", s.lastDayCandles1M)
	s.engine.POST("/get_candles_in", s.getCandlesIn)

	// Service endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the engine, mainly for httptest.
func (s *GatewayServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start blocks until the server is shut down.
func (s *GatewayServer) Start() error {
	s.Logger.Info("Starting server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop closes every websocket, which ends their stream sessions, then drains
// in-flight requests.
func (s *GatewayServer) Stop(ctx context.Context) error {
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// -----------------------------------------------------------------------------
// Service Handlers
// -----------------------------------------------------------------------------

func (s *GatewayServer) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"connections":        s.Connections(),
		"sessions":           len(s.registry.List()),
		"upstream_connected": s.session.Connected(),
		"timestamp":          s.now().UTC().Unix(),
	})
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timeframes":          models.AllTimeframes,
		"poll_period_seconds": s.Config.Streaming.PollPeriodSeconds,
		"orders": gin.H{
			"max_price_drift":          s.Config.Orders.MaxPriceDrift,
			"min_distance_points":      s.Config.Orders.MinDistancePoints,
			"min_stop_distance_points": s.Config.Orders.MinStopDistancePoints,
			"pending_expiration_hours": s.Config.Orders.PendingExpirationHours,
		},
	})
}
