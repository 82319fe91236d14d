package server

import (
	"errors"
	"net/http"

	"mt-gateway/src/helpers"
	"mt-gateway/src/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Stream events exchanged over /ws.
const (
	EventStartStream = "start_candle_stream"
	EventStopStream  = "stop_candle_stream"
	EventNewCandle   = "new_candle"
	EventStatus      = "status"
	EventError       = "error"
)

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(uuid.NewString(), s, conn)

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()
	s.Logger.Info("Client %s connected from %s", client.id, c.ClientIP())

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------

// unregister ends the connection's stream session and releases the client.
func (s *GatewayServer) unregister(client *Client) {
	s.clientsMu.Lock()
	if s.clients[client.id] == client {
		delete(s.clients, client.id)
	}
	s.clientsMu.Unlock()

	s.registry.Unsubscribe(client.id)
	client.close()
}

// Connections returns the number of open websocket clients.
func (s *GatewayServer) Connections() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *GatewayServer) client(connectionID string) *Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.clients[connectionID]
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *GatewayServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MStreamCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Client %s sent an unreadable message: %v", client.id, err)
		s.EmitError(client.id, "Invalid message")
		return
	}

	switch cmd.Event {
	case EventStartStream:
		if _, err := s.registry.Subscribe(client.id, cmd.Subscriptions); err != nil {
			s.Logger.Warning("Client %s stream not started: %v", client.id, err)
			var validation *helpers.ValidationError
			if errors.As(err, &validation) {
				s.EmitError(client.id, "Failed to start stream: "+validation.Reason)
			} else {
				s.EmitError(client.id, "Failed to start stream")
			}
			return
		}
		s.EmitStatus(client.id, "Candle streaming started")

	case EventStopStream:
		s.registry.Unsubscribe(client.id)
		s.EmitStatus(client.id, "Candle streaming stopped")

	default:
		s.EmitError(client.id, "Unknown event: "+cmd.Event)
	}
}

// -----------------------------------------------------------------------------
// Stream Transport Implementation
// -----------------------------------------------------------------------------

// EmitBar queues a new_candle event without blocking.
func (s *GatewayServer) EmitBar(connectionID string, bar models.MBar) bool {
	c := s.client(connectionID)
	if c == nil {
		return false
	}
	return c.trySend(models.MStreamEvent{Event: EventNewCandle, Data: bar})
}

func (s *GatewayServer) EmitStatus(connectionID string, message string) {
	s.emit(connectionID, EventStatus, message)
}

func (s *GatewayServer) EmitError(connectionID string, message string) {
	s.emit(connectionID, EventError, message)
}

func (s *GatewayServer) emit(connectionID, event, message string) {
	c := s.client(connectionID)
	if c == nil {
		return
	}
	if !c.trySend(models.MStreamEvent{Event: event, Data: models.MStatusMessage{Message: message}}) {
		s.Logger.Warning("Dropped %s event for %s: send buffer full", event, connectionID)
	}
}
