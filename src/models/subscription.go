package models

// MSubscription is one (connection, symbol, timeframe) entry. LastDeliveredCloseTime
// never decreases.
type MSubscription struct {
	ConnectionID           string    `json:"connection_id"`
	Symbol                 string    `json:"symbol"`
	Timeframe              Timeframe `json:"timeframe"`
	LastDeliveredCloseTime int64     `json:"last_delivered_close_time"`
}

// Key identifies the subscription within its connection.
func (s MSubscription) Key() string {
	return s.Symbol + "_" + string(s.Timeframe)
}

// MSubscriptionRequest is one requested stream as sent by the client.
type MSubscriptionRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// MStreamCommand is an inbound websocket message.
type MStreamCommand struct {
	Event         string                 `json:"event"`
	Subscriptions []MSubscriptionRequest `json:"subscriptions"`
}

// MStreamEvent is an outbound websocket message.
type MStreamEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// MStatusMessage is the payload of status and error events.
type MStatusMessage struct {
	Message string `json:"message"`
}

// MSessionInfo describes a connection for the control plane.
type MSessionInfo struct {
	ConnectionID  string          `json:"connection_id"`
	Active        bool            `json:"active"`
	TaskState     string          `json:"task_state"`
	Subscriptions []MSubscription `json:"subscriptions"`
}
