package stream

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout (no pong)")
	ErrStopped          = errors.New("session stopped")
)

// invalidSessionToken is the error code the server returns on a subscribe
// attempt with expired credentials.
const invalidSessionToken = "error.invalid.session.token"

// Message destinations on the Capital.com streaming endpoint.
const (
	destPing      = "ping"
	destSubscribe = "marketData.subscribe"
	destQuote     = "quote"
)

// State is the streaming session's connection state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateSubscribed   State = "SUBSCRIBED"
	StateTerminated   State = "TERMINATED"
)

// Event is what the session emits to its consumer. Exactly one of Tick,
// State, or Err is meaningful per event.
type Event struct {
	Tick  *model.Tick
	State State
	Err   error
	Fatal bool // true when the session cannot make further progress
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string
	WriteTimeout time.Duration
	BufferSize   int
}

// Config configures a streaming Session.
type Config struct {
	URL              string
	ReconnectDelay   time.Duration // fixed delay before reconnect attempts
	PingInterval     time.Duration // protocol-level ping cadence
	PongWait         time.Duration // bounded wait for a pong before the link is dead
	SubscribeDelay   time.Duration // pause between ping and subscribe on connect
	SubscribeTimeout time.Duration
	WriteTimeout     time.Duration
	BufferSize       int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://api-streaming-capital.backend-capital.com/connect",
		ReconnectDelay:   2 * time.Second,
		PingInterval:     30 * time.Second,
		PongWait:         10 * time.Second,
		SubscribeDelay:   100 * time.Millisecond,
		SubscribeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// Wire types for the streaming protocol.

// subscribeMessage requests quote updates for a set of epics.
type subscribeMessage struct {
	Destination   string           `json:"destination"`
	CorrelationID string           `json:"correlationId"`
	CST           string           `json:"cst"`
	SecurityToken string           `json:"securityToken"`
	Payload       subscribePayload `json:"payload"`
}

type subscribePayload struct {
	Epics []string `json:"epics"`
}

// pingMessage is the protocol-level heartbeat.
type pingMessage struct {
	Destination   string `json:"destination"`
	CorrelationID string `json:"correlationId"`
	CST           string `json:"cst"`
	SecurityToken string `json:"securityToken"`
}

// serverMessage is the envelope of every inbound message.
type serverMessage struct {
	Destination string          `json:"destination"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload"`
}

// subscribeResponsePayload is the payload of a subscribe acknowledgement.
type subscribeResponsePayload struct {
	Subscriptions map[string]string `json:"subscriptions"`
	ErrorCode     string            `json:"errorCode"`
}

// quotePayload is a single tick. "ofr" is the ask price; timestamps are
// epoch milliseconds.
type quotePayload struct {
	Epic      string  `json:"epic"`
	Bid       float64 `json:"bid"`
	Ofr       float64 `json:"ofr"`
	BidQty    float64 `json:"bidQty"`
	OfrQty    float64 `json:"ofrQty"`
	Timestamp int64   `json:"timestamp"`
}

func (q quotePayload) toTick(receivedAt time.Time) model.Tick {
	return model.Tick{
		Epic:       q.Epic,
		Bid:        q.Bid,
		Ask:        q.Ofr,
		BidQty:     q.BidQty,
		AskQty:     q.OfrQty,
		Timestamp:  time.UnixMilli(q.Timestamp).UTC(),
		ReceivedAt: receivedAt,
	}
}
