package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/auction-sync/internal/model"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no pong)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrForcedDisconnect = errors.New("forced disconnect")
	ErrNotStarted       = errors.New("manager not started")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Frame types exchanged with the auction server.
const (
	FrameSubscribe     = "SUBSCRIBE"
	FrameConnected     = "CONNECTED"
	FrameSubscribed    = "SUBSCRIBED"
	FrameAuctionUpdate = "AUCTION_UPDATE"
	FrameBidPlaced     = "BID_PLACED"
	FrameError         = "ERROR"
)

// SubscribeCommand is the only outbound frame.
type SubscribeCommand struct {
	Type   string `json:"type"`
	ItemID string `json:"itemId"`
}

// Frame is one parsed inbound message. Fields not carried by a frame type
// are left at their zero value.
type Frame struct {
	Type   string `json:"type"`
	ItemID string `json:"itemId,omitempty"`

	// AUCTION_UPDATE
	ItemName      string              `json:"itemName,omitempty"`
	CurrentPrice  decimal.NullDecimal `json:"currentPrice"`
	HighestBidder *string             `json:"highestBidder"`
	AuctionStatus string              `json:"auctionStatus,omitempty"`

	// BID_PLACED
	BidID     string              `json:"bidId,omitempty"`
	UserID    string              `json:"userId,omitempty"`
	Username  string              `json:"username,omitempty"`
	BidAmount decimal.NullDecimal `json:"bidAmount"`
	Timestamp model.Timestamp     `json:"timestamp"`

	// CONNECTED, ERROR
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// FrameHandler receives frames for one registered item.
type FrameHandler func(Frame)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed    // Failed; a reconnect is scheduled
	StateExhausted // Failed with no retry budget left; needs Reconnect
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusEvent is broadcast to status observers on every state transition
// and for every frame that no per-item handler claimed.
type StatusEvent struct {
	State   State
	Attempt int           // Retry counter at the time of the event
	Delay   time.Duration // Scheduled reconnect delay (StateClosed only)
	Err     error         // Transport failure that caused the transition, if any
	Frame   *Frame        // Set for unrouted frames; State is unchanged then
}

// StatusHandler receives status events.
type StatusHandler func(StatusEvent)

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., ws://localhost:8080/ws/auction-updates)
	Header           http.Header   // Extra handshake headers (cookies, origin)
	HandshakeTimeout time.Duration // Max time for the opening handshake
	PingInterval     time.Duration // How often to send keepalive pings
	PingTimeout      time.Duration // Max time without pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1024,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client               ClientConfig
	ReconnectBaseDelay   time.Duration // Delay before the first reconnect attempt
	ReconnectMaxDelay    time.Duration // Ceiling for any single delay
	MaxReconnectAttempts int           // Consecutive reconnect attempts before EXHAUSTED
	ConnectTimeout       time.Duration // Overall deadline for one dial
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:               DefaultClientConfig(),
		ReconnectBaseDelay:   500 * time.Millisecond,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
		ConnectTimeout:       15 * time.Second,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State           State  `json:"state"`
	Retries         int    `json:"retries"`
	Items           int    `json:"items"`
	StatusObservers int    `json:"status_observers"`
	Connects        int64  `json:"connects"`
	FramesReceived  int64  `json:"frames_received"`
	FramesMalformed int64  `json:"frames_malformed"`
	FramesUnrouted  int64  `json:"frames_unrouted"`
	LastError       string `json:"last_error,omitempty"`
}
