package socketio

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Options is used to configure the socket.io handler and the sessions it creates.
type Options struct {
	// HeartbeatInterval is how often the server sends a heartbeat to an idle client.
	// Must be lower than HeartbeatTimeout.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is how long a client may stay silent before its session is disconnected.
	// Advertised to clients in the handshake.
	HeartbeatTimeout time.Duration
	// CloseTimeout is advertised to clients in the handshake.
	CloseTimeout time.Duration
	// PollingDuration limits how long an idle long-poll request is held open.
	PollingDuration time.Duration
	// Transports lists the enabled transports, in order of preference.
	Transports []TransportType
	// MaxPayload limits the size of one inbound frame, an HTTP body or a websocket message.
	MaxPayload int64
	// LocalPort is carried into session metadata.
	LocalPort int
	// WebsocketUpgrader is used to upgrade websocket requests, a zero upgrader when nil.
	WebsocketUpgrader *websocket.Upgrader
	// WebsocketWriteTimeout sets a write deadline on every websocket write when non zero.
	WebsocketWriteTimeout time.Duration
	// Logger receives structured logs, slog.Default() when nil.
	Logger *slog.Logger
	// Registerer registers the prometheus collectors. Collectors stay unregistered when nil.
	Registerer prometheus.Registerer
	// TracerProvider creates the dispatch tracer, the global provider when nil.
	TracerProvider trace.TracerProvider
}

// DefaultOptions is a set of defaults matching the reference socket.io 0.9 server.
var DefaultOptions = Options{
	HeartbeatInterval: 25 * time.Second,
	HeartbeatTimeout:  60 * time.Second,
	CloseTimeout:      60 * time.Second,
	PollingDuration:   20 * time.Second,
	MaxPayload:        64 * 1024,
	Transports:        []TransportType{TransportWebsocket, TransportXHRPolling, TransportJSONPPolling},
}

// Validate checks the heartbeat contract and the transport list.
func (o Options) Validate() error {
	if o.HeartbeatInterval <= 0 || o.HeartbeatTimeout <= 0 {
		return fmt.Errorf("%w: heartbeat interval and timeout must be positive", ErrInvalidOptions)
	}
	if o.HeartbeatInterval >= o.HeartbeatTimeout {
		return fmt.Errorf("%w: heartbeat interval %s must be lower than timeout %s",
			ErrInvalidOptions, o.HeartbeatInterval, o.HeartbeatTimeout)
	}
	if o.PollingDuration <= 0 {
		return fmt.Errorf("%w: polling duration must be positive", ErrInvalidOptions)
	}
	if o.CloseTimeout <= 0 {
		return fmt.Errorf("%w: close timeout must be positive", ErrInvalidOptions)
	}
	if len(o.Transports) == 0 {
		return fmt.Errorf("%w: no transports enabled", ErrInvalidOptions)
	}
	for _, t := range o.Transports {
		if !t.valid() {
			return fmt.Errorf("%w: %w (%d)", ErrInvalidOptions, ErrUnknownTransport, t)
		}
	}
	return nil
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) transportEnabled(t TransportType) bool {
	for _, enabled := range o.Transports {
		if enabled == t {
			return true
		}
	}
	return false
}

func (o Options) transportList() string {
	names := make([]string, 0, len(o.Transports))
	for _, t := range o.Transports {
		names = append(names, t.String())
	}
	return strings.Join(names, ",")
}

func (o Options) heartbeatConfig() heartbeatConfig {
	return heartbeatConfig{interval: o.HeartbeatInterval, timeout: o.HeartbeatTimeout}
}
